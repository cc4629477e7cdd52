package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/jumptable"
	"github.com/wippyai/brainsim/loader"
	"github.com/wippyai/brainsim/memory"
	"github.com/wippyai/brainsim/wasm"
)

// GuestModuleName is the name the guest is instantiated under.
const GuestModuleName = "guest"

// Instance is a running guest with its jump table bound.
type Instance struct {
	guest      *loader.GuestModule
	mod        api.Module
	host       api.Module
	env        api.Module
	dispatcher *jumptable.Dispatcher
	bridge     *memory.Bridge
	layout     jumptable.Layout
	base       uint32
}

// InstanceOption configures instantiation.
type InstanceOption func(*instanceConfig)

type instanceConfig struct {
	dispatcherOpts []jumptable.DispatcherOption
}

// WithDispatcherOptions passes options to the instance's dispatcher.
func WithDispatcherOptions(opts ...jumptable.DispatcherOption) InstanceOption {
	return func(c *instanceConfig) {
		c.dispatcherOpts = append(c.dispatcherOpts, opts...)
	}
}

// Instantiate binds table to guest and instantiates it. No guest export is
// called; only the module's own start section, if any, runs.
func (e *Engine) Instantiate(ctx context.Context, guest *loader.GuestModule, table *jumptable.JumpTable, opts ...InstanceOption) (*Instance, error) {
	var cfg instanceConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := checkHostImports(guest, table); err != nil {
		return nil, err
	}

	layout := table.TrapLayout(guest.Table.Min, jumptable.CallTypes(guest.Module, e.cfg.JumpTableBase))
	if guest.Table.Max != nil && *guest.Table.Max < layout.Size {
		Logger().Debug("guest table cannot hold trap stubs, unbound slots will trap without an address",
			zap.Uint32("table_max", *guest.Table.Max),
			zap.Uint32("needed", layout.Size))
		layout = table.Layout(guest.Table.Min)
	}
	if guest.Table.Max != nil && *guest.Table.Max < layout.Size {
		return nil, errors.Structural("guest table maximum %d is below the %d entries the jump table needs",
			*guest.Table.Max, layout.Size)
	}

	inst := &Instance{
		guest:      guest,
		dispatcher: jumptable.NewDispatcher(table, cfg.dispatcherOpts...),
		layout:     layout,
		base:       e.cfg.JumpTableBase,
	}

	if err := inst.instantiateHost(ctx, e.runtime, table, layout); err != nil {
		return nil, err
	}

	envBytes := table.SynthModule(guest.Table.Name, layout, guest.Table.Max != nil)
	env, err := e.runtime.InstantiateWithConfig(ctx, envBytes, wazero.NewModuleConfig().WithName(guest.Table.Module))
	if err != nil {
		_ = inst.Close(ctx)
		return nil, errors.Instantiation("table module "+guest.Table.Module, err)
	}
	inst.env = env

	compiled, err := e.runtime.CompileModule(ctx, guest.Binary)
	if err != nil {
		_ = inst.Close(ctx)
		return nil, errors.New(errors.PhaseValidate, errors.KindStructural).
			Path(guest.Path).
			Detail("guest failed engine validation").
			Cause(err).
			Build()
	}
	mod, err := e.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(GuestModuleName).WithStartFunctions())
	if err != nil {
		_ = inst.Close(ctx)
		return nil, errors.Instantiation("guest", classify(ctx, err))
	}
	inst.mod = mod

	mem := mod.ExportedMemory(guest.Memory.Name)
	if mem == nil {
		_ = inst.Close(ctx)
		return nil, errors.Structural("guest memory export %q missing after instantiation", guest.Memory.Name)
	}
	if err := grow(mem, e.cfg.MemoryPages); err != nil {
		_ = inst.Close(ctx)
		return nil, err
	}

	inst.dispatcher.Attach(mem)
	inst.bridge = inst.dispatcher.Memory()
	if err := layout.Expose(inst.bridge, inst.base); err != nil {
		_ = inst.Close(ctx)
		return nil, err
	}

	Logger().Debug("guest instantiated",
		zap.String("path", guest.Path),
		zap.Int("slots", table.Len()),
		zap.Uint32("table_first", layout.First),
		zap.Uint32("table_null", layout.Null),
		zap.Int("trap_stubs", len(layout.Stubs)),
		zap.Uint32("memory_bytes", mem.Size()))
	return inst, nil
}

func (inst *Instance) instantiateHost(ctx context.Context, rt wazero.Runtime, table *jumptable.JumpTable, layout jumptable.Layout) error {
	b := rt.NewHostModuleBuilder(jumptable.HostModule)
	d := inst.dispatcher

	for _, s := range table.Slots() {
		slot := s
		ft := slot.Sig.FuncType()
		b.NewFunctionBuilder().
			WithGoFunction(api.GoFunc(func(ctx context.Context, stack []uint64) {
				d.Stack(ctx, slot, stack)
			}), valueTypes(ft.Params), valueTypes(ft.Results)).
			WithName(slot.Name).
			Export(slot.Name)
	}
	for _, h := range table.Imports() {
		imp := h
		ft := imp.Sig.FuncType()
		b.NewFunctionBuilder().
			WithGoFunction(api.GoFunc(func(ctx context.Context, stack []uint64) {
				d.StackImport(ctx, imp, stack)
			}), valueTypes(ft.Params), valueTypes(ft.Results)).
			WithName(imp.Name).
			Export(jumptable.ImportPrefix + imp.Name)
	}
	if len(layout.Stubs) > 0 {
		b.NewFunctionBuilder().
			WithGoFunction(api.GoFunc(func(_ context.Context, stack []uint64) {
				d.Unbound(uint32(stack[0]))
			}), valueTypes(jumptable.UnboundType.Params), nil).
			WithName(jumptable.UnboundImport).
			Export(jumptable.UnboundImport)
	}

	host, err := b.Instantiate(ctx)
	if err != nil {
		return errors.Instantiation("host module", err)
	}
	inst.host = host
	return nil
}

// checkHostImports verifies that every function the guest imports by name
// is provided by the table module with a matching type.
func checkHostImports(guest *loader.GuestModule, table *jumptable.JumpTable) error {
	var missing []string
	for _, imp := range guest.HostImports {
		if imp.Module != guest.Table.Module {
			missing = append(missing, imp.Key())
			continue
		}
		h, ok := table.Import(imp.Module, imp.Name)
		if !ok {
			missing = append(missing, imp.Key())
			continue
		}
		if want := h.Sig.FuncType(); !want.Equal(imp.Type) {
			return errors.New(errors.PhaseValidate, errors.KindStructural).
				Path(imp.Module, imp.Name).
				Detail("imported with type %s, host provides %s", funcTypeString(imp.Type), funcTypeString(want)).
				Build()
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingImportsError(missing)
	}
	return nil
}

func grow(mem api.Memory, pages uint32) error {
	cur := mem.Size() / memory.PageSize
	if pages <= cur {
		return nil
	}
	if _, ok := mem.Grow(pages - cur); !ok {
		return errors.Structural("guest memory cannot grow from %d to %d pages", cur, pages)
	}
	return nil
}

func valueTypes(ts []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		out[i] = api.ValueType(t)
	}
	return out
}

func funcTypeString(ft wasm.FuncType) string {
	return fmt.Sprintf("%v -> %v", ft.Params, ft.Results)
}

// Call invokes a () -> () guest export.
func (inst *Instance) Call(ctx context.Context, name string) error {
	fn := inst.mod.ExportedFunction(name)
	if fn == nil {
		return errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	_, err := fn.Call(ctx)
	return classify(ctx, err)
}

// Has reports whether the guest exports a function called name.
func (inst *Instance) Has(name string) bool {
	return inst.mod != nil && inst.mod.ExportedFunction(name) != nil
}

// Guest returns the loaded module description.
func (inst *Instance) Guest() *loader.GuestModule { return inst.guest }

// Memory returns the bounds-checked guest memory.
func (inst *Instance) Memory() *memory.Bridge { return inst.bridge }

// Dispatcher returns the instance's dispatcher.
func (inst *Instance) Dispatcher() *jumptable.Dispatcher { return inst.dispatcher }

// Layout returns the table placement used for this instance.
func (inst *Instance) Layout() jumptable.Layout { return inst.layout }

// JumpTableBase returns the address the jump table was written at.
func (inst *Instance) JumpTableBase() uint32 { return inst.base }

// Close closes the guest, table and host modules.
func (inst *Instance) Close(ctx context.Context) error {
	var first error
	for _, m := range []api.Module{inst.mod, inst.env, inst.host} {
		if m == nil {
			continue
		}
		if err := m.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	inst.mod, inst.env, inst.host = nil, nil, nil
	return first
}
