package jumptable

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/brainsim"
	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/memory"
)

// YieldFunc is called after yielding slots. A non-nil error unwinds the guest.
type YieldFunc func(ctx context.Context, slot *Slot) error

// Dispatcher routes guest calls to handlers for one guest instance. It is
// used from the goroutine running the guest only.
type Dispatcher struct {
	table  *JumpTable
	mem    *memory.Bridge
	yield  YieldFunc
	logger *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithYield installs the yield hook.
func WithYield(fn YieldFunc) DispatcherOption {
	return func(d *Dispatcher) { d.yield = fn }
}

// WithLogger overrides the package logger.
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher for t. Memory is attached once the
// guest has been instantiated.
func NewDispatcher(t *JumpTable, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{table: t, mem: memory.New(nil), logger: Logger()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Table returns the dispatched table.
func (d *Dispatcher) Table() *JumpTable { return d.table }

// Attach sets the guest memory.
func (d *Dispatcher) Attach(mem brainsim.Memory) {
	d.mem = memory.New(mem)
}

// Memory returns the attached bridge.
func (d *Dispatcher) Memory() *memory.Bridge { return d.mem }

// SetYield replaces the yield hook.
func (d *Dispatcher) SetYield(fn YieldFunc) {
	d.yield = fn
}

// Call decodes params, runs the slot handler and then the yield hook.
func (d *Dispatcher) Call(ctx context.Context, slot *Slot, params []uint64) (uint64, error) {
	c := &Call{Ctx: ctx, Mem: d.mem, Slot: slot, Name: slot.Name, args: params}
	if err := c.resolve(slot.Sig); err != nil {
		return 0, d.annotate(err, slot.Name, slot.Address)
	}
	ret, err := slot.Handler(c)
	if err != nil {
		return 0, d.annotate(err, slot.Name, slot.Address)
	}
	if d.yield != nil && (slot.Yield || c.yield) {
		if err := d.yield(ctx, slot); err != nil {
			return ret, err
		}
	}
	return ret, nil
}

// CallImport runs a host import handler.
func (d *Dispatcher) CallImport(ctx context.Context, h *HostImport, params []uint64) (uint64, error) {
	c := &Call{Ctx: ctx, Mem: d.mem, Name: h.Name, args: params}
	if err := c.resolve(h.Sig); err != nil {
		return 0, d.annotate(err, h.Name, 0)
	}
	ret, err := h.Handler(c)
	if err != nil {
		return 0, d.annotate(err, h.Name, 0)
	}
	return ret, nil
}

// Stack adapts Call to a wasm value stack: params are read from the front
// of stack and the result is written to stack[0]. Errors panic so that the
// engine unwinds the guest; the engine recovers the error from the trap.
func (d *Dispatcher) Stack(ctx context.Context, slot *Slot, stack []uint64) {
	n := len(slot.Sig.Args)
	params := make([]uint64, n)
	copy(params, stack[:n])
	ret, err := d.Call(ctx, slot, params)
	if err != nil {
		if errors.IsFatal(err) {
			d.logger.Error("slot failed",
				zap.String("slot", slot.Name),
				zap.Uint32("address", slot.Address),
				zap.Error(err))
		}
		panic(err)
	}
	if slot.Sig.Ret != Void {
		stack[0] = ret
	}
}

// StackImport is Stack for host imports.
func (d *Dispatcher) StackImport(ctx context.Context, h *HostImport, stack []uint64) {
	n := len(h.Sig.Args)
	params := make([]uint64, n)
	copy(params, stack[:n])
	ret, err := d.CallImport(ctx, h, params)
	if err != nil {
		panic(err)
	}
	if h.Sig.Ret != Void {
		stack[0] = ret
	}
}

// Unbound reports a guest call through the unbound jump table word at addr.
// It always panics with an unbound slot error.
func (d *Dispatcher) Unbound(addr uint32) {
	d.logger.Error("unbound slot called", zap.Uint32("address", addr))
	panic(errors.UnboundSlot(addr, "no handler bound"))
}

func (d *Dispatcher) annotate(err error, name string, addr uint32) error {
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Slot != "" {
		return err
	}
	cp := *e
	cp.Slot = name
	cp.Address = addr
	return &cp
}
