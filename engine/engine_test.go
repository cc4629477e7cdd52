package engine

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"testing"
	"time"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/jumptable"
	"github.com/wippyai/brainsim/loader"
	"github.com/wippyai/brainsim/testbed"
	"github.com/wippyai/brainsim/wasm"
)

var testConfig = &Config{MemoryPages: 1, JumpTableBase: testbed.JumpTableBase}

type capture struct {
	writes [][]byte
}

func (c *capture) table(t *testing.T) *jumptable.JumpTable {
	t.Helper()
	r := jumptable.NewRegistry()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(r.Insert(jumptable.Slot{
		Address: 0x89c,
		Name:    "vexSerialWriteBuffer",
		Sig:     jumptable.Fn(jumptable.RetInt, jumptable.Uint, jumptable.Buf, jumptable.Int),
		Handler: func(call *jumptable.Call) (uint64, error) {
			c.writes = append(c.writes, call.Buf(1))
			return jumptable.I32(int32(len(call.Buf(1)))), nil
		},
	}))
	must(r.Insert(jumptable.Slot{
		Address: 0x130,
		Name:    "vexSystemExitRequest",
		Handler: func(*jumptable.Call) (uint64, error) { return 0, errors.Exit(0) },
	}))
	must(r.Import(jumptable.HostImport{
		Module:  "env",
		Name:    "sim_log_backtrace",
		Handler: func(*jumptable.Call) (uint64, error) { return 0, nil },
	}))
	return r.Build()
}

func setup(t *testing.T, bin []byte, table *jumptable.JumpTable) (*Instance, func()) {
	t.Helper()
	ctx := context.Background()

	guest, err := loader.Parse("test.wasm", bin)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e, err := New(ctx, testConfig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	inst, err := e.Instantiate(ctx, guest, table)
	if err != nil {
		e.Close(ctx)
		t.Fatalf("Instantiate: %v", err)
	}
	return inst, func() {
		inst.Close(ctx)
		e.Close(ctx)
	}
}

func writeGuest(offset int32, length int32) []byte {
	g := testbed.NewGuest().Data(100, []byte("hello"))
	body := wasm.NewExpr().I32Const(1).I32Const(offset).I32Const(length)
	g.SlotCall(body, 0x89c, testbed.WriteType).Drop()
	g.Entry("_entry", body.End())
	return g.Build()
}

func TestInstance_Hello(t *testing.T) {
	c := &capture{}
	inst, done := setup(t, testbed.Hello(), c.table(t))
	defer done()

	if !inst.Has("_entry") || inst.Has("opcontrol") {
		t.Error("Has reports wrong exports")
	}
	if err := inst.Call(context.Background(), "_entry"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(c.writes) != 1 || string(c.writes[0]) != "hello" {
		t.Errorf("writes = %q", c.writes)
	}
}

func TestInstance_JumpTableExposed(t *testing.T) {
	c := &capture{}
	inst, done := setup(t, testbed.Hello(), c.table(t))
	defer done()

	l := inst.Layout()
	raw, err := inst.Memory().Read(testbed.JumpTableBase, jumptable.Size)
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(raw[0x89c:]); got != l.Index(0x89c) || got == l.Null {
		t.Errorf("word 0x89c = %d, layout %+v", got, l)
	}
	if got := binary.LittleEndian.Uint32(raw[0x1a4:]); got != l.Index(0x1a4) || got == l.Null {
		t.Errorf("unbound word = %d, want its trap stub, layout null %d", got, l.Null)
	}
	if want := int(jumptable.Size/4) - 2; len(l.Stubs) != want {
		t.Errorf("stubs = %d, want %d", len(l.Stubs), want)
	}
}

func TestInstance_MemoryFault(t *testing.T) {
	c := &capture{}
	inst, done := setup(t, writeGuest(65530, 10), c.table(t))
	defer done()

	err := inst.Call(context.Background(), "_entry")
	if !stderrors.Is(err, errors.ErrMemoryFault) {
		t.Fatalf("expected memory fault, got %v", err)
	}
	var e *errors.Error
	stderrors.As(err, &e)
	if e.Offset != 65530 || e.Length != 10 || e.Slot != "vexSerialWriteBuffer" {
		t.Errorf("fault = %+v", e)
	}
	if !errors.IsFatal(err) {
		t.Error("memory fault must be fatal")
	}
	if len(c.writes) != 0 {
		t.Error("handler ran despite fault")
	}
}

func TestInstance_UnboundSlot(t *testing.T) {
	// vexControllerGet is not bound in this table.
	g := testbed.NewGuest()
	body := wasm.NewExpr().I32Const(0).I32Const(0)
	g.SlotCall(body, 0x1a4, wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}).Drop()
	g.Entry("_entry", body.End())

	c := &capture{}
	inst, done := setup(t, g.Build(), c.table(t))
	defer done()

	err := inst.Call(context.Background(), "_entry")
	if !stderrors.Is(err, errors.ErrUnboundSlot) {
		t.Fatalf("expected unbound slot trap, got %v", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Address != 0x1a4 {
		t.Errorf("unbound slot error = %+v, want address 0x1a4", e)
	}
	if !errors.IsFatal(err) {
		t.Error("unbound slot call must be fatal")
	}
}

func TestInstance_UnboundSlotAddress(t *testing.T) {
	tests := []struct {
		name string
		addr uint32
		ft   wasm.FuncType
		args []int32
	}{
		{"void", 0x05c, testbed.VoidType, nil},
		{"returns i32", 0x118, testbed.I32Type, nil},
		{"takes args", 0x640, wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}, []int32{0xff}},
		{"i64 result", 0x134, wasm.FuncType{Results: []wasm.ValType{wasm.ValI64}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testbed.NewGuest()
			body := wasm.NewExpr()
			for _, a := range tt.args {
				body.I32Const(a)
			}
			g.SlotCall(body, tt.addr, tt.ft)
			if len(tt.ft.Results) > 0 {
				body.Drop()
			}
			g.Entry("_entry", body.End())

			c := &capture{}
			inst, done := setup(t, g.Build(), c.table(t))
			defer done()

			err := inst.Call(context.Background(), "_entry")
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Kind != errors.KindUnboundSlot {
				t.Fatalf("expected unbound slot trap, got %v", err)
			}
			if e.Address != tt.addr {
				t.Errorf("address = %#x, want %#x", e.Address, tt.addr)
			}
		})
	}
}

func TestInstance_UnboundSlotBoundedTable(t *testing.T) {
	// Room for the two bound slots and the null entry only.
	g := testbed.NewGuest().WithTableMax(4)
	body := wasm.NewExpr()
	g.SlotCall(body, 0x05c, testbed.VoidType)
	g.Entry("_entry", body.End())

	c := &capture{}
	inst, done := setup(t, g.Build(), c.table(t))
	defer done()

	if l := inst.Layout(); len(l.Stubs) != 0 || l.Size != 4 {
		t.Fatalf("layout = %+v, want compact", l)
	}
	err := inst.Call(context.Background(), "_entry")
	if !stderrors.Is(err, errors.ErrUnboundSlot) {
		t.Fatalf("expected unbound slot trap, got %v", err)
	}
}

func TestInstance_Exit(t *testing.T) {
	g := testbed.NewGuest()
	body := wasm.NewExpr()
	g.SlotCall(body, 0x130, testbed.VoidType)
	g.Entry("_entry", body.Unreachable().End())

	c := &capture{}
	inst, done := setup(t, g.Build(), c.table(t))
	defer done()

	err := inst.Call(context.Background(), "_entry")
	if !stderrors.Is(err, errors.ErrExit) {
		t.Fatalf("expected exit, got %v", err)
	}
	if errors.ExitCode(err) != 0 {
		t.Errorf("ExitCode = %d", errors.ExitCode(err))
	}
}

func TestInstance_GuestTrap(t *testing.T) {
	g := testbed.NewGuest()
	g.Entry("_entry", wasm.NewExpr().Unreachable().End())

	c := &capture{}
	inst, done := setup(t, g.Build(), c.table(t))
	defer done()

	err := inst.Call(context.Background(), "_entry")
	if !stderrors.Is(err, errors.ErrGuestTrap) {
		t.Fatalf("expected guest trap, got %v", err)
	}
}

func TestInstance_HostImport(t *testing.T) {
	g := testbed.NewGuest()
	bt := g.Import("env", "sim_log_backtrace", testbed.VoidType)
	g.Entry("_entry", wasm.NewExpr().Call(bt).End())

	c := &capture{}
	inst, done := setup(t, g.Build(), c.table(t))
	defer done()

	if err := inst.Call(context.Background(), "_entry"); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestInstantiate_MissingImport(t *testing.T) {
	g := testbed.NewGuest()
	g.Import("env", "vexDeviceGetByIndex", testbed.I32Type)
	g.Entry("_entry", wasm.NewExpr().End())

	guest, err := loader.Parse("test.wasm", g.Build())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	e, _ := New(ctx, testConfig)
	defer e.Close(ctx)

	c := &capture{}
	_, err = e.Instantiate(ctx, guest, c.table(t))
	var missing *errors.MissingImportsError
	if !stderrors.As(err, &missing) || missing.Imports[0].Name != "vexDeviceGetByIndex" {
		t.Fatalf("expected missing imports, got %v", err)
	}
	if !stderrors.Is(err, errors.ErrStructural) {
		t.Error("missing imports should be structural")
	}
}

func TestInstantiate_MemoryCannotGrow(t *testing.T) {
	maxPages := uint64(2)
	g := testbed.NewGuest().WithMemory(1, &maxPages)
	g.Entry("_entry", wasm.NewExpr().End())

	guest, err := loader.Parse("test.wasm", g.Build())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	e, _ := New(ctx, &Config{MemoryPages: 4, JumpTableBase: testbed.JumpTableBase})
	defer e.Close(ctx)

	c := &capture{}
	if _, err := e.Instantiate(ctx, guest, c.table(t)); !stderrors.Is(err, errors.ErrStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestInstance_Cancel(t *testing.T) {
	g := testbed.NewGuest()
	// loop: br 0
	g.Entry("_entry", []byte{0x03, 0x40, 0x0c, 0x00, 0x0b, wasm.OpEnd})

	c := &capture{}
	inst, done := setup(t, g.Build(), c.table(t))
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := inst.Call(ctx, "_entry")
	if !stderrors.Is(err, errors.ErrTerminated) {
		t.Fatalf("expected termination, got %v", err)
	}
	if errors.ExitCode(err) != 130 {
		t.Errorf("ExitCode = %d", errors.ExitCode(err))
	}
}

func TestInstance_CallMissingExport(t *testing.T) {
	c := &capture{}
	inst, done := setup(t, testbed.Hello(), c.table(t))
	defer done()

	var e *errors.Error
	if err := inst.Call(context.Background(), "autonomous"); !stderrors.As(err, &e) || e.Kind != errors.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}
