package jumptable

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/memory"
	"github.com/wippyai/brainsim/wasm"
)

func nop(*Call) (uint64, error) { return 0, nil }

func TestRegistry_Insert(t *testing.T) {
	r := NewRegistry()
	if err := r.Insert(Slot{Address: 0x89c, Name: "vexSerialWriteBuffer", Sig: Fn(RetInt, Uint, Buf, Int), Handler: nop}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tests := []struct {
		name string
		slot Slot
	}{
		{"duplicate address", Slot{Address: 0x89c, Name: "other", Handler: nop}},
		{"duplicate name", Slot{Address: 0x8a0, Name: "vexSerialWriteBuffer", Handler: nop}},
		{"misaligned", Slot{Address: 0x8a1, Name: "misaligned", Handler: nop}},
		{"out of range", Slot{Address: Size, Name: "far", Handler: nop}},
		{"nil handler", Slot{Address: 0x8a4, Name: "nohandler"}},
		{"no name", Slot{Address: 0x8a4, Handler: nop}},
		{"buf without length", Slot{Address: 0x8a4, Name: "buf", Sig: Fn(Void, Buf), Handler: nop}},
		{"buf before ptr", Slot{Address: 0x8a4, Name: "buf2", Sig: Fn(Void, Buf, Ptr), Handler: nop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Insert(tt.slot)
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Kind != errors.KindRegistration {
				t.Fatalf("expected registration error, got %v", err)
			}
		})
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d after rejected inserts", r.Len())
	}

	if err := r.Insert(Slot{Address: Size - 4, Name: "last", Handler: nop}); err != nil {
		t.Errorf("last word should be accepted: %v", err)
	}
}

func TestRegistry_Import(t *testing.T) {
	r := NewRegistry()
	h := HostImport{Module: "env", Name: "sim_log_backtrace", Handler: nop}
	if err := r.Import(h); err != nil {
		t.Fatal(err)
	}
	if err := r.Import(h); err == nil {
		t.Error("duplicate import should fail")
	}
	if err := r.Import(HostImport{Module: "env", Name: "x"}); err == nil {
		t.Error("nil handler should fail")
	}
	tbl := r.Build()
	if _, ok := tbl.Import("env", "sim_log_backtrace"); !ok {
		t.Error("import not found after Build")
	}
}

func TestJumpTable_BuildSorted(t *testing.T) {
	r := NewRegistry()
	for _, addr := range []uint32{0x9d8, 0x05c, 0x640, 0x1a4} {
		_ = r.Insert(Slot{Address: addr, Name: fmt.Sprintf("slot%03x", addr), Handler: nop})
	}
	tbl := r.Build()

	prev := uint32(0)
	for i, s := range tbl.Slots() {
		if i > 0 && s.Address <= prev {
			t.Fatalf("slots not sorted: %#x after %#x", s.Address, prev)
		}
		prev = s.Address
	}

	// Build copies: later inserts don't leak into a built table.
	_ = r.Insert(Slot{Address: 0x100, Name: "late", Handler: nop})
	if tbl.Len() != 4 {
		t.Errorf("Len = %d, want 4", tbl.Len())
	}
}

func TestJumpTable_LookupUnbound(t *testing.T) {
	tbl := NewRegistry().Build()
	_, err := tbl.Lookup(0x123c)
	if !stderrors.Is(err, errors.ErrUnboundSlot) {
		t.Fatalf("expected unbound slot, got %v", err)
	}
	var e *errors.Error
	stderrors.As(err, &e)
	if e.Address != 0x123c {
		t.Errorf("Address = %#x", e.Address)
	}

	_, err = tbl.Invoke(context.Background(), memory.NewBuffer(64, 1), 0x123c)
	if !stderrors.Is(err, errors.ErrUnboundSlot) {
		t.Errorf("Invoke: expected unbound slot, got %v", err)
	}
}

func TestJumpTable_InvokeResolvesArgs(t *testing.T) {
	var gotBuf []byte
	var gotStr string
	var gotCh uint32
	var gotD float64

	r := NewRegistry()
	_ = r.Insert(Slot{
		Address: 0x89c,
		Name:    "vexSerialWriteBuffer",
		Sig:     Fn(RetInt, Uint, Buf, Int),
		Handler: func(c *Call) (uint64, error) {
			gotCh = c.Uint(0)
			gotBuf = c.Buf(1)
			return I32(int32(len(gotBuf))), nil
		},
	})
	_ = r.Insert(Slot{
		Address: 0x6c0,
		Name:    "vexDisplayStringWidthGet",
		Sig:     Fn(RetDouble, Str, Double),
		Handler: func(c *Call) (uint64, error) {
			gotStr = c.Str(0)
			gotD = c.Double(1)
			return F64(-2.5), nil
		},
	})
	tbl := r.Build()

	mem := memory.NewBuffer(memory.PageSize, 1)
	copy(mem.Bytes()[100:], "hello")
	copy(mem.Bytes()[200:], "width\x00")

	ctx := context.Background()
	ret, err := tbl.Invoke(ctx, mem, 0x89c, 1, 100, 5)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if int32(ret) != 5 || gotCh != 1 || string(gotBuf) != "hello" {
		t.Errorf("ret=%d ch=%d buf=%q", int32(ret), gotCh, gotBuf)
	}

	ret, err = tbl.Invoke(ctx, mem, 0x6c0, 200, F64(1.5))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if gotStr != "width" || gotD != 1.5 || ret != F64(-2.5) {
		t.Errorf("str=%q d=%v ret=%#x", gotStr, gotD, ret)
	}
}

func TestJumpTable_InvokeFaultSkipsHandler(t *testing.T) {
	called := false
	r := NewRegistry()
	_ = r.Insert(Slot{
		Address: 0x89c,
		Name:    "vexSerialWriteBuffer",
		Sig:     Fn(RetInt, Uint, Buf, Int),
		Handler: func(c *Call) (uint64, error) {
			called = true
			return 0, nil
		},
	})
	tbl := r.Build()

	_, err := tbl.Invoke(context.Background(), memory.NewBuffer(memory.PageSize, 1), 0x89c, 1, 65530, 10)
	if !stderrors.Is(err, errors.ErrMemoryFault) {
		t.Fatalf("expected memory fault, got %v", err)
	}
	var e *errors.Error
	stderrors.As(err, &e)
	if e.Slot != "vexSerialWriteBuffer" || e.Address != 0x89c {
		t.Errorf("fault not annotated with slot: %v", e)
	}
	if called {
		t.Error("handler must not run when argument resolution faults")
	}
}

func TestDispatcher_Yield(t *testing.T) {
	var yields []string
	r := NewRegistry()
	_ = r.Insert(Slot{Address: 0x05c, Name: "vexTasksRun", Yield: true, Handler: nop})
	_ = r.Insert(Slot{Address: 0x7a0, Name: "vexDisplayRender", Sig: Fn(Void, Int, Int), Handler: func(c *Call) (uint64, error) {
		if c.Int(1) != 0 {
			c.RequestYield()
		}
		return 0, nil
	}})
	_ = r.Insert(Slot{Address: 0x640, Name: "vexDisplayForegroundColor", Sig: Fn(Void, Uint), Handler: nop})
	tbl := r.Build()

	stop := stderrors.New("stop")
	d := NewDispatcher(tbl, WithYield(func(ctx context.Context, s *Slot) error {
		yields = append(yields, s.Name)
		if len(yields) == 3 {
			return stop
		}
		return nil
	}))
	d.Attach(memory.NewBuffer(64, 1))
	ctx := context.Background()

	call := func(addr uint32, params ...uint64) error {
		s, err := tbl.Lookup(addr)
		if err != nil {
			t.Fatal(err)
		}
		_, err = d.Call(ctx, s, params)
		return err
	}

	_ = call(0x640, 0xFF0000)
	_ = call(0x05c)
	_ = call(0x7a0, 0, 0)
	_ = call(0x7a0, 0, 1)
	if len(yields) != 2 || yields[0] != "vexTasksRun" || yields[1] != "vexDisplayRender" {
		t.Errorf("yields = %v", yields)
	}
	if err := call(0x05c); err != stop {
		t.Errorf("yield error should propagate unchanged, got %v", err)
	}
}

func TestDispatcher_StackPanics(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert(Slot{Address: 0x130, Name: "vexSystemExitRequest", Handler: func(*Call) (uint64, error) {
		return 0, errors.Exit(0)
	}})
	_ = r.Insert(Slot{Address: 0x118, Name: "vexSystemTimeGet", Sig: Fn(RetUint), Handler: func(*Call) (uint64, error) {
		return U32(1234), nil
	}})
	tbl := r.Build()
	d := NewDispatcher(tbl)

	stack := []uint64{0}
	s, _ := tbl.Lookup(0x118)
	d.Stack(context.Background(), s, stack)
	if stack[0] != 1234 {
		t.Errorf("stack[0] = %d", stack[0])
	}

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !stderrors.Is(err, errors.ErrExit) {
			t.Errorf("expected exit panic, got %v", r)
		}
	}()
	s, _ = tbl.Lookup(0x130)
	d.Stack(context.Background(), s, nil)
}

func TestLayout(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert(Slot{Address: 0x89c, Name: "b", Handler: nop})
	_ = r.Insert(Slot{Address: 0x05c, Name: "a", Handler: nop})
	tbl := r.Build()

	l := tbl.Layout(3)
	if l.First != 3 || l.Null != 5 || l.Size != 6 {
		t.Fatalf("layout = %+v", l)
	}
	if l.Index(0x05c) != 3 || l.Index(0x89c) != 4 || l.Index(0x1a4) != 5 {
		t.Errorf("indices = %d %d %d", l.Index(0x05c), l.Index(0x89c), l.Index(0x1a4))
	}

	words := l.Words()
	if len(words) != int(Size) {
		t.Fatalf("len(words) = %d", len(words))
	}
	if v := binary.LittleEndian.Uint32(words[0x89c:]); v != 4 {
		t.Errorf("word 0x89c = %d", v)
	}
	if v := binary.LittleEndian.Uint32(words[0x8a0:]); v != 5 {
		t.Errorf("unbound word = %d, want null index", v)
	}

	mem := memory.NewBuffer(memory.PageSize, 1)
	if err := l.Expose(memory.New(mem), 0x8000); err != nil {
		t.Fatalf("Expose: %v", err)
	}
	if v := binary.LittleEndian.Uint32(mem.Bytes()[0x8000+0x05c:]); v != 3 {
		t.Errorf("exposed word = %d", v)
	}
	if err := l.Expose(memory.New(mem), 0xE000); !stderrors.Is(err, errors.ErrStructural) {
		t.Errorf("expose past memory end: %v", err)
	}
}

func TestSynthModule(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert(Slot{Address: 0x89c, Name: "vexSerialWriteBuffer", Sig: Fn(RetInt, Uint, Buf, Int), Handler: nop})
	_ = r.Insert(Slot{Address: 0x118, Name: "vexSystemTimeGet", Sig: Fn(RetUint), Handler: nop})
	_ = r.Import(HostImport{Module: "env", Name: "sim_log_backtrace", Handler: nop})
	tbl := r.Build()
	l := tbl.Layout(2)

	m, err := wasm.ParseModule(tbl.SynthModule("__indirect_function_table", l, true))
	if err != nil {
		t.Fatalf("synthesized module does not parse: %v", err)
	}
	if m.NumImportedFuncs() != 3 || len(m.Funcs) != 2 {
		t.Errorf("imports=%d funcs=%d", m.NumImportedFuncs(), len(m.Funcs))
	}
	if m.Imports[0].Name != "vexSystemTimeGet" || m.Imports[2].Name != ImportPrefix+"sim_log_backtrace" {
		t.Errorf("import order = %s, %s", m.Imports[0].Name, m.Imports[2].Name)
	}
	if tbl := m.Tables[0]; tbl.Limits.Min != 5 || tbl.Limits.Max == nil || *tbl.Limits.Max != 5 {
		t.Errorf("table = %+v", tbl)
	}
	if _, ok := m.FindExport("__indirect_function_table", wasm.KindTable); !ok {
		t.Error("table not exported")
	}
	if exp, ok := m.FindExport("sim_log_backtrace", wasm.KindFunc); !ok || exp.Idx != 2 {
		t.Errorf("host import re-export = %+v, %v", exp, ok)
	}
	el := m.Elements[0]
	if len(el.FuncIdxs) != 2 || el.FuncIdxs[0] != 3 || el.FuncIdxs[1] != 4 {
		t.Errorf("element funcs = %v", el.FuncIdxs)
	}
	ft := m.GetFuncType(4)
	if ft == nil || len(ft.Params) != 3 || len(ft.Results) != 1 {
		t.Errorf("wrapper type = %+v", ft)
	}
}

func TestTrapLayout(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert(Slot{Address: 0x004, Name: "a", Handler: nop})
	tbl := r.Build()

	intFn := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	l := tbl.TrapLayout(2, map[uint32]wasm.FuncType{0x008: intFn})

	if want := int(Size/4) - 1; len(l.Stubs) != want {
		t.Fatalf("stubs = %d, want %d", len(l.Stubs), want)
	}
	if l.First != 2 || l.Index(0x004) != 2 {
		t.Errorf("bound index = %d, first %d", l.Index(0x004), l.First)
	}
	first, second := l.Stubs[0], l.Stubs[1]
	if first.Address != 0 || first.Index != 3 || len(first.Type.Params)+len(first.Type.Results) != 0 {
		t.Errorf("stub 0 = %+v", first)
	}
	if second.Address != 0x008 || second.Index != 4 || !second.Type.Equal(intFn) {
		t.Errorf("stub 1 = %+v", second)
	}
	if l.Index(0x008) != 4 {
		t.Errorf("Index(0x008) = %d", l.Index(0x008))
	}
	if last := l.Stubs[len(l.Stubs)-1]; l.Null != last.Index+1 || l.Size != l.Null+1 {
		t.Errorf("null = %d size = %d, last stub %+v", l.Null, l.Size, last)
	}
	if v := binary.LittleEndian.Uint32(l.Words()[0x3ffc:]); v != l.Null-1 {
		t.Errorf("last word = %d", v)
	}
}

func TestSynthModule_TrapStubs(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert(Slot{Address: 0x118, Name: "vexSystemTimeGet", Sig: Fn(RetUint), Handler: nop})
	_ = r.Import(HostImport{Module: "env", Name: "sim_log_backtrace", Handler: nop})
	tbl := r.Build()
	l := tbl.TrapLayout(1, map[uint32]wasm.FuncType{0x1a4: {
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}})

	m, err := wasm.ParseModule(tbl.SynthModule("__indirect_function_table", l, false))
	if err != nil {
		t.Fatalf("synthesized module does not parse: %v", err)
	}
	if m.NumImportedFuncs() != 3 || m.Imports[2].Name != UnboundImport {
		t.Fatalf("imports = %d, last %q", m.NumImportedFuncs(), m.Imports[2].Name)
	}
	if len(m.Funcs) != 1+len(l.Stubs) {
		t.Errorf("funcs = %d, want %d", len(m.Funcs), 1+len(l.Stubs))
	}
	if exp, ok := m.FindExport("sim_log_backtrace", wasm.KindFunc); !ok || exp.Idx != 1 {
		t.Errorf("host import re-export = %+v, %v", exp, ok)
	}
	if el := m.Elements[0]; len(el.FuncIdxs) != 1+len(l.Stubs) || el.FuncIdxs[1] != 4 {
		t.Errorf("element funcs = %d entries", len(el.FuncIdxs))
	}

	var stub Stub
	for _, s := range l.Stubs {
		if s.Address == 0x1a4 {
			stub = s
		}
	}
	fn := 3 + stub.Index - l.First
	if ft := m.GetFuncType(fn); ft == nil || len(ft.Params) != 2 || len(ft.Results) != 1 {
		t.Errorf("stub type = %+v", ft)
	}
	want := wasm.NewExpr().I32Const(0x1a4).Call(2).Unreachable().End()
	if got := m.Code[fn-3].Code; string(got) != string(want) {
		t.Errorf("stub body = %x, want %x", got, want)
	}
	if tbl := m.Tables[0]; tbl.Limits.Min != uint64(l.Size) || tbl.Limits.Max != nil {
		t.Errorf("table = %+v", tbl)
	}
}

func TestCallTypes(t *testing.T) {
	const base = 0x8000
	m := &wasm.Module{}
	voidT := m.AddType(wasm.FuncType{})
	intT := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	m.Code = []wasm.FuncBody{
		{Code: wasm.NewExpr().
			I32Const(base+0x118).I32Load(2, 0).CallIndirect(intT, 0).Drop().
			I32Const(base).I32Load(2, 0x05c).CallIndirect(voidT, 0).
			End()},
		// A second type for 0x118, then calls past the table, misaligned,
		// through another table and with an unknown type.
		{Code: wasm.NewExpr().
			I32Const(base+0x118).I32Load(2, 0).CallIndirect(voidT, 0).
			I32Const(base+0x4000).I32Load(2, 0).CallIndirect(voidT, 0).
			I32Const(base+0x1a6).I32Load(2, 0).CallIndirect(voidT, 0).
			I32Const(base+0x1a4).I32Load(2, 0).CallIndirect(voidT, 1).
			I32Const(base+0x1a8).I32Load(2, 0).CallIndirect(9, 0).
			End()},
	}

	got := CallTypes(m, base)
	if len(got) != 2 {
		t.Fatalf("CallTypes = %v", got)
	}
	if ft := got[0x118]; len(ft.Results) != 1 {
		t.Errorf("0x118 = %+v", ft)
	}
	if ft, ok := got[0x05c]; !ok || len(ft.Results) != 0 {
		t.Errorf("0x05c = %+v, %v", ft, ok)
	}
}

func TestDispatcher_Unbound(t *testing.T) {
	d := NewDispatcher(NewRegistry().Build())
	defer func() {
		err, ok := recover().(error)
		var e *errors.Error
		if !ok || !stderrors.As(err, &e) || e.Kind != errors.KindUnboundSlot || e.Address != 0x1a4 {
			t.Errorf("expected unbound slot panic at 0x1a4, got %v", err)
		}
	}()
	d.Unbound(0x1a4)
}

func TestSig(t *testing.T) {
	s := Fn(RetDouble, Int, Long, Float, Str)
	ft := s.FuncType()
	want := []wasm.ValType{wasm.ValI32, wasm.ValI64, wasm.ValF32, wasm.ValI32}
	for i, v := range want {
		if ft.Params[i] != v {
			t.Errorf("param %d = %s, want %s", i, ft.Params[i], v)
		}
	}
	if len(ft.Results) != 1 || ft.Results[0] != wasm.ValF64 {
		t.Errorf("results = %v", ft.Results)
	}
	if got := s.String(); got != "(int, long, float, str) -> double" {
		t.Errorf("String = %q", got)
	}
	if I32(-1) != 0xFFFFFFFF {
		t.Errorf("I32(-1) = %#x", I32(-1))
	}
}
