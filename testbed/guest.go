// Package testbed builds small V5 guest binaries in-process and runs them
// end to end. The builder is used by tests across the module; no toolchain
// or prebuilt .wasm fixtures are needed.
package testbed

import (
	"encoding/binary"

	"github.com/wippyai/brainsim/wasm"
)

// Defaults match a typical V5 user program.
const (
	TableModule = "env"
	TableName   = "__indirect_function_table"
	MemoryName  = "memory"

	// JumpTableBase is the base used by tests, which run with one page.
	JumpTableBase uint32 = 0x8000

	signatureMagic uint32 = 0x35585658
)

// Common slot signatures.
var (
	VoidType  = wasm.FuncType{}
	I32Type   = wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	WriteType = wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}
)

// Guest assembles a guest module. Imports must be declared before any
// function so that function indices stay stable.
type Guest struct {
	mod          wasm.Module
	signature    []byte
	memoryPages  uint64
	maxPages     *uint64
	tableMin     uint64
	tableMax     *uint64
	base         uint32
	noMemory     bool
	noTable      bool
	importMemory bool
	funcs        int
	imports      int
}

// NewGuest returns a guest with one page of exported memory, the standard
// table import and a valid code signature.
func NewGuest() *Guest {
	return &Guest{
		signature:   Signature(0, 0, 0),
		memoryPages: 1,
		tableMin:    1,
		base:        JumpTableBase,
	}
}

// Signature encodes a code signature with the given type, owner and options.
func Signature(progType, owner, options uint32) []byte {
	out := make([]byte, 32)
	binary.LittleEndian.PutUint32(out[0:], signatureMagic)
	binary.LittleEndian.PutUint32(out[4:], progType)
	binary.LittleEndian.PutUint32(out[8:], owner)
	binary.LittleEndian.PutUint32(out[12:], options)
	return out
}

// WithSignature replaces the signature bytes. nil removes the section.
func (g *Guest) WithSignature(sig []byte) *Guest {
	g.signature = sig
	return g
}

// WithMemory sets the initial and optional maximum page count.
func (g *Guest) WithMemory(pages uint64, maxPages *uint64) *Guest {
	g.memoryPages = pages
	g.maxPages = maxPages
	return g
}

// WithBase sets the jump table base used by SlotCall.
func (g *Guest) WithBase(base uint32) *Guest {
	g.base = base
	return g
}

// WithTableMin sets the minimum size of the imported table.
func (g *Guest) WithTableMin(n uint64) *Guest {
	g.tableMin = n
	return g
}

// WithTableMax bounds the imported table.
func (g *Guest) WithTableMax(n uint64) *Guest {
	g.tableMax = &n
	return g
}

// WithoutMemory drops the memory definition and export.
func (g *Guest) WithoutMemory() *Guest {
	g.noMemory = true
	return g
}

// WithImportedMemory imports env.memory instead of defining one.
func (g *Guest) WithImportedMemory() *Guest {
	g.importMemory = true
	return g
}

// WithoutTable drops the table import.
func (g *Guest) WithoutTable() *Guest {
	g.noTable = true
	return g
}

// Type registers a function type and returns its index.
func (g *Guest) Type(ft wasm.FuncType) uint32 {
	return g.mod.AddType(ft)
}

// Import declares a host function import and returns its function index.
func (g *Guest) Import(module, name string, ft wasm.FuncType) uint32 {
	if g.funcs > 0 {
		panic("testbed: imports must precede functions")
	}
	g.mod.Imports = append(g.mod.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: g.Type(ft)},
	})
	g.imports++
	return uint32(g.imports - 1)
}

// Func defines a function and returns its index. A non-empty name exports it.
func (g *Guest) Func(name string, ft wasm.FuncType, locals []wasm.LocalEntry, body []byte) uint32 {
	g.mod.Funcs = append(g.mod.Funcs, g.Type(ft))
	g.mod.Code = append(g.mod.Code, wasm.FuncBody{Locals: locals, Code: body})
	idx := uint32(g.imports + g.funcs)
	g.funcs++
	if name != "" {
		g.mod.Exports = append(g.mod.Exports, wasm.Export{Name: name, Kind: wasm.KindFunc, Idx: idx})
	}
	return idx
}

// Entry defines an exported () -> () function.
func (g *Guest) Entry(name string, body []byte) uint32 {
	return g.Func(name, VoidType, nil, body)
}

// Data places bytes at a fixed memory offset.
func (g *Guest) Data(offset int32, data []byte) *Guest {
	g.mod.Data = append(g.mod.Data, wasm.DataSegment{Offset: wasm.ConstI32(offset), Init: data})
	return g
}

// Custom appends a custom section.
func (g *Guest) Custom(name string, data []byte) *Guest {
	g.mod.CustomSections = append(g.mod.CustomSections, wasm.CustomSection{Name: name, Data: data})
	return g
}

// SlotCall appends the jump table calling sequence for the slot at addr:
// load the function index from base+addr and call_indirect through table 0
// with signature ft. Arguments must already be on the stack.
func (g *Guest) SlotCall(e *wasm.Expr, addr uint32, ft wasm.FuncType) *wasm.Expr {
	return e.I32Const(int32(g.base+addr)).I32Load(2, 0).CallIndirect(g.Type(ft), 0)
}

// Module returns the assembled module.
func (g *Guest) Module() *wasm.Module {
	m := g.mod
	if !g.noTable {
		table := wasm.Import{
			Module: TableModule,
			Name:   TableName,
			Desc: wasm.ImportDesc{Kind: wasm.KindTable, Table: &wasm.TableType{
				ElemType: byte(wasm.ValFuncRef),
				Limits:   wasm.Limits{Min: g.tableMin, Max: g.tableMax},
			}},
		}
		m.Imports = append([]wasm.Import{table}, m.Imports...)
	}
	if g.importMemory {
		m.Imports = append(m.Imports, wasm.Import{
			Module: TableModule,
			Name:   MemoryName,
			Desc:   wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: g.memoryPages}}},
		})
	} else if !g.noMemory {
		m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: g.memoryPages, Max: g.maxPages}}}
		m.Exports = append(m.Exports, wasm.Export{Name: MemoryName, Kind: wasm.KindMemory, Idx: 0})
	}
	if g.signature != nil {
		m.CustomSections = append([]wasm.CustomSection{{Name: ".code_signature", Data: g.signature}}, m.CustomSections...)
	}
	return &m
}

// Build encodes the module.
func (g *Guest) Build() []byte {
	return g.Module().Encode()
}

// Hello returns a main-loop guest that writes "hello" from offset 100 to
// serial channel 1 through slot 0x89c and then returns.
func Hello() []byte {
	g := NewGuest().Data(100, []byte("hello"))
	body := wasm.NewExpr().I32Const(1).I32Const(100).I32Const(5)
	g.SlotCall(body, 0x89c, WriteType).Drop()
	g.Entry("_entry", body.End())
	return g.Build()
}
