package wasm

import "slices"

// Module is a decoded core module. Index spaces follow the binary format:
// imported functions, tables and memories come before the declared ones.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type index per declared function
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment

	// DataCount is set when the module carries a data count section.
	DataCount *uint32

	CustomSections []CustomSection
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (f FuncType) Equal(o FuncType) bool {
	return slices.Equal(f.Params, o.Params) && slices.Equal(f.Results, o.Results)
}

type ValType byte

var valTypeNames = map[ValType]string{
	ValI32:     "i32",
	ValI64:     "i64",
	ValF32:     "f32",
	ValF64:     "f64",
	ValV128:    "v128",
	ValFuncRef: "funcref",
}

func (v ValType) String() string {
	if name, ok := valTypeNames[v]; ok {
		return name
	}
	return "unknown"
}

type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc holds the descriptor for Kind: TypeIdx for a function,
// otherwise the matching pointer.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

type TableType struct {
	Limits   Limits
	ElemType byte
}

type MemoryType struct {
	Limits Limits
}

// Limits bounds a table in entries or a memory in pages. Max is nil when
// unbounded.
type Limits struct {
	Max    *uint64
	Min    uint64
	Shared bool
}

type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a declared global. Init is its constant expression, end opcode
// included.
type Global struct {
	Type GlobalType
	Init []byte
}

type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element is a segment of function indices. Flags 0 and 2 are active at
// Offset in table 0 or TableIdx, 1 is passive and 3 is declarative.
type Element struct {
	Offset   []byte
	FuncIdxs []uint32
	Flags    uint32
	TableIdx uint32
	ElemKind byte
}

// FuncBody is a declared function's locals and instructions, end opcode
// included.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// DataSegment is memory initialisation data. Flags 0 and 2 are active at
// Offset in memory 0 or MemIdx; 1 is passive and has no Offset.
type DataSegment struct {
	Offset []byte
	Init   []byte
	Flags  uint32
	MemIdx uint32
}

type CustomSection struct {
	Name string
	Data []byte
}

func (m *Module) NumImportedFuncs() int    { return m.importCount(KindFunc) }
func (m *Module) NumImportedTables() int   { return m.importCount(KindTable) }
func (m *Module) NumImportedMemories() int { return m.importCount(KindMemory) }

func (m *Module) importCount(kind byte) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			n++
		}
	}
	return n
}

// GetFuncType resolves a function index, imports first, to its type. It
// returns nil for an index or type index out of range.
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	typeIdx, ok := m.funcTypeIndex(funcIdx)
	if !ok || int(typeIdx) >= len(m.Types) {
		return nil
	}
	return &m.Types[typeIdx]
}

func (m *Module) funcTypeIndex(funcIdx uint32) (uint32, bool) {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if funcIdx == 0 {
			return imp.Desc.TypeIdx, true
		}
		funcIdx--
	}
	if int(funcIdx) < len(m.Funcs) {
		return m.Funcs[funcIdx], true
	}
	return 0, false
}

// AddType returns the index of ft, appending it when no equal type exists.
func (m *Module) AddType(ft FuncType) uint32 {
	if i := slices.IndexFunc(m.Types, ft.Equal); i >= 0 {
		return uint32(i)
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

func (m *Module) FindExport(name string, kind byte) (Export, bool) {
	i := slices.IndexFunc(m.Exports, func(e Export) bool { return e.Name == name && e.Kind == kind })
	if i < 0 {
		return Export{}, false
	}
	return m.Exports[i], true
}

// FindCustomSections returns the custom sections named name in binary
// order.
func (m *Module) FindCustomSections(name string) []CustomSection {
	var out []CustomSection
	for _, cs := range m.CustomSections {
		if cs.Name == name {
			out = append(out, cs)
		}
	}
	return out
}
