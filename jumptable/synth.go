package jumptable

import (
	"github.com/wippyai/brainsim/wasm"
)

// HostModule is the module name under which slot handlers are exported to
// the synthesized table module.
const HostModule = "brainsim"

// ImportPrefix prefixes host import names in HostModule, keeping them apart
// from slot names.
const ImportPrefix = "import:"

// UnboundImport is the HostModule function trap stubs call with the
// address of the unbound word: (i32) -> ().
const UnboundImport = "trap:unbound"

// UnboundType is the type of UnboundImport.
var UnboundType = wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}

// SynthModule builds the module that stands in for the guest's table
// provider. It imports every slot and host import from HostModule, wraps
// each slot in a local function, installs the wrappers at the layout's
// indices and exports the table as tableName. Host imports are re-exported
// under their own names. Each trap stub of the layout passes its address
// to UnboundImport and then traps. A bounded table declares its size as its
// maximum, which a guest import with a maximum of at least that size
// accepts.
func (t *JumpTable) SynthModule(tableName string, layout Layout, bounded bool) []byte {
	m := &wasm.Module{}

	for _, s := range t.slots {
		m.Imports = append(m.Imports, wasm.Import{
			Module: HostModule,
			Name:   s.Name,
			Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: m.AddType(s.Sig.FuncType())},
		})
	}
	for _, h := range t.importList {
		m.Imports = append(m.Imports, wasm.Import{
			Module: HostModule,
			Name:   ImportPrefix + h.Name,
			Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: m.AddType(h.Sig.FuncType())},
		})
	}
	trap := uint32(len(m.Imports))
	if len(layout.Stubs) > 0 {
		m.Imports = append(m.Imports, wasm.Import{
			Module: HostModule,
			Name:   UnboundImport,
			Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: m.AddType(UnboundType)},
		})
	}
	nImports := uint32(len(m.Imports))

	wrappers := make([]uint32, len(t.slots))
	for i, s := range t.slots {
		ft := s.Sig.FuncType()
		m.Funcs = append(m.Funcs, m.AddType(ft))

		body := wasm.NewExpr()
		for p := range ft.Params {
			body.LocalGet(uint32(p))
		}
		body.Call(uint32(i))
		m.Code = append(m.Code, wasm.FuncBody{Code: body.End()})
		wrappers[i] = nImports + uint32(i)
	}
	for _, st := range layout.Stubs {
		m.Funcs = append(m.Funcs, m.AddType(st.Type))
		body := wasm.NewExpr().I32Const(int32(st.Address)).Call(trap).Unreachable()
		m.Code = append(m.Code, wasm.FuncBody{Code: body.End()})
		wrappers = append(wrappers, nImports+uint32(len(wrappers)))
	}

	limits := wasm.Limits{Min: uint64(layout.Size)}
	if bounded {
		size := uint64(layout.Size)
		limits.Max = &size
	}
	m.Tables = []wasm.TableType{{ElemType: byte(wasm.ValFuncRef), Limits: limits}}
	m.Exports = append(m.Exports, wasm.Export{Name: tableName, Kind: wasm.KindTable, Idx: 0})

	for i, h := range t.importList {
		m.Exports = append(m.Exports, wasm.Export{Name: h.Name, Kind: wasm.KindFunc, Idx: uint32(len(t.slots) + i)})
	}

	if len(wrappers) > 0 {
		m.Elements = []wasm.Element{{
			Flags:    0,
			Offset:   wasm.ConstI32(int32(layout.First)),
			FuncIdxs: wrappers,
		}}
	}
	return m.Encode()
}
