package loader

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/wasm"
)

// Entry point export names.
const (
	EntryMain       = "_entry"
	EntryInitialize = "initialize"
	EntryDisabled   = "disabled"
	EntryAutonomous = "autonomous"
	EntryOpControl  = "opcontrol"
)

var entryPoints = []string{EntryMain, EntryInitialize, EntryDisabled, EntryAutonomous, EntryOpControl}

// MemoryExport describes the guest's exported linear memory.
type MemoryExport struct {
	Name     string
	MinPages uint32
	MaxPages *uint32
}

// TableImport describes the funcref table the guest calls the jump table through.
type TableImport struct {
	Module string
	Name   string
	Min    uint32
	Max    *uint32
}

// HostImport is a function the guest imports by name.
type HostImport struct {
	Module string
	Name   string
	Type   wasm.FuncType
}

// Key returns "module#name".
func (h HostImport) Key() string {
	return h.Module + "#" + h.Name
}

// GuestModule is a validated guest program. It is immutable after Parse.
type GuestModule struct {
	Module      *wasm.Module
	Memory      MemoryExport
	Table       TableImport
	Path        string
	Binary      []byte
	HostImports []HostImport
	EntryPoints []string
	Signature   CodeSignature
	Compression Compression
	Digest      [32]byte
}

// DigestHex returns the blake3 digest of the binary in hex.
func (g *GuestModule) DigestHex() string {
	return hex.EncodeToString(g.Digest[:])
}

// HasEntry reports whether the guest exports the named entry point.
func (g *GuestModule) HasEntry(name string) bool {
	for _, e := range g.EntryPoints {
		if e == name {
			return true
		}
	}
	return false
}

// Load reads, decompresses and validates a guest binary from disk.
func Load(path string) (*GuestModule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(path).
			Detail("read guest binary").
			Cause(err).
			Build()
	}
	return Parse(path, data)
}

// Parse validates a guest binary. Structural checks run before the
// signature check. No guest code runs.
func Parse(path string, data []byte) (*GuestModule, error) {
	raw, kind, err := Decompress(data)
	if err != nil {
		return nil, errors.Load("decompress guest binary", err)
	}

	mod, err := wasm.ParseModule(raw)
	if err != nil {
		return nil, errors.New(errors.PhaseValidate, errors.KindStructural).
			Path(path).
			Detail("not a valid wasm module").
			Cause(err).
			Build()
	}

	g := &GuestModule{
		Path:        path,
		Binary:      raw,
		Module:      mod,
		Compression: kind,
		Digest:      blake3.Sum256(raw),
	}

	if err := g.checkMemory(); err != nil {
		return nil, err
	}
	if err := g.checkImports(); err != nil {
		return nil, err
	}
	if err := g.checkEntryPoints(); err != nil {
		return nil, err
	}

	sections := mod.FindCustomSections(SignatureSection)
	switch len(sections) {
	case 0:
		return nil, errors.Signature("missing %s section", SignatureSection)
	case 1:
	default:
		return nil, errors.Signature("%d %s sections, want exactly one", len(sections), SignatureSection)
	}
	sig, err := ParseSignature(sections[0].Data)
	if err != nil {
		return nil, err
	}
	g.Signature = sig

	Logger().Info("guest loaded",
		zap.String("path", path),
		zap.String("digest", g.DigestHex()),
		zap.String("compression", string(kind)),
		zap.Stringer("owner", sig.Owner),
		zap.Stringer("options", sig.Options),
		zap.Strings("entry_points", g.EntryPoints),
		zap.Int("host_imports", len(g.HostImports)),
	)
	return g, nil
}

func (g *GuestModule) checkMemory() error {
	m := g.Module
	if m.NumImportedMemories() > 0 {
		return errors.Structural("guest imports its memory; it must define and export one")
	}
	if len(m.Memories) != 1 {
		return errors.Structural("guest defines %d memories, want exactly one", len(m.Memories))
	}

	var name string
	exported := 0
	for _, exp := range m.Exports {
		if exp.Kind == wasm.KindMemory {
			name = exp.Name
			exported++
		}
	}
	if exported == 0 {
		return errors.Structural("guest memory is not exported")
	}
	if exported > 1 {
		return errors.Structural("guest memory is exported %d times", exported)
	}

	lim := m.Memories[0].Limits
	if lim.Shared {
		return errors.Structural("shared memory is not supported")
	}
	g.Memory = MemoryExport{Name: name, MinPages: uint32(lim.Min)}
	if lim.Max != nil {
		if *lim.Max <= lim.Min {
			return errors.Structural("memory maximum %d pages does not allow growth past %d", *lim.Max, lim.Min)
		}
		maxPages := uint32(*lim.Max)
		g.Memory.MaxPages = &maxPages
	}
	return nil
}

func (g *GuestModule) checkImports() error {
	m := g.Module
	tables := 0
	for _, imp := range m.Imports {
		switch imp.Desc.Kind {
		case wasm.KindTable:
			tables++
			t := imp.Desc.Table
			if t == nil || wasm.ValType(t.ElemType) != wasm.ValFuncRef {
				return errors.New(errors.PhaseValidate, errors.KindStructural).
					Path(imp.Module, imp.Name).
					Detail("imported table must hold funcref").
					Build()
			}
			g.Table = TableImport{Module: imp.Module, Name: imp.Name, Min: uint32(t.Limits.Min)}
			if t.Limits.Max != nil {
				maxSize := uint32(*t.Limits.Max)
				g.Table.Max = &maxSize
			}
		case wasm.KindFunc:
			ft := m.GetFuncType(uint32(len(g.HostImports)))
			if ft == nil {
				return errors.New(errors.PhaseValidate, errors.KindStructural).
					Path(imp.Module, imp.Name).
					Detail("import references unknown type %d", imp.Desc.TypeIdx).
					Build()
			}
			g.HostImports = append(g.HostImports, HostImport{Module: imp.Module, Name: imp.Name, Type: *ft})
		default:
			return errors.New(errors.PhaseValidate, errors.KindStructural).
				Path(imp.Module, imp.Name).
				Detail("unsupported import kind %d; only a table and functions may be imported", imp.Desc.Kind).
				Build()
		}
	}
	if tables != 1 {
		return errors.Structural("guest imports %d tables, want exactly one funcref table", tables)
	}
	if len(m.Tables) > 0 {
		return errors.Structural("guest defines %d tables of its own", len(m.Tables))
	}
	return nil
}

func (g *GuestModule) checkEntryPoints() error {
	m := g.Module
	for _, name := range entryPoints {
		exp, ok := m.FindExport(name, wasm.KindFunc)
		if !ok {
			continue
		}
		ft := m.GetFuncType(exp.Idx)
		if ft == nil || len(ft.Params) != 0 || len(ft.Results) != 0 {
			return errors.New(errors.PhaseValidate, errors.KindStructural).
				Path(name).
				Detail("entry point must have type () -> ()").
				Build()
		}
		g.EntryPoints = append(g.EntryPoints, name)
	}
	if len(g.EntryPoints) == 0 {
		return errors.Structural("no entry point exported; want %s or a competition callback", EntryMain)
	}
	sort.Strings(g.EntryPoints)
	return nil
}

func (g *GuestModule) String() string {
	return fmt.Sprintf("%s (%s, %d KiB)", g.Path, g.DigestHex()[:12], len(g.Binary)/1024)
}
