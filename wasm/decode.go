package wasm

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/wippyai/brainsim/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// sectionDecoder fills one non-custom section into a module. Sections must
// appear in increasing order.
type sectionDecoder struct {
	name   string
	order  int
	decode func(r *binary.Reader, m *Module) error
}

// DataCount is ordered between Element and Code despite its larger ID.
var sectionDecoders = map[byte]sectionDecoder{
	SectionType: {"type", 1, func(r *binary.Reader, m *Module) (err error) {
		m.Types, err = vector(r, readFuncType)
		return err
	}},
	SectionImport: {"import", 2, func(r *binary.Reader, m *Module) (err error) {
		m.Imports, err = vector(r, readImport)
		return err
	}},
	SectionFunction: {"function", 3, func(r *binary.Reader, m *Module) (err error) {
		m.Funcs, err = vector(r, (*binary.Reader).ReadU32)
		return err
	}},
	SectionTable: {"table", 4, func(r *binary.Reader, m *Module) (err error) {
		m.Tables, err = vector(r, readTableType)
		return err
	}},
	SectionMemory: {"memory", 5, func(r *binary.Reader, m *Module) (err error) {
		m.Memories, err = vector(r, readMemoryType)
		return err
	}},
	SectionGlobal: {"global", 6, func(r *binary.Reader, m *Module) (err error) {
		m.Globals, err = vector(r, readGlobal)
		return err
	}},
	SectionExport: {"export", 7, func(r *binary.Reader, m *Module) (err error) {
		m.Exports, err = vector(r, readExport)
		return err
	}},
	SectionStart: {"start", 8, func(r *binary.Reader, m *Module) error {
		idx, err := r.ReadU32()
		m.Start = &idx
		return err
	}},
	SectionElement: {"element", 9, func(r *binary.Reader, m *Module) (err error) {
		m.Elements, err = vector(r, readElement)
		return err
	}},
	SectionDataCount: {"data count", 10, func(r *binary.Reader, m *Module) error {
		n, err := r.ReadU32()
		m.DataCount = &n
		return err
	}},
	SectionCode: {"code", 11, func(r *binary.Reader, m *Module) (err error) {
		m.Code, err = vector(r, readBody)
		return err
	}},
	SectionData: {"data", 12, func(r *binary.Reader, m *Module) (err error) {
		m.Data, err = vector(r, readData)
		return err
	}},
}

// ParseModule decodes a core module. It accepts the MVP encodings plus the
// bulk-memory segment forms a guest toolchain emits. Tag imports, externref
// tables and expression-list element segments are rejected.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	last := 0
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("section 0x%02x size: %w", id, err)
		}
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, fmt.Errorf("section 0x%02x: %w", id, err)
		}
		sr := binary.NewReader(body)

		if id == SectionCustom {
			name, err := sr.ReadName()
			if err != nil {
				return nil, fmt.Errorf("custom section: %w", err)
			}
			m.CustomSections = append(m.CustomSections, CustomSection{Name: name, Data: sr.ReadRemaining()})
			continue
		}

		dec, ok := sectionDecoders[id]
		if !ok {
			return nil, fmt.Errorf("unknown section ID: 0x%02x", id)
		}
		if dec.order <= last {
			return nil, fmt.Errorf("%s section appears out of order", dec.name)
		}
		last = dec.order
		if err := dec.decode(sr, m); err != nil {
			return nil, fmt.Errorf("%s section: %w", dec.name, err)
		}
		if sr.Len() != 0 {
			return nil, fmt.Errorf("%s section: %d trailing bytes", dec.name, sr.Len())
		}
	}
	return m, nil
}

// vector reads a count followed by that many entries. Every entry takes at
// least one byte, so a count beyond the remaining input is rejected before
// allocating.
func vector[T any](r *binary.Reader, entry func(*binary.Reader) (T, error)) ([]T, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, fmt.Errorf("count %d exceeds %d remaining bytes", n, r.Len())
	}
	out := make([]T, n)
	for i := range out {
		if out[i], err = entry(r); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return out, nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	return ValType(b), err
}

func readFuncType(r *binary.Reader) (FuncType, error) {
	form, err := r.ReadByte()
	if err != nil {
		return FuncType{}, err
	}
	if form != FuncTypeByte {
		return FuncType{}, fmt.Errorf("unsupported type form 0x%02x", form)
	}
	var ft FuncType
	if ft.Params, err = vector(r, readValType); err != nil {
		return FuncType{}, err
	}
	if ft.Results, err = vector(r, readValType); err != nil {
		return FuncType{}, err
	}
	return ft, nil
}

func readImport(r *binary.Reader) (Import, error) {
	var imp Import
	var err error
	if imp.Module, err = r.ReadName(); err != nil {
		return imp, err
	}
	if imp.Name, err = r.ReadName(); err != nil {
		return imp, err
	}
	if imp.Desc.Kind, err = r.ReadByte(); err != nil {
		return imp, err
	}
	switch imp.Desc.Kind {
	case KindFunc:
		imp.Desc.TypeIdx, err = r.ReadU32()
	case KindTable:
		var t TableType
		t, err = readTableType(r)
		imp.Desc.Table = &t
	case KindMemory:
		var mt MemoryType
		mt, err = readMemoryType(r)
		imp.Desc.Memory = &mt
	case KindGlobal:
		var g GlobalType
		g, err = readGlobalType(r)
		imp.Desc.Global = &g
	default:
		err = fmt.Errorf("%s.%s: unsupported import kind %d", imp.Module, imp.Name, imp.Desc.Kind)
	}
	return imp, err
}

func readExport(r *binary.Reader) (Export, error) {
	var exp Export
	var err error
	if exp.Name, err = r.ReadName(); err != nil {
		return exp, err
	}
	if exp.Kind, err = r.ReadByte(); err != nil {
		return exp, err
	}
	if exp.Kind > KindGlobal {
		return exp, fmt.Errorf("%s: unsupported export kind %d", exp.Name, exp.Kind)
	}
	exp.Idx, err = r.ReadU32()
	return exp, err
}

func readGlobal(r *binary.Reader) (Global, error) {
	gt, err := readGlobalType(r)
	if err != nil {
		return Global{}, err
	}
	init, err := readConstExpr(r)
	return Global{Type: gt, Init: init}, err
}

// readElement accepts the funcidx segment forms: 0 and 2 are active, 1 is
// passive and 3 is declarative.
func readElement(r *binary.Reader) (Element, error) {
	var e Element
	var err error
	if e.Flags, err = r.ReadU32(); err != nil {
		return e, err
	}
	if e.Flags > 3 {
		return e, fmt.Errorf("unsupported element segment flags %d", e.Flags)
	}
	if e.Flags == 2 {
		if e.TableIdx, err = r.ReadU32(); err != nil {
			return e, err
		}
	}
	if e.Flags&0x01 == 0 {
		if e.Offset, err = readConstExpr(r); err != nil {
			return e, err
		}
	}
	if e.Flags != 0 {
		if e.ElemKind, err = r.ReadByte(); err != nil {
			return e, err
		}
		if e.ElemKind != 0 {
			return e, fmt.Errorf("unsupported element kind 0x%02x", e.ElemKind)
		}
	}
	e.FuncIdxs, err = vector(r, (*binary.Reader).ReadU32)
	return e, err
}

func readBody(r *binary.Reader) (FuncBody, error) {
	size, err := r.ReadU32()
	if err != nil {
		return FuncBody{}, err
	}
	raw, err := r.ReadBytes(int(size))
	if err != nil {
		return FuncBody{}, err
	}
	br := binary.NewReader(raw)
	locals, err := vector(br, func(br *binary.Reader) (LocalEntry, error) {
		n, err := br.ReadU32()
		if err != nil {
			return LocalEntry{}, err
		}
		t, err := readValType(br)
		return LocalEntry{Count: n, ValType: t}, err
	})
	if err != nil {
		return FuncBody{}, fmt.Errorf("locals: %w", err)
	}
	return FuncBody{Locals: locals, Code: br.ReadRemaining()}, nil
}

// readData accepts active (0), passive (1) and explicit-memory active (2)
// segments.
func readData(r *binary.Reader) (DataSegment, error) {
	var d DataSegment
	var err error
	if d.Flags, err = r.ReadU32(); err != nil {
		return d, err
	}
	switch d.Flags {
	case 0, 1:
	case 2:
		if d.MemIdx, err = r.ReadU32(); err != nil {
			return d, err
		}
	default:
		return d, fmt.Errorf("unsupported data segment flags %d", d.Flags)
	}
	if d.Flags != 1 {
		if d.Offset, err = readConstExpr(r); err != nil {
			return d, err
		}
	}
	n, err := r.ReadU32()
	if err != nil {
		return d, err
	}
	d.Init, err = r.ReadBytes(int(n))
	return d, err
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags&^(LimitsHasMax|LimitsShared) != 0 {
		return Limits{}, fmt.Errorf("unsupported limits flags 0x%02x", flags)
	}
	lo, err := r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Min: uint64(lo), Shared: flags&LimitsShared != 0}
	if flags&LimitsHasMax == 0 {
		return l, nil
	}
	hi, err := r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	if lo > hi {
		return Limits{}, fmt.Errorf("limits min %d exceeds max %d", lo, hi)
	}
	hi64 := uint64(hi)
	l.Max = &hi64
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	elem, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	if elem != byte(ValFuncRef) {
		return TableType{}, fmt.Errorf("unsupported table element type 0x%02x", elem)
	}
	l, err := readLimits(r)
	return TableType{ElemType: elem, Limits: l}, err
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	l, err := readLimits(r)
	return MemoryType{Limits: l}, err
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	t, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	return GlobalType{ValType: t, Mutable: mut != 0}, err
}

// readConstExpr copies a constant expression through its end opcode. Only
// MVP constant instructions are accepted.
func readConstExpr(r *binary.Reader) ([]byte, error) {
	start := r.Position()
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch op {
		case OpEnd:
			return bytes.Clone(r.Since(start)), nil
		case OpI32Const:
			_, err = r.ReadS32()
		case OpI64Const:
			_, err = r.ReadS64()
		case OpF32Const:
			_, err = r.ReadBytes(4)
		case OpF64Const:
			_, err = r.ReadBytes(8)
		case OpGlobalGet, OpRefFunc:
			_, err = r.ReadU32()
		case OpRefNull:
			_, err = r.ReadByte()
		default:
			return nil, fmt.Errorf("unsupported opcode 0x%02x in constant expression", op)
		}
		if err != nil {
			return nil, err
		}
	}
}
