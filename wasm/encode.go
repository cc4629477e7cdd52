package wasm

import (
	"github.com/wippyai/brainsim/wasm/internal/binary"
)

// Encode encodes the module in binary format. Sections are written in
// canonical order and empty sections are omitted. Custom sections go last.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	section(w, SectionType, len(m.Types), func(s *binary.Writer, i int) {
		s.Byte(FuncTypeByte)
		writeValTypes(s, m.Types[i].Params)
		writeValTypes(s, m.Types[i].Results)
	})
	section(w, SectionImport, len(m.Imports), func(s *binary.Writer, i int) {
		writeImport(s, m.Imports[i])
	})
	section(w, SectionFunction, len(m.Funcs), func(s *binary.Writer, i int) {
		s.WriteU32(m.Funcs[i])
	})
	section(w, SectionTable, len(m.Tables), func(s *binary.Writer, i int) {
		writeTableType(s, m.Tables[i])
	})
	section(w, SectionMemory, len(m.Memories), func(s *binary.Writer, i int) {
		writeLimits(s, m.Memories[i].Limits)
	})
	section(w, SectionGlobal, len(m.Globals), func(s *binary.Writer, i int) {
		writeGlobalType(s, m.Globals[i].Type)
		s.WriteBytes(m.Globals[i].Init)
	})
	section(w, SectionExport, len(m.Exports), func(s *binary.Writer, i int) {
		exp := m.Exports[i]
		s.WriteName(exp.Name)
		s.Byte(exp.Kind)
		s.WriteU32(exp.Idx)
	})
	if m.Start != nil {
		single(w, SectionStart, *m.Start)
	}
	section(w, SectionElement, len(m.Elements), func(s *binary.Writer, i int) {
		writeElement(s, m.Elements[i])
	})
	if m.DataCount != nil {
		single(w, SectionDataCount, *m.DataCount)
	}
	section(w, SectionCode, len(m.Code), func(s *binary.Writer, i int) {
		body := binary.NewWriter()
		vec(body, len(m.Code[i].Locals), func(j int) {
			body.WriteU32(m.Code[i].Locals[j].Count)
			body.Byte(byte(m.Code[i].Locals[j].ValType))
		})
		body.WriteBytes(m.Code[i].Code)
		s.WriteU32(uint32(body.Len()))
		s.WriteBytes(body.Bytes())
	})
	section(w, SectionData, len(m.Data), func(s *binary.Writer, i int) {
		writeData(s, m.Data[i])
	})

	for _, cs := range m.CustomSections {
		s := binary.NewWriter()
		s.WriteName(cs.Name)
		s.WriteBytes(cs.Data)
		frame(w, SectionCustom, s)
	}
	return w.Bytes()
}

// section writes a vector section of n entries. Nothing is written when n
// is zero.
func section(w *binary.Writer, id byte, n int, entry func(s *binary.Writer, i int)) {
	if n == 0 {
		return
	}
	s := binary.NewWriter()
	vec(s, n, func(i int) { entry(s, i) })
	frame(w, id, s)
}

func single(w *binary.Writer, id byte, v uint32) {
	s := binary.NewWriter()
	s.WriteU32(v)
	frame(w, id, s)
}

func frame(w *binary.Writer, id byte, s *binary.Writer) {
	w.Byte(id)
	w.WriteU32(uint32(s.Len()))
	w.WriteBytes(s.Bytes())
}

func vec(w *binary.Writer, n int, entry func(i int)) {
	w.WriteU32(uint32(n))
	for i := 0; i < n; i++ {
		entry(i)
	}
}

func writeImport(s *binary.Writer, imp Import) {
	s.WriteName(imp.Module)
	s.WriteName(imp.Name)
	s.Byte(imp.Desc.Kind)
	d := imp.Desc
	switch {
	case d.Kind == KindFunc:
		s.WriteU32(d.TypeIdx)
	case d.Kind == KindTable && d.Table != nil:
		writeTableType(s, *d.Table)
	case d.Kind == KindMemory && d.Memory != nil:
		writeLimits(s, d.Memory.Limits)
	case d.Kind == KindGlobal && d.Global != nil:
		writeGlobalType(s, *d.Global)
	}
}

func writeElement(s *binary.Writer, e Element) {
	s.WriteU32(e.Flags)
	if e.Flags == 2 {
		s.WriteU32(e.TableIdx)
	}
	if e.Flags&0x01 == 0 {
		s.WriteBytes(e.Offset)
	}
	if e.Flags != 0 {
		s.Byte(e.ElemKind)
	}
	vec(s, len(e.FuncIdxs), func(i int) { s.WriteU32(e.FuncIdxs[i]) })
}

func writeData(s *binary.Writer, d DataSegment) {
	s.WriteU32(d.Flags)
	switch d.Flags {
	case 0:
		s.WriteBytes(d.Offset)
	case 2:
		s.WriteU32(d.MemIdx)
		s.WriteBytes(d.Offset)
	}
	s.WriteU32(uint32(len(d.Init)))
	s.WriteBytes(d.Init)
}

func writeValTypes(w *binary.Writer, types []ValType) {
	vec(w, len(types), func(i int) { w.Byte(byte(types[i])) })
}

func writeLimits(w *binary.Writer, l Limits) {
	flags := LimitsNoMax
	if l.Max != nil {
		flags |= LimitsHasMax
	}
	if l.Shared {
		flags |= LimitsShared
	}
	w.Byte(flags)
	w.WriteU32(uint32(l.Min))
	if l.Max != nil {
		w.WriteU32(uint32(*l.Max))
	}
}

func writeTableType(w *binary.Writer, t TableType) {
	elem := t.ElemType
	if elem == 0 {
		elem = byte(ValFuncRef)
	}
	w.Byte(elem)
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}
