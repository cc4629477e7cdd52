package jumptable

import (
	"encoding/binary"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/memory"
	"github.com/wippyai/brainsim/wasm"
)

// Layout places slots in the guest's function table. Slots occupy
// [First, First+n) in address order, followed by any trap stubs. The entry
// at Null is never filled, so a call through it traps.
type Layout struct {
	index map[uint32]uint32
	First uint32
	Null  uint32
	Size  uint32

	// Stubs holds one trap stub per unbound word, in address order. Empty
	// for a compact layout.
	Stubs []Stub
}

// Stub is a table entry that reports a call through the unbound word at
// Address.
type Stub struct {
	Address uint32
	Index   uint32
	Type    wasm.FuncType
}

// Layout reserves the first guestMin table entries for the guest's own
// element segments. Unbound words all point at Null.
func (t *JumpTable) Layout(guestMin uint32) Layout {
	l := Layout{
		index: make(map[uint32]uint32, len(t.slots)),
		First: guestMin,
		Null:  guestMin + uint32(len(t.slots)),
		Size:  guestMin + uint32(len(t.slots)) + 1,
	}
	for i, s := range t.slots {
		l.index[s.Address] = guestMin + uint32(i)
	}
	return l
}

// TrapLayout is Layout with a trap stub behind every unbound word, so that
// a call through one reports its address. types gives the stub type per
// address; addresses without an entry get () -> ().
func (t *JumpTable) TrapLayout(guestMin uint32, types map[uint32]wasm.FuncType) Layout {
	l := t.Layout(guestMin)
	next := l.Null
	for addr := uint32(0); addr < Size; addr += 4 {
		if _, ok := l.index[addr]; ok {
			continue
		}
		l.index[addr] = next
		l.Stubs = append(l.Stubs, Stub{Address: addr, Index: next, Type: types[addr]})
		next++
	}
	l.Null = next
	l.Size = next + 1
	return l
}

// Index returns the table index for the word at addr, or Null when unbound.
func (l Layout) Index(addr uint32) uint32 {
	if idx, ok := l.index[addr]; ok {
		return idx
	}
	return l.Null
}

// Words renders the jump table region: one little-endian table index per
// word, Null for unbound words.
func (l Layout) Words() []byte {
	out := make([]byte, Size)
	for addr := uint32(0); addr < Size; addr += 4 {
		binary.LittleEndian.PutUint32(out[addr:], l.Index(addr))
	}
	return out
}

// Expose writes the jump table region into guest memory at base.
func (l Layout) Expose(mem *memory.Bridge, base uint32) error {
	if err := mem.Write(base, l.Words()); err != nil {
		return errors.New(errors.PhaseBind, errors.KindStructural).
			Detail("guest memory does not cover the jump table at 0x%08x", base).
			Cause(err).
			Build()
	}
	return nil
}

// CallTypes collects the function type m uses at each constant-address
// call through the jump table at base, keyed by slot address. The first
// type seen for an address wins.
func CallTypes(m *wasm.Module, base uint32) map[uint32]wasm.FuncType {
	out := make(map[uint32]wasm.FuncType)
	for _, body := range m.Code {
		for _, c := range wasm.ConstIndirectCalls(body.Code) {
			if c.TableIdx != 0 || c.Address < base || c.Address-base >= Size || (c.Address-base)%4 != 0 {
				continue
			}
			if int(c.TypeIdx) >= len(m.Types) {
				continue
			}
			addr := c.Address - base
			if _, seen := out[addr]; !seen {
				out[addr] = m.Types[c.TypeIdx]
			}
		}
	}
	return out
}
