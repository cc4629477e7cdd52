package jumptable

import (
	"context"

	"github.com/wippyai/brainsim"
	"github.com/wippyai/brainsim/errors"
)

// JumpTable is a frozen set of slots. It is never modified after Build.
type JumpTable struct {
	byAddr     map[uint32]*Slot
	byName     map[string]*Slot
	imports    map[string]*HostImport
	slots      []*Slot
	importList []*HostImport
}

// Slots returns the bound slots in address order.
func (t *JumpTable) Slots() []*Slot { return t.slots }

// Imports returns the host imports ordered by key.
func (t *JumpTable) Imports() []*HostImport { return t.importList }

// Len returns the number of bound slots.
func (t *JumpTable) Len() int { return len(t.slots) }

// Lookup returns the slot bound at addr.
func (t *JumpTable) Lookup(addr uint32) (*Slot, error) {
	if s, ok := t.byAddr[addr]; ok {
		return s, nil
	}
	return nil, errors.UnboundSlot(addr, "no handler bound")
}

// LookupName returns the slot with the given SDK symbol name.
func (t *JumpTable) LookupName(name string) (*Slot, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// Import returns the host import for module and name.
func (t *JumpTable) Import(module, name string) (*HostImport, bool) {
	h, ok := t.imports[module+"#"+name]
	return h, ok
}

// Invoke calls the slot at addr directly, without an engine and without a
// yield hook. Parameters are raw wasm values in argument order.
func (t *JumpTable) Invoke(ctx context.Context, mem brainsim.Memory, addr uint32, params ...uint64) (uint64, error) {
	slot, err := t.Lookup(addr)
	if err != nil {
		return 0, err
	}
	d := NewDispatcher(t)
	d.Attach(mem)
	return d.Call(ctx, slot, params)
}
