package jumptable

import (
	"sort"

	"github.com/wippyai/brainsim/errors"
)

const (
	// DefaultBase is the jump table address on hardware.
	DefaultBase uint32 = 0x037FC000

	// Size is the byte size of the jump table region.
	Size uint32 = 0x4000
)

// Slot binds one jump table address to a handler.
type Slot struct {
	Handler Handler
	Name    string
	Sig     Sig
	Address uint32
	// Yield runs the scheduler yield hook after every call.
	Yield bool
}

// HostImport is a function the guest imports by name rather than through the
// jump table, such as env.sim_log_backtrace.
type HostImport struct {
	Handler Handler
	Module  string
	Name    string
	Sig     Sig
}

// Key returns "module#name".
func (h *HostImport) Key() string {
	return h.Module + "#" + h.Name
}

// Registry collects slots before the table is frozen. It is not safe for
// concurrent use.
type Registry struct {
	slots   map[uint32]*Slot
	names   map[string]uint32
	imports map[string]*HostImport
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		slots:   make(map[uint32]*Slot),
		names:   make(map[string]uint32),
		imports: make(map[string]*HostImport),
	}
}

// Insert binds s. Addresses must be word aligned and inside the table, and
// neither the address nor the name may already be bound.
func (r *Registry) Insert(s Slot) error {
	switch {
	case s.Name == "":
		return errors.Registration(s.Name, s.Address, "slot has no name")
	case s.Handler == nil:
		return errors.Registration(s.Name, s.Address, "slot has no handler")
	case s.Address%4 != 0:
		return errors.Registration(s.Name, s.Address, "address is not word aligned")
	case s.Address > Size-4:
		return errors.Registration(s.Name, s.Address, "address is outside the jump table")
	}
	if err := s.Sig.validate(); err != nil {
		return errors.Registration(s.Name, s.Address, err.Error())
	}
	if prev, ok := r.slots[s.Address]; ok {
		return errors.Registration(s.Name, s.Address, "address already bound to "+prev.Name)
	}
	if _, ok := r.names[s.Name]; ok {
		return errors.Registration(s.Name, s.Address, "name already bound")
	}
	slot := s
	r.slots[s.Address] = &slot
	r.names[s.Name] = s.Address
	return nil
}

// Import registers a named host import.
func (r *Registry) Import(h HostImport) error {
	if h.Module == "" || h.Name == "" {
		return errors.Registration(h.Name, 0, "host import needs a module and a name")
	}
	if h.Handler == nil {
		return errors.Registration(h.Name, 0, "host import has no handler")
	}
	if err := h.Sig.validate(); err != nil {
		return errors.Registration(h.Name, 0, err.Error())
	}
	imp := h
	if _, ok := r.imports[imp.Key()]; ok {
		return errors.Registration(h.Name, 0, "host import already registered")
	}
	r.imports[imp.Key()] = &imp
	return nil
}

// Len returns the number of bound slots.
func (r *Registry) Len() int { return len(r.slots) }

// Build freezes the registry into an address-ordered table.
func (r *Registry) Build() *JumpTable {
	t := &JumpTable{
		byAddr:  make(map[uint32]*Slot, len(r.slots)),
		byName:  make(map[string]*Slot, len(r.slots)),
		imports: make(map[string]*HostImport, len(r.imports)),
	}
	for addr, s := range r.slots {
		cp := *s
		t.slots = append(t.slots, &cp)
		t.byAddr[addr] = &cp
		t.byName[cp.Name] = &cp
	}
	sort.Slice(t.slots, func(i, j int) bool { return t.slots[i].Address < t.slots[j].Address })
	for key, h := range r.imports {
		cp := *h
		t.importList = append(t.importList, &cp)
		t.imports[key] = &cp
	}
	sort.Slice(t.importList, func(i, j int) bool { return t.importList[i].Key() < t.importList[j].Key() })
	return t
}
