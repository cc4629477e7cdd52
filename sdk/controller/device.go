package controller

import (
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/brainsim/jumptable"
)

// Jump table addresses.
const (
	AddrGet              uint32 = 0x1a4
	AddrConnectionStatus uint32 = 0x1a8
	AddrTextSet          uint32 = 0x1ac
)

// Controller screen geometry.
const (
	TextLines   = 3
	TextColumns = 19
)

// Device is the guest-visible controller state for the current tick.
type Device struct {
	cur  [Count]Snapshot
	text [Count][TextLines][TextColumns]byte
}

// New creates a device with both controllers disconnected.
func New() *Device {
	d := &Device{}
	for id := range d.text {
		d.ClearText(ID(id))
	}
	return d
}

// Refresh copies the published state of every controller. A nil source
// leaves the current state in place.
func (d *Device) Refresh(src Source) {
	if src == nil {
		return
	}
	for id := range d.cur {
		d.cur[id] = src.Snapshot(ID(id))
	}
}

// Snapshot returns the state the guest currently sees.
func (d *Device) Snapshot(id ID) Snapshot {
	if !id.Valid() {
		return Snapshot{}
	}
	return d.cur[id]
}

// Get implements vexControllerGet. Unknown ids and indices read 0.
func (d *Device) Get(id ID, idx Index) int32 {
	return d.Snapshot(id).Value(idx)
}

// Status implements vexControllerConnectionStatusGet.
func (d *Device) Status(id ID) Status {
	return d.Snapshot(id).Status()
}

// SetText writes s to the controller screen at a 1-based line and column.
// Text past the last column is dropped. It reports whether the position
// was valid.
func (d *Device) SetText(id ID, line, col uint32, s string) bool {
	if !id.Valid() || line < 1 || line > TextLines || col < 1 || col > TextColumns {
		return false
	}
	row := &d.text[id][line-1]
	copy(row[col-1:], s)
	return true
}

// ClearText blanks the controller screen.
func (d *Device) ClearText(id ID) {
	if !id.Valid() {
		return
	}
	for i := range d.text[id] {
		for j := range d.text[id][i] {
			d.text[id][i][j] = ' '
		}
	}
}

// Text returns the controller screen lines with trailing blanks removed.
func (d *Device) Text(id ID) []string {
	if !id.Valid() {
		return nil
	}
	lines := make([]string, TextLines)
	for i, row := range d.text[id] {
		lines[i] = strings.TrimRight(string(row[:]), " ")
	}
	return lines
}

// Slots returns the controller slots bound to d.
func (d *Device) Slots() []jumptable.Slot {
	return []jumptable.Slot{
		{Address: AddrGet, Name: "vexControllerGet", Handler: d.get,
			Sig: jumptable.Fn(jumptable.RetInt, jumptable.Uint, jumptable.Uint)},
		{Address: AddrConnectionStatus, Name: "vexControllerConnectionStatusGet", Handler: d.connectionStatus,
			Sig: jumptable.Fn(jumptable.RetUint, jumptable.Uint)},
		{Address: AddrTextSet, Name: "vexControllerTextSet", Handler: d.textSet,
			Sig: jumptable.Fn(jumptable.RetUint, jumptable.Uint, jumptable.Uint, jumptable.Uint, jumptable.Str)},
	}
}

// Register binds the controller slots of d into reg.
func Register(reg *jumptable.Registry, d *Device) error {
	for _, s := range d.Slots() {
		if err := reg.Insert(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) get(c *jumptable.Call) (uint64, error) {
	id, idx := ID(c.Uint(0)), Index(c.Uint(1))
	if !id.Valid() || !idx.Supported() {
		Logger().Debug("unsupported controller read, returning 0",
			zap.Uint32("id", uint32(id)),
			zap.Uint32("index", uint32(idx)))
	}
	return jumptable.I32(d.Get(id, idx)), nil
}

func (d *Device) connectionStatus(c *jumptable.Call) (uint64, error) {
	return jumptable.U32(uint32(d.Status(ID(c.Uint(0))))), nil
}

func (d *Device) textSet(c *jumptable.Call) (uint64, error) {
	if d.SetText(ID(c.Uint(0)), c.Uint(1), c.Uint(2), c.Str(3)) {
		return jumptable.U32(1), nil
	}
	return 0, nil
}
