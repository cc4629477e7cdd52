// Package controller emulates the two V5 handheld controllers.
//
// Input sources (window, session, script) publish whole snapshots through a
// Publisher. The scheduler copies the published state into the Device once
// per tick, so every read the guest makes within a tick sees the same state.
package controller

import (
	"math"
	"strings"
)

// ID selects a controller.
type ID uint32

const (
	Master  ID = 0
	Partner ID = 1

	// Count is the number of controllers.
	Count = 2
)

// Valid reports whether id names a controller.
func (id ID) Valid() bool { return id < Count }

func (id ID) String() string {
	switch id {
	case Master:
		return "master"
	case Partner:
		return "partner"
	}
	return "invalid"
}

// Status is the controller link state.
type Status uint32

const (
	Offline  Status = 0
	Tethered Status = 1
	VEXnet   Status = 2
)

// Axis indexes the analog sticks.
type Axis int

const (
	LeftX Axis = iota
	LeftY
	RightX
	RightY

	// NumAxes is the number of analog axes.
	NumAxes = 4
)

// AxisMax is the full-scale analog value.
const AxisMax = 127

// Button is a bit in Snapshot.Buttons.
type Button uint16

const (
	ButtonL1 Button = 1 << iota
	ButtonL2
	ButtonR1
	ButtonR2
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
	ButtonX
	ButtonB
	ButtonY
	ButtonA
	ButtonSel
)

var buttonNames = []struct {
	name string
	b    Button
}{
	{"l1", ButtonL1}, {"l2", ButtonL2}, {"r1", ButtonR1}, {"r2", ButtonR2},
	{"up", ButtonUp}, {"down", ButtonDown}, {"left", ButtonLeft}, {"right", ButtonRight},
	{"x", ButtonX}, {"b", ButtonB}, {"y", ButtonY}, {"a", ButtonA}, {"sel", ButtonSel},
}

var axisNames = map[string]Axis{
	"left_x": LeftX, "left_y": LeftY, "right_x": RightX, "right_y": RightY,
	"axis4": LeftX, "axis3": LeftY, "axis1": RightX, "axis2": RightY,
}

// ParseButton maps a lowercase button name ("l1", "a", "sel") to its bit.
func ParseButton(name string) (Button, bool) {
	name = strings.ToLower(name)
	for _, bn := range buttonNames {
		if bn.name == name {
			return bn.b, true
		}
	}
	return 0, false
}

// ParseAxis maps an axis name ("left_x", "axis3") to an Axis.
func ParseAxis(name string) (Axis, bool) {
	a, ok := axisNames[strings.ToLower(name)]
	return a, ok
}

func (b Button) String() string {
	var parts []string
	for _, bn := range buttonNames {
		if b&bn.b != 0 {
			parts = append(parts, bn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Snapshot is the complete state of one controller.
type Snapshot struct {
	Axes            [NumAxes]int32
	BatteryLevel    int32
	BatteryCapacity int32
	Flags           int32
	Buttons         Button
	Connected       bool
}

// Pressed reports whether every bit of b is held.
func (s Snapshot) Pressed(b Button) bool { return b != 0 && s.Buttons&b == b }

// WithAxis returns s with axis a set to v, clamped to ±AxisMax.
func (s Snapshot) WithAxis(a Axis, v int32) Snapshot {
	if a >= 0 && a < NumAxes {
		s.Axes[a] = max(-AxisMax, min(AxisMax, v))
	}
	return s
}

// WithButton returns s with b pressed or released.
func (s Snapshot) WithButton(b Button, pressed bool) Snapshot {
	if pressed {
		s.Buttons |= b
	} else {
		s.Buttons &^= b
	}
	return s
}

// Status returns the link state the SDK reports for s.
func (s Snapshot) Status() Status {
	if s.Connected {
		return Tethered
	}
	return Offline
}

// AxisFromFloat converts a -1..1 stick deflection to the SDK range.
func AxisFromFloat(f float64) int32 {
	if math.IsNaN(f) {
		return 0
	}
	f = max(-1, min(1, f))
	return int32(math.Round(f * AxisMax))
}
