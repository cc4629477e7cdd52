package controller

// Index is the vexControllerGet channel selector.
type Index uint32

const (
	AnaLeftX Index = iota
	AnaLeftY
	AnaRightX
	AnaRightY
	AnaSpare1
	AnaSpare2
	IndexL1
	IndexL2
	IndexR1
	IndexR2
	IndexUp
	IndexDown
	IndexLeft
	IndexRight
	IndexX
	IndexB
	IndexY
	IndexA
	IndexSel
	BatteryLevel
	ButtonAll
	Flags
	BatteryCapacity
)

// Supported reports whether idx selects a reading the simulator models.
// The spare axes are reserved.
func (i Index) Supported() bool {
	return i <= BatteryCapacity && i != AnaSpare1 && i != AnaSpare2
}

// Value returns the reading vexControllerGet reports for idx. Unknown
// indices and the spare axes read 0.
func (s Snapshot) Value(idx Index) int32 {
	switch {
	case idx <= AnaRightY:
		return s.Axes[idx]
	case idx >= IndexL1 && idx <= IndexSel:
		// Index order matches the Button bit order.
		if s.Buttons&(1<<(idx-IndexL1)) != 0 {
			return 1
		}
		return 0
	}
	switch idx {
	case BatteryLevel:
		return s.BatteryLevel
	case ButtonAll:
		if s.Buttons != 0 {
			return 1
		}
	case Flags:
		return s.Flags
	case BatteryCapacity:
		return s.BatteryCapacity
	}
	return 0
}
