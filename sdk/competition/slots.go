package competition

import (
	"go.uber.org/zap"

	"github.com/wippyai/brainsim/jumptable"
)

// Jump table addresses.
const (
	AddrStatus  uint32 = 0x9d8
	AddrControl uint32 = 0x9dc
)

// Slots returns the competition slots bound to l.
func (l *Lifecycle) Slots() []jumptable.Slot {
	return []jumptable.Slot{
		{Address: AddrStatus, Name: "vexCompetitionStatus", Handler: l.status,
			Sig: jumptable.Fn(jumptable.RetUint)},
		{Address: AddrControl, Name: "vexCompetitionControl", Handler: l.control,
			Sig: jumptable.Fn(jumptable.Void, jumptable.Uint)},
	}
}

// Register binds the competition slots of l into reg.
func Register(reg *jumptable.Registry, l *Lifecycle) error {
	for _, s := range l.Slots() {
		if err := reg.Insert(s); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lifecycle) status(*jumptable.Call) (uint64, error) {
	return jumptable.U32(l.Status()), nil
}

// control is accepted and ignored: the phase belongs to field control.
func (l *Lifecycle) control(c *jumptable.Call) (uint64, error) {
	Logger().Debug("guest competition control ignored", zap.Uint32("data", c.Uint(0)))
	return 0, nil
}
