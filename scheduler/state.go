package scheduler

import (
	"time"

	"github.com/wippyai/brainsim/sdk/competition"
)

// State is the scheduler lifecycle state.
type State int32

const (
	Uninitialized State = iota
	Disabled
	Autonomous
	OpControl
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Disabled:
		return "disabled"
	case Autonomous:
		return "autonomous"
	case OpControl:
		return "opcontrol"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func stateOf(p competition.Phase) State {
	switch p {
	case competition.Disabled:
		return Disabled
	case competition.Autonomous:
		return Autonomous
	default:
		return OpControl
	}
}

// Status is a point-in-time view of the scheduler, safe to read from any
// goroutine.
type Status struct {
	State     State
	Phase     competition.Phase
	Connected bool
	// Competition is the vexCompetitionStatus word.
	Competition uint32
	Elapsed     time.Duration
	Ticks       uint64
	Frames      uint64
}
