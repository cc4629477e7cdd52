// Package competition models the field-control state a V5 brain reports:
// the match phase and the competition-switch connection.
//
// Only the scheduler (on behalf of the session, scripts and match timer)
// changes the phase. Guest programs can read it but never set it.
package competition

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/wippyai/brainsim/errors"
)

// Phase is a competition mode.
type Phase int

const (
	Disabled Phase = iota
	Autonomous
	OpControl
)

func (p Phase) String() string {
	switch p {
	case Disabled:
		return "disabled"
	case Autonomous:
		return "autonomous"
	case OpControl:
		return "opcontrol"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p >= Disabled && p <= OpControl }

// ParsePhase accepts the phase names, case-insensitively, plus the
// "driver" alias for OpControl.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled":
		return Disabled, nil
	case "autonomous", "auton", "auto":
		return Autonomous, nil
	case "opcontrol", "driver", "op_control":
		return OpControl, nil
	}
	return 0, errors.InvalidInput(errors.PhaseSchedule, fmt.Sprintf("unknown phase %q", s))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ErrNotConnected rejects phase changes while no competition switch or
// field controller is attached.
var ErrNotConnected = stderrors.New("competition: not connected to field control")

// Status bits reported by vexCompetitionStatus.
const (
	StatusDisabled   uint32 = 1
	StatusAutonomous uint32 = 2
	StatusConnected  uint32 = 4
	StatusSystem     uint32 = 8
)

// Lifecycle is the competition state machine. Times are program-relative
// durations from the scheduler clock. It is not safe for concurrent use.
type Lifecycle struct {
	phase     Phase
	start     time.Duration
	connected bool
	system    bool
}

// NewLifecycle starts disconnected, in OpControl.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{phase: OpControl}
}

func (l *Lifecycle) Phase() Phase              { return l.phase }
func (l *Lifecycle) Connected() bool           { return l.connected }
func (l *Lifecycle) System() bool              { return l.system }
func (l *Lifecycle) PhaseStart() time.Duration { return l.start }
func (l *Lifecycle) SetSystem(system bool)     { l.system = system }

// InPhase returns how long the current phase has lasted at now.
func (l *Lifecycle) InPhase(now time.Duration) time.Duration {
	return now - l.start
}

// SetConnected attaches or detaches field control. Connecting enters
// Disabled and disconnecting returns to OpControl. It reports whether the
// phase changed.
func (l *Lifecycle) SetConnected(connected bool, now time.Duration) bool {
	if connected == l.connected {
		return false
	}
	l.connected = connected
	next := OpControl
	if connected {
		next = Disabled
	}
	changed := next != l.phase
	l.phase = next
	l.start = now
	return changed
}

// Transition requests phase p. It reports whether the phase changed;
// requesting the current phase is a no-op.
func (l *Lifecycle) Transition(p Phase, now time.Duration) (bool, error) {
	if !p.Valid() {
		return false, errors.InvalidInput(errors.PhaseSchedule, fmt.Sprintf("invalid phase %d", int(p)))
	}
	if !l.connected {
		return false, ErrNotConnected
	}
	if p == l.phase {
		return false, nil
	}
	l.phase = p
	l.start = now
	return true, nil
}

// Status returns the vexCompetitionStatus bits.
func (l *Lifecycle) Status() uint32 {
	var s uint32
	switch l.phase {
	case Disabled:
		s |= StatusDisabled
	case Autonomous:
		s |= StatusAutonomous
	}
	if l.connected {
		s |= StatusConnected
	}
	if l.system {
		s |= StatusSystem
	}
	return s
}
