package session

// Version is the protocol version this package speaks.
const Version = 1

// Extensions lists the optional protocol features the simulator supports.
var Extensions = []string{"controller", "serial", "frames"}

// Command types.
const (
	CmdHandshake  = "handshake"
	CmdPhaseGet   = "phase_get"
	CmdPhaseSet   = "phase_set"
	CmdConnect    = "connect"
	CmdController = "controller"
	CmdSerial     = "serial"
	CmdStatus     = "status"
	CmdTerminate  = "terminate"
)

// Event types.
const (
	EvHandshake  = "handshake"
	EvPhase      = "phase"
	EvStatus     = "status"
	EvSerial     = "serial"
	EvFrame      = "frame"
	EvTerminated = "terminated"
	EvError      = "error"
)

// Command is one line of session input. Fields are used according to Type.
type Command struct {
	Type       string           `json:"type"`
	Version    int              `json:"version,omitempty"`
	Extensions []string         `json:"extensions,omitempty"`
	Phase      string           `json:"phase,omitempty"`
	Connected  bool             `json:"connected,omitempty"`
	ID         uint32           `json:"id,omitempty"`
	State      *ControllerState `json:"state,omitempty"`
	Channel    uint32           `json:"channel,omitempty"`
	Data       string           `json:"data,omitempty"`
}

// ControllerState is the wire form of a controller snapshot. Axes are keyed
// by name ("left_x", "axis3", ...) and buttons are listed by name ("a",
// "l1", ...). A missing connected field means connected.
type ControllerState struct {
	Connected       *bool            `json:"connected,omitempty"`
	Axes            map[string]int32 `json:"axes,omitempty"`
	Buttons         []string         `json:"buttons,omitempty"`
	BatteryLevel    int32            `json:"battery_level,omitempty"`
	BatteryCapacity int32            `json:"battery_capacity,omitempty"`
}

type HandshakeEvent struct {
	Type       string   `json:"type"`
	Version    int      `json:"version"`
	Extensions []string `json:"extensions"`
}

type PhaseEvent struct {
	Type  string `json:"type"`
	Phase string `json:"phase"`
}

type StatusEvent struct {
	Type      string `json:"type"`
	State     string `json:"state"`
	Phase     string `json:"phase"`
	Connected bool   `json:"connected"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Ticks     uint64 `json:"ticks"`
	Digest    string `json:"digest,omitempty"`
}

type SerialEvent struct {
	Type    string `json:"type"`
	Channel uint32 `json:"channel"`
	Data    string `json:"data"`
}

type FrameEvent struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
}

type TerminatedEvent struct {
	Type     string `json:"type"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
