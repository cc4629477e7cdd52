package session

import (
	"encoding/json"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/sdk/competition"
	"github.com/wippyai/brainsim/sdk/controller"
	"github.com/wippyai/brainsim/sdk/serial"
)

// handle applies one command. Bad commands are answered with an error
// event; only a failed handshake ends the session.
func (s *Session) handle(core Core, line []byte) error {
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		s.fail("invalid command: %v", err)
		return nil
	}
	s.logger.Debug("session command", zap.String("type", cmd.Type))

	if !s.handshaken {
		if cmd.Type != CmdHandshake {
			s.fail("handshake required before %q", cmd.Type)
			return nil
		}
		return s.handshake(cmd)
	}

	switch cmd.Type {
	case CmdHandshake:
		s.fail("handshake already completed")
	case CmdPhaseGet:
		s.emit(PhaseEvent{Type: EvPhase, Phase: core.Status().Phase.String()})
	case CmdPhaseSet:
		p, err := competition.ParsePhase(cmd.Phase)
		if err != nil {
			s.fail("%v", err)
			return nil
		}
		if err := core.RequestPhase(p); err != nil {
			s.fail("phase %s: %v", p, err)
		}
	case CmdConnect:
		core.SetConnected(cmd.Connected)
	case CmdController:
		if err := s.controller(cmd); err != nil {
			s.fail("%v", err)
		}
	case CmdSerial:
		ch := cmd.Channel
		if ch == 0 {
			ch = serial.Stdio
		}
		core.FeedSerial(ch, []byte(cmd.Data))
	case CmdStatus:
		st := core.Status()
		s.emit(StatusEvent{
			Type:      EvStatus,
			State:     st.State.String(),
			Phase:     st.Phase.String(),
			Connected: st.Connected,
			ElapsedMs: st.Elapsed.Milliseconds(),
			Ticks:     st.Ticks,
			Digest:    s.digest,
		})
	case CmdTerminate:
		core.Terminate()
	default:
		s.fail("unknown command %q", cmd.Type)
	}
	return nil
}

func (s *Session) handshake(cmd Command) error {
	// Newer frontends are answered with Version and must fall back to it.
	if cmd.Version < Version {
		err := errors.Protocol("unsupported protocol version %d, want at least %d", cmd.Version, Version)
		s.close(ErrorEvent{Type: EvError, Message: err.Error()})
		return err
	}
	s.handshaken = true
	agreed := []string{}
	for _, ext := range cmd.Extensions {
		if slices.Contains(Extensions, ext) {
			agreed = append(agreed, ext)
		}
	}
	s.emit(HandshakeEvent{Type: EvHandshake, Version: Version, Extensions: agreed})
	return nil
}

func (s *Session) controller(cmd Command) error {
	if s.pub == nil {
		return fmt.Errorf("controller input is not enabled")
	}
	id := controller.ID(cmd.ID)
	if !id.Valid() {
		return fmt.Errorf("unknown controller %d", cmd.ID)
	}
	snap := controller.Snapshot{Connected: true}
	if st := cmd.State; st != nil {
		if st.Connected != nil {
			snap.Connected = *st.Connected
		}
		for name, v := range st.Axes {
			axis, ok := controller.ParseAxis(name)
			if !ok {
				return fmt.Errorf("unknown axis %q", name)
			}
			snap = snap.WithAxis(axis, v)
		}
		for _, name := range st.Buttons {
			b, ok := controller.ParseButton(name)
			if !ok {
				return fmt.Errorf("unknown button %q", name)
			}
			snap = snap.WithButton(b, true)
		}
		snap.BatteryLevel = st.BatteryLevel
		snap.BatteryCapacity = st.BatteryCapacity
	}
	return s.pub.Publish(id, snap)
}

func (s *Session) fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Debug("session error", zap.String("message", msg))
	s.emit(ErrorEvent{Type: EvError, Message: msg})
}
