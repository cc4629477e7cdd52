// Package script drives a simulated match from a Lua script.
//
// The script defines a global tick(ms) function that is called on every
// scheduler tick with the elapsed program time in milliseconds:
//
//	function tick(ms)
//	  if ms == 0 then connect(true) end
//	  if ms >= 100 and phase() == "disabled" then set_phase("autonomous") end
//	  if ms >= 500 then axis(0, "left_y", 127) end
//	  if ms >= 2000 then stop() end
//	end
//
// Functions available to scripts:
//
//	phase()                     current phase name
//	set_phase(name)             request a phase; returns ok, err
//	connect(bool)               connect or disconnect field control
//	axis(id, name, value)       set a controller axis (-127..127)
//	button(id, name, pressed)   press or release a controller button
//	release_all(id)             center every axis and release every button
//	serial(text)                feed text to serial channel 1
//	stop()                      terminate the program
//	log(msg)                    write to the simulator log
package script

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/sdk/competition"
	"github.com/wippyai/brainsim/sdk/controller"
	"github.com/wippyai/brainsim/sdk/serial"
)

// TickFunc is the global the scheduler calls.
const TickFunc = "tick"

// Host is what a script controls. *scheduler.Scheduler implements it.
type Host interface {
	Phase() competition.Phase
	RequestPhase(p competition.Phase) error
	SetConnected(connected bool)
	FeedSerial(ch uint32, data []byte)
	Terminate()
}

// Option configures a Script.
type Option func(*Script)

// WithLogger overrides the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Script) { s.logger = l }
}

// Script is a loaded Lua match script. It is not safe for concurrent use;
// the scheduler calls it from the guest goroutine only.
type Script struct {
	name   string
	state  *lua.LState
	host   Host
	pub    *controller.Publisher
	logger *zap.Logger
}

// Load reads and runs the script at path.
func Load(path string, host Host, pub *controller.Publisher, opts ...Option) (*Script, error) {
	s := newScript(path, host, pub, opts)
	if err := s.state.DoFile(path); err != nil {
		s.Close()
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(path).
			Detail("load script").
			Cause(err).
			Build()
	}
	return s, nil
}

// Parse runs src as a script named name.
func Parse(name, src string, host Host, pub *controller.Publisher, opts ...Option) (*Script, error) {
	s := newScript(name, host, pub, opts)
	if err := s.state.DoString(src); err != nil {
		s.Close()
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(name).
			Detail("load script").
			Cause(err).
			Build()
	}
	return s, nil
}

func newScript(name string, host Host, pub *controller.Publisher, opts []Option) *Script {
	s := &Script{
		name:   name,
		state:  lua.NewState(),
		host:   host,
		pub:    pub,
		logger: Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for fname, fn := range map[string]lua.LGFunction{
		"phase":       s.phase,
		"set_phase":   s.setPhase,
		"connect":     s.connect,
		"axis":        s.axis,
		"button":      s.button,
		"release_all": s.releaseAll,
		"serial":      s.serial,
		"stop":        s.stop,
		"log":         s.log,
	} {
		s.state.SetGlobal(fname, s.state.NewFunction(fn))
	}
	return s
}

// Tick calls the script's tick function, if it defines one. It has the
// scheduler.TickHook signature.
func (s *Script) Tick(ctx context.Context, now time.Duration) error {
	fn := s.state.GetGlobal(TickFunc)
	if fn.Type() != lua.LTFunction {
		return nil
	}
	s.state.SetContext(ctx)
	defer s.state.RemoveContext()
	err := s.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, lua.LNumber(now.Milliseconds()))
	if err != nil {
		return errors.New(errors.PhaseSchedule, errors.KindInvalidInput).
			Path(s.name, TickFunc).
			Detail("script tick failed").
			Cause(err).
			Build()
	}
	return nil
}

// Close releases the Lua state.
func (s *Script) Close() {
	s.state.Close()
}

func (s *Script) phase(L *lua.LState) int {
	L.Push(lua.LString(s.host.Phase().String()))
	return 1
}

func (s *Script) setPhase(L *lua.LState) int {
	p, err := competition.ParsePhase(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	if err := s.host.RequestPhase(p); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func (s *Script) connect(L *lua.LState) int {
	s.host.SetConnected(L.CheckBool(1))
	return 0
}

func (s *Script) controllerID(L *lua.LState) controller.ID {
	id := controller.ID(L.CheckInt(1))
	if !id.Valid() {
		L.ArgError(1, "controller id must be 0 or 1")
	}
	return id
}

func (s *Script) publish(L *lua.LState, id controller.ID, fn func(controller.Snapshot) controller.Snapshot) {
	if s.pub == nil {
		L.RaiseError("controller input is not enabled")
		return
	}
	if err := s.pub.Update(id, func(cur controller.Snapshot) controller.Snapshot {
		cur.Connected = true
		return fn(cur)
	}); err != nil {
		L.RaiseError("%v", err)
	}
}

func (s *Script) axis(L *lua.LState) int {
	id := s.controllerID(L)
	a, ok := controller.ParseAxis(L.CheckString(2))
	if !ok {
		L.ArgError(2, "unknown axis")
		return 0
	}
	v := int32(L.CheckNumber(3))
	s.publish(L, id, func(cur controller.Snapshot) controller.Snapshot {
		return cur.WithAxis(a, v)
	})
	return 0
}

func (s *Script) button(L *lua.LState) int {
	id := s.controllerID(L)
	b, ok := controller.ParseButton(L.CheckString(2))
	if !ok {
		L.ArgError(2, "unknown button")
		return 0
	}
	pressed := L.OptBool(3, true)
	s.publish(L, id, func(cur controller.Snapshot) controller.Snapshot {
		return cur.WithButton(b, pressed)
	})
	return 0
}

func (s *Script) releaseAll(L *lua.LState) int {
	id := s.controllerID(L)
	s.publish(L, id, func(cur controller.Snapshot) controller.Snapshot {
		cur.Axes = [controller.NumAxes]int32{}
		cur.Buttons = 0
		return cur
	})
	return 0
}

func (s *Script) serial(L *lua.LState) int {
	s.host.FeedSerial(serial.Stdio, []byte(L.CheckString(1)))
	return 0
}

func (s *Script) stop(*lua.LState) int {
	s.logger.Info("script requested stop", zap.String("script", s.name))
	s.host.Terminate()
	return 0
}

func (s *Script) log(L *lua.LState) int {
	s.logger.Info(L.CheckString(1), zap.String("script", s.name))
	return 0
}
