package scheduler

import (
	"github.com/wippyai/brainsim/sdk/competition"
	"github.com/wippyai/brainsim/sdk/display"
	"github.com/wippyai/brainsim/sdk/serial"
)

// Observer receives scheduler events on the goroutine running the guest.
// Implementations must not block; hand work to another goroutine instead.
type Observer interface {
	OnPhase(p competition.Phase)
	OnSerial(out []serial.Output)
	OnFrame(f display.Frame)
	OnTerminate(err error)
}

// Funcs adapts optional callbacks to Observer. Nil fields are skipped.
type Funcs struct {
	Phase     func(competition.Phase)
	Serial    func([]serial.Output)
	Frame     func(display.Frame)
	Terminate func(error)
}

var _ Observer = Funcs{}

func (f Funcs) OnPhase(p competition.Phase) {
	if f.Phase != nil {
		f.Phase(p)
	}
}

func (f Funcs) OnSerial(out []serial.Output) {
	if f.Serial != nil {
		f.Serial(out)
	}
}

func (f Funcs) OnFrame(fr display.Frame) {
	if f.Frame != nil {
		f.Frame(fr)
	}
}

func (f Funcs) OnTerminate(err error) {
	if f.Terminate != nil {
		f.Terminate(err)
	}
}
