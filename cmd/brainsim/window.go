//go:build !headless

package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"go.uber.org/zap"

	"github.com/wippyai/brainsim/runtime"
	"github.com/wippyai/brainsim/scheduler"
	"github.com/wippyai/brainsim/sdk/competition"
	"github.com/wippyai/brainsim/sdk/controller"
	"github.com/wippyai/brainsim/sdk/display"
)

const windowSupported = true

var padButtons = []struct {
	pad ebiten.StandardGamepadButton
	b   controller.Button
}{
	{ebiten.StandardGamepadButtonFrontTopLeft, controller.ButtonL1},
	{ebiten.StandardGamepadButtonFrontBottomLeft, controller.ButtonL2},
	{ebiten.StandardGamepadButtonFrontTopRight, controller.ButtonR1},
	{ebiten.StandardGamepadButtonFrontBottomRight, controller.ButtonR2},
	{ebiten.StandardGamepadButtonLeftTop, controller.ButtonUp},
	{ebiten.StandardGamepadButtonLeftBottom, controller.ButtonDown},
	{ebiten.StandardGamepadButtonLeftLeft, controller.ButtonLeft},
	{ebiten.StandardGamepadButtonLeftRight, controller.ButtonRight},
	{ebiten.StandardGamepadButtonRightLeft, controller.ButtonX},
	{ebiten.StandardGamepadButtonRightRight, controller.ButtonB},
	{ebiten.StandardGamepadButtonRightTop, controller.ButtonY},
	{ebiten.StandardGamepadButtonRightBottom, controller.ButtonA},
	{ebiten.StandardGamepadButtonCenterLeft, controller.ButtonSel},
}

var padAxes = []struct {
	pad    ebiten.StandardGamepadAxis
	axis   controller.Axis
	invert bool
}{
	{ebiten.StandardGamepadAxisLeftStickHorizontal, controller.LeftX, false},
	{ebiten.StandardGamepadAxisLeftStickVertical, controller.LeftY, true},
	{ebiten.StandardGamepadAxisRightStickHorizontal, controller.RightX, false},
	{ebiten.StandardGamepadAxisRightStickVertical, controller.RightY, true},
}

var keyButtons = []struct {
	key ebiten.Key
	b   controller.Button
}{
	{ebiten.KeyQ, controller.ButtonL1},
	{ebiten.KeyZ, controller.ButtonL2},
	{ebiten.KeyE, controller.ButtonR1},
	{ebiten.KeyC, controller.ButtonR2},
	{ebiten.KeyJ, controller.ButtonA},
	{ebiten.KeyK, controller.ButtonB},
	{ebiten.KeyU, controller.ButtonX},
	{ebiten.KeyI, controller.ButtonY},
	{ebiten.KeyBackspace, controller.ButtonSel},
}

// window shows the display and reads gamepads. The first gamepad drives
// the master controller (the keyboard stands in when none is attached);
// the second drives the partner controller.
type window struct {
	pub    *controller.Publisher
	header bool
	logger *zap.Logger

	mu      sync.Mutex
	frame   display.Frame
	done    bool
	exitErr error

	ctx   context.Context
	sim   *runtime.Simulator
	img   *ebiten.Image
	shown uint64
	pads  [controller.Count]controller.Snapshot
	ids   []ebiten.GamepadID
	title string
}

func newWindow(pub *controller.Publisher, header bool, logger *zap.Logger) *window {
	return &window{pub: pub, header: header, logger: logger}
}

func (w *window) observer() scheduler.Observer {
	return scheduler.Funcs{
		Frame: func(f display.Frame) {
			w.mu.Lock()
			w.frame = f
			w.mu.Unlock()
		},
		Terminate: func(err error) {
			w.mu.Lock()
			w.done, w.exitErr = true, err
			w.mu.Unlock()
		},
	}
}

// run blocks until the window is closed or ctx is cancelled.
func (w *window) run(ctx context.Context, sim *runtime.Simulator) error {
	w.ctx, w.sim = ctx, sim
	ebiten.SetWindowSize(display.Width*2, display.Height*2)
	ebiten.SetWindowTitle("brainsim")
	ebiten.SetWindowResizable(true)
	ebiten.SetWindowClosingHandled(true)
	ebiten.SetRunnableOnUnfocused(true)
	return ebiten.RunGame(w)
}

func (w *window) Update() error {
	if w.ctx.Err() != nil || ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}
	w.fieldKeys()
	w.readPads()
	w.updateTitle()
	return nil
}

func (w *window) fieldKeys() {
	sched := w.sim.Scheduler()
	var err error
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyF1):
		err = sched.RequestPhase(competition.Disabled)
	case inpututil.IsKeyJustPressed(ebiten.KeyF2):
		err = sched.RequestPhase(competition.Autonomous)
	case inpututil.IsKeyJustPressed(ebiten.KeyF3):
		err = sched.RequestPhase(competition.OpControl)
	case inpututil.IsKeyJustPressed(ebiten.KeyF4):
		sched.SetConnected(!sched.Status().Connected)
	}
	if err != nil {
		w.logger.Warn("phase request", zap.Error(err))
	}
}

func (w *window) readPads() {
	w.ids = ebiten.AppendGamepadIDs(w.ids[:0])
	for i := controller.ID(0); i < controller.Count; i++ {
		var s controller.Snapshot
		switch {
		case int(i) < len(w.ids):
			s = padSnapshot(w.ids[i])
		case i == controller.Master:
			s = keyboardSnapshot()
		default:
			continue
		}
		if s == w.pads[i] {
			continue
		}
		w.pads[i] = s
		if err := w.pub.Publish(i, s); err != nil {
			w.logger.Warn("publish controller", zap.Error(err))
		}
	}
}

func padSnapshot(id ebiten.GamepadID) controller.Snapshot {
	s := controller.Snapshot{Connected: true}
	if !ebiten.IsStandardGamepadLayoutAvailable(id) {
		return s
	}
	for _, a := range padAxes {
		v := ebiten.StandardGamepadAxisValue(id, a.pad)
		if a.invert {
			v = -v
		}
		s = s.WithAxis(a.axis, controller.AxisFromFloat(v))
	}
	for _, b := range padButtons {
		s = s.WithButton(b.b, ebiten.IsStandardGamepadButtonPressed(id, b.pad))
	}
	return s
}

func keyboardSnapshot() controller.Snapshot {
	s := controller.Snapshot{Connected: true}
	axis := func(neg, pos ebiten.Key) int32 {
		var v int32
		if ebiten.IsKeyPressed(neg) {
			v -= controller.AxisMax
		}
		if ebiten.IsKeyPressed(pos) {
			v += controller.AxisMax
		}
		return v
	}
	s = s.WithAxis(controller.LeftX, axis(ebiten.KeyA, ebiten.KeyD))
	s = s.WithAxis(controller.LeftY, axis(ebiten.KeyS, ebiten.KeyW))
	s = s.WithAxis(controller.RightX, axis(ebiten.KeyArrowLeft, ebiten.KeyArrowRight))
	s = s.WithAxis(controller.RightY, axis(ebiten.KeyArrowDown, ebiten.KeyArrowUp))
	for _, k := range keyButtons {
		s = s.WithButton(k.b, ebiten.IsKeyPressed(k.key))
	}
	return s
}

func (w *window) updateTitle() {
	st := w.sim.Scheduler().Status()
	title := fmt.Sprintf("brainsim - %s %s", st.Phase, display.Clock(st.Elapsed))
	w.mu.Lock()
	if w.done {
		title = "brainsim - stopped"
		if w.exitErr != nil {
			title = fmt.Sprintf("brainsim - stopped: %v", w.exitErr)
		}
	}
	w.mu.Unlock()
	if title != w.title {
		w.title = title
		ebiten.SetWindowTitle(title)
	}
}

func (w *window) Draw(screen *ebiten.Image) {
	w.mu.Lock()
	f := w.frame
	w.mu.Unlock()
	if !f.Valid() {
		return
	}
	if w.img == nil {
		w.img = ebiten.NewImage(display.Width, display.Height)
	}
	if f.Seq != w.shown {
		w.img.WritePixels(f.Image(w.header).Pix)
		w.shown = f.Seq
	}
	screen.DrawImage(w.img, nil)
}

func (w *window) Layout(_, _ int) (int, int) {
	return display.Width, display.Height
}
