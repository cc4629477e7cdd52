package runtime

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/brainsim/config"
	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/loader"
	"github.com/wippyai/brainsim/scheduler"
	"github.com/wippyai/brainsim/sdk/competition"
	"github.com/wippyai/brainsim/sdk/controller"
	"github.com/wippyai/brainsim/sdk/display"
	"github.com/wippyai/brainsim/sdk/serial"
	"github.com/wippyai/brainsim/sdk/system"
	"github.com/wippyai/brainsim/testbed"
	"github.com/wippyai/brainsim/wasm"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Memory.Pages = 1
	cfg.Memory.JumpTableBase = testbed.JumpTableBase
	return cfg
}

func newRuntime(t *testing.T, cfg config.Config) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })
	return rt
}

func start(t *testing.T, rt *Runtime, bin []byte, opts ...StartOption) *Simulator {
	t.Helper()
	ctx := context.Background()
	guest, err := rt.Parse("test.wasm", bin)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts = append([]StartOption{WithClock(system.NewManualClock(time.Unix(0, 0)))}, opts...)
	sim, err := rt.Start(ctx, guest, opts...)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { sim.Close(ctx) })
	return sim
}

func TestSimulator_Hello(t *testing.T) {
	rt := newRuntime(t, testConfig())

	var out []serial.Output
	var done []error
	sim := start(t, rt, testbed.Hello(), WithObserver(scheduler.Funcs{
		Serial:    func(o []serial.Output) { out = append(out, o...) },
		Terminate: func(err error) { done = append(done, err) },
	}))

	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 1 || string(out[0].Data) != "hello" {
		t.Errorf("serial = %+v", out)
	}
	if len(done) != 1 || done[0] != nil {
		t.Errorf("terminate = %v", done)
	}
	if sim.Scheduler().State() != scheduler.Terminated {
		t.Errorf("state = %v", sim.Scheduler().State())
	}
	if sim.Guest().Path != "test.wasm" {
		t.Errorf("guest path = %q", sim.Guest().Path)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Memory.Pages = 0
	_, err := New(context.Background(), cfg)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidData}) {
		t.Errorf("err = %v, want a config error", err)
	}
}

func TestStart_SignatureOptions(t *testing.T) {
	rt := newRuntime(t, testConfig())

	tests := []struct {
		name    string
		options uint32
		fg, bg  display.Color
	}{
		{"default", 0, display.White, display.Black},
		{"inverted", uint32(loader.OptionInvertGraphics), display.Black, display.White},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testbed.NewGuest().WithSignature(testbed.Signature(0, 0, tt.options))
			g.Entry("_entry", wasm.NewExpr().End())
			sim := start(t, rt, g.Build())

			d := sim.Devices().Display
			if d.Foreground() != tt.fg || d.Background() != tt.bg {
				t.Errorf("colors = %06x/%06x, want %06x/%06x", d.Foreground(), d.Background(), tt.fg, tt.bg)
			}
		})
	}
}

func TestStart_InitialPhase(t *testing.T) {
	cfg := testConfig()
	cfg.Competition.Phase = "autonomous"

	t.Run("disconnected", func(t *testing.T) {
		rt := newRuntime(t, cfg)
		guest, err := rt.Parse("test.wasm", testbed.Hello())
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		_, err = rt.Start(context.Background(), guest)
		if !stderrors.Is(err, competition.ErrNotConnected) {
			t.Errorf("err = %v, want ErrNotConnected", err)
		}
	})

	t.Run("connected", func(t *testing.T) {
		cfg := cfg
		cfg.Competition.Connected = true
		rt := newRuntime(t, cfg)

		var phases []competition.Phase
		sim := start(t, rt, testbed.Hello(), WithObserver(scheduler.Funcs{
			Phase: func(p competition.Phase) { phases = append(phases, p) },
		}))
		if err := sim.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		st := sim.Scheduler().Status()
		if st.Phase != competition.Autonomous || !st.Connected {
			t.Errorf("status = %+v", st)
		}
		if len(phases) == 0 || phases[len(phases)-1] != competition.Autonomous {
			t.Errorf("phases = %v", phases)
		}
	})
}

func TestStart_Script(t *testing.T) {
	rt := newRuntime(t, testConfig())

	path := filepath.Join(t.TempDir(), "match.lua")
	src := "function tick(t)\n  axis(0, \"left_y\", 100)\n  button(1, \"a\")\nend\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	sim := start(t, rt, testbed.Hello(), WithScript(path))
	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ctrl := sim.Devices().Controller
	if got := ctrl.Snapshot(controller.Master).Axes[controller.LeftY]; got != 100 {
		t.Errorf("master left_y = %d, want 100", got)
	}
	if !ctrl.Snapshot(controller.Partner).Pressed(controller.ButtonA) {
		t.Error("partner A should be pressed")
	}
	if !sim.Controllers().Snapshot(controller.Master).Connected {
		t.Error("scripted controller should be connected")
	}
}

func TestStart_MissingScript(t *testing.T) {
	rt := newRuntime(t, testConfig())
	guest, err := rt.Parse("test.wasm", testbed.Hello())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = rt.Start(context.Background(), guest, WithScript(filepath.Join(t.TempDir(), "nope.lua")))
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidData}) {
		t.Errorf("err = %v, want a config error", err)
	}

	// The failed start must release the instance.
	sim, err := rt.Start(context.Background(), guest)
	if err != nil {
		t.Fatalf("Start after failure: %v", err)
	}
	sim.Close(context.Background())
}

func TestStart_SharedControllers(t *testing.T) {
	rt := newRuntime(t, testConfig())
	pub := controller.NewPublisher()
	if err := pub.Publish(controller.Master, controller.Snapshot{Connected: true}.WithAxis(controller.RightX, -50)); err != nil {
		t.Fatal(err)
	}

	sim := start(t, rt, testbed.Hello(), WithControllers(pub))
	if sim.Controllers() != pub {
		t.Fatal("publisher not shared")
	}
	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sim.Devices().Controller.Get(controller.Master, controller.AnaRightX); got != -50 {
		t.Errorf("axis1 = %d, want -50", got)
	}
}

func TestRuntime_Run(t *testing.T) {
	rt := newRuntime(t, testConfig())

	path := filepath.Join(t.TempDir(), "hello.wasm")
	if err := os.WriteFile(path, testbed.Hello(), 0o644); err != nil {
		t.Fatal(err)
	}
	var got string
	err := rt.Run(context.Background(), path,
		WithClock(system.NewManualClock(time.Unix(0, 0))),
		WithObserver(scheduler.Funcs{Serial: func(o []serial.Output) {
			for _, out := range o {
				got += string(out.Data)
			}
		}}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "hello" {
		t.Errorf("serial = %q", got)
	}

	if err := rt.Run(context.Background(), filepath.Join(t.TempDir(), "missing.wasm")); err == nil {
		t.Error("expected error for a missing binary")
	}
}

func TestRuntime_LoadLogsOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := zap.New(core)

	prev := loader.Logger()
	loader.SetLogger(l)
	defer loader.SetLogger(prev)

	ctx := context.Background()
	rt, err := New(ctx, testConfig(), WithLogger(l))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Close(ctx)

	if _, err := rt.Parse("test.wasm", testbed.Hello()); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n := logs.FilterMessage("guest loaded").Len(); n != 1 {
		t.Errorf("guest loaded logged %d times, want 1", n)
	}
}
