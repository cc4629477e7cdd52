package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/brainsim/engine"
	"github.com/wippyai/brainsim/jumptable"
	"github.com/wippyai/brainsim/loader"
	"github.com/wippyai/brainsim/scheduler"
	"github.com/wippyai/brainsim/script"
	"github.com/wippyai/brainsim/sdk"
	"github.com/wippyai/brainsim/sdk/competition"
	"github.com/wippyai/brainsim/sdk/controller"
	"github.com/wippyai/brainsim/sdk/system"
)

// StartOption configures a Simulator.
type StartOption func(*startConfig)

type startConfig struct {
	clock       system.Clock
	controllers *controller.Publisher
	observers   []scheduler.Observer
	hooks       []scheduler.TickHook
	script      string
}

// WithClock sets the clock program time runs on. The default is the host
// clock.
func WithClock(c system.Clock) StartOption {
	return func(sc *startConfig) { sc.clock = c }
}

// WithControllers shares a controller publisher with input sources created
// before the simulator.
func WithControllers(p *controller.Publisher) StartOption {
	return func(sc *startConfig) { sc.controllers = p }
}

// WithObserver adds a scheduler observer.
func WithObserver(o scheduler.Observer) StartOption {
	return func(sc *startConfig) { sc.observers = append(sc.observers, o) }
}

// WithTickHook adds a scheduler tick hook.
func WithTickHook(h scheduler.TickHook) StartOption {
	return func(sc *startConfig) { sc.hooks = append(sc.hooks, h) }
}

// WithScript attaches the Lua match script at path.
func WithScript(path string) StartOption {
	return func(sc *startConfig) { sc.script = path }
}

// Simulator is one instantiated guest with its devices and scheduler.
type Simulator struct {
	guest       *loader.GuestModule
	inst        *engine.Instance
	devs        *sdk.Devices
	sched       *scheduler.Scheduler
	controllers *controller.Publisher
	script      *script.Script
}

// Start binds the SDK surface for guest, instantiates it and prepares a
// scheduler. The guest does not run until Run.
func (r *Runtime) Start(ctx context.Context, guest *loader.GuestModule, opts ...StartOption) (*Simulator, error) {
	var sc startConfig
	for _, opt := range opts {
		opt(&sc)
	}
	if sc.controllers == nil {
		sc.controllers = controller.NewPublisher()
	}

	sigOpts := guest.Signature.Options
	devs := sdk.New(sdk.Options{
		Clock:          sc.clock,
		SerialChannels: r.cfg.Serial.Channels,
		StartupOptions: uint32(sigOpts),
		InvertDisplay:  sigOpts.Has(loader.OptionInvertGraphics),
	})
	table, err := sdk.Table(devs)
	if err != nil {
		return nil, err
	}

	periods, err := r.cfg.Competition.Periods()
	if err != nil {
		return nil, err
	}

	inst, err := r.engine.Instantiate(ctx, guest, table,
		engine.WithDispatcherOptions(jumptable.WithLogger(r.logger)))
	if err != nil {
		return nil, err
	}

	schedOpts := []scheduler.Option{
		scheduler.WithTickInterval(r.cfg.Scheduler.TickInterval.Duration()),
		scheduler.WithFrameInterval(r.cfg.Scheduler.FrameInterval.Duration()),
		scheduler.WithControllers(sc.controllers),
		scheduler.WithLogger(r.logger),
	}
	if periods != nil {
		schedOpts = append(schedOpts, scheduler.WithMatch(competition.NewMatch(periods)))
	}
	for _, o := range sc.observers {
		schedOpts = append(schedOpts, scheduler.WithObserver(o))
	}
	for _, h := range sc.hooks {
		schedOpts = append(schedOpts, scheduler.WithTickHook(h))
	}
	sched := scheduler.New(inst, devs, schedOpts...)
	inst.Dispatcher().SetYield(sched.Hook)

	sim := &Simulator{
		guest:       guest,
		inst:        inst,
		devs:        devs,
		sched:       sched,
		controllers: sc.controllers,
	}

	if r.cfg.Competition.Connected {
		sched.SetConnected(true)
	}
	if p, ok := r.cfg.Competition.InitialPhase(); ok {
		if err := sched.RequestPhase(p); err != nil {
			sim.Close(ctx)
			return nil, err
		}
	}

	if sc.script != "" {
		s, err := script.Load(sc.script, sched, sc.controllers, script.WithLogger(r.logger))
		if err != nil {
			sim.Close(ctx)
			return nil, err
		}
		sim.script = s
		sched.AddTickHook(s.Tick)
	}

	r.logger.Debug("simulator started",
		zap.String("path", guest.Path),
		zap.Uint32("jump_table_base", inst.JumpTableBase()),
		zap.Int("slots", len(table.Slots())))
	return sim, nil
}

// Run runs the guest until it exits, faults or is terminated. A clean exit
// returns nil.
func (s *Simulator) Run(ctx context.Context) error {
	return s.sched.Run(ctx)
}

// Terminate stops a running guest at its next yield.
func (s *Simulator) Terminate() { s.sched.Terminate() }

// Close releases the guest instance and the script.
func (s *Simulator) Close(ctx context.Context) error {
	if s.script != nil {
		s.script.Close()
	}
	return s.inst.Close(ctx)
}

func (s *Simulator) Guest() *loader.GuestModule         { return s.guest }
func (s *Simulator) Scheduler() *scheduler.Scheduler    { return s.sched }
func (s *Simulator) Devices() *sdk.Devices              { return s.devs }
func (s *Simulator) Controllers() *controller.Publisher { return s.controllers }
