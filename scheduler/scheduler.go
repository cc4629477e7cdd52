// Package scheduler drives a guest program through the competition
// lifecycle.
//
// The guest runs on the goroutine that calls Run. Ticks happen at yield
// points inside the guest (slots marked Yield) and, in callback mode,
// between phase callbacks. A tick applies queued commands, runs tick
// hooks, advances the match, refreshes controllers and publishes serial
// output and display frames to observers.
//
// Everything else talks to a running scheduler through the queued API
// (RequestPhase, SetConnected, FeedSerial, Terminate) and the controller
// publisher. Queued requests take effect at the next tick.
package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/jumptable"
	"github.com/wippyai/brainsim/loader"
	"github.com/wippyai/brainsim/sdk"
	"github.com/wippyai/brainsim/sdk/competition"
	"github.com/wippyai/brainsim/sdk/controller"
	"github.com/wippyai/brainsim/sdk/system"
)

const (
	DefaultTickInterval  = 10 * time.Millisecond
	DefaultFrameInterval = 16 * time.Millisecond
)

// errPreempted unwinds a phase callback once the phase has changed.
var errPreempted = stderrors.New("phase callback preempted")

// Guest is an instantiated guest program.
type Guest interface {
	Call(ctx context.Context, name string) error
	Has(name string) bool
}

// TickHook runs on every tick, after queued commands are applied.
type TickHook func(ctx context.Context, now time.Duration) error

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets the minimum time between ticks.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithFrameInterval sets the display flush cadence.
func WithFrameInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.frameInterval = d
		}
	}
}

// WithMatch runs a timed match. The match connects field control when it
// starts.
func WithMatch(m *competition.Match) Option {
	return func(s *Scheduler) { s.match = m }
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, o) }
}

// WithTickHook adds a tick hook.
func WithTickHook(h TickHook) Option {
	return func(s *Scheduler) { s.hooks = append(s.hooks, h) }
}

// WithControllers sets the source controllers are refreshed from.
func WithControllers(src controller.Source) Option {
	return func(s *Scheduler) { s.source = src }
}

// WithLogger overrides the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

type command func(now time.Duration)

// Scheduler runs one guest. Run may be called once.
type Scheduler struct {
	guest         Guest
	devs          *sdk.Devices
	clock         system.Clock
	match         *competition.Match
	source        controller.Source
	logger        *zap.Logger
	observers     []Observer
	hooks         []TickHook
	tickInterval  time.Duration
	frameInterval time.Duration

	started atomic.Bool
	stop    atomic.Bool

	mu        sync.Mutex
	queue     []command
	connected bool // connection state once the queue is applied
	cancel    context.CancelFunc
	status    Status

	// Owned by the goroutine in Run.
	nextTick    time.Duration
	nextFrame   time.Duration
	ticks       uint64
	frames      uint64
	phase       competition.Phase
	phaseSeq    uint64
	changes     []competition.Phase
	inCallback  bool
	callbackSeq uint64
}

// New creates a scheduler for guest over devs.
func New(guest Guest, devs *sdk.Devices, opts ...Option) *Scheduler {
	s := &Scheduler{
		guest:         guest,
		devs:          devs,
		clock:         devs.Clock(),
		logger:        Logger(),
		tickInterval:  DefaultTickInterval,
		frameInterval: DefaultFrameInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	lc := devs.Competition
	s.phase = lc.Phase()
	s.connected = lc.Connected()
	s.status = Status{
		State:       Uninitialized,
		Phase:       lc.Phase(),
		Connected:   lc.Connected(),
		Competition: lc.Status(),
	}
	return s
}

// AddObserver adds an observer. It must be called before Run.
func (s *Scheduler) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// AddTickHook adds a tick hook. It must be called before Run.
func (s *Scheduler) AddTickHook(h TickHook) {
	s.hooks = append(s.hooks, h)
}

// Devices returns the device set the guest runs against.
func (s *Scheduler) Devices() *sdk.Devices { return s.devs }

// RequestPhase queues a phase change. It fails with
// competition.ErrNotConnected unless field control is, or is queued to be,
// connected.
func (s *Scheduler) RequestPhase(p competition.Phase) error {
	if !p.Valid() {
		return errors.InvalidInput(errors.PhaseSchedule, fmt.Sprintf("invalid phase %d", int(p)))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return competition.ErrNotConnected
	}
	s.queue = append(s.queue, func(now time.Duration) {
		if _, err := s.devs.Competition.Transition(p, now); err != nil {
			s.logger.Warn("phase request rejected", zap.Stringer("phase", p), zap.Error(err))
		}
	})
	return nil
}

// SetConnected queues a field control connection change.
func (s *Scheduler) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
	s.queue = append(s.queue, func(now time.Duration) {
		s.devs.Competition.SetConnected(connected, now)
	})
}

// FeedSerial queues bytes for the guest to read from channel ch.
func (s *Scheduler) FeedSerial(ch uint32, data []byte) {
	buf := append([]byte(nil), data...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, func(time.Duration) {
		if n := s.devs.Serial.Feed(ch, buf); n < len(buf) {
			s.logger.Warn("serial input dropped",
				zap.Uint32("channel", ch),
				zap.Int("accepted", n),
				zap.Int("bytes", len(buf)))
		}
	})
}

// Terminate stops the guest at its next yield point. It also cancels the
// context the guest runs under, so a guest that never yields is stopped
// by the engine.
func (s *Scheduler) Terminate() {
	s.stop.Store(true)
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status returns the state published at the last tick.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) State() State             { return s.Status().State }
func (s *Scheduler) Phase() competition.Phase { return s.Status().Phase }

// Hook is the dispatcher yield hook.
func (s *Scheduler) Hook(ctx context.Context, _ *jumptable.Slot) error {
	return s.Yield(ctx)
}

// Yield ticks if a tick is due. It fails when the scheduler is stopping,
// and with an internal preemption error when the running phase callback
// must be abandoned.
func (s *Scheduler) Yield(ctx context.Context) error {
	if err := s.checkStop(ctx); err != nil {
		return err
	}
	if s.clock.Now() >= s.nextTick {
		if err := s.tick(ctx); err != nil {
			return err
		}
	}
	if s.inCallback && s.callbackSeq != s.phaseSeq {
		return errPreempted
	}
	return nil
}

// Run runs the guest until it exits, faults or is terminated. A clean exit
// returns nil; external termination returns a terminated error.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.InvalidInput(errors.PhaseSchedule, "scheduler already ran")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	return s.finish(s.run(ctx))
}

func (s *Scheduler) run(ctx context.Context) error {
	if err := s.checkStop(ctx); err != nil {
		return err
	}
	if err := s.tick(ctx); err != nil {
		return err
	}
	if s.guest.Has(loader.EntryInitialize) {
		s.logger.Debug("calling guest export", zap.String("export", loader.EntryInitialize))
		if err := s.guest.Call(ctx, loader.EntryInitialize); err != nil {
			return err
		}
	}
	if s.guest.Has(loader.EntryMain) {
		s.logger.Debug("calling guest export", zap.String("export", loader.EntryMain))
		return s.guest.Call(ctx, loader.EntryMain)
	}
	return s.callbacks(ctx)
}

// callbacks enters the phase callback on every phase change and ticks in
// between.
func (s *Scheduler) callbacks(ctx context.Context) error {
	entered, first := s.phaseSeq, true
	for {
		if err := s.checkStop(ctx); err != nil {
			return err
		}
		if first || entered != s.phaseSeq {
			first = false
			entered = s.phaseSeq
			if err := s.callback(ctx); err != nil && !stderrors.Is(err, errPreempted) {
				return err
			}
			continue
		}
		if err := s.clock.Sleep(ctx, s.nextTick-s.clock.Now()); err != nil {
			return errors.Terminated(err)
		}
		if err := s.tick(ctx); err != nil {
			return err
		}
	}
}

func (s *Scheduler) callback(ctx context.Context) error {
	name := entryName(s.phase)
	if !s.guest.Has(name) {
		return nil
	}
	s.inCallback = true
	s.callbackSeq = s.phaseSeq
	defer func() { s.inCallback = false }()

	s.logger.Debug("calling guest export", zap.String("export", name))
	err := s.guest.Call(ctx, name)
	if stderrors.Is(err, errPreempted) {
		s.logger.Debug("phase callback preempted", zap.String("export", name), zap.Stringer("phase", s.phase))
	}
	return err
}

func entryName(p competition.Phase) string {
	switch p {
	case competition.Disabled:
		return loader.EntryDisabled
	case competition.Autonomous:
		return loader.EntryAutonomous
	default:
		return loader.EntryOpControl
	}
}

func (s *Scheduler) checkStop(ctx context.Context) error {
	if s.stop.Load() {
		return errors.Terminated(nil)
	}
	if err := ctx.Err(); err != nil {
		return errors.Terminated(err)
	}
	return nil
}

func (s *Scheduler) drain() []command {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

func (s *Scheduler) tick(ctx context.Context) error {
	now := s.clock.Now()
	s.ticks++
	s.nextTick = now + s.tickInterval

	for _, cmd := range s.drain() {
		cmd(now)
		s.observePhase()
	}
	for _, h := range s.hooks {
		if err := h(ctx, now); err != nil {
			return err
		}
	}
	if s.match != nil && !s.match.Done() {
		if _, err := s.match.Advance(s.devs.Competition, now); err != nil {
			s.logger.Warn("match advance failed", zap.Error(err))
		}
		s.observePhase()
	}
	s.devs.Controller.Refresh(s.source)
	s.flushSerial()
	if now >= s.nextFrame {
		s.nextFrame = now + s.frameInterval
		s.flushFrame(now)
	}
	s.publish(now)
	return nil
}

func (s *Scheduler) observePhase() {
	p := s.devs.Competition.Phase()
	if p == s.phase {
		return
	}
	s.logger.Info("phase changed", zap.Stringer("from", s.phase), zap.Stringer("phase", p))
	s.phase = p
	s.phaseSeq++
	s.changes = append(s.changes, p)
}

func (s *Scheduler) flushSerial() {
	out := s.devs.Serial.Flush()
	if len(out) == 0 {
		return
	}
	for _, o := range s.observers {
		o.OnSerial(out)
	}
}

func (s *Scheduler) flushFrame(now time.Duration) {
	f, ok := s.devs.Display.Flush(now)
	if !ok {
		return
	}
	s.frames++
	for _, o := range s.observers {
		o.OnFrame(f)
	}
}

func (s *Scheduler) publish(now time.Duration) {
	lc := s.devs.Competition
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.connected = lc.Connected()
	}
	s.status = Status{
		State:       stateOf(s.phase),
		Phase:       s.phase,
		Connected:   lc.Connected(),
		Competition: lc.Status(),
		Elapsed:     now,
		Ticks:       s.ticks,
		Frames:      s.frames,
	}
	s.mu.Unlock()

	changes := s.changes
	s.changes = nil
	for _, p := range changes {
		for _, o := range s.observers {
			o.OnPhase(p)
		}
	}
}

// finish flushes pending output, moves to Terminated and reports the
// outcome. A clean guest exit becomes nil.
func (s *Scheduler) finish(err error) error {
	now := s.clock.Now()
	s.flushSerial()
	s.flushFrame(now)

	if stderrors.Is(err, errors.ErrExit) && errors.ExitCode(err) == 0 {
		err = nil
	}
	switch {
	case err == nil:
		s.logger.Info("guest exited", zap.Duration("elapsed", now))
	case errors.IsFatal(err):
		s.logger.Error("guest faulted", zap.Duration("elapsed", now), zap.Error(err))
	default:
		s.logger.Info("guest terminated", zap.Duration("elapsed", now), zap.Error(err))
	}

	s.mu.Lock()
	s.cancel = nil
	s.status.State = Terminated
	s.status.Elapsed = now
	s.status.Ticks = s.ticks
	s.status.Frames = s.frames
	s.mu.Unlock()

	for _, o := range s.observers {
		o.OnTerminate(err)
	}
	return err
}
