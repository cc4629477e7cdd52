// Package session exposes a running simulator over a JSON-lines protocol.
//
// Each input line is a Command and each output line an event. The first
// command must be a handshake naming protocol version 1:
//
//	{"type":"handshake","version":1,"extensions":["controller"]}
//	{"type":"connect","connected":true}
//	{"type":"phase_set","phase":"autonomous"}
//
// Events are queued by the scheduler goroutine without blocking and
// written by a separate goroutine. Frame events are coalesced so a slow
// reader only sees the latest frame sequence.
package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/scheduler"
	"github.com/wippyai/brainsim/sdk/competition"
	"github.com/wippyai/brainsim/sdk/controller"
	"github.com/wippyai/brainsim/sdk/display"
	"github.com/wippyai/brainsim/sdk/serial"
)

// MaxLine bounds one input line.
const MaxLine = 1 << 20

var errClosed = stderrors.New("session closed")

// Core is the part of the scheduler a session drives.
type Core interface {
	RequestPhase(p competition.Phase) error
	SetConnected(connected bool)
	FeedSerial(ch uint32, data []byte)
	Terminate()
	Status() scheduler.Status
}

var _ Core = (*scheduler.Scheduler)(nil)

// Option configures a Session.
type Option func(*Session)

// WithControllers routes controller commands to pub. Without it controller
// commands are rejected.
func WithControllers(pub *controller.Publisher) Option {
	return func(s *Session) { s.pub = pub }
}

// WithDigest sets the guest digest reported in status events.
func WithDigest(hex string) Option {
	return func(s *Session) { s.digest = hex }
}

// WithLogger overrides the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session is one protocol connection. It implements scheduler.Observer.
type Session struct {
	in     io.Reader
	out    io.Writer
	pub    *controller.Publisher
	digest string
	logger *zap.Logger

	mu       sync.Mutex
	queue    []any
	frame    uint64
	hasFrame bool
	closed   bool
	wake     chan struct{}

	// Owned by the dispatch goroutine.
	handshaken bool
	failed     error
}

var _ scheduler.Observer = (*Session)(nil)

// New creates a session reading commands from in and writing events to out.
func New(in io.Reader, out io.Writer, opts ...Option) *Session {
	s := &Session{
		in:     in,
		out:    out,
		logger: Logger(),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves the session until the guest terminates, the peer breaks the
// protocol or ctx is done. End of input does not end the session; events
// keep flowing until termination.
func (s *Session) Run(ctx context.Context, core Core) error {
	g, ctx := errgroup.WithContext(ctx)
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go s.read(ctx.Done(), lines, readErr)

	g.Go(func() error { return s.write(ctx) })
	g.Go(func() error { return s.dispatch(ctx, core, lines, readErr) })

	err := g.Wait()
	if s.failed != nil {
		return s.failed
	}
	if err != nil && !stderrors.Is(err, errClosed) {
		return err
	}
	return nil
}

// read splits input into lines. It may stay blocked in Read after the
// session ends; it exits at the next line or at end of input.
func (s *Session) read(done <-chan struct{}, lines chan<- []byte, errc chan<- error) {
	defer close(lines)
	sc := bufio.NewScanner(s.in)
	sc.Buffer(make([]byte, 64*1024), MaxLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		select {
		case lines <- append([]byte(nil), line...):
		case <-done:
			return
		}
	}
	errc <- sc.Err()
}

func (s *Session) dispatch(ctx context.Context, core Core, lines <-chan []byte, readErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						s.logger.Warn("session input failed", zap.Error(err))
					}
				default:
				}
				s.logger.Debug("session input closed")
				lines = nil
				continue
			}
			if err := s.handle(core, line); err != nil {
				s.failed = err
				return err
			}
		}
	}
}

func (s *Session) write(ctx context.Context) error {
	enc := json.NewEncoder(s.out)
	flush := func() (bool, error) {
		events, closed := s.take()
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return closed, errors.Wrap(errors.PhaseSession, errors.KindProtocol, err, "write event")
			}
		}
		return closed, nil
	}
	for {
		closed, err := flush()
		if err != nil {
			return err
		}
		if closed {
			return errClosed
		}
		select {
		case <-ctx.Done():
			_, err := flush()
			return err
		case <-s.wake:
		}
	}
}

// take returns queued events, with the pending frame last, and whether the
// session was closed after them.
func (s *Session) take() ([]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.queue
	s.queue = nil
	if s.hasFrame {
		events = append(events, FrameEvent{Type: EvFrame, Seq: s.frame})
		s.hasFrame = false
	}
	return events, s.closed
}

func (s *Session) emit(ev any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.signal()
}

// close queues a final event and stops accepting more.
func (s *Session) close(last any) {
	s.mu.Lock()
	if !s.closed {
		if s.hasFrame {
			s.queue = append(s.queue, FrameEvent{Type: EvFrame, Seq: s.frame})
			s.hasFrame = false
		}
		if last != nil {
			s.queue = append(s.queue, last)
		}
		s.closed = true
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) OnPhase(p competition.Phase) {
	s.emit(PhaseEvent{Type: EvPhase, Phase: p.String()})
}

func (s *Session) OnSerial(out []serial.Output) {
	for _, o := range out {
		s.emit(SerialEvent{Type: EvSerial, Channel: o.Channel, Data: string(o.Data)})
	}
}

// OnFrame records the frame; only the newest pending one is written.
func (s *Session) OnFrame(f display.Frame) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.frame = f.Seq
	s.hasFrame = true
	s.mu.Unlock()
	s.signal()
}

func (s *Session) OnTerminate(err error) {
	ev := TerminatedEvent{Type: EvTerminated, ExitCode: errors.ExitCode(err)}
	if err != nil {
		ev.Error = err.Error()
	}
	s.close(ev)
}
