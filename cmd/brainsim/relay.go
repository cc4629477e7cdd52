package main

import (
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/wippyai/brainsim/scheduler"
	"github.com/wippyai/brainsim/sdk/display"
	"github.com/wippyai/brainsim/sdk/serial"
)

// relay moves observer events off the guest goroutine. The scheduler calls
// OnTerminate exactly once and last, which closes the relay.
type relay[T any] struct {
	ch      chan T
	dropped atomic.Uint64
}

func newRelay[T any](size int) *relay[T] {
	return &relay[T]{ch: make(chan T, size)}
}

// send blocks until the consumer has room.
func (r *relay[T]) send(v T) { r.ch <- v }

// offer drops v if the consumer is behind.
func (r *relay[T]) offer(v T) {
	select {
	case r.ch <- v:
	default:
		r.dropped.Add(1)
	}
}

func (r *relay[T]) close() { close(r.ch) }

// drain calls fn for every event until the relay is closed. After fn fails
// the remaining events are discarded so the sender never blocks.
func (r *relay[T]) drain(fn func(T) error) error {
	var first error
	for v := range r.ch {
		if first != nil {
			continue
		}
		first = fn(v)
	}
	return first
}

// echo copies stdio serial output to w.
type echo struct {
	w     io.Writer
	relay *relay[[]byte]
}

func newEcho(w io.Writer) *echo {
	return &echo{w: w, relay: newRelay[[]byte](256)}
}

func (e *echo) observer() scheduler.Observer {
	return scheduler.Funcs{
		Serial: func(out []serial.Output) {
			for _, o := range out {
				if o.Channel == serial.Stdio {
					e.relay.send(o.Data)
				}
			}
		},
		Terminate: func(error) { e.relay.close() },
	}
}

func (e *echo) run() error {
	return e.relay.drain(func(b []byte) error {
		_, err := e.w.Write(b)
		return err
	})
}

// frameExporter writes every n-th frame as frame-NNNNNN.png.
type frameExporter struct {
	dir    string
	every  uint64
	header bool
	relay  *relay[display.Frame]
}

func newFrameExporter(dir string, every int, header bool) (*frameExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("frames dir: %w", err)
	}
	return &frameExporter{
		dir:    dir,
		every:  uint64(every),
		header: header,
		relay:  newRelay[display.Frame](16),
	}, nil
}

func (x *frameExporter) observer() scheduler.Observer {
	return scheduler.Funcs{
		Frame: func(f display.Frame) {
			if f.Seq%x.every == 0 {
				x.relay.send(f)
			}
		},
		Terminate: func(error) { x.relay.close() },
	}
}

func (x *frameExporter) run() error {
	return x.relay.drain(x.write)
}

func (x *frameExporter) write(f display.Frame) error {
	path := filepath.Join(x.dir, fmt.Sprintf("frame-%06d.png", f.Seq))
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, f.Image(x.header)); err != nil {
		out.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return out.Close()
}
