// Package system implements the brain's clock, version and lifecycle
// slots, plus the Clock abstraction the scheduler runs on.
package system

import (
	"context"
	"sync"
	"time"
)

// Clock supplies program time. Now is the time since the program started.
type Clock interface {
	Now() time.Duration
	Wall() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock follows the host monotonic clock.
type RealClock struct {
	start time.Time
}

// NewRealClock starts a clock at zero.
func NewRealClock() *RealClock {
	return &RealClock{start: time.Now()}
}

func (c *RealClock) Now() time.Duration { return time.Since(c.start) }
func (c *RealClock) Wall() time.Time    { return time.Now() }

// Sleep waits for d or until ctx is done.
func (c *RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ManualClock only moves when told to. Sleep advances it immediately, so
// scheduler loops run deterministically and without waiting.
type ManualClock struct {
	mu   sync.Mutex
	now  time.Duration
	wall time.Time
}

// NewManualClock creates a clock at zero whose wall time starts at wall.
func NewManualClock(wall time.Time) *ManualClock {
	return &ManualClock{wall: wall}
}

func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Wall() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall.Add(c.now)
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Sleep advances the clock by d unless ctx is already done.
func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		c.Advance(d)
	}
	return nil
}
