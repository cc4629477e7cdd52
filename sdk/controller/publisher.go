package controller

import (
	"sync/atomic"

	"github.com/wippyai/brainsim/errors"
)

// Source supplies the latest published controller state.
type Source interface {
	Snapshot(id ID) Snapshot
}

// Publisher is the thread-safe boundary between input sources and the
// simulation goroutine. Each Publish replaces a whole snapshot, so readers
// never observe a half-applied update.
type Publisher struct {
	slots [Count]atomic.Pointer[Snapshot]
}

var _ Source = (*Publisher)(nil)

// NewPublisher creates a publisher with both controllers disconnected.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish replaces the state of controller id.
func (p *Publisher) Publish(id ID, s Snapshot) error {
	if !id.Valid() {
		return errors.InvalidInput(errors.PhaseSession, "controller id out of range")
	}
	p.slots[id].Store(&s)
	return nil
}

// Update applies fn to the current state of controller id and publishes
// the result, retrying if another source published concurrently.
func (p *Publisher) Update(id ID, fn func(Snapshot) Snapshot) error {
	if !id.Valid() {
		return errors.InvalidInput(errors.PhaseSession, "controller id out of range")
	}
	for {
		old := p.slots[id].Load()
		var cur Snapshot
		if old != nil {
			cur = *old
		}
		next := fn(cur)
		if p.slots[id].CompareAndSwap(old, &next) {
			return nil
		}
	}
}

// Snapshot returns the latest state of controller id.
func (p *Publisher) Snapshot(id ID) Snapshot {
	if !id.Valid() {
		return Snapshot{}
	}
	if s := p.slots[id].Load(); s != nil {
		return *s
	}
	return Snapshot{}
}
