package competition

import "time"

// Period is one timed segment of a match.
type Period struct {
	Phase    Phase
	Duration time.Duration
}

// StandardMatch is a head-to-head match: 15 s autonomous, then 1:45 of
// driver control.
func StandardMatch() []Period {
	return []Period{
		{Phase: Autonomous, Duration: 15 * time.Second},
		{Phase: OpControl, Duration: 105 * time.Second},
	}
}

// Match drives a Lifecycle through a list of periods and disables the
// field once the last one ends.
type Match struct {
	periods []Period
	index   int
	start   time.Duration
	started bool
}

// NewMatch creates a match over periods. Periods without a positive
// duration are skipped.
func NewMatch(periods []Period) *Match {
	m := &Match{}
	for _, p := range periods {
		if p.Duration > 0 && p.Phase.Valid() {
			m.periods = append(m.periods, p)
		}
	}
	return m
}

// Done reports whether every period has elapsed.
func (m *Match) Done() bool { return m.index >= len(m.periods) }

// Current returns the active period.
func (m *Match) Current() (Period, bool) {
	if !m.started || m.Done() {
		return Period{}, false
	}
	return m.periods[m.index], true
}

// Remaining returns the time left in the active period.
func (m *Match) Remaining(now time.Duration) time.Duration {
	p, ok := m.Current()
	if !ok {
		return 0
	}
	return max(0, p.Duration-(now-m.start))
}

// Advance starts the match on first use and moves to the next period when
// the current one has run out. It connects field control if needed and
// reports whether the lifecycle phase changed.
func (m *Match) Advance(l *Lifecycle, now time.Duration) (bool, error) {
	if m.Done() {
		return false, nil
	}
	changed := false
	if !m.started {
		m.started = true
		m.start = now
		if l.SetConnected(true, now) {
			changed = true
		}
		c, err := l.Transition(m.periods[0].Phase, now)
		if err != nil {
			return changed, err
		}
		return changed || c, nil
	}
	for !m.Done() && now-m.start >= m.periods[m.index].Duration {
		m.start += m.periods[m.index].Duration
		m.index++
	}
	next := Disabled
	if !m.Done() {
		next = m.periods[m.index].Phase
	}
	c, err := l.Transition(next, now)
	return changed || c, err
}
