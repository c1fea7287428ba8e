package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time for freshness checks.
type Clock interface {
	Now() time.Time
}

// System reads the process clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Manual is a settable clock. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock set to t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// NewManualUnix returns a Manual clock set to sec seconds since the epoch.
func NewManualUnix(sec int64) *Manual {
	return NewManual(time.Unix(sec, 0))
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d (backwards if d is negative).
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
