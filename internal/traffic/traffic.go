package traffic

import (
	"sync"
	"time"
)

// Retention bounds how long outcome timestamps are kept. Snapshot windows longer than
// Retention cannot see older outcomes, so callers must not configure one.
const Retention = 30 * time.Minute

var defaultTracker Tracker

// RecordApplied records a message that replaced a stored record.
func RecordApplied() {
	defaultTracker.RecordApplied()
}

// RecordIgnored records a message discarded by the decoder (unknown kind, version, truncated).
func RecordIgnored() {
	defaultTracker.RecordIgnored()
}

// RecordDenied records an ingest request rejected by the rate limiter (429).
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// Snapshot returns outcome counts within the window.
func Snapshot(window time.Duration) Counts {
	return defaultTracker.Snapshot(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Counts holds outcome totals for one window.
type Counts struct {
	Applied int `json:"applied"`
	Ignored int `json:"ignored"`
	Denied  int `json:"denied"`
}

// Messages returns messages that reached the decoder (applied + ignored); denials are excluded.
func (c Counts) Messages() int {
	return c.Applied + c.Ignored
}

// IgnoredPct returns the ignored share of decoded messages as a percentage, 0 when there were none.
func (c Counts) IgnoredPct() float64 {
	if c.Messages() == 0 {
		return 0
	}
	return float64(c.Ignored) * 100 / float64(c.Messages())
}

// Tracker maintains sliding windows of ingest outcome timestamps.
type Tracker struct {
	mu           sync.Mutex
	appliedTimes []time.Time
	ignoredTimes []time.Time
	deniedTimes  []time.Time
}

func (t *Tracker) RecordApplied() {
	t.recordOutcome(&t.appliedTimes)
}

func (t *Tracker) RecordIgnored() {
	t.recordOutcome(&t.ignoredTimes)
}

func (t *Tracker) RecordDenied() {
	t.recordOutcome(&t.deniedTimes)
}

// recordOutcome appends current timestamp to the specified slice and prunes old entries.
func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// Snapshot returns outcome counts within the window ending now.
func (t *Tracker) Snapshot(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	return Counts{
		Applied: countInWindow(t.appliedTimes, cutoff),
		Ignored: countInWindow(t.ignoredTimes, cutoff),
		Denied:  countInWindow(t.deniedTimes, cutoff),
	}
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appliedTimes = nil
	t.ignoredTimes = nil
	t.deniedTimes = nil
}

// countInWindow counts timestamps that are not before the cutoff time.
func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than Retention. Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-Retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.appliedTimes)
	prune(&t.ignoredTimes)
	prune(&t.deniedTimes)
}
