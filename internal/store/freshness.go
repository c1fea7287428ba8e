package store

import (
	"math"
	"time"
)

// DefaultFreshnessWindow is how long after its own timestamp a record stays readable.
const DefaultFreshnessWindow = 24 * time.Hour

// Status describes a record kind as seen at read time.
type Status int

const (
	StatusAbsent Status = iota
	StatusFresh
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	default:
		return "absent"
	}
}

// Freshness decides whether a record timestamp is still within the window at a given time.
// Comparison is done in whole seconds since the epoch.
type Freshness struct {
	Window time.Duration
}

// Age returns now minus ts in seconds. A record stamped ahead of now has a negative age.
// ok is false when ts does not fit in an int64.
func Age(now time.Time, ts uint64) (age int64, ok bool) {
	if ts > math.MaxInt64 {
		return 0, false
	}
	return now.Unix() - int64(ts), true
}

// Fresh reports whether now - ts < Window, comparing whole-second ages against the full
// Window including any sub-second part. Exactly Window old is stale.
// A timestamp ahead of now is fresh; unrepresentable timestamps are stale.
func (f Freshness) Fresh(now time.Time, ts uint64) bool {
	age, ok := Age(now, ts)
	if !ok {
		return false
	}
	if age < 0 {
		return true
	}
	if age > int64(math.MaxInt64/time.Second) {
		return false
	}
	return time.Duration(age)*time.Second < f.Window
}
