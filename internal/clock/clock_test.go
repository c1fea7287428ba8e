package clock

import (
	"testing"
	"time"
)

func TestSystem_Now(t *testing.T) {
	before := time.Now()
	got := System{}.Now()
	if got.Before(before) {
		t.Errorf("System.Now() = %v, want >= %v", got, before)
	}
}

// TestManual_SetAdvance verifies Manual only moves when told to.
func TestManual_SetAdvance(t *testing.T) {
	m := NewManualUnix(1700000000)
	if got := m.Now().Unix(); got != 1700000000 {
		t.Fatalf("Now() = %d, want 1700000000", got)
	}
	m.Advance(time.Hour)
	if got := m.Now().Unix(); got != 1700003600 {
		t.Errorf("after Advance(1h) Now() = %d, want 1700003600", got)
	}
	m.Advance(-2 * time.Hour)
	if got := m.Now().Unix(); got != 1699996400 {
		t.Errorf("after Advance(-2h) Now() = %d, want 1699996400", got)
	}
	m.Set(time.Unix(42, 0))
	if got := m.Now().Unix(); got != 42 {
		t.Errorf("after Set() Now() = %d, want 42", got)
	}
}
