package utils

import (
	"testing"
	"time"
)

func TestWindowEnding(t *testing.T) {
	end := time.Unix(1_700_000_000, 0).UTC()
	start, got := WindowEnding(end, 15*time.Minute)
	if got != end {
		t.Fatalf("end changed: %v", got)
	}
	if end.Sub(start) != 15*time.Minute {
		t.Fatalf("expected 15m span, got %v", end.Sub(start))
	}

	start, _ = WindowEnding(end, 0)
	if end.Sub(start) != 15*time.Minute {
		t.Fatalf("non-positive span should fall back to 15m, got %v", end.Sub(start))
	}
}

func TestDurationMinutesOrderIndependent(t *testing.T) {
	a := time.Unix(1_700_000_000, 0)
	b := a.Add(30 * time.Minute)
	if DurationMinutes(a, b) != 30 {
		t.Fatalf("expected 30 minutes")
	}
	if DurationMinutes(b, a) != 30 {
		t.Fatalf("expected order independence")
	}
}
