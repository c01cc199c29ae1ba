package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSeverityOrdering(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Fatalf("critical should satisfy a high floor")
	}
	if SeverityWarning.AtLeast(SeverityHigh) {
		t.Fatalf("warning should not satisfy a high floor")
	}
	if MaxSeverity(SeverityWarning, SeverityCritical) != SeverityCritical {
		t.Fatalf("max of warning and critical should be critical")
	}
}

func TestSeverityJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(SeverityHigh)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"high"` {
		t.Fatalf("expected \"high\", got %s", data)
	}

	var s Severity
	if err := json.Unmarshal([]byte(`"critical"`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != SeverityCritical {
		t.Fatalf("expected critical, got %v", s)
	}
}

func TestParseSeverityRejectsUnknown(t *testing.T) {
	if _, err := ParseSeverity("catastrophic"); err == nil {
		t.Fatalf("expected error for unknown severity")
	}
}

func TestSeverityFromLogLevel(t *testing.T) {
	cases := map[string]Severity{
		"WARNING":  SeverityWarning,
		"warning":  SeverityWarning,
		"ERROR":    SeverityHigh,
		"CRITICAL": SeverityCritical,
		"FATAL":    SeverityCritical,
		"INFO":     SeverityOK,
		"":         SeverityOK,
	}
	for level, want := range cases {
		if got := SeverityFromLogLevel(level); got != want {
			t.Fatalf("level %q: expected %v, got %v", level, want, got)
		}
	}
}

func TestNewIncidentIDUnique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewIncidentID(now)
		if seen[id] {
			t.Fatalf("duplicate incident id %s", id)
		}
		seen[id] = true
	}
}
