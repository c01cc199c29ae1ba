package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity captures impact levels on a total order; escalation policy always
// compares against the order, never equality alone.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"ok", "warning", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityOK || s > SeverityCritical {
		return "ok"
	}
	return severityNames[s]
}

// AtLeast reports whether s meets or exceeds the given floor.
func (s Severity) AtLeast(floor Severity) bool {
	return s >= floor
}

// MarshalJSON writes the severity as its lowercase name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts any of the severity names, case-insensitive.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity resolves a severity name to its ordered value.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ok":
		return SeverityOK, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityOK, fmt.Errorf("unknown severity %q", name)
	}
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if a >= b {
		return a
	}
	return b
}

// SeverityFromLogLevel maps a log level token onto the severity scale.
// Unrecognised levels are treated as ok.
func SeverityFromLogLevel(level string) Severity {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "WARNING", "WARN":
		return SeverityWarning
	case "ERROR":
		return SeverityHigh
	case "CRITICAL", "FATAL":
		return SeverityCritical
	default:
		return SeverityOK
	}
}
