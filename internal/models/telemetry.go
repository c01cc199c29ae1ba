package models

import "time"

// TimeWindow bounds the telemetry slice one triage cycle analyzes.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MetricSample is a single raw datapoint from the telemetry source. Immutable
// once fetched.
type MetricSample struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
}

// LogEvent is a single raw log line from the telemetry source. Immutable once
// fetched.
type LogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Stream    string    `json:"stream,omitempty"`
}

// TelemetrySnapshot bundles the raw inputs of one cycle for verbatim
// persistence alongside the audit trail.
type TelemetrySnapshot struct {
	Window  TimeWindow     `json:"window"`
	Metrics []MetricSample `json:"metrics"`
	Logs    []LogEvent     `json:"logs"`
}

// MetricStats holds the bounded per-metric reduction of raw samples.
type MetricStats struct {
	Count    int       `json:"count"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	Mean     float64   `json:"mean"`
	Latest   float64   `json:"latest"`
	LatestAt time.Time `json:"latest_at"`
	Unit     string    `json:"unit,omitempty"`
	Breach   Severity  `json:"breach"`
}

// MetricSummary is the bounded metric reduction of one cycle, recomputed
// from raw samples every time.
type MetricSummary struct {
	Metrics      map[string]MetricStats `json:"metrics"`
	TotalSamples int                    `json:"total_samples"`
}

// LogSample is one representative excerpt kept in a LogSummary. Events whose
// messages differ only by interpolated values collapse into a single sample.
type LogSample struct {
	Level     string    `json:"level"`
	Signature string    `json:"signature"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// LogSummary is the bounded log reduction of one cycle. Truncation is reported,
// never silent: Total and Dropped always describe completeness.
type LogSummary struct {
	Samples []LogSample `json:"samples"`
	Total   int         `json:"total"`
	Dropped int         `json:"dropped"`
}
