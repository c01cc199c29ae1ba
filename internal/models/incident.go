package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names in pipeline order.
const (
	StageMetrics = "metrics"
	StageLogs    = "logs"
	StageRCA     = "rca"
)

// StageResult records one executed stage's input and output sizes plus its
// structured payload. One per executed stage, appended to the audit trail.
type StageResult struct {
	Stage        string         `json:"stage"`
	Severity     *Severity      `json:"severity,omitempty"`
	Payload      map[string]any `json:"payload"`
	RawBytesIn   int            `json:"raw_bytes_in"`
	SummaryBytes int            `json:"summary_bytes"`
	RecordedAt   time.Time      `json:"recorded_at"`
}

// LogIssue is one detected issue reported by the log analysis stage.
type LogIssue struct {
	Signature string    `json:"signature"`
	Level     string    `json:"level"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Incident is the unit of persistence for an escalated cycle. Never mutated
// after the pipeline completes.
type Incident struct {
	ID              string        `json:"incident_id"`
	CreatedAt       time.Time     `json:"created_at"`
	Window          TimeWindow    `json:"window"`
	Stages          []StageResult `json:"stages"`
	Severity        Severity      `json:"severity"`
	RootCause       string        `json:"root_cause"`
	Recommendations []string      `json:"recommendations"`
}

// IncidentSummary is the display-only view written once after persistence.
// It is a derived record, not a second source of truth.
type IncidentSummary struct {
	ID              string     `json:"incident_id"`
	CreatedAt       time.Time  `json:"created_at"`
	Window          TimeWindow `json:"window"`
	Severity        Severity   `json:"severity"`
	RootCause       string     `json:"root_cause"`
	Recommendations []string   `json:"recommendations"`
	PersistedAt     time.Time  `json:"persisted_at"`
}

// AnalysisRequest is the prompt-shaped input handed to the deep-analysis
// capability for one stage.
type AnalysisRequest struct {
	Stage    string         `json:"stage"`
	Severity Severity       `json:"severity"`
	Context  map[string]any `json:"context"`
}

// AnalysisResult is the structured stage response. The log stage fills Issues;
// the RCA stage fills RootCause and Recommendations.
type AnalysisResult struct {
	Issues          []LogIssue `json:"issues,omitempty"`
	RootCause       string     `json:"root_cause,omitempty"`
	Recommendations []string   `json:"recommendations,omitempty"`
}

// NewIncidentID returns an identifier that sorts approximately chronologically
// but is not guessable. Collision-free under concurrent generation via the
// random component.
func NewIncidentID(createdAt time.Time) string {
	return fmt.Sprintf("INC-%s-%s",
		createdAt.UTC().Format("20060102T150405Z"),
		uuid.NewString()[:8])
}
