// Package recorder persists incidents on disk, one directory per incident:
// a raw telemetry snapshot and a display summary written exactly once, and a
// JSONL audit trail that only ever grows.
package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
)

// ErrDuplicateIncident signals that an incident identifier was already
// written. Each identifier may be recorded exactly once; seeing this error
// means an identity-generation invariant was violated.
var ErrDuplicateIncident = errors.New("duplicate incident")

const (
	snapshotFile = "telemetry.json"
	auditFile    = "audit.jsonl"
	summaryFile  = "summary.json"
)

// auditEntry is one self-describing line of the audit trail.
type auditEntry struct {
	IncidentID string             `json:"incident_id"`
	Seq        int                `json:"seq"`
	Result     models.StageResult `json:"result"`
}

// FileRecorder implements incident persistence over a base directory.
// Incident objects are single-writer and never mutated post-creation, so the
// only shared state here is the per-incident sequence counter.
type FileRecorder struct {
	baseDir string
	logger  *slog.Logger

	mu   sync.Mutex
	seqs map[string]int
}

// NewFileRecorder creates a recorder rooted at baseDir, creating it if
// needed.
func NewFileRecorder(baseDir string, logger *slog.Logger) (*FileRecorder, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("recorder base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create recorder dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileRecorder{
		baseDir: baseDir,
		logger:  logger,
		seqs:    make(map[string]int),
	}, nil
}

// Open claims the incident identifier and writes the raw telemetry snapshot
// verbatim. A reused identifier is rejected with ErrDuplicateIncident and the
// first record is left untouched.
func (r *FileRecorder) Open(ctx context.Context, incident models.Incident, snapshot models.TelemetrySnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(r.baseDir, incident.ID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateIncident, incident.ID)
		}
		return fmt.Errorf("create incident dir: %w", err)
	}
	if err := writeOnce(filepath.Join(dir, snapshotFile), snapshot); err != nil {
		return fmt.Errorf("write telemetry snapshot: %w", err)
	}
	r.logger.Debug("incident opened", slog.String("incident_id", incident.ID))
	return nil
}

// AppendStage durably appends one stage result to the incident's audit
// trail. Entries are never rewritten.
func (r *FileRecorder) AppendStage(ctx context.Context, incidentID string, result models.StageResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.seqs[incidentID]++
	seq := r.seqs[incidentID]
	r.mu.Unlock()

	entry := auditEntry{IncidentID: incidentID, Seq: seq, Result: result}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	path := filepath.Join(r.baseDir, incidentID, auditFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync audit trail: %w", err)
	}
	return nil
}

// WriteSummary writes the display-only summary record, exactly once, after
// the pipeline has reached its persisted state.
func (r *FileRecorder) WriteSummary(ctx context.Context, incident models.Incident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	summary := models.IncidentSummary{
		ID:              incident.ID,
		CreatedAt:       incident.CreatedAt,
		Window:          incident.Window,
		Severity:        incident.Severity,
		RootCause:       incident.RootCause,
		Recommendations: incident.Recommendations,
		PersistedAt:     time.Now().UTC(),
	}
	path := filepath.Join(r.baseDir, incident.ID, summaryFile)
	if err := writeOnce(path, summary); err != nil {
		return fmt.Errorf("write incident summary: %w", err)
	}

	r.mu.Lock()
	delete(r.seqs, incident.ID)
	r.mu.Unlock()
	return nil
}

// ReadAudit returns the ordered stage results recorded for an incident.
func (r *FileRecorder) ReadAudit(incidentID string) ([]models.StageResult, error) {
	path := filepath.Join(r.baseDir, incidentID, auditFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit trail: %w", err)
	}
	var results []models.StageResult
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var entry auditEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		results = append(results, entry.Result)
	}
	return results, nil
}

// ListSummaries reads every persisted summary record under baseDir, ordered
// by incident identifier (approximately chronological by construction).
func ListSummaries(baseDir string) ([]models.IncidentSummary, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("read recorder dir: %w", err)
	}

	summaries := make([]models.IncidentSummary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(baseDir, entry.Name(), summaryFile))
		if err != nil {
			// Degraded or in-flight incidents have no summary record.
			continue
		}
		var summary models.IncidentSummary
		if err := json.Unmarshal(data, &summary); err != nil {
			return nil, fmt.Errorf("decode summary for %s: %w", entry.Name(), err)
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

// writeOnce creates the file exclusively, so a second write of the same
// record fails instead of silently replacing it.
func writeOnce(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
