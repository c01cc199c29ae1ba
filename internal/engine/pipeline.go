package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/triagestack/triage-engine/internal/classify"
	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/summarize"
	"github.com/triagestack/triage-engine/internal/thresholds"
)

// ErrSourceUnavailable marks a cycle that aborted at START because telemetry
// could not be fetched. Nothing is recorded; the next cycle is unaffected.
var ErrSourceUnavailable = errors.New("telemetry source unavailable")

// ErrStageAnalysis marks a deep-analysis call that failed after exhausting
// its retry budget. Already-recorded stage results stay in the audit trail.
var ErrStageAnalysis = errors.New("stage analysis failed")

// TelemetrySource supplies raw samples and events for a time window.
type TelemetrySource interface {
	FetchMetricSamples(ctx context.Context, window models.TimeWindow) ([]models.MetricSample, error)
	FetchLogEvents(ctx context.Context, window models.TimeWindow) ([]models.LogEvent, error)
}

// StageAnalyzer transforms structured stage context into a structured result.
// The call may be slow and may fail; the pipeline applies a deadline and a
// bounded retry per stage.
type StageAnalyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error)
}

// IncidentRecorder persists an escalated cycle: the raw telemetry snapshot
// once, each stage result append-only, and the display summary last.
type IncidentRecorder interface {
	Open(ctx context.Context, incident models.Incident, snapshot models.TelemetrySnapshot) error
	AppendStage(ctx context.Context, incidentID string, result models.StageResult) error
	WriteSummary(ctx context.Context, incident models.Incident) error
}

// CyclePolicy bundles everything one cycle needs that may change between
// cycles. It is passed by value so a reload can never race an in-flight run.
type CyclePolicy struct {
	Thresholds          thresholds.Config
	EscalationThreshold models.Severity
	AnalysisTimeout     time.Duration
	AnalysisRetries     int
	MaxErrorSamples     int
	MaxInfoSamples      int
}

// CycleResult reports a finished (or aborted) cycle.
type CycleResult struct {
	State      State
	Severity   models.Severity
	IncidentID string
	Stages     []models.StageResult
}

// Pipeline sequences one triage cycle: summarize metrics, classify severity,
// and only when warranted deepen into log and root-cause analysis before
// persisting the incident.
type Pipeline struct {
	logger   *slog.Logger
	source   TelemetrySource
	analyzer StageAnalyzer
	recorder IncidentRecorder
}

// NewPipeline constructs a triage pipeline over the injected collaborators.
func NewPipeline(logger *slog.Logger, source TelemetrySource, analyzer StageAnalyzer, recorder IncidentRecorder) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:   logger,
		source:   source,
		analyzer: analyzer,
		recorder: recorder,
	}
}

// Run executes one cycle over the window. Stages run strictly sequentially;
// a stage starts only after the previous stage's result is durably recorded.
func (p *Pipeline) Run(ctx context.Context, window models.TimeWindow, policy CyclePolicy) (CycleResult, error) {
	c := &cycle{state: StateStart}
	result := CycleResult{State: c.state}

	if p.source == nil {
		return result, fmt.Errorf("%w: no source configured", ErrSourceUnavailable)
	}
	if err := policy.Thresholds.Validate(); err != nil {
		return result, err
	}

	samples, err := p.source.FetchMetricSamples(ctx, window)
	if err != nil {
		return result, fmt.Errorf("%w: fetch metrics: %v", ErrSourceUnavailable, err)
	}
	events, err := p.source.FetchLogEvents(ctx, window)
	if err != nil {
		return result, fmt.Errorf("%w: fetch logs: %v", ErrSourceUnavailable, err)
	}

	// Stage 1: metrics summary + severity classification.
	metricSummary := summarize.NewMetricSummarizer().Summarize(samples)
	classification := classify.Classify(metricSummary, policy.Thresholds)
	metricSummary = classify.Annotate(metricSummary, classification)
	metricsSeverity := classification.Severity

	metricsStage := newStageResult(models.StageMetrics, &metricsSeverity,
		map[string]any{
			"summary":  metricSummary,
			"breaches": classification.Breaches,
		},
		jsonSize(samples))
	result.Stages = append(result.Stages, metricsStage)
	result.Severity = metricsSeverity

	if err := c.advance(StateMetricsAnalyzed); err != nil {
		return result, err
	}
	result.State = c.state

	if !metricsSeverity.AtLeast(policy.EscalationThreshold) {
		// No incident: the note below is operator convenience, not part of
		// any audit trail.
		if err := c.advance(StateClosed); err != nil {
			return result, err
		}
		result.State = c.state
		p.logger.Info("cycle closed without incident",
			slog.String("severity", metricsSeverity.String()),
			slog.Time("window_start", window.Start),
			slog.Time("window_end", window.End))
		return result, nil
	}

	// Escalated: the incident identity is created now, before any deep
	// analysis runs.
	now := time.Now().UTC()
	incident := models.Incident{
		ID:        models.NewIncidentID(now),
		CreatedAt: now,
		Window:    window,
		Severity:  metricsSeverity,
	}
	result.IncidentID = incident.ID

	snapshot := models.TelemetrySnapshot{Window: window, Metrics: samples, Logs: events}
	if err := p.recorder.Open(ctx, incident, snapshot); err != nil {
		return result, fmt.Errorf("open incident %s: %w", incident.ID, err)
	}
	if err := p.recorder.AppendStage(ctx, incident.ID, metricsStage); err != nil {
		return result, fmt.Errorf("record metrics stage: %w", err)
	}
	if err := c.advance(StateEscalated); err != nil {
		return result, err
	}
	result.State = c.state
	p.logger.Info("cycle escalated",
		slog.String("incident_id", incident.ID),
		slog.String("severity", metricsSeverity.String()))

	// Stage 2: log analysis.
	logSummary := summarize.NewLogSummarizer(policy.MaxErrorSamples, policy.MaxInfoSamples).Summarize(events)
	logResult, err := p.analyzeWithRetry(ctx, policy, models.AnalysisRequest{
		Stage:    models.StageLogs,
		Severity: metricsSeverity,
		Context: map[string]any{
			"log_summary": logSummary,
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			// Aborted cycle: partial audit trail stands, no summary record.
			return result, err
		}
		return p.degrade(ctx, c, result, models.StageLogs, err)
	}

	// Issues may independently imply a higher severity than the metrics
	// classification; both values stay in their own stage results.
	logSeverity := models.SeverityOK
	for _, issue := range logResult.Issues {
		logSeverity = models.MaxSeverity(logSeverity, models.SeverityFromLogLevel(issue.Level))
	}
	logsStage := newStageResult(models.StageLogs, &logSeverity,
		map[string]any{
			"log_summary": logSummary,
			"issues":      logResult.Issues,
		},
		jsonSize(events))
	if err := p.recorder.AppendStage(ctx, incident.ID, logsStage); err != nil {
		return result, fmt.Errorf("record log stage: %w", err)
	}
	result.Stages = append(result.Stages, logsStage)
	if err := c.advance(StateLogsAnalyzed); err != nil {
		return result, err
	}
	result.State = c.state

	finalSeverity := models.MaxSeverity(metricsSeverity, logSeverity)
	result.Severity = finalSeverity

	// Stage 3: root-cause synthesis over everything gathered so far.
	rcaResult, err := p.analyzeWithRetry(ctx, policy, models.AnalysisRequest{
		Stage:    models.StageRCA,
		Severity: finalSeverity,
		Context: map[string]any{
			"metric_summary": metricSummary,
			"breaches":       classification.Breaches,
			"issues":         logResult.Issues,
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return result, err
		}
		return p.degrade(ctx, c, result, models.StageRCA, err)
	}

	rcaStage := newStageResult(models.StageRCA, &finalSeverity,
		map[string]any{
			"root_cause":      rcaResult.RootCause,
			"recommendations": rcaResult.Recommendations,
		},
		metricsStage.SummaryBytes+logsStage.SummaryBytes)
	if err := p.recorder.AppendStage(ctx, incident.ID, rcaStage); err != nil {
		return result, fmt.Errorf("record rca stage: %w", err)
	}
	result.Stages = append(result.Stages, rcaStage)
	if err := c.advance(StateRCAComplete); err != nil {
		return result, err
	}
	result.State = c.state

	incident.Stages = result.Stages
	incident.Severity = finalSeverity
	incident.RootCause = rcaResult.RootCause
	incident.Recommendations = rcaResult.Recommendations

	if err := p.recorder.WriteSummary(ctx, incident); err != nil {
		return result, fmt.Errorf("write incident summary: %w", err)
	}
	if err := c.advance(StatePersisted); err != nil {
		return result, err
	}
	result.State = c.state
	p.logger.Info("incident persisted",
		slog.String("incident_id", incident.ID),
		slog.String("severity", finalSeverity.String()),
		slog.String("root_cause", incident.RootCause))

	return result, nil
}

// analyzeWithRetry calls the analyzer with a per-attempt deadline, retrying
// the same input a bounded number of times with doubling backoff.
func (p *Pipeline) analyzeWithRetry(ctx context.Context, policy CyclePolicy, req models.AnalysisRequest) (models.AnalysisResult, error) {
	timeout := policy.AnalysisTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := policy.AnalysisRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt < attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		res, err := p.analyzer.Analyze(attemptCtx, req)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err
		p.logger.Warn("stage analysis attempt failed",
			slog.String("stage", req.Stage),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))

		if ctx.Err() != nil {
			// Cycle aborted; do not burn retries against a dead context.
			return models.AnalysisResult{}, ctx.Err()
		}
		if attempt < attempts-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return models.AnalysisResult{}, ctx.Err()
			}
		}
	}
	return models.AnalysisResult{}, fmt.Errorf("%w: %s stage after %d attempts: %v",
		ErrStageAnalysis, req.Stage, attempts, lastErr)
}

// degrade moves the cycle to its terminal DEGRADED state. No summary record
// is written; the audit trail keeps whatever stages already completed plus a
// truthful entry for the stage that failed.
func (p *Pipeline) degrade(ctx context.Context, c *cycle, result CycleResult, stage string, cause error) (CycleResult, error) {
	if err := c.advance(StateDegraded); err != nil {
		return result, errors.Join(cause, err)
	}
	result.State = c.state

	failure := newStageResult(stage, nil, map[string]any{
		"degraded": true,
		"error":    cause.Error(),
	}, 0)
	if result.IncidentID != "" {
		if err := p.recorder.AppendStage(ctx, result.IncidentID, failure); err != nil {
			p.logger.Warn("failed to record degraded stage entry", slog.Any("error", err))
		} else {
			result.Stages = append(result.Stages, failure)
		}
	}

	p.logger.Error("cycle degraded",
		slog.String("incident_id", result.IncidentID),
		slog.String("stage", stage),
		slog.Any("error", cause))
	return result, cause
}

func newStageResult(stage string, severity *models.Severity, payload map[string]any, rawBytes int) models.StageResult {
	return models.StageResult{
		Stage:        stage,
		Severity:     severity,
		Payload:      payload,
		RawBytesIn:   rawBytes,
		SummaryBytes: jsonSize(payload),
		RecordedAt:   time.Now().UTC(),
	}
}

func jsonSize(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
