// Package service hosts the polling loop that drives triage cycles.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/triagestack/triage-engine/internal/engine"
	"github.com/triagestack/triage-engine/internal/metrics"
	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/thresholds"
	"github.com/triagestack/triage-engine/internal/utils"
)

// Options fixes the per-cycle settings a Runner applies on every tick.
type Options struct {
	ThresholdsPath      string
	EscalationThreshold models.Severity
	Window              time.Duration
	PollInterval        time.Duration
	AnalysisTimeout     time.Duration
	AnalysisRetries     int
	MaxErrorSamples     int
	MaxInfoSamples      int
}

// Runner drives the pipeline on a fixed interval. Thresholds are reloaded
// from disk before each cycle so operators can tune them without a restart.
type Runner struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	opts      Options
	latencies *utils.LatencyTracker

	// now is overridable in tests.
	now func() time.Time
}

// NewRunner constructs a Runner around a configured pipeline.
func NewRunner(logger *slog.Logger, pipeline *engine.Pipeline, opts Options) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Minute
	}
	return &Runner{
		logger:    logger,
		pipeline:  pipeline,
		opts:      opts,
		latencies: utils.NewLatencyTracker(1024),
		now:       time.Now,
	}
}

// Run loops until the context is cancelled. The first cycle fires
// immediately; cycle failures are logged and counted, never fatal.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single triage cycle over the trailing window.
func (r *Runner) RunOnce(ctx context.Context) (engine.CycleResult, error) {
	policy, err := r.loadPolicy()
	if err != nil {
		metrics.ObserveCycle(0, metrics.OutcomeFailed)
		r.logger.Error("cycle skipped", slog.Any("error", err))
		return engine.CycleResult{}, err
	}

	start, end := utils.WindowEnding(r.now().UTC(), r.opts.Window)
	window := models.TimeWindow{Start: start, End: end}

	began := time.Now()
	result, err := r.pipeline.Run(ctx, window, policy)
	duration := time.Since(began)

	metrics.ObserveCycle(duration, outcomeLabel(result.State))
	observeStages(began, result.Stages)
	if result.IncidentID != "" {
		metrics.ObserveIncident(result.Severity.String())
	}
	if err != nil {
		r.logger.Error("triage cycle failed",
			slog.String("state", result.State.String()),
			slog.String("incident_id", result.IncidentID),
			slog.Any("error", utils.NewAppError("cycle", "pipeline run", err)))
		return result, err
	}

	r.latencies.Observe(duration)
	if count := r.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := r.latencies.Percentile(95)
		r.logger.Info("cycle latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}
	r.logger.Debug("triage cycle complete",
		slog.String("state", result.State.String()),
		slog.String("severity", result.Severity.String()),
		slog.Float64("window_minutes", utils.DurationMinutes(window.Start, window.End)))
	return result, nil
}

// loadPolicy re-reads thresholds so each cycle sees the current file.
func (r *Runner) loadPolicy() (engine.CyclePolicy, error) {
	cfg, err := thresholds.Load(r.opts.ThresholdsPath)
	if err != nil {
		return engine.CyclePolicy{}, err
	}
	return engine.CyclePolicy{
		Thresholds:          cfg,
		EscalationThreshold: r.opts.EscalationThreshold,
		AnalysisTimeout:     r.opts.AnalysisTimeout,
		AnalysisRetries:     r.opts.AnalysisRetries,
		MaxErrorSamples:     r.opts.MaxErrorSamples,
		MaxInfoSamples:      r.opts.MaxInfoSamples,
	}, nil
}

// observeStages derives per-stage durations from the recording timestamps.
func observeStages(cycleStart time.Time, stages []models.StageResult) {
	prev := cycleStart
	for _, stage := range stages {
		if stage.RecordedAt.Before(prev) {
			continue
		}
		metrics.ObserveStage(stage.Stage, stage.RecordedAt.Sub(prev))
		prev = stage.RecordedAt
	}
}

func outcomeLabel(state engine.State) string {
	switch state {
	case engine.StateClosed:
		return metrics.OutcomeClosed
	case engine.StatePersisted:
		return metrics.OutcomePersisted
	case engine.StateDegraded:
		return metrics.OutcomeDegraded
	default:
		return metrics.OutcomeFailed
	}
}
