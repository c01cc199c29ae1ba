package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/thresholds"
)

type fakeSource struct {
	samples   []models.MetricSample
	events    []models.LogEvent
	metricErr error
	logErr    error
}

func (f *fakeSource) FetchMetricSamples(_ context.Context, _ models.TimeWindow) ([]models.MetricSample, error) {
	return f.samples, f.metricErr
}

func (f *fakeSource) FetchLogEvents(_ context.Context, _ models.TimeWindow) ([]models.LogEvent, error) {
	return f.events, f.logErr
}

type fakeAnalyzer struct {
	logsResult models.AnalysisResult
	rcaResult  models.AnalysisResult
	logsErr    error
	rcaErr     error
	calls      []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	f.calls = append(f.calls, req.Stage)
	switch req.Stage {
	case models.StageLogs:
		return f.logsResult, f.logsErr
	case models.StageRCA:
		return f.rcaResult, f.rcaErr
	}
	return models.AnalysisResult{}, fmt.Errorf("unexpected stage %q", req.Stage)
}

type fakeRecorder struct {
	opened    []models.Incident
	snapshots []models.TelemetrySnapshot
	stages    map[string][]models.StageResult
	summaries []models.Incident
	appendErr error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{stages: make(map[string][]models.StageResult)}
}

func (f *fakeRecorder) Open(_ context.Context, incident models.Incident, snapshot models.TelemetrySnapshot) error {
	f.opened = append(f.opened, incident)
	f.snapshots = append(f.snapshots, snapshot)
	return nil
}

func (f *fakeRecorder) AppendStage(_ context.Context, incidentID string, result models.StageResult) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.stages[incidentID] = append(f.stages[incidentID], result)
	return nil
}

func (f *fakeRecorder) WriteSummary(_ context.Context, incident models.Incident) error {
	f.summaries = append(f.summaries, incident)
	return nil
}

func testPolicy() CyclePolicy {
	return CyclePolicy{
		Thresholds: thresholds.Config{
			"CPUUtilization": {OK: 50, Warning: 70, Critical: 85},
			"ErrorRate":      {OK: 1, Warning: 3, Critical: 8},
		},
		EscalationThreshold: models.SeverityWarning,
		AnalysisTimeout:     time.Second,
		AnalysisRetries:     0,
		MaxErrorSamples:     8,
		MaxInfoSamples:      4,
	}
}

func testWindow() models.TimeWindow {
	end := time.Unix(1_700_000_000, 0).UTC()
	return models.TimeWindow{Start: end.Add(-15 * time.Minute), End: end}
}

func cpuSamples(value float64) []models.MetricSample {
	return []models.MetricSample{
		{Name: "CPUUtilization", Timestamp: testWindow().Start, Value: value, Unit: "Percent"},
	}
}

func errorEvents() []models.LogEvent {
	return []models.LogEvent{
		{Timestamp: testWindow().Start, Message: "ERROR timeout contacting inventory service for order 1042"},
	}
}

func healthyAnalysis() *fakeAnalyzer {
	return &fakeAnalyzer{
		logsResult: models.AnalysisResult{
			Issues: []models.LogIssue{{Signature: "timeout contacting inventory service for order <n>", Level: "ERROR", Count: 1}},
		},
		rcaResult: models.AnalysisResult{
			RootCause:       "inventory connection pool exhaustion",
			Recommendations: []string{"increase pool size"},
		},
	}
}

func TestRunClosesHealthyWindow(t *testing.T) {
	source := &fakeSource{samples: cpuSamples(40)}
	recorder := newFakeRecorder()
	p := NewPipeline(nil, source, healthyAnalysis(), recorder)

	result, err := p.Run(context.Background(), testWindow(), testPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateClosed {
		t.Fatalf("expected CLOSED, got %s", result.State)
	}
	if result.IncidentID != "" {
		t.Fatalf("closed cycle must not create an incident, got %q", result.IncidentID)
	}
	if len(recorder.opened) != 0 || len(recorder.summaries) != 0 {
		t.Fatalf("closed cycle must not touch the recorder")
	}
	if len(result.Stages) != 1 || result.Stages[0].Stage != models.StageMetrics {
		t.Fatalf("expected only the metrics stage in the result, got %+v", result.Stages)
	}
}

func TestRunClosesEmptyWindow(t *testing.T) {
	source := &fakeSource{}
	recorder := newFakeRecorder()
	p := NewPipeline(nil, source, healthyAnalysis(), recorder)

	result, err := p.Run(context.Background(), testWindow(), testPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateClosed {
		t.Fatalf("empty telemetry should close the cycle, got %s", result.State)
	}
	if result.Severity != models.SeverityOK {
		t.Fatalf("expected ok severity, got %v", result.Severity)
	}
}

func TestRunEscalatesAndPersists(t *testing.T) {
	source := &fakeSource{samples: cpuSamples(90), events: errorEvents()}
	analysis := healthyAnalysis()
	recorder := newFakeRecorder()
	p := NewPipeline(nil, source, analysis, recorder)

	result, err := p.Run(context.Background(), testWindow(), testPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StatePersisted {
		t.Fatalf("expected PERSISTED, got %s", result.State)
	}
	if result.IncidentID == "" {
		t.Fatalf("escalated cycle must carry an incident id")
	}
	if len(recorder.opened) != 1 {
		t.Fatalf("expected one opened incident, got %d", len(recorder.opened))
	}
	if len(recorder.snapshots) != 1 || len(recorder.snapshots[0].Metrics) != 1 {
		t.Fatalf("raw telemetry snapshot not recorded at escalation")
	}

	audit := recorder.stages[result.IncidentID]
	if len(audit) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(audit))
	}
	wantOrder := []string{models.StageMetrics, models.StageLogs, models.StageRCA}
	for i, want := range wantOrder {
		if audit[i].Stage != want {
			t.Fatalf("audit entry %d: expected %s, got %s", i, want, audit[i].Stage)
		}
	}

	if len(recorder.summaries) != 1 {
		t.Fatalf("expected one summary, got %d", len(recorder.summaries))
	}
	summary := recorder.summaries[0]
	if summary.RootCause != "inventory connection pool exhaustion" {
		t.Fatalf("unexpected root cause: %q", summary.RootCause)
	}
	if summary.Severity != models.SeverityCritical {
		t.Fatalf("expected critical severity, got %v", summary.Severity)
	}
}

func TestRunLogSeverityRaisesFinal(t *testing.T) {
	// Metrics classify warning; the log stage reports a critical issue.
	source := &fakeSource{samples: cpuSamples(75), events: errorEvents()}
	analysis := healthyAnalysis()
	analysis.logsResult = models.AnalysisResult{
		Issues: []models.LogIssue{{Signature: "order pipeline halted", Level: "CRITICAL", Count: 3}},
	}
	recorder := newFakeRecorder()
	p := NewPipeline(nil, source, analysis, recorder)

	result, err := p.Run(context.Background(), testWindow(), testPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Severity != models.SeverityCritical {
		t.Fatalf("expected final severity critical, got %v", result.Severity)
	}

	// Each stage result keeps its own classification.
	audit := recorder.stages[result.IncidentID]
	if got := *audit[0].Severity; got != models.SeverityWarning {
		t.Fatalf("metrics stage severity rewritten: %v", got)
	}
	if got := *audit[1].Severity; got != models.SeverityCritical {
		t.Fatalf("log stage severity: %v", got)
	}
}

func TestRunAbortsWhenSourceUnavailable(t *testing.T) {
	source := &fakeSource{metricErr: fmt.Errorf("connection refused")}
	recorder := newFakeRecorder()
	p := NewPipeline(nil, source, healthyAnalysis(), recorder)

	result, err := p.Run(context.Background(), testWindow(), testPolicy())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if result.State != StateStart {
		t.Fatalf("aborted fetch must stay in START, got %s", result.State)
	}
	if len(recorder.opened) != 0 {
		t.Fatalf("no incident may be opened on fetch failure")
	}
}

func TestRunRejectsInvalidThresholds(t *testing.T) {
	p := NewPipeline(nil, &fakeSource{samples: cpuSamples(40)}, healthyAnalysis(), newFakeRecorder())
	policy := testPolicy()
	policy.Thresholds = thresholds.Config{}

	if _, err := p.Run(context.Background(), testWindow(), policy); !errors.Is(err, thresholds.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestRunDegradesWhenLogAnalysisFails(t *testing.T) {
	source := &fakeSource{samples: cpuSamples(90), events: errorEvents()}
	analysis := healthyAnalysis()
	analysis.logsErr = fmt.Errorf("model endpoint 503")
	recorder := newFakeRecorder()
	p := NewPipeline(nil, source, analysis, recorder)

	result, err := p.Run(context.Background(), testWindow(), testPolicy())
	if !errors.Is(err, ErrStageAnalysis) {
		t.Fatalf("expected ErrStageAnalysis, got %v", err)
	}
	if result.State != StateDegraded {
		t.Fatalf("expected DEGRADED, got %s", result.State)
	}

	// The audit trail keeps the metrics entry plus a truthful failure entry.
	audit := recorder.stages[result.IncidentID]
	if len(audit) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(audit))
	}
	if audit[0].Stage != models.StageMetrics {
		t.Fatalf("first entry should be metrics, got %s", audit[0].Stage)
	}
	if audit[1].Stage != models.StageLogs || audit[1].Payload["degraded"] != true {
		t.Fatalf("second entry should mark the failed log stage, got %+v", audit[1])
	}
	if len(recorder.summaries) != 0 {
		t.Fatalf("degraded cycle must not write a summary")
	}
}

func TestRunDegradesWhenRCAFails(t *testing.T) {
	source := &fakeSource{samples: cpuSamples(90), events: errorEvents()}
	analysis := healthyAnalysis()
	analysis.rcaErr = fmt.Errorf("model endpoint timeout")
	recorder := newFakeRecorder()
	p := NewPipeline(nil, source, analysis, recorder)

	result, err := p.Run(context.Background(), testWindow(), testPolicy())
	if !errors.Is(err, ErrStageAnalysis) {
		t.Fatalf("expected ErrStageAnalysis, got %v", err)
	}
	if result.State != StateDegraded {
		t.Fatalf("expected DEGRADED, got %s", result.State)
	}

	audit := recorder.stages[result.IncidentID]
	if len(audit) != 3 {
		t.Fatalf("expected metrics, logs and failure entries, got %d", len(audit))
	}
	if audit[2].Stage != models.StageRCA || audit[2].Payload["degraded"] != true {
		t.Fatalf("final entry should mark the failed rca stage, got %+v", audit[2])
	}
	if len(recorder.summaries) != 0 {
		t.Fatalf("degraded cycle must not write a summary")
	}
}

func TestRunRetriesTransientAnalysisFailure(t *testing.T) {
	source := &fakeSource{samples: cpuSamples(90), events: errorEvents()}
	recorder := newFakeRecorder()

	inner := healthyAnalysis()
	failures := 1
	flaky := analyzeFunc(func(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
		if req.Stage == models.StageLogs && failures > 0 {
			failures--
			return models.AnalysisResult{}, fmt.Errorf("transient 502")
		}
		return inner.Analyze(ctx, req)
	})

	policy := testPolicy()
	policy.AnalysisRetries = 1
	p := NewPipeline(nil, source, flaky, recorder)

	result, err := p.Run(context.Background(), testWindow(), policy)
	if err != nil {
		t.Fatalf("retry should have recovered: %v", err)
	}
	if result.State != StatePersisted {
		t.Fatalf("expected PERSISTED, got %s", result.State)
	}
}

func TestRunCancelledContextAbortsWithoutDegrade(t *testing.T) {
	source := &fakeSource{samples: cpuSamples(90), events: errorEvents()}
	recorder := newFakeRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	blocking := analyzeFunc(func(c context.Context, _ models.AnalysisRequest) (models.AnalysisResult, error) {
		cancel()
		<-c.Done()
		return models.AnalysisResult{}, c.Err()
	})
	p := NewPipeline(nil, source, blocking, recorder)

	result, err := p.Run(ctx, testWindow(), testPolicy())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.State == StateDegraded {
		t.Fatalf("an aborted cycle is not a degraded one")
	}
	if len(recorder.summaries) != 0 {
		t.Fatalf("aborted cycle must not write a summary")
	}
}

type analyzeFunc func(context.Context, models.AnalysisRequest) (models.AnalysisResult, error)

func (f analyzeFunc) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	return f(ctx, req)
}
