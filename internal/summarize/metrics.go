package summarize

import (
	"time"

	"github.com/triagestack/triage-engine/internal/models"
)

// MetricSummarizer reduces raw samples into bounded per-metric statistics.
// The reduction is deterministic and preserves the worst value and the most
// recent value of every metric present in the input.
type MetricSummarizer struct{}

// NewMetricSummarizer creates a metric reducer.
func NewMetricSummarizer() *MetricSummarizer {
	return &MetricSummarizer{}
}

// Summarize aggregates samples per metric name. Empty input yields an
// explicit zero-count summary, not an error.
func (s *MetricSummarizer) Summarize(samples []models.MetricSample) models.MetricSummary {
	summary := models.MetricSummary{
		Metrics:      make(map[string]models.MetricStats),
		TotalSamples: len(samples),
	}

	type acc struct {
		stats    models.MetricStats
		latestAt time.Time
	}
	accs := make(map[string]*acc)

	for _, sample := range samples {
		a, ok := accs[sample.Name]
		if !ok {
			a = &acc{stats: models.MetricStats{
				Min:  sample.Value,
				Max:  sample.Value,
				Unit: sample.Unit,
			}}
			accs[sample.Name] = a
		}
		a.stats.Count++
		a.stats.Mean += sample.Value
		if sample.Value < a.stats.Min {
			a.stats.Min = sample.Value
		}
		if sample.Value > a.stats.Max {
			a.stats.Max = sample.Value
		}
		// Ties on timestamp resolve to the later sample in input order.
		if !sample.Timestamp.Before(a.latestAt) {
			a.latestAt = sample.Timestamp
			a.stats.Latest = sample.Value
			a.stats.LatestAt = sample.Timestamp
		}
	}

	for name, a := range accs {
		a.stats.Mean /= float64(a.stats.Count)
		summary.Metrics[name] = a.stats
	}

	return summary
}
