// Package classify maps metric summaries onto the severity scale. It is a
// pure function of its inputs: no I/O, no side effects.
package classify

import (
	"sort"

	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/thresholds"
)

// Breach records one evaluated metric: the observed value and the boundary it
// crossed, for traceability.
type Breach struct {
	Metric    string          `json:"metric"`
	Value     float64         `json:"value"`
	Threshold float64         `json:"threshold"`
	Level     models.Severity `json:"level"`
}

// Classification is the outcome of threshold evaluation. Breaches lists every
// evaluated metric ordered by level (worst first), so ties at the maximum
// level all appear, not just one.
type Classification struct {
	Severity models.Severity `json:"severity"`
	Breaches []Breach        `json:"breaches"`
}

// Classify evaluates each configured metric present in the summary against
// its boundaries. Metrics absent from the config are ignored. The overall
// severity is the maximum across evaluated metrics. Increasing a metric's
// value never lowers its classification.
func Classify(summary models.MetricSummary, cfg thresholds.Config) Classification {
	result := Classification{Severity: models.SeverityOK}

	for name, bounds := range cfg {
		stats, ok := summary.Metrics[name]
		if !ok {
			continue
		}

		// Max is never below Latest, so evaluating the worst value covers
		// the most-recent one under >= boundaries.
		value := stats.Max
		level := models.SeverityOK
		threshold := bounds.OK
		switch {
		case value >= bounds.Critical:
			level = models.SeverityCritical
			threshold = bounds.Critical
		case value >= bounds.Warning:
			level = models.SeverityWarning
			threshold = bounds.Warning
		}

		result.Breaches = append(result.Breaches, Breach{
			Metric:    name,
			Value:     value,
			Threshold: threshold,
			Level:     level,
		})
		result.Severity = models.MaxSeverity(result.Severity, level)
	}

	sort.SliceStable(result.Breaches, func(i, j int) bool {
		if result.Breaches[i].Level != result.Breaches[j].Level {
			return result.Breaches[i].Level > result.Breaches[j].Level
		}
		return result.Breaches[i].Metric < result.Breaches[j].Metric
	})

	return result
}

// Annotate copies per-metric breach levels back onto a summary so the audit
// trail shows which boundary each metric crossed.
func Annotate(summary models.MetricSummary, c Classification) models.MetricSummary {
	for _, breach := range c.Breaches {
		stats, ok := summary.Metrics[breach.Metric]
		if !ok {
			continue
		}
		stats.Breach = breach.Level
		summary.Metrics[breach.Metric] = stats
	}
	return summary
}
