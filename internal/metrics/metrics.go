package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeClosed labels cycles that ended below the escalation threshold.
	OutcomeClosed = "closed"
	// OutcomePersisted labels cycles that escalated and completed persistence.
	OutcomePersisted = "persisted"
	// OutcomeDegraded labels escalated cycles that recorded a stage failure.
	OutcomeDegraded = "degraded"
	// OutcomeFailed labels cycles that aborted before any incident handling.
	OutcomeFailed = "failed"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage_engine",
			Name:      "cycles_total",
			Help:      "Total number of triage cycles, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "triage_engine",
			Name:      "cycle_seconds",
			Help:      "Triage cycle latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 90},
		},
	)

	incidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage_engine",
			Name:      "incidents_total",
			Help:      "Total number of incidents opened, partitioned by severity.",
		},
		[]string{"severity"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "triage_engine",
			Name:      "stage_seconds",
			Help:      "Per-stage latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"stage"},
	)
)

// Register attaches the triage collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		cyclesTotal,
		cycleDurationSeconds,
		incidentsTotal,
		stageDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCycle records a cycle duration and outcome label.
func ObserveCycle(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeClosed, OutcomePersisted, OutcomeDegraded, OutcomeFailed:
	default:
		outcome = OutcomeFailed
	}
	cyclesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveIncident counts a newly opened incident.
func ObserveIncident(severity string) {
	incidentsTotal.WithLabelValues(severity).Inc()
}

// ObserveStage records a single stage duration.
func ObserveStage(stage string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}
