package source

import (
	"context"
	"fmt"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
)

// SyntheticSource generates a deterministic, index-based telemetry series
// shaped like the order-pipeline workload. Useful for local development and
// tests when no CloudWatch access is available.
type SyntheticSource struct {
	// Degrade makes the tail of each window look unhealthy, pushing
	// CPU and error rate past typical critical thresholds.
	Degrade bool
}

// FetchMetricSamples emits 15 datapoints per metric across the window.
func (s *SyntheticSource) FetchMetricSamples(_ context.Context, window models.TimeWindow) ([]models.MetricSample, error) {
	start, end := normalizeWindow(window)
	step := end.Sub(start) / 15
	if step <= 0 {
		step = time.Minute
	}

	samples := make([]models.MetricSample, 0, 5*15)
	for i := 0; i < 15; i++ {
		ts := start.Add(time.Duration(i) * step)
		cpu := 35.0 + 1.5*float64(i)
		mem := 480.0 + 4.0*float64(i)
		latency := 120.0 + 6.0*float64(i%5)
		errRate := 0.4 + 0.1*float64(i%3)
		retries := float64(i % 4)
		if s.Degrade && i > 10 {
			cpu += 55
			latency += 900
			errRate += 9
			retries += 6
		}
		samples = append(samples,
			models.MetricSample{Name: "CPUUtilization", Timestamp: ts, Value: cpu, Unit: "Percent"},
			models.MetricSample{Name: "MemoryUsageMB", Timestamp: ts, Value: mem, Unit: "Megabytes"},
			models.MetricSample{Name: "OrderLatencyMS", Timestamp: ts, Value: latency, Unit: "Milliseconds"},
			models.MetricSample{Name: "ErrorRate", Timestamp: ts, Value: errRate, Unit: "Percent"},
			models.MetricSample{Name: "RetryCount", Timestamp: ts, Value: retries, Unit: "Count"},
		)
	}
	return samples, nil
}

// FetchLogEvents emits structured JSON lines resembling the order-pipeline
// lambda logs, with a burst of errors at the tail when Degrade is set.
func (s *SyntheticSource) FetchLogEvents(_ context.Context, window models.TimeWindow) ([]models.LogEvent, error) {
	start, end := normalizeWindow(window)
	step := end.Sub(start) / 12
	if step <= 0 {
		step = time.Minute
	}

	events := make([]models.LogEvent, 0, 12)
	for i := 0; i < 12; i++ {
		ts := start.Add(time.Duration(i) * step)
		level := "INFO"
		message := fmt.Sprintf("order %04d processed", 1000+i)
		if i%4 == 3 {
			level = "WARNING"
			message = fmt.Sprintf("retrying payment gateway call for order %04d", 1000+i)
		}
		if s.Degrade && i >= 9 {
			level = "ERROR"
			message = fmt.Sprintf("timeout contacting inventory service for order %04d", 1000+i)
		}
		events = append(events, models.LogEvent{
			Timestamp: ts,
			Message:   fmt.Sprintf(`{"level":%q,"message":%q,"service":"order-pipeline"}`, level, message),
			Stream:    "synthetic/order-pipeline",
		})
	}
	return events, nil
}

func normalizeWindow(window models.TimeWindow) (time.Time, time.Time) {
	start, end := window.Start, window.End
	if start.IsZero() || end.IsZero() || !end.After(start) {
		end = time.Now().UTC()
		start = end.Add(-15 * time.Minute)
	}
	return start, end
}
