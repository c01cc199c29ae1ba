package summarize

import (
	"fmt"
	"testing"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
)

func TestLogSummarizeCollapsesRepeatedTemplates(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	events := make([]models.LogEvent, 0, 50)
	for i := 0; i < 50; i++ {
		events = append(events, models.LogEvent{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Message:   fmt.Sprintf("ERROR timeout contacting inventory service for order %04d", i),
		})
	}

	summary := NewLogSummarizer(8, 4).Summarize(events)
	if summary.Total != 50 {
		t.Fatalf("expected total 50, got %d", summary.Total)
	}
	if len(summary.Samples) != 1 {
		t.Fatalf("expected one collapsed sample, got %d", len(summary.Samples))
	}
	sample := summary.Samples[0]
	if sample.Count != 50 {
		t.Fatalf("expected count 50, got %d", sample.Count)
	}
	if sample.Level != "ERROR" {
		t.Fatalf("expected ERROR level, got %s", sample.Level)
	}
	if sample.FirstSeen != base || sample.LastSeen != base.Add(49*time.Second) {
		t.Fatalf("unexpected seen range: %v .. %v", sample.FirstSeen, sample.LastSeen)
	}
	if summary.Dropped != 0 {
		t.Fatalf("collapsed events are represented, not dropped; got %d", summary.Dropped)
	}
}

func TestLogSummarizeErrorSignaturesAlwaysSurvive(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	var events []models.LogEvent
	// More distinct error signatures than the cap allows.
	for i := 0; i < 6; i++ {
		events = append(events, models.LogEvent{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Message:   fmt.Sprintf("ERROR failure mode alpha%c in shard", 'a'+rune(i)),
		})
	}

	summary := NewLogSummarizer(2, 4).Summarize(events)
	errors := 0
	for _, s := range summary.Samples {
		if s.Level == "ERROR" {
			errors++
		}
	}
	if errors != 6 {
		t.Fatalf("expected every distinct error signature kept, got %d of 6", errors)
	}
}

func TestLogSummarizeSamplesInfoEvenly(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	var events []models.LogEvent
	for i := 0; i < 20; i++ {
		events = append(events, models.LogEvent{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Message:   fmt.Sprintf("processed request variant %c", 'a'+rune(i)),
		})
	}

	summary := NewLogSummarizer(8, 4).Summarize(events)
	if len(summary.Samples) != 4 {
		t.Fatalf("expected 4 sampled info entries, got %d", len(summary.Samples))
	}
	if summary.Dropped != 16 {
		t.Fatalf("expected 16 dropped, got %d", summary.Dropped)
	}
}

func TestLogSummarizeStructuredJSONLines(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0).UTC()
	events := []models.LogEvent{
		{Timestamp: ts, Message: `{"level":"CRITICAL","message":"order pipeline halted"}`},
		{Timestamp: ts, Message: `{"level":"INFO","message":"order 1234 processed"}`},
	}

	summary := NewLogSummarizer(8, 4).Summarize(events)
	var foundCritical bool
	for _, s := range summary.Samples {
		if s.Level == "CRITICAL" && s.Message == "order pipeline halted" {
			foundCritical = true
		}
	}
	if !foundCritical {
		t.Fatalf("structured critical line not detected: %+v", summary.Samples)
	}
}

func TestLogSummarizeEmptyInput(t *testing.T) {
	summary := NewLogSummarizer(0, 0).Summarize(nil)
	if summary.Total != 0 || len(summary.Samples) != 0 || summary.Dropped != 0 {
		t.Fatalf("expected zero-count summary, got %+v", summary)
	}
}

func TestSignatureCollapsesInterpolatedValues(t *testing.T) {
	a := Signature("timeout contacting inventory service for order 1042")
	b := Signature("Timeout contacting inventory service for order 9001")
	if a != b {
		t.Fatalf("signatures differ: %q vs %q", a, b)
	}
	c := Signature("request 550e8400-e29b-41d4-a716-446655440000 failed")
	d := Signature("request 6ba7b810-9dad-11d1-80b4-00c04fd430c8 failed")
	if c != d {
		t.Fatalf("uuid signatures differ: %q vs %q", c, d)
	}
}
