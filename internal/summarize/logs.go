package summarize

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/triagestack/triage-engine/internal/models"
)

const (
	defaultMaxErrorSamples = 8
	defaultMaxInfoSamples  = 4
)

// LogSummarizer reduces raw log events into a bounded set of representative
// samples. Error and warning events are kept preferentially; informational
// events are sampled. Messages differing only by interpolated values collapse
// to one representative, so a repeating error cannot dominate the summary.
type LogSummarizer struct {
	maxErrorSamples int
	maxInfoSamples  int
}

// NewLogSummarizer creates a log reducer with the given sample caps.
// Non-positive caps fall back to defaults.
func NewLogSummarizer(maxErrorSamples, maxInfoSamples int) *LogSummarizer {
	if maxErrorSamples <= 0 {
		maxErrorSamples = defaultMaxErrorSamples
	}
	if maxInfoSamples <= 0 {
		maxInfoSamples = defaultMaxInfoSamples
	}
	return &LogSummarizer{
		maxErrorSamples: maxErrorSamples,
		maxInfoSamples:  maxInfoSamples,
	}
}

type logGroup struct {
	level     string
	severity  models.Severity
	signature string
	sample    models.LogSample
	order     int
}

// Summarize partitions events by detected level, collapses repeated message
// templates, and applies the sample caps. The cap on elevated samples is a
// soft bound: every distinct error-class signature keeps one representative
// even when that exceeds the cap. Empty input yields a zero-count summary.
func (s *LogSummarizer) Summarize(events []models.LogEvent) models.LogSummary {
	summary := models.LogSummary{Total: len(events)}
	if len(events) == 0 {
		return summary
	}

	groups := make(map[string]*logGroup)
	ordered := make([]*logGroup, 0)

	for _, event := range events {
		level, text := detectLevel(event.Message)
		signature := Signature(text)
		key := level + "|" + signature

		g, ok := groups[key]
		if !ok {
			g = &logGroup{
				level:     level,
				severity:  models.SeverityFromLogLevel(level),
				signature: signature,
				order:     len(ordered),
				sample: models.LogSample{
					Level:     level,
					Signature: signature,
					Message:   text,
					FirstSeen: event.Timestamp,
					LastSeen:  event.Timestamp,
				},
			}
			groups[key] = g
			ordered = append(ordered, g)
		}
		g.sample.Count++
		if event.Timestamp.Before(g.sample.FirstSeen) {
			g.sample.FirstSeen = event.Timestamp
		}
		if event.Timestamp.After(g.sample.LastSeen) {
			g.sample.LastSeen = event.Timestamp
		}
	}

	var elevated, info []*logGroup
	for _, g := range ordered {
		if g.severity >= models.SeverityWarning {
			elevated = append(elevated, g)
		} else {
			info = append(info, g)
		}
	}

	sort.SliceStable(elevated, func(i, j int) bool {
		if elevated[i].severity != elevated[j].severity {
			return elevated[i].severity > elevated[j].severity
		}
		if elevated[i].sample.Count != elevated[j].sample.Count {
			return elevated[i].sample.Count > elevated[j].sample.Count
		}
		return elevated[i].order < elevated[j].order
	})

	kept := make([]models.LogSample, 0, len(elevated)+s.maxInfoSamples)
	for _, g := range elevated {
		// Error-class signatures always survive; warnings honor the cap.
		if g.severity >= models.SeverityHigh || len(kept) < s.maxErrorSamples {
			kept = append(kept, g.sample)
		}
	}

	sort.SliceStable(info, func(i, j int) bool {
		return info[i].order < info[j].order
	})
	for _, idx := range sampleIndices(len(info), s.maxInfoSamples) {
		kept = append(kept, info[idx].sample)
	}

	included := 0
	for _, sample := range kept {
		included += sample.Count
	}

	summary.Samples = kept
	summary.Dropped = summary.Total - included
	return summary
}

// sampleIndices picks up to limit evenly spaced positions out of n.
func sampleIndices(n, limit int) []int {
	if n <= limit {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	indices := make([]int, 0, limit)
	for i := 0; i < limit; i++ {
		indices = append(indices, i*n/limit)
	}
	return indices
}

// detectLevel extracts the log level and the human message from a raw line.
// Structured lines carry a JSON payload, possibly behind a tab-separated
// CloudWatch prefix; plain lines are scanned for level tokens.
func detectLevel(raw string) (level, text string) {
	if idx := strings.IndexByte(raw, '{'); idx >= 0 {
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw[idx:]), &payload); err == nil {
			level, _ = payload["level"].(string)
			text, _ = payload["message"].(string)
			if level == "" {
				level = "INFO"
			}
			if text == "" {
				text = raw
			}
			return strings.ToUpper(level), text
		}
	}

	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "CRITICAL") || strings.Contains(upper, "FATAL"):
		return "CRITICAL", raw
	case strings.Contains(upper, "ERROR") || strings.Contains(upper, "TIMEOUT"):
		return "ERROR", raw
	case strings.Contains(upper, "WARN"):
		return "WARNING", raw
	default:
		return "INFO", raw
	}
}

var (
	uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	hexPattern  = regexp.MustCompile(`\b[0-9a-fA-F]{8,}\b`)
	numPattern  = regexp.MustCompile(`\d+(\.\d+)?`)
	wsPattern   = regexp.MustCompile(`\s+`)
)

// Signature collapses interpolated values out of a message so that instances
// of the same template compare equal.
func Signature(message string) string {
	sig := strings.ToLower(message)
	sig = uuidPattern.ReplaceAllString(sig, "<id>")
	sig = hexPattern.ReplaceAllString(sig, "<id>")
	sig = numPattern.ReplaceAllString(sig, "<n>")
	sig = wsPattern.ReplaceAllString(sig, " ")
	return strings.TrimSpace(sig)
}
