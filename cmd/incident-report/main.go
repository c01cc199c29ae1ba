// Command incident-report prints persisted incident summaries from the
// on-disk store, newest first.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/recorder"
	"github.com/triagestack/triage-engine/internal/utils"
)

func main() {
	var (
		dir      string
		since    string
		severity string
		asJSON   bool
	)
	flag.StringVar(&dir, "dir", "data/incidents", "Incident store directory")
	flag.StringVar(&since, "since", "", "Only incidents created at or after this RFC3339 time")
	flag.StringVar(&severity, "severity", "", "Only incidents at or above this severity")
	flag.BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	flag.Parse()

	summaries, err := recorder.ListSummaries(dir)
	if err != nil {
		slog.Error("failed to read incident store", slog.String("dir", dir), slog.Any("error", err))
		os.Exit(1)
	}

	if since != "" {
		cutoff, err := utils.ParseRFC3339(since)
		if err != nil {
			slog.Error("invalid -since value", slog.Any("error", err))
			os.Exit(1)
		}
		filtered := summaries[:0]
		for _, s := range summaries {
			if !s.CreatedAt.Before(cutoff) {
				filtered = append(filtered, s)
			}
		}
		summaries = filtered
	}
	if severity != "" {
		floor, err := models.ParseSeverity(severity)
		if err != nil {
			slog.Error("invalid -severity value", slog.Any("error", err))
			os.Exit(1)
		}
		filtered := summaries[:0]
		for _, s := range summaries {
			if s.Severity.AtLeast(floor) {
				filtered = append(filtered, s)
			}
		}
		summaries = filtered
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			slog.Error("encode summaries", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if len(summaries) == 0 {
		fmt.Println("no incidents recorded")
		return
	}
	for _, s := range summaries {
		fmt.Printf("%s  [%s]  %s\n", s.ID, strings.ToUpper(s.Severity.String()), s.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
		fmt.Printf("  window: %.0f minutes ending %s\n",
			utils.DurationMinutes(s.Window.Start, s.Window.End), s.Window.End.Format("15:04:05"))
		if s.RootCause != "" {
			fmt.Printf("  root cause: %s\n", s.RootCause)
		}
		for _, rec := range s.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
		fmt.Println()
	}
}
