// Package extract promotes high-importance episodic entries into derived
// semantic entries. It runs hourly and is idempotent: an episodic entry that
// is already referenced by a semantic entry's origin_id in the same month
// file is never promoted twice.
package extract

import (
	"fmt"
	"strings"
	"time"

	"clawmem/internal/logging"
	"clawmem/internal/memstore"
)

// SourceTag marks entries created by this job.
const SourceTag = "job:hourly-semantic-extract"

const summaryLimit = 280

// Options bound one extraction run.
type Options struct {
	LookbackHours int
	Threshold     float64
	DryRun        bool
	Now           time.Time
}

// Result summarizes one run.
type Result struct {
	Promoted int
}

// Summarize normalizes whitespace and bounds the semantic body length.
func Summarize(body string) string {
	text := strings.Join(strings.Fields(body), " ")
	if len(text) <= summaryLimit {
		return text
	}
	return strings.TrimRight(text[:summaryLimit-3], " ") + "..."
}

// Run walks the lookback window day by day and emits one semantic entry per
// qualifying episodic entry.
func Run(ws *memstore.Workspace, opts Options) (*Result, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	daysBack := (opts.LookbackHours + 23) / 24
	if daysBack < 1 {
		daysBack = 1
	}

	res := &Result{}
	for offset := 0; offset < daysBack; offset++ {
		day := now.AddDate(0, 0, -offset)
		if err := extractDay(ws, day, opts, now, res); err != nil {
			return nil, err
		}
	}
	logging.Extract("promoted=%d lookback_hours=%d threshold=%.2f", res.Promoted, opts.LookbackHours, opts.Threshold)
	return res, nil
}

func extractDay(ws *memstore.Workspace, day time.Time, opts Options, now time.Time, res *Result) error {
	epiPath := ws.EpisodicFile(day)
	_, episodic, err := memstore.ParseFile(epiPath)
	if err != nil {
		logging.Get(logging.CategoryExtract).Warn("skipping unreadable %s: %v", epiPath, err)
		return nil
	}
	if len(episodic) == 0 {
		return nil
	}

	semPath := ws.SemanticFile(day)
	semPreamble, semantic, err := memstore.ParseFile(semPath)
	if err != nil {
		return fmt.Errorf("parse %s: %w", semPath, err)
	}
	existingOrigins := make(map[string]bool, len(semantic))
	for _, entry := range semantic {
		if origin := strings.TrimSpace(entry.Meta["origin_id"]); origin != "" {
			existingOrigins[origin] = true
		}
	}

	dayPromoted := 0
	for _, entry := range episodic {
		importance := entry.Float("importance", 0)
		if importance < opts.Threshold {
			continue
		}
		if existingOrigins[entry.ID] {
			continue
		}
		summary := Summarize(entry.Body)
		if summary == "" {
			continue
		}

		derived := memstore.NewEntry(memstore.NewMemID())
		derived.Meta["time"] = memstore.FormatTime(now)
		derived.Meta["layer"] = memstore.LayerSemantic.String()
		derived.Meta["importance"] = fmt.Sprintf("%.2f", max(importance, opts.Threshold))
		derived.Meta["confidence"] = fmt.Sprintf("%.2f", entry.Float("confidence", 0.65))
		derived.Meta["status"] = memstore.StatusActive.String()
		derived.Meta["source"] = SourceTag
		derived.SetTags(entry.Tags())
		derived.Meta["supersedes"] = "none"
		derived.Meta["origin_id"] = entry.ID
		derived.Body = fmt.Sprintf("Derived from mem:%s. %s", entry.ID, summary)

		semantic = append(semantic, derived)
		existingOrigins[entry.ID] = true
		res.Promoted++
		dayPromoted++
	}

	if dayPromoted > 0 && !opts.DryRun {
		if err := memstore.SaveFile(semPath, semPreamble, semantic); err != nil {
			return err
		}
	}
	return nil
}
