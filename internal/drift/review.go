package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"clawmem/internal/logging"
	"clawmem/internal/memstore"
)

// ReviewOptions bound one drift review run.
type ReviewOptions struct {
	WindowDays    int
	OlderDays     int // older-side window depth; entries in [WindowDays, WindowDays+OlderDays]
	MaxCandidates int
	MinConfidence float64
	Workers       int
	SlidingWindow bool

	SimilarityThreshold float64
	Oracle              SimilarityOracle

	// Classifier is the primary classifier (usually the cached LLM client).
	// FallbackOnError retries failed pairs with the heuristic classifier.
	Classifier      Classifier
	FallbackOnError bool

	CheckpointFile string
	DryRun         bool
	Now            time.Time
}

// ReviewResult summarizes one drift run.
type ReviewResult struct {
	Candidates int
	Changed    int
	Report     *Report
}

// Review runs the full drift pipeline: candidate generation, bounded
// parallel classification, and atomic application of SUPERSEDES decisions,
// followed by the drift log append and checkpoint update. The caller holds
// the cadence lock.
func Review(ws *memstore.Workspace, opts ReviewOptions) (*ReviewResult, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	entries, err := LoadSemanticEntries(ws)
	if err != nil {
		return nil, err
	}

	olderDays := opts.OlderDays
	if olderDays <= 0 {
		olderDays = 30
	}
	gen := &Generator{
		RecentDays:          opts.WindowDays,
		MaxCandidates:       opts.MaxCandidates,
		SimilarityThreshold: opts.SimilarityThreshold,
		SlidingWindow:       opts.SlidingWindow,
		Oracle:              opts.Oracle,
	}
	candidates := gen.Generate(entries, opts.WindowDays+olderDays, time.Time{})

	res := &ReviewResult{Candidates: len(candidates), Report: newReport()}
	if len(candidates) == 0 {
		logging.Drift("no candidates to evaluate")
		if err := updateCheckpoint(ws, opts.CheckpointFile, now, opts.DryRun); err != nil {
			return nil, err
		}
		return res, nil
	}

	results := classifyAll(candidates, opts)

	engine := NewEngine(ws, opts.MinConfidence, opts.DryRun)
	report := engine.ProcessBatch(candidates, results, now)
	res.Report = report
	for _, action := range report.Actions {
		if action.Relation == RelationSupersedes && action.Applied {
			res.Changed++
		}
	}

	if err := appendDriftLog(ws, report.LogLines(), opts.DryRun); err != nil {
		return nil, err
	}
	if err := updateCheckpoint(ws, opts.CheckpointFile, now, opts.DryRun); err != nil {
		return nil, err
	}

	logging.Drift("review done: %s changed=%d", report.Summary(), res.Changed)
	return res, nil
}

// classifyAll classifies every candidate with a bounded worker pool.
// Classification is embarrassingly parallel; the caches are thread-safe and
// result order matches candidate order.
func classifyAll(candidates []*CandidatePair, opts ReviewOptions) []Result {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(candidates))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, cand := range candidates {
		g.Go(func() error {
			newer, older := orderPair(cand)
			res := opts.Classifier.Classify(context.Background(), newer, older)
			if res.Err != nil && opts.FallbackOnError {
				logging.DriftDebug("falling back to heuristic for %s:%s: %v", newer.ID, older.ID, res.Err)
				res = HeuristicClassifier{}.Classify(context.Background(), newer, older)
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()
	return results
}

// appendDriftLog appends ledger lines to memory/drift-log.md. The file is
// rewritten atomically with the new lines appended.
func appendDriftLog(ws *memstore.Workspace, lines []string, dryRun bool) error {
	if len(lines) == 0 || dryRun {
		return nil
	}
	path := ws.DriftLogPath()
	existing := ""
	if data, err := os.ReadFile(path); err == nil {
		existing = strings.TrimRight(string(data), "\n") + "\n\n"
	}
	payload := existing + strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
	return memstore.WriteFileAtomic(path, []byte(payload), 0o644)
}

// driftCheckpoint mirrors memory/state/drift-review-checkpoint.json.
type driftCheckpoint struct {
	LastRun string `json:"last_run"`
	Version string `json:"version"`
}

func updateCheckpoint(ws *memstore.Workspace, file string, now time.Time, dryRun bool) error {
	if dryRun {
		return nil
	}
	if file == "" {
		file = "memory/state/drift-review-checkpoint.json"
	}
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(ws.Root, file)
	}
	data, err := json.MarshalIndent(driftCheckpoint{
		LastRun: memstore.FormatTime(now),
		Version: "2.0",
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return memstore.WriteFileAtomic(path, append(data, '\n'), 0o644)
}
