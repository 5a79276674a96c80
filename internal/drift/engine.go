package drift

import (
	"fmt"
	"sort"
	"time"

	"clawmem/internal/logging"
	"clawmem/internal/memstore"
)

// Action records one decision taken on a classified pair.
type Action struct {
	Timestamp    string
	Relation     Relation
	NewerID      string
	OlderID      string
	Confidence   float64
	Reasoning    string
	Applied      bool
	ErrorMessage string
}

// Report accumulates the outcomes of one engine batch. Per-pair failures
// are collected; they never abort the batch.
type Report struct {
	TotalEvaluated int
	Actions        []*Action
	Errors         []string
	ByRelation     map[Relation]int
	FilesModified  map[string]bool
}

func newReport() *Report {
	return &Report{
		ByRelation:    make(map[Relation]int),
		FilesModified: make(map[string]bool),
	}
}

// LogLines renders the ledger lines for the drift log, one per recorded
// decision, UNRELATED included.
func (r *Report) LogLines() []string {
	var lines []string
	for _, a := range r.Actions {
		switch a.Relation {
		case RelationSupersedes, RelationRefines, RelationReinforces, RelationUnrelated:
			lines = append(lines, fmt.Sprintf("- %s %s new=mem:%s old=mem:%s conf=%.2f",
				a.Timestamp, a.Relation, a.NewerID, a.OlderID, a.Confidence))
		}
	}
	return lines
}

// Summary renders the key=value counts for the job's stdout line.
func (r *Report) Summary() string {
	s := fmt.Sprintf("evaluated=%d actions=%d errors=%d", r.TotalEvaluated, len(r.Actions), len(r.Errors))
	relations := make([]Relation, 0, len(r.ByRelation))
	for rel := range r.ByRelation {
		relations = append(relations, rel)
	}
	sort.Slice(relations, func(i, j int) bool { return relations[i] < relations[j] })
	for _, rel := range relations {
		s += fmt.Sprintf(" %s=%d", rel, r.ByRelation[rel])
	}
	return s
}

// Engine applies classification results to the memory files. SUPERSEDES
// transitions mutate two entries; everything else is log-only.
type Engine struct {
	Workspace     *memstore.Workspace
	MinConfidence float64
	DryRun        bool

	report *Report
	// id -> file index over the semantic directory, built on first use and
	// invalidated per batch. SUPERSEDES applications rewrite file contents
	// but never move entries between files, so the map stays valid within
	// one batch.
	index *memstore.Index
}

// NewEngine creates an engine over a workspace.
func NewEngine(ws *memstore.Workspace, minConfidence float64, dryRun bool) *Engine {
	return &Engine{Workspace: ws, MinConfidence: minConfidence, DryRun: dryRun}
}

// ProcessBatch walks every (candidate, result) pair, records a decision for
// those above the confidence floor, and applies SUPERSEDES transitions. It
// always returns a report; single-pair failures accumulate in it.
func (e *Engine) ProcessBatch(pairs []*CandidatePair, results []Result, now time.Time) *Report {
	e.report = newReport()
	e.index = nil
	if now.IsZero() {
		now = time.Now().UTC()
	}

	for i, cand := range pairs {
		if i >= len(results) {
			break
		}
		res := results[i]
		e.report.TotalEvaluated++
		if res.Err != nil {
			e.report.Errors = append(e.report.Errors,
				fmt.Sprintf("classify %s:%s: %v", cand.A.ID, cand.B.ID, res.Err))
			continue
		}
		e.report.ByRelation[res.Relation]++
		if res.Confidence < e.MinConfidence {
			continue
		}

		newer, older := orderPair(cand)
		action := &Action{
			Timestamp:  now.UTC().Format("2006-01-02"),
			Relation:   res.Relation,
			NewerID:    newer.ID,
			OlderID:    older.ID,
			Confidence: res.Confidence,
			Reasoning:  res.Reasoning,
		}
		e.report.Actions = append(e.report.Actions, action)

		if err := e.apply(action); err != nil {
			action.ErrorMessage = err.Error()
			e.report.Errors = append(e.report.Errors,
				fmt.Sprintf("apply %s for %s:%s: %v", action.Relation, action.NewerID, action.OlderID, err))
		}
	}
	return e.report
}

func orderPair(cand *CandidatePair) (*SemanticEntry, *SemanticEntry) {
	if !cand.A.Timestamp.Before(cand.B.Timestamp) {
		return cand.A, cand.B
	}
	return cand.B, cand.A
}

func (e *Engine) apply(action *Action) error {
	if action.Relation != RelationSupersedes {
		// REFINES / REINFORCES / UNRELATED never mutate entries.
		action.Applied = true
		return nil
	}
	if e.DryRun {
		action.Applied = true
		return nil
	}

	olderFile, newerFile, err := e.locate(action.OlderID, action.NewerID)
	if err != nil {
		return err
	}

	if err := e.updateEntry(olderFile, action.OlderID, func(entry *memstore.Entry) {
		entry.SetStatus(memstore.StatusHistorical)
	}); err != nil {
		return fmt.Errorf("older entry %s: %w", action.OlderID, err)
	}
	if err := e.updateEntry(newerFile, action.NewerID, func(entry *memstore.Entry) {
		entry.SetSupersedes(action.OlderID)
	}); err != nil {
		return fmt.Errorf("newer entry %s: %w", action.NewerID, err)
	}
	action.Applied = true
	logging.Drift("SUPERSEDES applied new=mem:%s old=mem:%s", action.NewerID, action.OlderID)
	return nil
}

// locate resolves both ids through the semantic-directory index, building
// it on first use.
func (e *Engine) locate(olderID, newerID string) (string, string, error) {
	if e.index == nil {
		idx, err := memstore.BuildIndexDirs(e.Workspace.SemanticDir())
		if err != nil {
			return "", "", err
		}
		e.index = idx
	}
	olderFile, ok := e.index.Locate(olderID)
	if !ok {
		return "", "", fmt.Errorf("could not locate file for entry %s", olderID)
	}
	newerFile, ok := e.index.Locate(newerID)
	if !ok {
		return "", "", fmt.Errorf("could not locate file for entry %s", newerID)
	}
	return olderFile, newerFile, nil
}

func (e *Engine) updateEntry(path, id string, mutate func(*memstore.Entry)) error {
	preamble, entries, err := memstore.ParseFile(path)
	if err != nil {
		return err
	}
	found := false
	for _, entry := range entries {
		if entry.ID == id {
			mutate(entry)
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("entry not found in %s", path)
	}
	if err := memstore.SaveFile(path, preamble, entries); err != nil {
		return err
	}
	e.report.FilesModified[path] = true
	return nil
}
