package scoring

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"clawmem/internal/logging"
	"clawmem/internal/memstore"
)

// Durability-dependent rescore cadence. Entries are eligible again once this
// interval has elapsed since last_scored_at.
var rescoreInterval = map[string]time.Duration{
	"transient":      24 * time.Hour,
	"project-stable": 3 * 24 * time.Hour,
	"foundational":   7 * 24 * time.Hour,
}

const defaultRescoreInterval = 2 * 24 * time.Hour

// Options bound one scoring run.
type Options struct {
	WindowDays     int
	HalfLifeDays   int
	Alpha          float64
	MaxUpdates     int
	AliasFile      string // workspace-relative or absolute; must stay under workspace
	CheckpointFile string
	DryRun         bool
	Now            time.Time
}

// Result summarizes one run.
type Result struct {
	Candidates int
	Updated    int
}

// Signals holds the per-signal audit values for one scored entry.
type Signals struct {
	GoalRelevance    float64
	Recurrence       float64
	FutureUtility    float64
	PreferenceSignal float64
	Novelty          float64
	Raw              float64
	Decay            float64
	Target           float64
}

type bundle struct {
	path     string
	preamble string
	entries  []*memstore.Entry
}

type candidate struct {
	bundle *bundle
	entry  *memstore.Entry
}

func clamp(v float64) float64 { return math.Max(0, math.Min(1, v)) }

func clampRange(v, low, high float64) float64 { return math.Max(low, math.Min(high, v)) }

// Run selects up to MaxUpdates stale entries from the recent episodic and
// semantic windows, recomputes their importance, and persists the changed
// files plus the checkpoint.
func Run(ws *memstore.Workspace, opts Options) (*Result, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	aliasPath := resolveUnderWorkspace(ws, opts.AliasFile)
	if !ws.Contains(aliasPath) {
		return nil, fmt.Errorf("refusing alias file outside workspace: %s", aliasPath)
	}
	checkpointPath := resolveUnderWorkspace(ws, opts.CheckpointFile)
	if !ws.Contains(checkpointPath) {
		return nil, fmt.Errorf("refusing checkpoint file outside workspace: %s", checkpointPath)
	}
	aliases := LoadAliases(aliasPath)

	bundles, err := loadCandidateBundles(ws, now, opts.WindowDays)
	if err != nil {
		return nil, err
	}

	// First pass: concept recurrence counts and earliest sighting per group.
	conceptCounts := make(map[string]int)
	conceptFirstSeen := make(map[string]time.Time)
	var all []candidate
	for _, b := range bundles {
		for _, entry := range b.entries {
			key := aliases.ConceptKey(entry)
			if key == "" {
				continue
			}
			ts, ok := entry.Time()
			if !ok {
				ts = now
			}
			conceptCounts[key]++
			if first, seen := conceptFirstSeen[key]; !seen || ts.Before(first) {
				conceptFirstSeen[key] = ts
			}
			all = append(all, candidate{bundle: b, entry: entry})
		}
	}

	var due []candidate
	for _, c := range all {
		if shouldRescore(c.entry, now) {
			due = append(due, c)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		li, lj := scoredAt(due[i].entry), scoredAt(due[j].entry)
		if !li.Equal(lj) {
			return li.Before(lj)
		}
		ti, _ := due[i].entry.Time()
		tj, _ := due[j].entry.Time()
		return ti.Before(tj)
	})
	if opts.MaxUpdates >= 0 && len(due) > opts.MaxUpdates {
		due = due[:opts.MaxUpdates]
	}

	res := &Result{Candidates: len(due)}
	changed := make(map[*bundle]bool)
	alpha := clampRange(opts.Alpha, 0.01, 1.0)
	halfLife := opts.HalfLifeDays
	if halfLife < 1 {
		halfLife = 1
	}

	for _, c := range due {
		applyScore(c.entry, aliases, conceptCounts, conceptFirstSeen, now, halfLife, alpha)
		changed[c.bundle] = true
		res.Updated++
	}

	if !opts.DryRun {
		for b := range changed {
			if err := memstore.SaveFile(b.path, b.preamble, b.entries); err != nil {
				return nil, err
			}
		}
		cp := Checkpoint{
			LastRunAt:  memstore.FormatTime(now),
			Updated:    res.Updated,
			MaxUpdates: opts.MaxUpdates,
			WindowDays: opts.WindowDays,
			AliasFile:  aliasPath,
		}
		if err := cp.Save(checkpointPath); err != nil {
			return nil, err
		}
	}

	logging.Scoring("candidates=%d updated=%d window_days=%d", res.Candidates, res.Updated, opts.WindowDays)
	return res, nil
}

// Compute derives the new importance and audit signals for one entry. It is
// a pure function of the entry, its concept group, and the clock.
func Compute(
	entry *memstore.Entry,
	aliases *AliasMap,
	conceptCounts map[string]int,
	conceptFirstSeen map[string]time.Time,
	now time.Time,
	halfLifeDays int,
	alpha float64,
) (float64, Signals, []string, string, string) {
	tags := aliases.CanonicalTags(entry.Tags())
	key := aliases.ConceptKey(entry)
	count := conceptCounts[key]
	if count < 1 {
		count = 1
	}
	firstSeen, ok := conceptFirstSeen[key]
	if !ok {
		firstSeen = now
	}

	lowered := tagSetOf(tags)
	bodyLower := strings.ToLower(entry.Body)

	goal := 0.45
	if intersects(lowered, ProjectTags) || strings.Contains(bodyLower, "openclaw") {
		goal = 0.78
	}
	recurrence := clamp(float64(count-1) / 4.0)
	future := 0.45
	if intersects(lowered, UtilityTags) {
		future = 0.8
	}
	preference := 0.2
	if intersects(lowered, PreferenceTags) || strings.Contains(bodyLower, "prefer") {
		preference = 0.85
	}
	novelty := 0.95
	if count > 1 {
		novelty = clampRange(1.0-float64(count-1)/6.0, 0.15, 1.0)
	}

	raw := 0.35*goal + 0.20*recurrence + 0.20*future + 0.15*preference + 0.10*novelty

	scope := InferScope(tags, entry.Body, strings.ToLower(strings.TrimSpace(entry.Meta["scope"])))
	durability := InferDurability(tags, entry.Body, strings.ToLower(strings.TrimSpace(entry.Meta["durability"])))

	ageDays := math.Max(now.Sub(firstSeen).Hours()/24.0, 0)
	var decay float64
	switch durability {
	case "foundational":
		decay = 1.0
	case "project-stable":
		decay = math.Pow(0.5, ageDays/float64(2*halfLifeDays))
	default:
		decay = math.Pow(0.5, ageDays/float64(halfLifeDays))
	}

	target := clamp(raw * decay)
	old := entry.Float("importance", target)
	next := clamp((1-alpha)*old + alpha*target)
	if entry.Status() == memstore.StatusHistorical {
		next = clamp(next * 0.65)
	}

	sig := Signals{
		GoalRelevance:    goal,
		Recurrence:       recurrence,
		FutureUtility:    future,
		PreferenceSignal: preference,
		Novelty:          novelty,
		Raw:              raw,
		Decay:            decay,
		Target:           target,
	}
	return next, sig, tags, scope, durability
}

func applyScore(
	entry *memstore.Entry,
	aliases *AliasMap,
	conceptCounts map[string]int,
	conceptFirstSeen map[string]time.Time,
	now time.Time,
	halfLifeDays int,
	alpha float64,
) {
	next, sig, tags, scope, durability := Compute(entry, aliases, conceptCounts, conceptFirstSeen, now, halfLifeDays, alpha)

	entry.Meta["importance"] = fmt.Sprintf("%.2f", next)
	entry.SetTags(tags)
	entry.Meta["scope"] = scope
	entry.Meta["durability"] = durability
	entry.Meta["last_scored_at"] = memstore.FormatTime(now)
	if _, ok := entry.Meta["valid_until"]; !ok {
		entry.Meta["valid_until"] = "none"
	}
	entry.Meta["score_goal"] = fmt.Sprintf("%.4f", sig.GoalRelevance)
	entry.Meta["score_recurrence"] = fmt.Sprintf("%.4f", sig.Recurrence)
	entry.Meta["score_future"] = fmt.Sprintf("%.4f", sig.FutureUtility)
	entry.Meta["score_preference"] = fmt.Sprintf("%.4f", sig.PreferenceSignal)
	entry.Meta["score_novelty"] = fmt.Sprintf("%.4f", sig.Novelty)
}

func shouldRescore(entry *memstore.Entry, now time.Time) bool {
	last, ok := memstore.ParseISOTime(entry.Meta["last_scored_at"])
	if !ok {
		return true
	}
	durability := strings.ToLower(strings.TrimSpace(entry.Meta["durability"]))
	interval, ok := rescoreInterval[durability]
	if !ok {
		interval = defaultRescoreInterval
	}
	return now.Sub(last) >= interval
}

func scoredAt(entry *memstore.Entry) time.Time {
	if ts, ok := memstore.ParseISOTime(entry.Meta["last_scored_at"]); ok {
		return ts
	}
	return time.Unix(0, 0).UTC()
}

// loadCandidateBundles gathers episodic day files and semantic month files
// whose dates fall within the window. Unreadable files are skipped with a
// warning.
func loadCandidateBundles(ws *memstore.Workspace, now time.Time, windowDays int) ([]*bundle, error) {
	cutoffDay := now.AddDate(0, 0, -windowDays)
	var bundles []*bundle

	epiFiles, err := memstore.ListEntryFiles(ws.EpisodicDir())
	if err != nil {
		return nil, err
	}
	for _, path := range epiFiles {
		if day, ok := memstore.DateFromFileName(path); ok && day.Before(truncateDay(cutoffDay)) {
			continue
		}
		appendBundle(&bundles, path)
	}

	semFiles, err := memstore.ListEntryFiles(ws.SemanticDir())
	if err != nil {
		return nil, err
	}
	cutoffMonth := time.Date(cutoffDay.Year(), cutoffDay.Month(), 1, 0, 0, 0, 0, time.UTC)
	for _, path := range semFiles {
		if month, ok := memstore.MonthFromFileName(path); ok && month.Before(cutoffMonth) {
			continue
		}
		appendBundle(&bundles, path)
	}
	return bundles, nil
}

func appendBundle(bundles *[]*bundle, path string) {
	preamble, entries, err := memstore.ParseFile(path)
	if err != nil {
		logging.Get(logging.CategoryScoring).Warn("skipping unreadable %s: %v", path, err)
		return
	}
	*bundles = append(*bundles, &bundle{path: path, preamble: preamble, entries: entries})
}

func truncateDay(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

func resolveUnderWorkspace(ws *memstore.Workspace, path string) string {
	if path == "" {
		return ws.Root
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(ws.Root, path)
	}
	return filepath.Clean(path)
}
