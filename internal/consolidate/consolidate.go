// Package consolidate implements the daily maintenance pass: semantic
// dedup, episodic pruning, expiry sweep, legacy transcript migration, and
// the redacted transcript mirror rebuild. Everything runs under one cadence
// lock; each file write is individually atomic.
package consolidate

import (
	"fmt"
	"os"
	"time"

	"clawmem/internal/logging"
	"clawmem/internal/memstore"
)

// Options bound one consolidation run.
type Options struct {
	EpisodicRetentionDays   int
	TranscriptRetentionDays int
	TranscriptRoot          string
	TranscriptMode          string // sanitized | full | off
	SessionsDir             string
	AllowUnderMemory        bool
	AllowExternalRoot       bool
	AcknowledgeRisk         bool
	DryRun                  bool
	Now                     time.Time
}

// Result summarizes one run.
type Result struct {
	SemanticDeduped    int
	EpisodicPruned     int
	ExpiredEpisodic    int
	ExpiredSemantic    int
	TranscriptsWritten int
	TranscriptsRemoved int
	LegacyMigrated     int
	LegacyConflicts    int
	TranscriptRoot     string
}

// Validate applies the transcript-root safety policy before any lock is
// taken or file touched. Violations are fatal config errors.
func (o *Options) Validate(ws *memstore.Workspace) (string, error) {
	var risky []string
	if o.TranscriptMode == "full" {
		risky = append(risky, "transcript-mode=full")
	}
	if o.AllowExternalRoot {
		risky = append(risky, "allow-external-transcript-root")
	}
	if o.AllowUnderMemory {
		risky = append(risky, "allow-transcripts-under-memory")
	}
	if len(risky) > 0 && !o.AcknowledgeRisk {
		return "", fmt.Errorf("refusing risky transcript options without explicit acknowledgment: %v", risky)
	}

	root := ws.ResolveTranscriptRoot(o.TranscriptRoot)
	if !ws.Contains(root) && !o.AllowExternalRoot {
		return "", fmt.Errorf("refusing transcript root outside workspace: %s", root)
	}
	if memstore.IsUnderRoot(root, ws.MemoryDir()) && !o.AllowUnderMemory {
		return "", fmt.Errorf("refusing transcript root under memory/: %s", root)
	}
	return root, nil
}

// Run executes the consolidation steps in order. The caller holds the
// cadence lock.
func Run(ws *memstore.Workspace, opts Options) (*Result, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	root, err := opts.Validate(ws)
	if err != nil {
		return nil, err
	}

	res := &Result{TranscriptRoot: root}

	res.LegacyMigrated, res.LegacyConflicts, err = migrateLegacyTranscripts(ws, root, opts.DryRun)
	if err != nil {
		return nil, err
	}

	res.SemanticDeduped, err = dedupSemantic(ws, opts.DryRun)
	if err != nil {
		return nil, err
	}

	res.EpisodicPruned, err = pruneEpisodic(ws, opts.EpisodicRetentionDays, now, opts.DryRun)
	if err != nil {
		return nil, err
	}

	res.ExpiredEpisodic, res.ExpiredSemantic, err = sweepExpired(ws, now, opts.DryRun)
	if err != nil {
		return nil, err
	}

	res.TranscriptsWritten, res.TranscriptsRemoved, err = buildMirror(ws, root, opts, now)
	if err != nil {
		return nil, err
	}

	logging.Consolidate(
		"deduped=%d pruned=%d expired_epi=%d expired_sem=%d written=%d removed=%d",
		res.SemanticDeduped, res.EpisodicPruned, res.ExpiredEpisodic, res.ExpiredSemantic,
		res.TranscriptsWritten, res.TranscriptsRemoved,
	)
	return res, nil
}

// dedupSemantic keeps one entry per canonical body per month file: highest
// importance wins, ties broken by status rank. A winner with no supersedes
// pointer inherits the loser's.
func dedupSemantic(ws *memstore.Workspace, dryRun bool) (int, error) {
	idx, err := memstore.BuildIndexDirs(ws.SemanticDir())
	if err != nil {
		return 0, err
	}
	deduped := 0
	for _, file := range idx.Dir(ws.SemanticDir()) {
		if len(file.Entries) == 0 {
			continue
		}

		bestByKey := make(map[string]*memstore.Entry)
		var order []string
		fileDeduped := 0
		for _, entry := range file.Entries {
			key := memstore.NormalizeText(entry.Body)
			existing, ok := bestByKey[key]
			if !ok {
				bestByKey[key] = entry
				order = append(order, key)
				continue
			}
			winner, loser := existing, entry
			if entry.Float("importance", 0) > existing.Float("importance", 0) {
				winner, loser = entry, existing
			} else if entry.Float("importance", 0) == existing.Float("importance", 0) &&
				entry.Status().Rank() > existing.Status().Rank() {
				winner, loser = entry, existing
			}
			bestByKey[key] = winner
			fileDeduped++
			if winner.Supersedes() == "" && loser.Supersedes() != "" {
				winner.Meta["supersedes"] = loser.Meta["supersedes"]
			}
		}
		if fileDeduped == 0 {
			continue
		}
		deduped += fileDeduped

		merged := make([]*memstore.Entry, 0, len(order))
		for _, key := range order {
			merged = append(merged, bestByKey[key])
		}
		if !dryRun {
			if err := memstore.SaveFile(file.Path, file.Preamble, merged); err != nil {
				return deduped, err
			}
		}
	}
	return deduped, nil
}

// pruneEpisodic deletes day files strictly older than the retention cutoff.
func pruneEpisodic(ws *memstore.Workspace, retentionDays int, now time.Time, dryRun bool) (int, error) {
	files, err := memstore.ListEntryFiles(ws.EpisodicDir())
	if err != nil {
		return 0, err
	}
	cutoff := dayOf(now).AddDate(0, 0, -retentionDays)
	removed := 0
	for _, path := range files {
		day, ok := memstore.DateFromFileName(path)
		if !ok || !day.Before(cutoff) {
			continue
		}
		removed++
		if !dryRun {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("prune %s: %w", path, err)
			}
		}
	}
	return removed, nil
}

// sweepExpired marks entries with a past valid_until date historical.
// Comparison is by UTC date only; time-of-day components are ignored. The
// dedup and prune steps rewrite and delete files before this runs, so the
// sweep builds its own fresh index.
func sweepExpired(ws *memstore.Workspace, now time.Time, dryRun bool) (int, int, error) {
	idx, err := memstore.BuildIndexDirs(ws.EpisodicDir(), ws.SemanticDir())
	if err != nil {
		return 0, 0, err
	}
	episodic, err := sweepLayer(idx.Dir(ws.EpisodicDir()), now, dryRun)
	if err != nil {
		return 0, 0, err
	}
	semantic, err := sweepLayer(idx.Dir(ws.SemanticDir()), now, dryRun)
	if err != nil {
		return episodic, 0, err
	}
	return episodic, semantic, nil
}

func sweepLayer(files []*memstore.IndexedFile, now time.Time, dryRun bool) (int, error) {
	today := dayOf(now)
	expired := 0
	for _, file := range files {
		modified := false
		for _, entry := range file.Entries {
			if !isExpired(entry, today) {
				continue
			}
			entry.SetStatus(memstore.StatusHistorical)
			expired++
			modified = true
		}
		if modified && !dryRun {
			if err := memstore.SaveFile(file.Path, file.Preamble, file.Entries); err != nil {
				return expired, err
			}
		}
	}
	return expired, nil
}

func isExpired(entry *memstore.Entry, today time.Time) bool {
	raw := entry.Meta["valid_until"]
	if raw == "" || raw == "none" {
		return false
	}
	ts, ok := memstore.ParseISOTime(raw)
	if !ok {
		return false
	}
	return dayOf(ts).Before(today) && entry.Status() != memstore.StatusHistorical
}

func dayOf(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
