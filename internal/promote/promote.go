// Package promote lifts durable recurring semantic facts into the identity
// layer. It runs weekly; a concept group is promoted only when it recurs
// enough, scores high enough, spans enough distinct days, and has aged past
// the minimum, and only once per canonical body or origin id.
package promote

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"clawmem/internal/logging"
	"clawmem/internal/memstore"
	"clawmem/internal/scoring"
)

// SourceTag marks entries created by this job.
const SourceTag = "job:weekly-identity-promote"

var (
	preferenceTags = map[string]bool{"preference": true, "style": true, "workflow": true, "tooling": true}
	decisionTags   = map[string]bool{"decision": true, "architecture": true, "policy": true, "constraint": true}
)

// Options bound one promotion run.
type Options struct {
	WindowDays      int
	MinImportance   float64
	MinRecurrence   int
	MinDistinctDays int
	MinAgeDays      int
	MaxGroups       int
	Aliases         *scoring.AliasMap
	DryRun          bool
	Now             time.Time
}

// Result summarizes one run, including why groups were skipped.
type Result struct {
	PromotedIdentity    int
	PromotedPreferences int
	PromotedDecisions   int

	SkippedThreshold       int
	SkippedDuplicate       int
	SkippedDurability      int
	SkippedRecurrenceShape int
	SkippedYoung           int
	SkippedExpired         int
}

type group struct {
	key     string
	entries []*memstore.Entry
}

// Run groups recent semantic entries by concept and promotes qualifying
// groups into the identity files. The caller holds the cadence lock.
func Run(ws *memstore.Workspace, opts Options) (*Result, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	aliases := opts.Aliases
	if aliases == nil {
		aliases = scoring.LoadAliases("")
	}
	cutoff := now.AddDate(0, 0, -opts.WindowDays)

	// One workspace scan per run: the index resolves concept grouping,
	// identity signatures, and the target files alike.
	idx, err := memstore.BuildIndexDirs(ws.SemanticDir(), ws.IdentityDir())
	if err != nil {
		return nil, err
	}
	groups := groupConcepts(idx.Dir(ws.SemanticDir()), cutoff, aliases)
	existingKeys, existingOrigins := identitySignatures(idx.Dir(ws.IdentityDir()), aliases)

	// Load the three targets up front so all appends land in one save pass.
	type target struct {
		path     string
		preamble string
		entries  []*memstore.Entry
		dirty    bool
	}
	indexed := make(map[string]*memstore.IndexedFile)
	for _, file := range idx.Dir(ws.IdentityDir()) {
		indexed[file.Path] = file
	}
	targets := make(map[string]*target, len(memstore.IdentityFileNames))
	for _, name := range memstore.IdentityFileNames {
		path := ws.IdentityFile(name)
		tgt := &target{path: path}
		if file, ok := indexed[path]; ok {
			tgt.preamble = file.Preamble
			tgt.entries = file.Entries
		}
		targets[name] = tgt
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].entries) != len(groups[j].entries) {
			return len(groups[i].entries) > len(groups[j].entries)
		}
		return maxImportance(groups[i].entries) > maxImportance(groups[j].entries)
	})
	if opts.MaxGroups >= 0 && len(groups) > opts.MaxGroups {
		groups = groups[:opts.MaxGroups]
	}

	res := &Result{}
	for _, grp := range groups {
		recurrence := len(grp.entries)
		best := selectBest(grp.entries)

		if recurrence < opts.MinRecurrence || best.Float("importance", 0) < opts.MinImportance {
			res.SkippedThreshold++
			continue
		}

		distinctDays := make(map[string]bool)
		var earliest time.Time
		for _, entry := range grp.entries {
			ts, ok := entry.Time()
			if !ok {
				continue
			}
			distinctDays[ts.Format("2006-01-02")] = true
			if earliest.IsZero() || ts.Before(earliest) {
				earliest = ts
			}
		}
		if len(distinctDays) < opts.MinDistinctDays {
			res.SkippedRecurrenceShape++
			continue
		}
		if !earliest.IsZero() && now.Sub(earliest) < time.Duration(opts.MinAgeDays)*24*time.Hour {
			res.SkippedYoung++
			continue
		}
		if isExpired(best, now) {
			res.SkippedExpired++
			continue
		}

		durability := scoring.InferDurability(best.Tags(), best.Body,
			strings.ToLower(strings.TrimSpace(best.Meta["durability"])))
		if durability == "transient" {
			res.SkippedDurability++
			continue
		}

		originID := strings.TrimSpace(best.Meta["origin_id"])
		if originID == "" {
			originID = best.ID
		}
		if existingKeys[grp.key] || existingOrigins[originID] {
			res.SkippedDuplicate++
			continue
		}

		name := routeIdentityFile(best.Tags())
		tgt := targets[name]
		tgt.entries = append(tgt.entries, buildIdentityEntry(best, originID, recurrence, durability, now, opts.MinImportance))
		tgt.dirty = true
		existingKeys[grp.key] = true
		existingOrigins[originID] = true

		switch name {
		case "preferences":
			res.PromotedPreferences++
		case "decisions":
			res.PromotedDecisions++
		default:
			res.PromotedIdentity++
		}
	}

	if !opts.DryRun {
		for _, tgt := range targets {
			if !tgt.dirty {
				continue
			}
			if err := memstore.SaveFile(tgt.path, tgt.preamble, tgt.entries); err != nil {
				return nil, err
			}
		}
	}

	logging.Promote("identity=%d preferences=%d decisions=%d skipped_threshold=%d skipped_duplicate=%d",
		res.PromotedIdentity, res.PromotedPreferences, res.PromotedDecisions,
		res.SkippedThreshold, res.SkippedDuplicate)
	return res, nil
}

// ConceptKey derives the promotion grouping key: canonical body (with any
// "Derived from mem:<id>. " prefix stripped) joined with canonical tags.
func ConceptKey(entry *memstore.Entry, aliases *scoring.AliasMap) string {
	body := StripDerivedPrefix(entry.Body)
	canon := aliases.Canonicalize(body)
	if canon == "" {
		return ""
	}
	tags := aliases.CanonicalTags(entry.Tags())
	if len(tags) == 0 {
		return canon
	}
	return canon + " :: " + strings.Join(tags, " ")
}

// StripDerivedPrefix removes the extractor's provenance prefix from a body.
func StripDerivedPrefix(body string) string {
	if strings.HasPrefix(body, "Derived from mem:") {
		if _, rest, ok := strings.Cut(body, "."); ok {
			return strings.TrimSpace(rest)
		}
	}
	return body
}

func groupConcepts(files []*memstore.IndexedFile, cutoff time.Time, aliases *scoring.AliasMap) []*group {
	byKey := make(map[string]*group)
	var order []string
	for _, file := range files {
		for _, entry := range file.Entries {
			ts, ok := entry.Time()
			if !ok || ts.Before(cutoff) {
				continue
			}
			key := ConceptKey(entry, aliases)
			if key == "" {
				continue
			}
			grp, ok := byKey[key]
			if !ok {
				grp = &group{key: key}
				byKey[key] = grp
				order = append(order, key)
			}
			grp.entries = append(grp.entries, entry)
		}
	}
	groups := make([]*group, 0, len(order))
	for _, key := range order {
		groups = append(groups, byKey[key])
	}
	return groups
}

// identitySignatures collects the canonical bodies and origin ids already
// present across the identity files.
func identitySignatures(files []*memstore.IndexedFile, aliases *scoring.AliasMap) (map[string]bool, map[string]bool) {
	keys := make(map[string]bool)
	origins := make(map[string]bool)
	for _, file := range files {
		for _, entry := range file.Entries {
			if key := ConceptKey(entry, aliases); key != "" {
				keys[key] = true
			}
			if origin := strings.TrimSpace(entry.Meta["origin_id"]); origin != "" {
				origins[origin] = true
			}
		}
	}
	return keys, origins
}

func selectBest(entries []*memstore.Entry) *memstore.Entry {
	best := entries[0]
	bestTime, _ := best.Time()
	for _, entry := range entries[1:] {
		ts, _ := entry.Time()
		switch {
		case entry.Float("importance", 0) > best.Float("importance", 0):
			best, bestTime = entry, ts
		case entry.Float("importance", 0) == best.Float("importance", 0) && ts.After(bestTime):
			best, bestTime = entry, ts
		}
	}
	return best
}

func maxImportance(entries []*memstore.Entry) float64 {
	m := 0.0
	for _, entry := range entries {
		if v := entry.Float("importance", 0); v > m {
			m = v
		}
	}
	return m
}

func isExpired(entry *memstore.Entry, now time.Time) bool {
	raw := strings.TrimSpace(entry.Meta["valid_until"])
	if raw == "" || strings.EqualFold(raw, "none") {
		return false
	}
	ts, ok := memstore.ParseISOTime(raw)
	if !ok {
		return false
	}
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	tsDay := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	return tsDay.Before(nowDay)
}

func routeIdentityFile(tags []string) string {
	lowered := make(map[string]bool, len(tags))
	for _, t := range tags {
		lowered[strings.ToLower(t)] = true
	}
	for t := range lowered {
		if preferenceTags[t] {
			return "preferences"
		}
	}
	for t := range lowered {
		if decisionTags[t] {
			return "decisions"
		}
	}
	return "identity"
}

func buildIdentityEntry(best *memstore.Entry, originID string, recurrence int, durability string, now time.Time, minImportance float64) *memstore.Entry {
	entry := memstore.NewEntry(memstore.NewMemID())
	entry.Meta["time"] = memstore.FormatTime(now)
	entry.Meta["layer"] = memstore.LayerIdentity.String()
	entry.Meta["importance"] = fmt.Sprintf("%.2f", best.Float("importance", minImportance))
	entry.Meta["confidence"] = fmt.Sprintf("%.2f", best.Float("confidence", 0.75))
	entry.Meta["status"] = memstore.StatusActive.String()
	entry.Meta["source"] = SourceTag
	entry.SetTags(best.Tags())
	entry.Meta["supersedes"] = "none"
	entry.Meta["origin_id"] = originID
	entry.Meta["recurrence"] = fmt.Sprintf("%d", recurrence)
	scope := strings.TrimSpace(best.Meta["scope"])
	if scope == "" {
		scope = "project"
	}
	entry.Meta["scope"] = scope
	entry.Meta["durability"] = durability
	validUntil := strings.TrimSpace(best.Meta["valid_until"])
	if validUntil == "" {
		validUntil = "none"
	}
	entry.Meta["valid_until"] = validUntil
	entry.Body = best.Body
	return entry
}
