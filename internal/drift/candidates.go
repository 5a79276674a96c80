package drift

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"clawmem/internal/logging"
	"clawmem/internal/memstore"
)

// DomainKeywords is the fixed taxonomy used to pair entries that are about
// the same area of life without sharing an exact tag.
var DomainKeywords = map[string][]string{
	"editor":          {"editor", "ide", "vscode", "vs code", "sublime", "vim", "neovim", "emacs", "cursor", "nano"},
	"terminal":        {"terminal", "shell", "iterm", "warp", "alacritty", "tmux", "zsh", "bash"},
	"language":        {"python", "typescript", "javascript", "rust", "go", "java", "cpp", "c++", "language"},
	"cloud":           {"aws", "gcp", "azure", "cloud", "hosting", "serverless", "lambda"},
	"task_management": {"todoist", "obsidian", "notion", "task", "todo", "reminder"},
	"communication":   {"slack", "discord", "email", "async", "chat", "message", "communication"},
	"desk":            {"desk", "standing", "sitting", "ergonomic", "chair", "workspace"},
	"music":           {"music", "spotify", "silence", "headphones", "audio", "sound", "quiet"},
	"schedule":        {"morning", "evening", "night", "schedule", "routine", "time", "wake"},
}

// Generator reduces the contradiction pair space with temporal, tag, domain,
// and optional semantic filtering, then enforces diversity under a hard cap.
type Generator struct {
	RecentDays          int
	MaxCandidates       int
	SimilarityThreshold float64
	SlidingWindow       bool

	// Oracle is consulted when SimilarityThreshold > 0. Nil means local
	// token similarity only.
	Oracle SimilarityOracle
}

// SimilarityOracle finds entries semantically similar to a query. An empty
// result means the caller should fall back to local token similarity.
type SimilarityOracle interface {
	FindSimilar(query string, limit int) []SimilarityMatch
}

// SimilarityMatch pairs an entry id with its oracle score in [0,1].
type SimilarityMatch struct {
	EntryID string
	Score   float64
}

type scoredPair struct {
	newer    *SemanticEntry
	older    *SemanticEntry
	tagScore float64
}

// Generate produces the bounded candidate list, sorted by prefilter score
// descending. daysBack bounds the older side of the temporal window;
// reference defaults to now.
func (g *Generator) Generate(entries []*SemanticEntry, daysBack int, reference time.Time) []*CandidatePair {
	timer := logging.StartTimer(logging.CategoryDrift, "Generator.Generate")
	defer timer.Stop()

	if reference.IsZero() {
		reference = g.referenceFor(entries)
	}

	recent, older := g.temporalSplit(entries, daysBack, reference)
	logging.DriftDebug("temporal split: %d recent, %d older", len(recent), len(older))

	pairs := g.overlapFilter(recent, older)
	logging.DriftDebug("overlap filter: %d potential pairs", len(pairs))

	candidates := g.semanticRefine(pairs)
	candidates = g.diversityCap(candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PrefilterScore > candidates[j].PrefilterScore
	})
	logging.Drift("candidates=%d (cap=%d)", len(candidates), g.MaxCandidates)
	return candidates
}

// referenceFor picks the comparison clock. Historical corpora (most recent
// entry older than 30 days) and future-dated test corpora anchor to the
// corpus instead of the wall clock.
func (g *Generator) referenceFor(entries []*SemanticEntry) time.Time {
	now := time.Now().UTC()
	if len(entries) == 0 {
		return now
	}
	mostRecent := entries[0].Timestamp
	for _, e := range entries[1:] {
		if e.Timestamp.After(mostRecent) {
			mostRecent = e.Timestamp
		}
	}
	age := now.Sub(mostRecent)
	if age > 30*24*time.Hour || age < -24*time.Hour {
		return mostRecent.AddDate(0, 0, 1)
	}
	return now
}

func (g *Generator) temporalSplit(entries []*SemanticEntry, daysBack int, reference time.Time) ([]*SemanticEntry, []*SemanticEntry) {
	if g.SlidingWindow {
		return entries, entries
	}
	recentCutoff := reference.AddDate(0, 0, -g.RecentDays)
	olderCutoff := reference.AddDate(0, 0, -daysBack)

	var recent, older []*SemanticEntry
	for _, e := range entries {
		switch {
		case !e.Timestamp.Before(recentCutoff):
			recent = append(recent, e)
		case !e.Timestamp.Before(olderCutoff):
			older = append(older, e)
		}
	}
	return recent, older
}

// DetectDomains matches the taxonomy against lowercased content and tags.
func DetectDomains(e *SemanticEntry) map[string]struct{} {
	domains := make(map[string]struct{})
	content := strings.ToLower(e.Content)
	tags := strings.ToLower(strings.Join(e.Tags, " "))
	for domain, keywords := range DomainKeywords {
		for _, kw := range keywords {
			if strings.Contains(content, kw) || strings.Contains(tags, kw) {
				domains[domain] = struct{}{}
				break
			}
		}
	}
	return domains
}

// overlapFilter pairs each recent entry with strictly-older entries sharing
// at least one tag or domain, scoring tags 0.5+0.5·J and domains 0.3·J.
func (g *Generator) overlapFilter(recent, older []*SemanticEntry) []scoredPair {
	tagIndex := make(map[string][]*SemanticEntry)
	domainIndex := make(map[string][]*SemanticEntry)
	domainsByID := make(map[string]map[string]struct{})
	for _, e := range older {
		for t := range e.TagSet() {
			tagIndex[t] = append(tagIndex[t], e)
		}
		domains := DetectDomains(e)
		domainsByID[e.ID] = domains
		for d := range domains {
			domainIndex[d] = append(domainIndex[d], e)
		}
	}

	type match struct {
		entry         *SemanticEntry
		sharedTags    map[string]struct{}
		sharedDomains map[string]struct{}
	}

	var pairs []scoredPair
	for _, newer := range recent {
		newerTags := newer.TagSet()
		newerDomains := DetectDomains(newer)

		found := make(map[string]*match)
		add := func(e *SemanticEntry) *match {
			m, ok := found[e.ID]
			if !ok {
				m = &match{entry: e, sharedTags: map[string]struct{}{}, sharedDomains: map[string]struct{}{}}
				found[e.ID] = m
			}
			return m
		}

		for t := range newerTags {
			for _, e := range tagIndex[t] {
				if !newer.Timestamp.After(e.Timestamp) || e.ID == newer.ID {
					continue
				}
				add(e).sharedTags[t] = struct{}{}
			}
		}
		for d := range newerDomains {
			for _, e := range domainIndex[d] {
				if !newer.Timestamp.After(e.Timestamp) || e.ID == newer.ID {
					continue
				}
				add(e).sharedDomains[d] = struct{}{}
			}
		}

		for _, m := range found {
			var score float64
			switch {
			case len(m.sharedTags) > 0:
				union := len(newerTags) + len(m.entry.TagSet()) - len(m.sharedTags)
				if union < 1 {
					union = 1
				}
				score = 0.5 + 0.5*float64(len(m.sharedTags))/float64(union)
			case len(m.sharedDomains) > 0:
				olderDomains := domainsByID[m.entry.ID]
				if olderDomains == nil {
					olderDomains = DetectDomains(m.entry)
				}
				union := len(newerDomains) + len(olderDomains) - len(m.sharedDomains)
				if union < 1 {
					union = 1
				}
				score = 0.3 * float64(len(m.sharedDomains)) / float64(union)
			}
			if score > 0 {
				pairs = append(pairs, scoredPair{newer: newer, older: m.entry, tagScore: score})
			}
		}
	}
	return pairs
}

// semanticRefine combines the overlap score with oracle similarity when a
// threshold is configured: 0.7·semantic + 0.3·tag, dropping pairs below the
// threshold. With a zero threshold the tag score alone carries through at
// weight 0.3. When the oracle returns nothing, local token Jaccard is used.
func (g *Generator) semanticRefine(pairs []scoredPair) []*CandidatePair {
	var out []*CandidatePair

	if g.SimilarityThreshold <= 0 {
		for _, p := range pairs {
			out = append(out, &CandidatePair{
				A:              p.newer,
				B:              p.older,
				PrefilterScore: 0.3 * p.tagScore,
				MatchReasons:   []string{fmt.Sprintf("tag_overlap:%.3f", p.tagScore), "no_semantic_filter"},
			})
		}
		return out
	}

	byNewer := make(map[string][]scoredPair)
	var order []string
	for _, p := range pairs {
		if _, ok := byNewer[p.newer.ID]; !ok {
			order = append(order, p.newer.ID)
		}
		byNewer[p.newer.ID] = append(byNewer[p.newer.ID], p)
	}

	for _, id := range order {
		group := byNewer[id]
		newer := group[0].newer

		var similar map[string]float64
		if g.Oracle != nil {
			matches := g.Oracle.FindSimilar(newer.Content, 50)
			if len(matches) > 0 {
				similar = make(map[string]float64, len(matches))
				for _, m := range matches {
					similar[m.EntryID] = m.Score
				}
			}
		}
		localFallback := similar == nil

		for _, p := range group {
			var semScore float64
			if localFallback {
				semScore = memstore.Jaccard(p.newer.TokenSet(), p.older.TokenSet())
			} else {
				semScore = similar[p.older.ID]
			}
			if semScore < g.SimilarityThreshold {
				continue
			}
			reasons := []string{
				fmt.Sprintf("semantic_similarity:%.3f", semScore),
				fmt.Sprintf("tag_overlap:%.3f", p.tagScore),
			}
			if localFallback {
				reasons = append(reasons, "local_fallback")
			}
			out = append(out, &CandidatePair{
				A:              p.newer,
				B:              p.older,
				PrefilterScore: 0.7*semScore + 0.3*p.tagScore,
				MatchReasons:   reasons,
			})
		}
	}
	return out
}

// diversityCap buckets candidates by their sorted shared-tag tuple, takes
// the top max(3, cap/buckets) per bucket, tops up with the best remaining,
// and finally trims to the cap by score.
func (g *Generator) diversityCap(candidates []*CandidatePair) []*CandidatePair {
	if g.MaxCandidates <= 0 || len(candidates) <= g.MaxCandidates {
		return candidates
	}

	byCombo := make(map[string][]*CandidatePair)
	var comboOrder []string
	for _, cand := range candidates {
		key := strings.Join(cand.SharedTags(), "|")
		if key == "" {
			key = "none"
		}
		if _, ok := byCombo[key]; !ok {
			comboOrder = append(comboOrder, key)
		}
		byCombo[key] = append(byCombo[key], cand)
	}

	maxPerCombo := g.MaxCandidates / len(byCombo)
	if maxPerCombo < 3 {
		maxPerCombo = 3
	}

	selected := make([]*CandidatePair, 0, g.MaxCandidates)
	picked := make(map[*CandidatePair]bool)
	for _, key := range comboOrder {
		combo := byCombo[key]
		sort.SliceStable(combo, func(i, j int) bool { return combo[i].PrefilterScore > combo[j].PrefilterScore })
		n := maxPerCombo
		if n > len(combo) {
			n = len(combo)
		}
		for _, cand := range combo[:n] {
			selected = append(selected, cand)
			picked[cand] = true
		}
	}

	if len(selected) < g.MaxCandidates {
		var remaining []*CandidatePair
		for _, cand := range candidates {
			if !picked[cand] {
				remaining = append(remaining, cand)
			}
		}
		sort.SliceStable(remaining, func(i, j int) bool { return remaining[i].PrefilterScore > remaining[j].PrefilterScore })
		need := g.MaxCandidates - len(selected)
		if need > len(remaining) {
			need = len(remaining)
		}
		selected = append(selected, remaining[:need]...)
	}

	if len(selected) > g.MaxCandidates {
		sort.SliceStable(selected, func(i, j int) bool { return selected[i].PrefilterScore > selected[j].PrefilterScore })
		selected = selected[:g.MaxCandidates]
	}
	return selected
}

// RecallStats reports how many known contradiction pairs survived candidate
// generation. Used to measure recall on a labelled corpus.
type RecallStats struct {
	TotalKnown int
	Found      int
	Missed     int
	Recall     float64
}

// CheckKnownPairs checks a labelled pair list against the candidate set.
func CheckKnownPairs(candidates []*CandidatePair, known [][2]string) RecallStats {
	seen := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		seen[pairKey(cand.A.ID, cand.B.ID)] = true
	}
	stats := RecallStats{TotalKnown: len(known)}
	for _, pair := range known {
		if seen[pairKey(pair[0], pair[1])] {
			stats.Found++
		} else {
			stats.Missed++
		}
	}
	if stats.TotalKnown > 0 {
		stats.Recall = float64(stats.Found) / float64(stats.TotalKnown)
	}
	return stats
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
