// Package drift detects contradictions between semantic memory entries. The
// pipeline reduces the O(n²) pair space to a bounded candidate set,
// classifies each surviving pair as REINFORCES / REFINES / SUPERSEDES /
// UNRELATED, and applies SUPERSEDES transitions atomically.
package drift

import (
	"sort"
	"strings"
	"time"

	"clawmem/internal/logging"
	"clawmem/internal/memstore"
)

// SemanticEntry is a normalized view of a semantic memory entry used during
// contradiction detection.
type SemanticEntry struct {
	ID        string
	Content   string
	Timestamp time.Time
	Tags      []string
	Meta      map[string]string
}

// TagSet returns the lowercase tag set.
func (e *SemanticEntry) TagSet() map[string]struct{} {
	out := make(map[string]struct{}, len(e.Tags))
	for _, t := range e.Tags {
		out[strings.ToLower(t)] = struct{}{}
	}
	return out
}

// TokenSet returns the lowercase alphanumeric token set of the content.
func (e *SemanticEntry) TokenSet() map[string]struct{} {
	return (&memstore.Entry{Body: e.Content}).TokenSet()
}

// CandidatePair is an ordered (newer, older) pair surfaced for
// classification. A is always the newer side.
type CandidatePair struct {
	A              *SemanticEntry
	B              *SemanticEntry
	PrefilterScore float64
	MatchReasons   []string
}

// SharedTags returns the sorted intersection of the pair's tag sets.
func (p *CandidatePair) SharedTags() []string {
	aSet := p.A.TagSet()
	var shared []string
	for t := range p.B.TagSet() {
		if _, ok := aSet[t]; ok {
			shared = append(shared, t)
		}
	}
	sort.Strings(shared)
	return shared
}

// LoadSemanticEntries reads every semantic month file in the workspace.
// Entries without a parseable timestamp are dropped; unreadable files are
// skipped with a warning.
func LoadSemanticEntries(ws *memstore.Workspace) ([]*SemanticEntry, error) {
	files, err := memstore.ListEntryFiles(ws.SemanticDir())
	if err != nil {
		return nil, err
	}
	var out []*SemanticEntry
	for _, path := range files {
		_, entries, err := memstore.ParseFile(path)
		if err != nil {
			logging.DriftWarn("skipping unreadable %s: %v", path, err)
			continue
		}
		for _, entry := range entries {
			ts, ok := entry.Time()
			if !ok {
				continue
			}
			out = append(out, &SemanticEntry{
				ID:        entry.ID,
				Content:   entry.Body,
				Timestamp: ts,
				Tags:      entry.Tags(),
				Meta:      entry.Meta,
			})
		}
	}
	return out, nil
}
