// Package scoring re-scores entry importance with bounded incremental work.
// Scores decay by durability class, smooth toward a signal-weighted target,
// and persist per-signal audit fields alongside canonicalized tags.
package scoring

import (
	"encoding/json"
	"os"
	"regexp"
	"sort"
	"strings"

	"clawmem/internal/memstore"
)

// Tag vocabularies driving the scoring signals and scope/durability
// inference.
var (
	PreferenceTags = tagSet("preference", "style", "workflow", "tooling")
	ProjectTags    = tagSet("project", "openclaw", "memory", "architecture", "decision", "policy", "constraint")
	UtilityTags    = tagSet("architecture", "policy", "constraint", "workflow", "decision", "preference", "process")
	identityTags   = tagSet("identity", "principle", "foundational")
)

func tagSet(tags ...string) map[string]bool {
	out := make(map[string]bool, len(tags))
	for _, t := range tags {
		out[t] = true
	}
	return out
}

// AliasMap maps normalized alias phrases to their canonical form. It is pure
// data loaded from memory/config/concept_aliases.json; canonicalization is a
// pure function of (text, aliases).
type AliasMap struct {
	// ordered longest-alias-first so broader phrases win
	aliases []aliasRule
}

type aliasRule struct {
	re        *regexp.Regexp
	canonical string
}

// LoadAliases reads the alias config file. A missing or malformed file
// yields an empty map; non-string pairs are dropped.
func LoadAliases(path string) *AliasMap {
	out := &AliasMap{}
	data, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return out
	}

	type pair struct{ alias, canonical string }
	var pairs []pair
	for k, v := range raw {
		alias := memstore.NormalizeText(k)
		canonical := memstore.NormalizeText(v)
		if alias == "" || canonical == "" {
			continue
		}
		pairs = append(pairs, pair{alias, canonical})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if len(pairs[i].alias) != len(pairs[j].alias) {
			return len(pairs[i].alias) > len(pairs[j].alias)
		}
		return pairs[i].alias < pairs[j].alias
	})
	for _, p := range pairs {
		out.aliases = append(out.aliases, aliasRule{
			re:        regexp.MustCompile(`\b` + regexp.QuoteMeta(p.alias) + `\b`),
			canonical: p.canonical,
		})
	}
	return out
}

// Canonicalize lowercases text, strips it to alphanumeric tokens, and
// applies alias substitution with word boundaries, longest alias first.
func (a *AliasMap) Canonicalize(text string) string {
	out := memstore.NormalizeText(text)
	for _, rule := range a.aliases {
		out = rule.re.ReplaceAllString(out, rule.canonical)
	}
	return memstore.NormalizeText(out)
}

// CanonicalTags alias-substitutes, deduplicates, and underscore-joins each
// tag.
func (a *AliasMap) CanonicalTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range tags {
		norm := strings.ReplaceAll(a.Canonicalize(raw), " ", "_")
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}

// ConceptKey derives the grouping key for an entry: canonical body joined
// with canonical tags. Entries sharing a key form one concept group.
func (a *AliasMap) ConceptKey(e *memstore.Entry) string {
	body := a.Canonicalize(e.Body)
	tags := a.CanonicalTags(e.Tags())
	if len(tags) == 0 {
		return body
	}
	return body + " :: " + strings.Join(tags, " ")
}

// InferScope derives the scope field when it is not already set.
func InferScope(tags []string, body, existing string) string {
	switch existing {
	case "personal", "project", "global":
		return existing
	}
	lowered := tagSetOf(tags)
	bodyLower := strings.ToLower(body)
	if intersects(lowered, PreferenceTags) || strings.Contains(bodyLower, "prefer") {
		return "personal"
	}
	if intersects(lowered, ProjectTags) || strings.Contains(bodyLower, "openclaw") {
		return "project"
	}
	return "global"
}

// InferDurability derives the durability class when not already set.
func InferDurability(tags []string, body, existing string) string {
	switch existing {
	case "transient", "project-stable", "foundational":
		return existing
	}
	lowered := tagSetOf(tags)
	bodyLower := strings.ToLower(body)
	if intersects(lowered, identityTags) || strings.Contains(bodyLower, "core identity") {
		return "foundational"
	}
	if intersects(lowered, UtilityTags) || intersects(lowered, ProjectTags) {
		return "project-stable"
	}
	return "transient"
}

func tagSetOf(tags []string) map[string]bool {
	out := make(map[string]bool, len(tags))
	for _, t := range tags {
		out[strings.ToLower(t)] = true
	}
	return out
}

func intersects(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}
