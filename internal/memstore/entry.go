// Package memstore implements the on-disk memory entry format and the
// workspace layout shared by every governance job.
//
// A memory file is an optional free-text preamble followed by entry blocks:
//
//	### mem:<id>
//	time: 2025-11-02T09:14:00Z
//	layer: semantic
//	importance: 0.82
//	...
//	---
//	<body>
//
// Parsing is line-based and tolerant; rendering always emits the canonical
// metadata order so files round-trip deterministically.
package memstore

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Layer identifies which memory tier an entry belongs to.
type Layer int

const (
	LayerEpisodic Layer = iota
	LayerSemantic
	LayerIdentity
)

// String returns the canonical file representation of the layer.
func (l Layer) String() string {
	switch l {
	case LayerSemantic:
		return "semantic"
	case LayerIdentity:
		return "identity"
	default:
		return "episodic"
	}
}

// ParseLayer maps a file token to a Layer. Unknown tokens report ok=false
// and default to episodic.
func ParseLayer(s string) (Layer, bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "episodic":
		return LayerEpisodic, true
	case "semantic":
		return LayerSemantic, true
	case "identity":
		return LayerIdentity, true
	}
	return LayerEpisodic, false
}

// Status is the lifecycle state of an entry.
type Status int

const (
	StatusActive Status = iota
	StatusRefined
	StatusHistorical
)

func (s Status) String() string {
	switch s {
	case StatusRefined:
		return "refined"
	case StatusHistorical:
		return "historical"
	default:
		return "active"
	}
}

// Rank orders statuses for dedup tie-breaks: active > refined > historical.
func (s Status) Rank() int {
	switch s {
	case StatusActive:
		return 3
	case StatusRefined:
		return 2
	case StatusHistorical:
		return 1
	}
	return 0
}

// ParseStatus maps a file token to a Status. Unknown tokens default to active.
func ParseStatus(s string) (Status, bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "active", "":
		return StatusActive, s != ""
	case "refined":
		return StatusRefined, true
	case "historical":
		return StatusHistorical, true
	}
	return StatusActive, false
}

// DefaultMetaOrder is the canonical ordering of well-known metadata keys.
// Any other key is rendered after these, alphabetically.
var DefaultMetaOrder = []string{
	"time",
	"layer",
	"importance",
	"confidence",
	"status",
	"source",
	"tags",
	"supersedes",
}

// Entry is one memory item. Meta keeps every key verbatim, including keys
// this package does not know about, so unknown metadata survives a
// parse/render cycle.
type Entry struct {
	ID   string
	Meta map[string]string
	Body string
}

// NewEntry returns an entry with an empty metadata map.
func NewEntry(id string) *Entry {
	return &Entry{ID: id, Meta: make(map[string]string)}
}

// NewMemID mints a short collision-resistant entry id.
func NewMemID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Float reads a numeric meta field, falling back to def on absence or
// unparseable values.
func (e *Entry) Float(key string, def float64) float64 {
	raw, ok := e.Meta[key]
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def
	}
	return v
}

// Layer returns the entry's layer tag, defaulting to episodic.
func (e *Entry) Layer() Layer {
	l, _ := ParseLayer(e.Meta["layer"])
	return l
}

// Status returns the entry's lifecycle status, defaulting to active.
func (e *Entry) Status() Status {
	s, _ := ParseStatus(e.Meta["status"])
	return s
}

// SetStatus writes the canonical status token into the metadata.
func (e *Entry) SetStatus(s Status) {
	e.Meta["status"] = s.String()
}

// Supersedes returns the referenced entry id without the mem: prefix, or ""
// when the field is absent or the "none" sentinel.
func (e *Entry) Supersedes() string {
	raw := strings.TrimSpace(e.Meta["supersedes"])
	if raw == "" || strings.EqualFold(raw, "none") {
		return ""
	}
	return strings.TrimPrefix(raw, "mem:")
}

// SetSupersedes records a supersedes reference to the given entry id.
func (e *Entry) SetSupersedes(id string) {
	e.Meta["supersedes"] = "mem:" + id
}

// Time parses the entry timestamp. Naive timestamps are treated as UTC.
func (e *Entry) Time() (time.Time, bool) {
	return ParseISOTime(e.Meta["time"])
}

// Tags parses the tags field. Both quoted-element lists (['a', 'b']) and
// bare-token lists ([a, b]) are accepted.
func (e *Entry) Tags() []string {
	return ParseTagList(e.Meta["tags"])
}

// SetTags serializes tags into the canonical quoted-list form.
func (e *Entry) SetTags(tags []string) {
	e.Meta["tags"] = RenderTagList(tags)
}

var tokenRe = regexp.MustCompile(`[a-z0-9_]+`)

// TokenSet returns the lowercase alphanumeric token set of the body.
func (e *Entry) TokenSet() map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range tokenRe.FindAllString(strings.ToLower(e.Body), -1) {
		out[tok] = struct{}{}
	}
	return out
}

// ParseTagList parses a serialized tag list. Elements are trimmed and
// surrounding quotes stripped; empty elements are dropped.
func ParseTagList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return nil
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		raw = raw[1 : len(raw)-1]
	}
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, `"'`)
		if part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

// RenderTagList serializes tags in the quoted-list form used on disk.
func RenderTagList(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	quoted := make([]string, len(tags))
	for i, t := range tags {
		quoted[i] = "'" + t + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// ParseISOTime parses ISO-8601 timestamps as written by the governance jobs,
// accepting a trailing Z, an explicit offset, or a naive local form (treated
// as UTC). Bare dates parse to midnight UTC.
func ParseISOTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	layouts := []string{
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatTime renders a timestamp in the canonical second-resolution UTC form.
func FormatTime(ts time.Time) string {
	return ts.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// NormalizeText lowercases text and reduces it to space-joined alphanumeric
// tokens. Used as the canonical body key for dedup and grouping.
func NormalizeText(s string) string {
	return strings.Join(tokenRe.FindAllString(strings.ToLower(s), -1), " ")
}

// Jaccard computes set similarity over two token sets.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
