// Package recall implements the interactive read path: deterministic
// layered recall over the memory store, the confidence gate deciding
// whether a transcript lookup is warranted, and the bounded redacted lookup
// itself. None of these take the cadence lock; reads are best-effort.
package recall

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"clawmem/internal/logging"
	"clawmem/internal/memstore"
)

var tokenRe = regexp.MustCompile(`[a-z0-9_]+`)

// Hit is one recall result.
type Hit struct {
	Layer     string  `json:"layer"`
	SourceRef string  `json:"source_ref"`
	EntryID   string  `json:"entry_id"`
	Status    string  `json:"status"`
	Time      string  `json:"time"`
	TokenHits int     `json:"token_hits"`
	Score     float64 `json:"score"`
	Excerpt   string  `json:"excerpt"`
}

// Options bound one recall query.
type Options struct {
	Topic             string
	MaxResults        int
	MaxPerLayer       int
	MaxChars          int
	EpisodicDays      int
	SemanticMonths    int
	IncludeHistorical bool
	Now               time.Time
}

// Response is the recall payload: identity hits first, then semantic, then
// episodic. Transcript files are never included here.
type Response struct {
	Topic   string   `json:"topic"`
	Layers  []string `json:"layers"`
	Results []Hit    `json:"results"`
}

// Tokenize splits a string into its lowercase alphanumeric tokens.
func Tokenize(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

// Ordered runs the layered recall for a topic.
func Ordered(ws *memstore.Workspace, opts Options) (*Response, error) {
	topicTokens := uniqueTokens(opts.Topic)
	if len(topicTokens) == 0 {
		return nil, fmt.Errorf("topic must contain at least one alphanumeric token")
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var identity []Hit
	for _, name := range memstore.IdentityFileNames {
		hits, err := rankFile(ws, ws.IdentityFile(name), "identity", topicTokens, opts)
		if err != nil {
			return nil, err
		}
		identity = append(identity, hits...)
	}
	identity = capHits(identity, opts.MaxPerLayer)

	semantic, err := rankLayer(ws, recentSemanticFiles(ws, opts.SemanticMonths, now), "semantic", topicTokens, opts)
	if err != nil {
		return nil, err
	}
	episodic, err := rankLayer(ws, recentEpisodicFiles(ws, opts.EpisodicDays, now), "episodic", topicTokens, opts)
	if err != nil {
		return nil, err
	}

	ordered := append(append(identity, semantic...), episodic...)
	if opts.MaxResults >= 0 && len(ordered) > opts.MaxResults {
		ordered = ordered[:opts.MaxResults]
	}
	logging.Recall("topic=%q results=%d", opts.Topic, len(ordered))
	return &Response{
		Topic:   opts.Topic,
		Layers:  []string{"identity", "semantic", "episodic"},
		Results: ordered,
	}, nil
}

func rankLayer(ws *memstore.Workspace, files []string, layer string, topicTokens []string, opts Options) ([]Hit, error) {
	var hits []Hit
	for _, path := range files {
		fileHits, err := rankFile(ws, path, layer, topicTokens, opts)
		if err != nil {
			return nil, err
		}
		hits = append(hits, fileHits...)
	}
	sortHits(hits)
	return capHits(hits, opts.MaxPerLayer), nil
}

func rankFile(ws *memstore.Workspace, path, layer string, topicTokens []string, opts Options) ([]Hit, error) {
	_, entries, err := memstore.ParseFile(path)
	if err != nil {
		logging.Get(logging.CategoryRecall).Warn("skipping unreadable %s: %v", path, err)
		return nil, nil
	}
	sourceRef := ws.Rel(path)
	var hits []Hit
	for _, entry := range entries {
		status := entry.Status()
		if status == memstore.StatusHistorical && !opts.IncludeHistorical {
			continue
		}
		tokenHits, score := scoreBody(entry.Body, topicTokens)
		if tokenHits <= 0 {
			continue
		}
		timeISO := ""
		if ts, ok := entry.Time(); ok {
			timeISO = memstore.FormatTime(ts)
		}
		hits = append(hits, Hit{
			Layer:     layer,
			SourceRef: sourceRef,
			EntryID:   "mem:" + entry.ID,
			Status:    status.String(),
			Time:      timeISO,
			TokenHits: tokenHits,
			Score:     score,
			Excerpt:   Excerpt(entry.Body, opts.MaxChars),
		})
	}
	sortHits(hits)
	return hits, nil
}

func scoreBody(body string, topicTokens []string) (int, float64) {
	bodyTokens := make(map[string]struct{})
	for _, tok := range Tokenize(body) {
		bodyTokens[tok] = struct{}{}
	}
	hits := 0
	for _, tok := range topicTokens {
		if _, ok := bodyTokens[tok]; ok {
			hits++
		}
	}
	if hits <= 0 {
		return 0, 0
	}
	return hits, float64(hits) / float64(len(topicTokens))
}

func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Time > hits[j].Time
	})
}

func capHits(hits []Hit, cap int) []Hit {
	if cap >= 0 && len(hits) > cap {
		return hits[:cap]
	}
	return hits
}

// Excerpt normalizes whitespace and bounds the excerpt length.
func Excerpt(body string, maxChars int) string {
	compact := strings.Join(strings.Fields(body), " ")
	if maxChars <= 0 || len(compact) <= maxChars {
		return compact
	}
	cut := maxChars - 3
	if cut < 0 {
		cut = 0
	}
	return strings.TrimRight(compact[:cut], " ") + "..."
}

func uniqueTokens(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range Tokenize(s) {
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

func recentSemanticFiles(ws *memstore.Workspace, months int, now time.Time) []string {
	if months < 1 {
		months = 1
	}
	files, err := memstore.ListEntryFiles(ws.SemanticDir())
	if err != nil {
		return nil
	}
	cutoff := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
	var keep []string
	for _, path := range files {
		month, ok := memstore.MonthFromFileName(path)
		if !ok || month.Before(cutoff) {
			continue
		}
		keep = append(keep, path)
	}
	// Newest month first.
	sort.Sort(sort.Reverse(sort.StringSlice(keep)))
	return keep
}

func recentEpisodicFiles(ws *memstore.Workspace, days int, now time.Time) []string {
	if days < 1 {
		days = 1
	}
	files, err := memstore.ListEntryFiles(ws.EpisodicDir())
	if err != nil {
		return nil
	}
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))
	var keep []string
	for _, path := range files {
		day, ok := memstore.DateFromFileName(path)
		if !ok || day.Before(cutoff) {
			continue
		}
		keep = append(keep, path)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keep)))
	return keep
}
