package recall

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"clawmem/internal/logging"
	"clawmem/internal/memstore"
	"clawmem/internal/redact"
)

// LookupOptions bound one transcript search.
type LookupOptions struct {
	TranscriptRoot     string
	Topic              string
	LastNDays          int
	MaxExcerpts        int
	MaxCharsPerExcerpt int
	AllowExternalRoot  bool
	Now                time.Time
}

// LookupExcerpt is one scored transcript section. The excerpt has passed
// through redaction; source_ref is workspace-relative.
type LookupExcerpt struct {
	Date      string `json:"date"`
	Header    string `json:"header"`
	Score     int    `json:"score"`
	Excerpt   string `json:"excerpt"`
	SourceRef string `json:"source_ref"`
}

// LookupResponse is the transcript lookup payload.
type LookupResponse struct {
	Topic   string          `json:"topic"`
	Results []LookupExcerpt `json:"results"`
}

type section struct {
	header string
	body   string
}

// Lookup searches the day-partitioned transcript mirror for sections
// matching the topic. Symbolic links and files escaping the root are
// silently skipped; every excerpt is redacted before emission.
func Lookup(ws *memstore.Workspace, opts LookupOptions) (*LookupResponse, error) {
	topicTokens := uniqueTokens(opts.Topic)
	if len(topicTokens) == 0 {
		return nil, fmt.Errorf("topic must contain at least one alphanumeric token")
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	root := ws.ResolveTranscriptRoot(opts.TranscriptRoot)
	if !ws.Contains(root) && !opts.AllowExternalRoot {
		return nil, fmt.Errorf("refusing transcript root outside workspace: %s", root)
	}

	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if opts.LastNDays > 0 {
		cutoff = cutoff.AddDate(0, 0, -(opts.LastNDays - 1))
	}

	files, err := memstore.ListEntryFiles(root)
	if err != nil {
		return nil, err
	}

	var results []LookupExcerpt
	for _, path := range files {
		day, ok := memstore.DateFromFileName(path)
		if !ok || day.Before(cutoff) {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil || !memstore.IsUnderRoot(resolved, root) {
			continue
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			logging.Get(logging.CategoryRecall).Warn("lookup: skipping unreadable %s: %v", path, err)
			continue
		}

		for _, sec := range parseSections(string(data)) {
			haystack := strings.ToLower(sec.header + " " + sec.body)
			if strings.TrimSpace(haystack) == "" {
				continue
			}
			score := 0
			for _, tok := range topicTokens {
				if strings.Contains(haystack, tok) {
					score++
				}
			}
			if score <= 0 {
				continue
			}
			excerpt := strings.TrimSpace(sec.body)
			if opts.MaxCharsPerExcerpt > 0 && len(excerpt) > opts.MaxCharsPerExcerpt {
				excerpt = strings.TrimRight(excerpt[:opts.MaxCharsPerExcerpt-3], " ") + "..."
			}
			results = append(results, LookupExcerpt{
				Date:      day.Format("2006-01-02"),
				Header:    sec.header,
				Score:     score,
				Excerpt:   redact.String(excerpt),
				SourceRef: ws.Rel(path),
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Date > results[j].Date
	})
	if opts.MaxExcerpts >= 0 && len(results) > opts.MaxExcerpts {
		results = results[:opts.MaxExcerpts]
	}
	logging.Recall("lookup topic=%q excerpts=%d", opts.Topic, len(results))
	return &LookupResponse{Topic: opts.Topic, Results: results}, nil
}

// parseSections splits a mirror day file into its "## " delimited sections.
func parseSections(content string) []section {
	var sections []section
	var current *section
	var bodyLines []string

	flush := func() {
		if current != nil {
			current.body = strings.TrimSpace(strings.Join(bodyLines, "\n"))
			sections = append(sections, *current)
		}
		bodyLines = nil
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			current = &section{header: strings.TrimSpace(line[3:])}
			continue
		}
		if current != nil {
			bodyLines = append(bodyLines, line)
		}
	}
	flush()
	return sections
}
