package consolidate

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"clawmem/internal/logging"
	"clawmem/internal/memstore"
	"clawmem/internal/redact"
)

// event is one transcript-bound session record extracted from a JSONL file.
type event struct {
	Time   time.Time
	Role   string
	Text   string
	Source string
}

const eventTextLimit = 1500

var timestampKeys = []string{"timestamp", "time", "createdAt", "created_at", "ts"}
var roleKeys = []string{"role", "speaker", "author"}
var textKeys = []string{"text", "message", "output"}

// readSessionEvents walks the *.jsonl files under sessionsDir and yields
// events at or after sinceDate, grouped by UTC day. Symlinks and files whose
// realpath escapes the sessions root are silently skipped; malformed lines
// are skipped individually.
func readSessionEvents(sessionsDir string, sinceDate time.Time, mode string) (map[time.Time][]event, error) {
	byDay := make(map[time.Time][]event)
	items, err := os.ReadDir(sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return byDay, nil
		}
		return nil, err
	}

	root := sessionsDir
	if resolved, err := filepath.EvalSymlinks(sessionsDir); err == nil {
		root = resolved
	}

	var names []string
	for _, item := range items {
		if strings.HasSuffix(item.Name(), ".jsonl") {
			names = append(names, item.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(sessionsDir, name)
		info, err := os.Lstat(path)
		if err != nil || info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil || !memstore.IsUnderRoot(resolved, root) {
			continue
		}
		stat, err := os.Stat(resolved)
		if err != nil || !stat.Mode().IsRegular() {
			continue
		}
		fallback := stat.ModTime().UTC()

		if err := scanEventFile(resolved, name, fallback, sinceDate, mode, byDay); err != nil {
			logging.ConsolidateWarn("sessions: skipping %s: %v", path, err)
		}
	}
	return byDay, nil
}

func scanEventFile(path, name string, fallback, sinceDate time.Time, mode string, byDay map[time.Time][]event) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			continue
		}
		ts := extractTimestamp(obj, fallback)
		if dayOf(ts).Before(sinceDate) {
			continue
		}
		text := extractText(obj)
		if text == "" {
			continue
		}
		text = strings.Join(strings.Fields(text), " ")
		if mode == "sanitized" {
			text = redact.String(text)
		}
		if len(text) > eventTextLimit {
			text = text[:eventTextLimit-3] + "..."
		}
		day := dayOf(ts)
		byDay[day] = append(byDay[day], event{Time: ts, Role: extractRole(obj), Text: text, Source: name})
	}
	return scanner.Err()
}

func extractTimestamp(obj map[string]interface{}, fallback time.Time) time.Time {
	for _, key := range timestampKeys {
		value, ok := obj[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case float64:
			return time.Unix(int64(v), 0).UTC()
		case string:
			if ts, ok := memstore.ParseISOTime(v); ok {
				return ts
			}
		}
	}
	return fallback
}

func extractRole(obj map[string]interface{}) string {
	for _, key := range roleKeys {
		if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.ToLower(strings.TrimSpace(v))
		}
	}
	return "unknown"
}

// extractText prefers the content field, falling back to text/message/output.
// A content list of {text: ...} chunks is joined with spaces.
func extractText(obj map[string]interface{}) string {
	if v, ok := obj["content"].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	for _, key := range textKeys {
		if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if list, ok := obj["content"].([]interface{}); ok {
		var chunks []string
		for _, item := range list {
			switch v := item.(type) {
			case map[string]interface{}:
				if txt, ok := v["text"].(string); ok && strings.TrimSpace(txt) != "" {
					chunks = append(chunks, strings.TrimSpace(txt))
				}
			case string:
				if strings.TrimSpace(v) != "" {
					chunks = append(chunks, strings.TrimSpace(v))
				}
			}
		}
		if len(chunks) > 0 {
			return strings.Join(chunks, " ")
		}
	}
	return ""
}
