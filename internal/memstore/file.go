package memstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"clawmem/internal/logging"
)

var entryHeaderRe = regexp.MustCompile(`^###\s+mem:([a-zA-Z0-9_-]+)\s*$`)

// ParseFile reads a memory file into its preamble and entries. A missing
// file parses to an empty preamble and no entries.
func ParseFile(path string) (string, []*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("read %s: %w", path, err)
	}
	preamble, entries := Parse(string(data))
	return preamble, entries, nil
}

// Parse splits raw file content into preamble and entry blocks.
func Parse(content string) (string, []*Entry) {
	lines := strings.Split(content, "\n")
	var preamble []string
	var entries []*Entry

	idx := 0
	for idx < len(lines) {
		m := entryHeaderRe.FindStringSubmatch(lines[idx])
		if m == nil {
			preamble = append(preamble, lines[idx])
			idx++
			continue
		}
		entry := NewEntry(m[1])
		idx++

		// Metadata lines until the --- separator.
		for idx < len(lines) {
			line := strings.TrimSpace(lines[idx])
			if line == "---" {
				idx++
				break
			}
			if k, v, ok := strings.Cut(line, ":"); ok {
				entry.Meta[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
			idx++
		}

		var body []string
		for idx < len(lines) && !entryHeaderRe.MatchString(lines[idx]) {
			body = append(body, lines[idx])
			idx++
		}
		entry.Body = strings.TrimSpace(strings.Join(body, "\n"))
		entries = append(entries, entry)
	}
	return strings.TrimSpace(strings.Join(preamble, "\n")), entries
}

// Render serializes a preamble and entries back into file content, emitting
// well-known metadata keys in canonical order and the rest alphabetically.
func Render(preamble string, entries []*Entry) string {
	var blocks []string
	if strings.TrimSpace(preamble) != "" {
		blocks = append(blocks, strings.TrimSpace(preamble))
	}
	for _, entry := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "### mem:%s\n", entry.ID)
		for _, key := range metaKeysInOrder(entry.Meta) {
			fmt.Fprintf(&b, "%s: %s\n", key, entry.Meta[key])
		}
		b.WriteString("---\n")
		b.WriteString(strings.TrimSpace(entry.Body))
		blocks = append(blocks, strings.TrimRight(b.String(), "\n"))
	}
	return strings.TrimRight(strings.Join(blocks, "\n\n"), "\n") + "\n"
}

func metaKeysInOrder(meta map[string]string) []string {
	known := make(map[string]bool, len(DefaultMetaOrder))
	var keys []string
	for _, key := range DefaultMetaOrder {
		known[key] = true
		if _, ok := meta[key]; ok {
			keys = append(keys, key)
		}
	}
	var extras []string
	for key := range meta {
		if !known[key] {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	return append(keys, extras...)
}

// SaveFile atomically writes a memory file: render to a sibling temp file,
// fsync, then rename over the target. The parent directory is created if
// needed and fsynced after the rename so the entry is durable.
func SaveFile(path, preamble string, entries []*Entry) error {
	return WriteFileAtomic(path, []byte(Render(preamble, entries)), 0o644)
}

// WriteFileAtomic writes data to path through a same-directory temp file,
// fsync and rename. On any failure the target file is left untouched.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	logging.StoreDebug("atomic write: %s (%d bytes)", path, len(data))
	return nil
}
