package consolidate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"clawmem/internal/memstore"
)

// buildMirror rebuilds the day-partitioned transcript mirror from the
// sessions directory and rotates old mirror files. Mirror files are written
// atomically with mode 0600 inside a 0700 directory. Mode "off" only deletes
// existing mirror files.
func buildMirror(ws *memstore.Workspace, root string, opts Options, now time.Time) (int, int, error) {
	since := dayOf(now).AddDate(0, 0, -(opts.TranscriptRetentionDays - 1))

	if opts.TranscriptMode == "off" {
		removed, err := removeAllMirrorFiles(root, opts.DryRun)
		return 0, removed, err
	}

	if err := os.MkdirAll(root, 0o700); err != nil {
		return 0, 0, fmt.Errorf("create transcript root: %w", err)
	}
	os.Chmod(root, 0o700)

	written := 0
	if opts.SessionsDir != "" {
		byDay, err := readSessionEvents(opts.SessionsDir, since, opts.TranscriptMode)
		if err != nil {
			return 0, 0, err
		}
		var days []time.Time
		for day := range byDay {
			days = append(days, day)
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

		for _, day := range days {
			events := byDay[day]
			sort.SliceStable(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })

			var b strings.Builder
			fmt.Fprintf(&b, "# %s\n\n", day.Format("2006-01-02"))
			for _, ev := range events {
				fmt.Fprintf(&b, "## %s - %s (%s)\n%s\n\n", ev.Time.UTC().Format("15:04:05"), ev.Role, ev.Source, ev.Text)
			}
			path := filepath.Join(root, day.Format("2006-01-02")+".md")
			written++
			if !opts.DryRun {
				content := strings.TrimRight(b.String(), "\n") + "\n"
				if err := memstore.WriteFileAtomic(path, []byte(content), 0o600); err != nil {
					return written, err
				}
			}
		}
	}

	removed, err := rotateMirror(root, since, opts.DryRun)
	return written, removed, err
}

func rotateMirror(root string, since time.Time, dryRun bool) (int, error) {
	files, err := memstore.ListEntryFiles(root)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range files {
		day, ok := memstore.DateFromFileName(path)
		if !ok || !day.Before(since) {
			continue
		}
		removed++
		if !dryRun {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return removed, err
			}
		}
	}
	return removed, nil
}

func removeAllMirrorFiles(root string, dryRun bool) (int, error) {
	files, err := memstore.ListEntryFiles(root)
	if err != nil {
		return 0, err
	}
	for i, path := range files {
		if !dryRun {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return i, err
			}
		}
	}
	return len(files), nil
}

// migrateLegacyTranscripts moves mirror files from the legacy location under
// memory/ into the configured root, but only when the target has no mirror
// files yet. Otherwise the legacy files stay put and are reported as
// conflicts.
func migrateLegacyTranscripts(ws *memstore.Workspace, root string, dryRun bool) (int, int, error) {
	legacyDir := ws.ResolveTranscriptRoot(memstore.LegacyTranscriptRoot)
	if legacyDir == root {
		return 0, 0, nil
	}
	legacyFiles, err := memstore.ListEntryFiles(legacyDir)
	if err != nil || len(legacyFiles) == 0 {
		return 0, 0, nil
	}

	existing, err := memstore.ListEntryFiles(root)
	if err != nil {
		return 0, 0, err
	}
	if len(existing) > 0 {
		return 0, len(legacyFiles), nil
	}

	if err := os.MkdirAll(root, 0o700); err != nil {
		return 0, 0, fmt.Errorf("create transcript root: %w", err)
	}
	migrated := 0
	for _, legacy := range legacyFiles {
		migrated++
		if dryRun {
			continue
		}
		target := filepath.Join(root, filepath.Base(legacy))
		if err := os.Rename(legacy, target); err != nil {
			return migrated, fmt.Errorf("migrate %s: %w", legacy, err)
		}
		os.Chmod(target, 0o600)
	}
	return migrated, 0, nil
}
