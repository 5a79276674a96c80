package memstore

import (
	"clawmem/internal/logging"
)

// IndexedFile is one parsed memory file held by an Index.
type IndexedFile struct {
	Path     string
	Preamble string
	Entries  []*Entry
}

// Index maps entry ids to the file that holds them. It is built on demand
// and discarded once the job mutates the files it covers; cross-references
// (supersedes, origin_id) are resolved through it instead of through
// in-memory pointers. The parsed files are kept alongside the id map so a
// job scans each directory at most once.
type Index struct {
	ids  map[string]string
	dirs map[string][]*IndexedFile
}

// BuildIndex scans the episodic, semantic, and identity directories.
func BuildIndex(w *Workspace) (*Index, error) {
	return BuildIndexDirs(w.EpisodicDir(), w.SemanticDir(), w.IdentityDir())
}

// BuildIndexDirs scans the given directories. Files that fail to parse are
// skipped with a warning; the rest of the scan proceeds.
func BuildIndexDirs(dirs ...string) (*Index, error) {
	idx := &Index{
		ids:  make(map[string]string),
		dirs: make(map[string][]*IndexedFile),
	}
	for _, dir := range dirs {
		files, err := ListEntryFiles(dir)
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			preamble, entries, err := ParseFile(path)
			if err != nil {
				logging.StoreWarn("index: skipping unreadable file %s: %v", path, err)
				continue
			}
			idx.dirs[dir] = append(idx.dirs[dir], &IndexedFile{
				Path:     path,
				Preamble: preamble,
				Entries:  entries,
			})
			for _, entry := range entries {
				idx.ids[entry.ID] = path
			}
		}
	}
	logging.StoreDebug("index: %d ids across %d dirs", len(idx.ids), len(dirs))
	return idx, nil
}

// Locate returns the file containing the given entry id.
func (i *Index) Locate(id string) (string, bool) {
	path, ok := i.ids[id]
	return path, ok
}

// Dir returns the parsed files of one indexed directory, in listing order.
func (i *Index) Dir(dir string) []*IndexedFile {
	return i.dirs[dir]
}

// Len reports the number of indexed ids.
func (i *Index) Len() int { return len(i.ids) }
