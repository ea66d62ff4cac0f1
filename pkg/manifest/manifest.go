// Package manifest implements manifest persistence for KreuzbergIndexer
// (spec §3, §4.13): `{version, files: {relpath -> {mtime, chunks}}}`,
// written next to the vector index so incremental updates can tell
// which files changed since the last build. Grounded on the teacher's
// pkg/index/dag.go JSON load/save-with-mutex pattern, generalized from
// a node/edge graph to a flat file-record map.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// CurrentVersion is written into every freshly-saved manifest.
const CurrentVersion = 1

// FileRecord tracks the state of one indexed file as of its last
// successful extraction.
type FileRecord struct {
	MTime  int64 `json:"mtime"`
	Chunks int   `json:"chunks"`
}

// Manifest tracks per-file indexing state for one data directory.
type Manifest struct {
	mu sync.RWMutex

	Version int                   `json:"version"`
	Files   map[string]FileRecord `json:"files"`

	path string
}

// New creates an empty manifest that will persist to path.
func New(path string) *Manifest {
	return &Manifest{
		Version: CurrentVersion,
		Files:   make(map[string]FileRecord),
		path:    path,
	}
}

// Load reads a manifest from path. A missing file yields a fresh, empty
// manifest rather than an error — spec §4.13's "manifest read failure
// is non-fatal" requirement applies to corrupt files, not absent ones,
// but an absent manifest is the normal first-run state either way.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(path), nil
		}
		return nil, err
	}

	m := &Manifest{path: path}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	if m.Files == nil {
		m.Files = make(map[string]FileRecord)
	}
	return m, nil
}

// Save writes the manifest to its path as indented, deterministically
// ordered JSON.
func (m *Manifest) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}

	type entry struct {
		Path   string
		Record FileRecord
	}
	entries := make([]entry, 0, len(m.Files))
	for p, r := range m.Files {
		entries = append(entries, entry{p, r})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	ordered := make(map[string]FileRecord, len(entries))
	for _, e := range entries {
		ordered[e.Path] = e.Record
	}

	data, err := json.MarshalIndent(struct {
		Version int                   `json:"version"`
		Files   map[string]FileRecord `json:"files"`
	}{Version: m.Version, Files: ordered}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}

// Get returns the record for relPath, if present.
func (m *Manifest) Get(relPath string) (FileRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.Files[relPath]
	return r, ok
}

// Set records relPath's current mtime and chunk count.
func (m *Manifest) Set(relPath string, mtime int64, chunks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Files == nil {
		m.Files = make(map[string]FileRecord)
	}
	m.Files[relPath] = FileRecord{MTime: mtime, Chunks: chunks}
}

// Remove deletes relPath's record.
func (m *Manifest) Remove(relPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Files, relPath)
}

// NeedsUpdate reports whether relPath is new or has a different mtime
// than its manifest record.
func (m *Manifest) NeedsUpdate(relPath string, mtime int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.Files[relPath]
	return !ok || r.MTime != mtime
}

// Paths returns every relpath currently recorded, sorted.
func (m *Manifest) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
