// Package kindexer implements the KreuzbergIndexer (spec §4.13):
// building and incrementally maintaining one VectorIndex for one data
// directory, backed by a persistent Manifest. Grounded on the teacher's
// pkg/index/dag.go manifest load/save discipline and index/watcher.go's
// walk-and-skip convention, generalized from a code-symbol index to a
// document-passage index.
package kindexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/manole-ai/neurofind/internal/fileutil"
	"github.com/manole-ai/neurofind/pkg/extractor"
	"github.com/manole-ai/neurofind/pkg/manifest"
	"github.com/manole-ai/neurofind/pkg/vectorindex"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// skipExtensions holds MIME-adjacent extensions this text pipeline never
// indexes directly — images are handled by the Captioner instead.
var skipExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tiff": true, ".webp": true, ".heic": true, ".heif": true,
}

// Indexer builds and incrementally updates one VectorIndex for one data
// directory.
type Indexer struct {
	extractors   *extractor.Registry
	index        *vectorindex.Index
	manifestPath string
	chunkSize    int
	chunkOverlap int
}

// New creates an Indexer. manifestPath is the file the Manifest persists
// to, conventionally inside a per-directory state folder.
func New(extractors *extractor.Registry, index *vectorindex.Index, manifestPath string) *Indexer {
	return &Indexer{
		extractors:   extractors,
		index:        index,
		manifestPath: manifestPath,
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
	}
}

type fileEntry struct {
	relPath string
	absPath string
	mtime   int64
}

func walkDataDir(dataDir string) ([]fileEntry, error) {
	var entries []fileEntry
	err := filepath.WalkDir(dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == dataDir {
			return nil
		}
		name := d.Name()
		if fileutil.IsHidden(name) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if fileutil.ExtensionIn(name, skipExtensions) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return nil
		}
		entries = append(entries, fileEntry{relPath: rel, absPath: path, mtime: info.ModTime().Unix()})
		return nil
	})
	return entries, err
}

// Build performs a full build (spec §4.13). If an index already exists
// and force is false, it either delegates to IncrementalUpdate (a
// manifest is present) or is a no-op (no manifest to reconcile against).
func (ix *Indexer) Build(ctx context.Context, dataDir string, force bool) error {
	if ix.index.Count() > 0 && !force {
		if _, err := os.Stat(ix.manifestPath); err == nil {
			return ix.IncrementalUpdate(ctx, dataDir)
		}
		return nil
	}

	entries, err := walkDataDir(dataDir)
	if err != nil {
		return fmt.Errorf("walk data dir: %w", err)
	}

	m := manifest.New(ix.manifestPath)
	var passages []vectorindex.Passage

	for _, e := range entries {
		extraction, err := ix.extractors.ExtractFile(ctx, e.absPath, ix.chunkSize, ix.chunkOverlap)
		if err != nil {
			continue // single-file extraction failure never aborts the build
		}
		passages = append(passages, buildPassages(e.relPath, extraction)...)
		m.Set(e.relPath, e.mtime, len(extraction.Chunks))
	}

	if err := ix.index.Build(ctx, passages); err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	return m.Save()
}

// IncrementalUpdate extracts and appends only new or changed files (spec
// §4.13). A manifest read failure degrades to a full no-op rather than a
// full rebuild.
func (ix *Indexer) IncrementalUpdate(ctx context.Context, dataDir string) error {
	m, err := manifest.Load(ix.manifestPath)
	if err != nil {
		return nil
	}

	entries, err := walkDataDir(dataDir)
	if err != nil {
		return fmt.Errorf("walk data dir: %w", err)
	}

	var changed []fileEntry
	for _, e := range entries {
		if m.NeedsUpdate(e.relPath, e.mtime) {
			changed = append(changed, e)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	var passages []vectorindex.Passage
	for _, e := range changed {
		extraction, err := ix.extractors.ExtractFile(ctx, e.absPath, ix.chunkSize, ix.chunkOverlap)
		if err != nil {
			continue
		}
		passages = append(passages, buildPassages(e.relPath, extraction)...)
		m.Set(e.relPath, e.mtime, len(extraction.Chunks))
	}

	if len(passages) > 0 {
		if err := ix.index.Append(ctx, passages...); err != nil {
			return fmt.Errorf("append index: %w", err)
		}
	}
	return m.Save()
}

// AppendFile extracts and appends a single changed file (spec §4.13),
// invoked by the Watcher. It updates and rewrites the manifest.
func (ix *Indexer) AppendFile(ctx context.Context, dataDir, absPath string) error {
	relPath, err := filepath.Rel(dataDir, absPath)
	if err != nil {
		relPath = filepath.Base(absPath)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil // file disappeared before we got to it; nothing to do
	}
	if fileutil.ExtensionIn(absPath, skipExtensions) {
		return nil
	}

	extraction, err := ix.extractors.ExtractFile(ctx, absPath, ix.chunkSize, ix.chunkOverlap)
	if err != nil {
		return err // extraction failure is logged by the caller and skipped
	}

	passages := buildPassages(relPath, extraction)
	if err := ix.index.Append(ctx, passages...); err != nil {
		return fmt.Errorf("append index: %w", err)
	}

	m, err := manifest.Load(ix.manifestPath)
	if err != nil {
		m = manifest.New(ix.manifestPath)
	}
	m.Set(relPath, info.ModTime().Unix(), len(extraction.Chunks))
	return m.Save()
}

func buildPassages(relPath string, extraction *extractor.Extraction) []vectorindex.Passage {
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(relPath)), ".")
	fileName := filepath.Base(relPath)

	passages := make([]vectorindex.Passage, 0, len(extraction.Chunks))
	for _, chunk := range extraction.Chunks {
		passages = append(passages, vectorindex.Passage{
			ID:   vectorindex.PassageID(relPath, chunk.ChunkIndex),
			Text: chunk.Text,
			Metadata: map[string]string{
				"file_path":    relPath,
				"file_name":    fileName,
				"file_type":    fileType,
				"page_number":  strconv.Itoa(chunk.PageNumber),
				"element_type": chunk.ElementType,
				"chunk_index":  strconv.Itoa(chunk.ChunkIndex),
			},
		})
	}
	return passages
}
