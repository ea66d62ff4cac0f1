package kindexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manole-ai/neurofind/pkg/extractor"
	"github.com/manole-ai/neurofind/pkg/manifest"
	"github.com/manole-ai/neurofind/pkg/vectorindex"
)

func fakeEmbed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func newTestIndexer(t *testing.T, dataDir string) (*Indexer, string) {
	t.Helper()
	idx, err := vectorindex.Open(chromem.NewDB(), "test", fakeEmbed)
	require.NoError(t, err)
	reg := extractor.NewRegistry(extractor.NewPlainTextExtractor())
	manifestPath := filepath.Join(t.TempDir(), "manifest.json")
	return New(reg, idx, manifestPath), manifestPath
}

func TestBuild_IndexesAllFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("goodbye world"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden", "c.txt"), []byte("skip me"), 0o644))

	ix, manifestPath := newTestIndexer(t, dir)
	require.NoError(t, ix.Build(context.Background(), dir, false))

	assert.Equal(t, 2, ix.index.Count())
	m, err := manifest.Load(manifestPath)
	require.NoError(t, err)
	assert.Len(t, m.Paths(), 2)
}

func TestBuild_SkipsImageExtensions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("binary"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("text content"), 0o644))

	ix, _ := newTestIndexer(t, dir)
	require.NoError(t, ix.Build(context.Background(), dir, false))

	assert.Equal(t, 1, ix.index.Count())
}

func TestBuild_DelegatesToIncrementalWhenManifestExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	ix, _ := newTestIndexer(t, dir)
	require.NoError(t, ix.Build(context.Background(), dir, false))
	initialCount := ix.index.Count()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new file"), 0o644))
	require.NoError(t, ix.Build(context.Background(), dir, false))

	assert.Greater(t, ix.index.Count(), initialCount)
}

func TestIncrementalUpdate_OnlyReindexesChangedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	ix, _ := newTestIndexer(t, dir)
	require.NoError(t, ix.Build(context.Background(), dir, false))

	require.NoError(t, ix.IncrementalUpdate(context.Background(), dir))
	countAfterNoop := ix.index.Count()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("hello again, much longer now. ", 50)), 0o644))
	require.NoError(t, os.Chtimes(path, time.Now().Add(time.Minute), time.Now().Add(time.Minute)))
	require.NoError(t, ix.IncrementalUpdate(context.Background(), dir))

	assert.Greater(t, ix.index.Count(), countAfterNoop)
}

func TestAppendFile_AddsSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(path, []byte("fresh content"), 0o644))

	ix, manifestPath := newTestIndexer(t, dir)
	require.NoError(t, ix.AppendFile(context.Background(), dir, path))

	assert.Equal(t, 1, ix.index.Count())
	m, err := manifest.Load(manifestPath)
	require.NoError(t, err)
	_, ok := m.Get("new.txt")
	assert.True(t, ok)
}

func TestAppendFile_SkipsImageExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("binary"), 0o644))

	ix, _ := newTestIndexer(t, dir)
	require.NoError(t, ix.AppendFile(context.Background(), dir, path))

	assert.Equal(t, 0, ix.index.Count())
}
