package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_LoadMissingFileYieldsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, m.Version)
	assert.Empty(t, m.Paths())
}

func TestManifest_SetSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "manifest.json")
	m := New(path)
	m.Set("notes.txt", 1000, 3)
	require.NoError(t, m.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	rec, ok := loaded.Get("notes.txt")
	require.True(t, ok)
	assert.Equal(t, int64(1000), rec.MTime)
	assert.Equal(t, 3, rec.Chunks)
}

func TestManifest_NeedsUpdate(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "manifest.json"))
	assert.True(t, m.NeedsUpdate("new.txt", 100))

	m.Set("new.txt", 100, 1)
	assert.False(t, m.NeedsUpdate("new.txt", 100))
	assert.True(t, m.NeedsUpdate("new.txt", 200))
}

func TestManifest_Remove(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "manifest.json"))
	m.Set("gone.txt", 1, 1)
	m.Remove("gone.txt")

	_, ok := m.Get("gone.txt")
	assert.False(t, ok)
}
