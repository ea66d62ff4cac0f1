package filereader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileReader_ReadReturnsText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	r := New()
	text, err := r.Read(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestFileReader_TruncatesOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", MaxOutputRunes+500)), 0o644))

	r := New()
	text, err := r.Read(context.Background(), path)

	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(text)), MaxOutputRunes)
}

func TestFileReader_MissingFileReturnsError(t *testing.T) {
	r := New()
	_, err := r.Read(context.Background(), "/no/such/path.txt")
	assert.Error(t, err)
}
