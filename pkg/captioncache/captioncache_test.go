package captioncache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutAndGet(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Put("/data/photo.jpg", 1000, "a red bicycle against a wall"))

	caption, ok := c.Get("/data/photo.jpg", 1000)
	require.True(t, ok)
	assert.Equal(t, "a red bicycle against a wall", caption)
}

func TestCache_MtimeChangeInvalidates(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, c.Put("/data/photo.jpg", 1000, "caption"))

	_, ok := c.Get("/data/photo.jpg", 2000)
	assert.False(t, ok)
}

func TestCache_TruncatesLongCaptions(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	long := make([]byte, MaxCaptionChars+200)
	for i := range long {
		long[i] = 'a'
	}
	require.NoError(t, c.Put("/data/big.jpg", 1, string(long)))

	caption, ok := c.Get("/data/big.jpg", 1)
	require.True(t, ok)
	assert.Len(t, []rune(caption), MaxCaptionChars)
}

func TestCache_Has(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	assert.False(t, c.Has("/data/missing.jpg", 1))
	require.NoError(t, c.Put("/data/missing.jpg", 1, "x"))
	assert.True(t, c.Has("/data/missing.jpg", 1))
}
