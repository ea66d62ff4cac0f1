package captioner

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manole-ai/neurofind/pkg/captioncache"
	"github.com/manole-ai/neurofind/pkg/llm"
	"github.com/manole-ai/neurofind/pkg/vectorindex"
)

type stubVisionProvider struct {
	caption string
	calls   int
}

func (s *stubVisionProvider) Name() string { return "stub-vision" }

func (s *stubVisionProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{}, nil
}

func (s *stubVisionProvider) Stream(ctx context.Context, req *llm.CompletionRequest, onToken func(string)) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{}, nil
}

func (s *stubVisionProvider) CaptionImage(ctx context.Context, imageBytes []byte) (string, error) {
	s.calls++
	return s.caption, nil
}

func fakeEmbed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func writeTestJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 100, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
}

func TestRun_CaptionsUncachedImagesAndAppendsPassage(t *testing.T) {
	dir := t.TempDir()
	writeTestJPEG(t, filepath.Join(dir, "photo.jpg"), 1200, 600)

	cacheDir := t.TempDir()
	cache, err := captioncache.New(cacheDir)
	require.NoError(t, err)

	vision := &stubVisionProvider{caption: "A scenic landscape."}
	router := llm.NewModelRouterWithProviders(&stubVisionProvider{}, vision)

	idx, err := vectorindex.Open(chromem.NewDB(), "test", fakeEmbed)
	require.NoError(t, err)

	c := New(dir, cache, router, idx)
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 1, vision.calls)

	passages, err := idx.Passages(context.Background())
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Contains(t, passages[0].Text, "A scenic landscape.")
	assert.Equal(t, "photo.jpg", passages[0].Metadata["file_name"])
}

func TestRun_SkipsAlreadyCachedImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cached.jpg")
	writeTestJPEG(t, path, 400, 400)

	cacheDir := t.TempDir()
	cache, err := captioncache.New(cacheDir)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, cache.Put(path, captioncache.MTimeUnix(info), "Already captioned."))

	vision := &stubVisionProvider{caption: "New caption."}
	router := llm.NewModelRouterWithProviders(&stubVisionProvider{}, vision)
	idx, err := vectorindex.Open(chromem.NewDB(), "test", fakeEmbed)
	require.NoError(t, err)

	c := New(dir, cache, router, idx)
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 0, vision.calls)
}

func TestRun_NoVisionProviderIsNoOp(t *testing.T) {
	dir := t.TempDir()
	writeTestJPEG(t, filepath.Join(dir, "photo.jpg"), 200, 200)

	cache, err := captioncache.New(t.TempDir())
	require.NoError(t, err)
	router := llm.NewModelRouterWithProviders(&stubVisionProvider{}, nil)
	idx, err := vectorindex.Open(chromem.NewDB(), "test", fakeEmbed)
	require.NoError(t, err)

	c := New(dir, cache, router, idx)
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 0, idx.Count())
}

func TestStop_HaltsBeforeNextImage(t *testing.T) {
	dir := t.TempDir()
	writeTestJPEG(t, filepath.Join(dir, "a.jpg"), 100, 100)
	writeTestJPEG(t, filepath.Join(dir, "b.jpg"), 100, 100)

	cache, err := captioncache.New(t.TempDir())
	require.NoError(t, err)
	vision := &stubVisionProvider{caption: "x"}
	router := llm.NewModelRouterWithProviders(&stubVisionProvider{}, vision)
	idx, err := vectorindex.Open(chromem.NewDB(), "test", fakeEmbed)
	require.NoError(t, err)

	c := New(dir, cache, router, idx)
	c.Stop()
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 0, vision.calls)
}

func TestDownscale_ShrinksLongerEdge(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1600, 800))
	out := downscale(src, 768)
	assert.Equal(t, 768, out.Bounds().Dx())
	assert.Equal(t, 384, out.Bounds().Dy())
}

func TestDownscale_LeavesSmallImageAlone(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	out := downscale(src, 768)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())
}
