// Package captioner implements the ImageCaptioner (spec §4.12): a
// background worker bound to one directory that scans for uncaptioned
// images, captions them one at a time through the vision model, and
// appends a passage for each into the shared VectorIndex. Grounded on
// the teacher's index.Watcher stop-flag/goroutine shape (index/watcher.go),
// reused here for a scan-once worker instead of an fsnotify loop.
package captioner

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/manole-ai/neurofind/internal/fileutil"
	"github.com/manole-ai/neurofind/pkg/captioncache"
	"github.com/manole-ai/neurofind/pkg/llm"
	"github.com/manole-ai/neurofind/pkg/vectorindex"
)

// HEIC/HEIF have no decoder registered: no library in the dependency
// corpus provides one, so those files reach image.Decode, fail, and are
// skipped (best-effort, swallowed by Run's per-image continue).

// imageExtensions is the allowlist of extensions the captioner scans for
// (spec §4.12 step 1: "incl. heic/heif").
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tiff": true, ".webp": true,
	".heic": true, ".heif": true,
}

// maxEdge is the longer-edge downscale target before captioning (spec
// §4.12 step 3a).
const maxEdge = 768

// Captioner scans one data directory for images, captions the
// uncached ones, and appends passages describing them into idx.
type Captioner struct {
	dataDir string
	cache   *captioncache.Cache
	model   *llm.ModelRouter
	idx     *vectorindex.Index

	onProgress func(done, total int)
	onError    func(message string)

	stopped atomic.Bool
}

// New creates a Captioner bound to one directory's data dir, cache,
// model router and vector index.
func New(dataDir string, cache *captioncache.Cache, model *llm.ModelRouter, idx *vectorindex.Index) *Captioner {
	return &Captioner{dataDir: dataDir, cache: cache, model: model, idx: idx}
}

// SetProgressCallback registers a callback invoked after each image is
// processed (spec §4.12 step 3e's captioning_progress event).
func (c *Captioner) SetProgressCallback(fn func(done, total int)) {
	c.onProgress = fn
}

// SetErrorCallback registers a callback invoked once on a terminal
// failure that ends the worker (spec §4.12 step 4).
func (c *Captioner) SetErrorCallback(fn func(message string)) {
	c.onError = fn
}

// Stop requests cooperative cancellation of a running scan. Safe to call
// from another goroutine; an in-flight caption call is allowed to finish.
func (c *Captioner) Stop() {
	c.stopped.Store(true)
}

// Run performs one full scan-caption-index pass, in order, at most one
// image at a time. It returns early, without error, if Stop is called
// mid-pass.
func (c *Captioner) Run(ctx context.Context) error {
	if !c.model.HasVision() {
		return nil
	}

	paths, err := c.enumerate()
	if err != nil {
		if c.onError != nil {
			c.onError(err.Error())
		}
		return fmt.Errorf("enumerate images: %w", err)
	}

	pending := c.filterCached(paths)
	total := len(pending)

	for i, path := range pending {
		if c.stopped.Load() || ctx.Err() != nil {
			return nil
		}
		if err := c.captionOne(ctx, path); err != nil {
			continue // best-effort: one bad image does not stop the scan
		}
		if c.onProgress != nil {
			c.onProgress(i+1, total)
		}
	}
	return nil
}

func (c *Captioner) enumerate() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(c.dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if fileutil.IsHidden(d.Name()) && path != c.dataDir {
				return filepath.SkipDir
			}
			return nil
		}
		if fileutil.IsHidden(d.Name()) {
			return nil
		}
		if fileutil.ExtensionIn(path, imageExtensions) {
			paths = append(paths, path)
		}
		return nil
	})
	sort.Strings(paths)
	return paths, err
}

// filterCached drops images whose caption is already present in the
// CaptionCache (spec §4.12 step 2).
func (c *Captioner) filterCached(paths []string) []string {
	var pending []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if c.cache.Has(p, captioncache.MTimeUnix(info)) {
			continue
		}
		pending = append(pending, p)
	}
	return pending
}

func (c *Captioner) captionOne(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	jpegBytes, err := normalizeToJPEG(path)
	if err != nil {
		return err
	}

	caption, err := c.model.Caption(ctx, jpegBytes)
	if err != nil {
		return err
	}

	if err := c.cache.Put(path, captioncache.MTimeUnix(info), caption); err != nil {
		return err
	}

	rel, err := filepath.Rel(c.dataDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	passage := vectorindex.Passage{
		ID:   vectorindex.PassageID(rel, 0),
		Text: "Photo description: " + caption,
		Metadata: map[string]string{
			"file_name": filepath.Base(path),
			"file_type": "image",
			"file_path": rel,
		},
	}
	return c.idx.AppendOne(ctx, passage)
}

// normalizeToJPEG loads an image file and re-encodes it as RGB JPEG,
// downscaled so its longer edge is at most maxEdge pixels (spec §4.12
// step 3a). HEIC/HEIF decoding is delegated to whichever image
// subpackage the caller has imported for its side-effect registration;
// if none is registered, image.Decode fails and the file is skipped.
func normalizeToJPEG(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	resized := downscale(src, maxEdge)
	return encodeJPEG(resized)
}

func downscale(src image.Image, longestEdge int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= longestEdge && h <= longestEdge {
		return src
	}

	var newW, newH int
	if w >= h {
		newW = longestEdge
		newH = h * longestEdge / w
	} else {
		newH = longestEdge
		newW = w * longestEdge / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
