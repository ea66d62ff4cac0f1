// Package captioncache implements the CaptionCache port (spec §4.11): a
// persistent, path-and-mtime-keyed caption store that survives process
// restarts. Grounded on the teacher's internal/fileutil read/write
// helpers and on pkg/index/chunk.go's hashContent pattern for the key
// digest.
package captioncache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/manole-ai/neurofind/internal/fileutil"
)

// MaxCaptionChars bounds a stored caption (spec §3: "String ≤ ~500 chars").
const MaxCaptionChars = 500

// Cache stores captions as one file per key under dir.
type Cache struct {
	dir string
}

// New creates a Cache rooted at dir, creating it if necessary.
func New(dir string) (*Cache, error) {
	if err := fileutil.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create caption cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// key derives a content-addressed cache key from a path and its mtime,
// so a file that changes invalidates its caption implicitly.
func key(path string, mtimeUnix int64) string {
	data := path + "|" + strconv.FormatInt(mtimeUnix, 10)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) pathFor(path string, mtimeUnix int64) string {
	return filepath.Join(c.dir, key(path, mtimeUnix))
}

// Get returns the cached caption for (path, mtime), if present.
func (c *Cache) Get(path string, mtimeUnix int64) (string, bool) {
	data, err := fileutil.ReadFile(c.pathFor(path, mtimeUnix))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Put stores caption for (path, mtime), truncating to MaxCaptionChars.
func (c *Cache) Put(path string, mtimeUnix int64, caption string) error {
	runes := []rune(caption)
	if len(runes) > MaxCaptionChars {
		caption = string(runes[:MaxCaptionChars])
	}
	return fileutil.WriteFile(c.pathFor(path, mtimeUnix), []byte(caption))
}

// Has reports whether a caption exists for (path, mtime) without
// reading its content.
func (c *Cache) Has(path string, mtimeUnix int64) bool {
	return fileutil.Exists(c.pathFor(path, mtimeUnix))
}

// MTimeUnix is a small convenience for callers that have an os.FileInfo
// and need the Unix mtime captioncache keys on.
func MTimeUnix(info os.FileInfo) int64 {
	return info.ModTime().Unix()
}
