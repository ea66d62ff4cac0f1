// Package filereader implements the FileReader port (spec §4.4):
// on-demand text extraction from arbitrary files for the Searcher's
// filename fallback, independent of whatever has already been indexed.
package filereader

import (
	"context"
	"sync"

	"github.com/manole-ai/neurofind/pkg/extractor"
)

// MaxOutputRunes bounds FileReader output so a single read cannot blow
// out the model's context window.
const MaxOutputRunes = 4000

// FileReader lazily constructs its Extractor on first Read call,
// matching the teacher's pattern of deferring heavyweight converter
// setup until it is actually needed.
type FileReader struct {
	once sync.Once
	reg  *extractor.Registry
}

// New creates a FileReader. Extractor construction happens lazily.
func New() *FileReader {
	return &FileReader{}
}

func (r *FileReader) registry() *extractor.Registry {
	r.once.Do(func() {
		r.reg = extractor.NewRegistry(extractor.NewPlainTextExtractor())
	})
	return r.reg
}

// Read extracts path's text and truncates it to MaxOutputRunes.
func (r *FileReader) Read(ctx context.Context, path string) (string, error) {
	extraction, err := r.registry().ExtractFile(ctx, path, MaxOutputRunes, 0)
	if err != nil {
		return "", err
	}

	runes := []rune(extraction.Text)
	if len(runes) > MaxOutputRunes {
		return string(runes[:MaxOutputRunes]), nil
	}
	return extraction.Text, nil
}
