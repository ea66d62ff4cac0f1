package extractor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

var plainTextExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".rst": true,
	".csv": true, ".json": true, ".yaml": true, ".yml": true,
	".log": true, ".go": true, ".py": true, ".js": true, ".ts": true,
}

// PlainTextExtractor is the minimal fallback Extractor implementation:
// it handles plain text and markdown directly and declines everything
// else. Heavier formats (PDF, office documents, OCR) belong to the
// document-extraction library named as an external collaborator in
// spec §1 and are out of scope for this port's concrete implementation.
type PlainTextExtractor struct{}

// NewPlainTextExtractor constructs the fallback extractor. Construction
// is cheap; any future heavyweight extractor would defer its own setup
// to first use, per spec §4.4's lazy-initialization requirement.
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

// SupportsPath reports whether ext is a recognized plain-text extension.
func (e *PlainTextExtractor) SupportsPath(path string) bool {
	return plainTextExtensions[strings.ToLower(filepath.Ext(path))]
}

// ExtractFile reads path as UTF-8 text and chunks it.
func (e *PlainTextExtractor) ExtractFile(ctx context.Context, path string, chunkSize, chunkOverlap int) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	text := string(data)
	elementType := "paragraph"
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".md" || ext == ".markdown" {
		elementType = "markdown"
	}

	pieces := chunkText(text, chunkSize, chunkOverlap)
	chunks := make([]Chunk, len(pieces))
	elements := make([]Element, len(pieces))
	for i, piece := range pieces {
		chunks[i] = Chunk{Text: piece, ChunkIndex: i, ElementType: elementType}
		elements[i] = Element{Text: piece, Type: elementType}
	}

	return &Extraction{Text: text, Chunks: chunks, Elements: elements}, nil
}
