package extractor

import "context"

// Registry tries each registered Extractor in order and uses the first
// one that claims support for a given path, falling back to the last
// entry (expected to be a generic catch-all) if none claim it.
type Registry struct {
	extractors []Extractor
}

// NewRegistry builds a registry. fallback is used when no extractor in
// extractors claims the path.
func NewRegistry(fallback Extractor, extractors ...Extractor) *Registry {
	return &Registry{extractors: append(extractors, fallback)}
}

// ExtractFile dispatches to the first supporting extractor.
func (r *Registry) ExtractFile(ctx context.Context, path string, chunkSize, chunkOverlap int) (*Extraction, error) {
	for _, e := range r.extractors {
		if e.SupportsPath(path) {
			return e.ExtractFile(ctx, path, chunkSize, chunkOverlap)
		}
	}
	return r.extractors[len(r.extractors)-1].ExtractFile(ctx, path, chunkSize, chunkOverlap)
}
