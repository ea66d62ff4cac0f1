// Package vectorindex implements the VectorIndex port on top of
// chromem-go, the in-process embedded vector database.
package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
)

// Passage is a single indexed chunk of extracted document text.
type Passage struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// SearchResult is one ranked hit from Search.
type SearchResult struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]string
}

// Filter expresses a case-insensitive substring filter over one metadata field.
type Filter struct {
	Field    string
	Contains string
}

// EmbedFunc computes an embedding vector for a piece of text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Index is a single chromem-go collection backing one DirectoryEntry.
//
// Build-side calls append records to the collection; Search reads it.
// Append serializes behind writerMu so that watcher-driven and
// captioner-driven writers never race each other (spec §5's index
// writer lock). Readers never take writerMu and may observe state
// from either side of an in-flight append.
type Index struct {
	writerMu sync.Mutex

	db         *chromem.DB
	collection *chromem.Collection
	embed      EmbedFunc
	name       string
}

// Open creates or reopens a named collection in db using embed as the
// embedding function for both indexing and querying.
func Open(db *chromem.DB, name string, embed EmbedFunc) (*Index, error) {
	collection, err := db.GetOrCreateCollection(name, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", name, err)
	}
	return &Index{
		db:         db,
		collection: collection,
		embed:      embed,
		name:       name,
	}, nil
}

// Build adds a batch of passages and finalizes the index. Used for a
// fresh full build; safe to call repeatedly. chromem-go keeps one
// document per ID, so on a non-empty collection a passage with a new ID
// is added and one whose ID is already present replaces the stored one.
func (idx *Index) Build(ctx context.Context, passages []Passage) error {
	idx.writerMu.Lock()
	defer idx.writerMu.Unlock()

	docs := make([]chromem.Document, 0, len(passages))
	for _, p := range passages {
		docs = append(docs, chromem.Document{
			ID:       p.ID,
			Content:  p.Text,
			Metadata: p.Metadata,
		})
	}
	if len(docs) == 0 {
		return nil
	}
	return idx.collection.AddDocuments(ctx, docs, 4)
}

// Append adds additional passages to an already-built index, taking the
// writer lock for the duration of the call.
func (idx *Index) Append(ctx context.Context, passages ...Passage) error {
	return idx.Build(ctx, passages)
}

// AppendOne is a convenience wrapper used by the ImageCaptioner, which
// appends exactly one passage at a time.
func (idx *Index) AppendOne(ctx context.Context, p Passage) error {
	return idx.Append(ctx, p)
}

// Search performs a k-NN query and applies metadata substring filters.
// Results are returned in descending score order.
func (idx *Index) Search(ctx context.Context, queryText string, topK int, filters ...Filter) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	count := idx.collection.Count()
	if count == 0 {
		return nil, nil
	}

	// Over-fetch so that post-filtering by substring still leaves topK
	// candidates when possible; chromem-go's own `where` only supports
	// exact match, so filters.Field=value substring semantics are
	// applied in Go below.
	fetch := topK * 4
	if fetch > count {
		fetch = count
	}
	if fetch < 1 {
		fetch = 1
	}

	docs, err := idx.collection.Query(ctx, queryText, fetch, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	results := make([]SearchResult, 0, len(docs))
	for _, doc := range docs {
		if !matchesFilters(doc.Metadata, filters) {
			continue
		}
		results = append(results, SearchResult{
			ID:       doc.ID,
			Text:     doc.Content,
			Score:    float64(doc.Similarity),
			Metadata: doc.Metadata,
		})
		if len(results) >= topK {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

func matchesFilters(meta map[string]string, filters []Filter) bool {
	for _, f := range filters {
		if !strings.Contains(strings.ToLower(meta[f.Field]), strings.ToLower(f.Contains)) {
			return false
		}
	}
	return true
}

// Passages returns every passage currently in the collection. Used by
// FileGraph, which needs the raw corpus rather than a ranked query.
func (idx *Index) Passages(ctx context.Context) ([]Passage, error) {
	count := idx.collection.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem-go rejects an empty query text; with nResults equal to the
	// collection size every document is returned whatever the text is.
	docs, err := idx.collection.Query(ctx, " ", count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list passages: %w", err)
	}
	out := make([]Passage, 0, len(docs))
	for _, doc := range docs {
		out = append(out, Passage{ID: doc.ID, Text: doc.Content, Metadata: doc.Metadata})
	}
	return out, nil
}

// EmbedFunc exposes the query-embedding function for FileGraph's
// similarity computation.
func (idx *Index) EmbedFunc() EmbedFunc {
	return idx.embed
}

// Count returns the number of passages currently indexed.
func (idx *Index) Count() int {
	return idx.collection.Count()
}

// Name returns the collection name (the DirectoryEntry's index_name).
func (idx *Index) Name() string {
	return idx.name
}

// passageID deterministically derives a chunk ID from a file path and
// chunk index, matching the manifest's notion of "chunks per file".
func passageID(relPath string, chunkIndex int) string {
	return relPath + "#" + strconv.Itoa(chunkIndex)
}

// PassageID is the exported form of passageID for callers in kindexer
// and captioner that need a stable, collision-free document ID.
func PassageID(relPath string, chunkIndex int) string {
	return passageID(relPath, chunkIndex)
}
