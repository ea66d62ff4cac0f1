// Package searcher implements the Searcher (spec §4.8): vector search,
// per-chunk LLM fact extraction, a filename fallback, and formatted
// output with a source list. Grounded on the teacher's index.Searcher
// (semanticSearch/keywordSearch/FormatResults split), generalized from
// code-symbol search to document-passage search with LLM fact
// extraction in place of keyword scoring.
package searcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/manole-ai/neurofind/pkg/filereader"
	"github.com/manole-ai/neurofind/pkg/keywords"
	"github.com/manole-ai/neurofind/pkg/llm"
	"github.com/manole-ai/neurofind/pkg/toolbox"
	"github.com/manole-ai/neurofind/pkg/vectorindex"
)

const (
	scorePrefilterRatio = 0.8
	mapChunkTruncate    = 1200
	maxFactsPerChunk    = 10
	maxFallbackFiles    = 3
)

const mapSystemPrompt = `You decide whether a passage directly answers a question.
If it does, extract the specific data points that answer it.
Respond with a single JSON object exactly of the form:
{"relevant": true|false, "facts": ["..."]}
Do not include any other text.`

// Searcher answers queries against one directory's index.
type Searcher struct {
	index      *vectorindex.Index
	model      *llm.ModelRouter
	fileReader *filereader.FileReader
	toolBox    *toolbox.ToolBox
	debug      atomic.Bool
}

// New creates a Searcher. fileReader and toolBox may be nil, in which
// case the filename fallback (step 5) is skipped.
func New(index *vectorindex.Index, model *llm.ModelRouter, fileReader *filereader.FileReader, tb *toolbox.ToolBox) *Searcher {
	return &Searcher{index: index, model: model, fileReader: fileReader, toolBox: tb}
}

// SetDebug toggles verbose extraction logging (spec §4.15's toggle_debug).
func (s *Searcher) SetDebug(on bool) { s.debug.Store(on) }

// Debug reports the current debug flag.
func (s *Searcher) Debug() bool { return s.debug.Load() }

type mapResult struct {
	Relevant bool  `json:"relevant"`
	Facts    []any `json:"facts"`
}

// sourceFacts accumulates facts per source, preserving first-seen order.
type sourceFacts struct {
	order []string
	facts map[string][]string
}

func newSourceFacts() *sourceFacts {
	return &sourceFacts{facts: make(map[string][]string)}
}

func (s *sourceFacts) add(source string, newFacts []string) {
	if len(newFacts) == 0 {
		return
	}
	if _, ok := s.facts[source]; !ok {
		s.order = append(s.order, source)
	}
	existing := s.facts[source]
	for _, f := range newFacts {
		if len(existing) >= maxFactsPerChunk {
			break
		}
		existing = append(existing, f)
	}
	s.facts[source] = existing
}

func (s *sourceFacts) empty() bool { return len(s.order) == 0 }

func (s *sourceFacts) format() string {
	var sb strings.Builder
	for _, source := range s.order {
		fmt.Fprintf(&sb, "From %s:\n", source)
		for _, fact := range s.facts[source] {
			fmt.Fprintf(&sb, "  - %s\n", fact)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// SearchAndExtract is the Searcher's public contract.
func (s *Searcher) SearchAndExtract(ctx context.Context, query string, topK int) (string, []string) {
	if topK <= 0 {
		topK = 5
	}

	results, err := s.index.Search(ctx, query, topK)
	if err != nil || len(results) == 0 {
		return s.filenameFallback(ctx, query)
	}

	results = prefilterByScore(results)

	sf := newSourceFacts()
	for _, r := range results {
		source := sourceName(r.Metadata, r.ID)
		facts := s.extractFacts(ctx, query, r.Text, r.Metadata)
		sf.add(source, facts)
	}

	if sf.empty() {
		text, sources := s.filenameFallback(ctx, query)
		if len(sources) > 0 {
			return text, sources
		}
		return "Search returned results but none were relevant to the query.", nil
	}

	return sf.format(), sf.order
}

// prefilterByScore drops results scoring below 0.8 of the top result,
// when there is more than one result to compare.
func prefilterByScore(results []vectorindex.SearchResult) []vectorindex.SearchResult {
	if len(results) <= 1 {
		return results
	}
	threshold := scorePrefilterRatio * results[0].Score
	kept := results[:0:0]
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	return kept
}

func sourceName(meta map[string]string, fallbackID string) string {
	if name := meta["file_name"]; name != "" {
		return name
	}
	for _, key := range []string{"file_path", "source"} {
		if v := meta[key]; v != "" {
			return v
		}
	}
	return fallbackID
}

// extractFacts runs MAP-prompt fact extraction over one chunk.
func (s *Searcher) extractFacts(ctx context.Context, query, chunkText string, meta map[string]string) []string {
	truncated := chunkText
	if r := []rune(truncated); len(r) > mapChunkTruncate {
		truncated = string(r[:mapChunkTruncate])
	}

	metaLine := formatMeta(meta)
	userMsg := fmt.Sprintf("Question: %s\n\n%s\n%s", query, metaLine, truncated)

	resp, err := s.model.Complete(ctx, &llm.CompletionRequest{
		System:    mapSystemPrompt,
		Messages:  []llm.Message{llm.UserMessage(userMsg)},
		MaxTokens: 400,
	})
	if err != nil {
		return nil
	}

	var parsed mapResult
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &parsed); err != nil {
		return nil
	}
	if !parsed.Relevant {
		return nil
	}
	return normalizeFacts(parsed.Facts)
}

// normalizeFacts accepts the raw "facts" array from a MAP-step reply,
// which per the prompt may contain either plain strings or {name, value}
// objects. Objects are formatted as "name: value"; anything else is
// skipped rather than discarded wholesale.
func normalizeFacts(raw []any) []string {
	var out []string
	for _, item := range raw {
		f := factString(item)
		f = strings.TrimSpace(f)
		if len([]rune(f)) >= 3 {
			out = append(out, f)
		}
		if len(out) >= maxFactsPerChunk {
			break
		}
	}
	return out
}

// factString renders one element of a "facts" array as a display string.
func factString(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case map[string]any:
		name, _ := v["name"].(string)
		value := v["value"]
		if name == "" {
			return ""
		}
		return fmt.Sprintf("%s: %v", name, value)
	default:
		return ""
	}
}

func formatMeta(meta map[string]string) string {
	if name := meta["file_name"]; name != "" {
		return "[" + name + "]"
	}
	return ""
}

func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

// filenameFallback runs ToolBox.GrepPaths for each of the query's
// keywords and extracts facts from up to maxFallbackFiles matched files
// directly. GrepPaths matches file contents; file names themselves are
// not compared with the keywords.
func (s *Searcher) filenameFallback(ctx context.Context, query string) (string, []string) {
	if s.fileReader == nil || s.toolBox == nil {
		return "No matching content found.", nil
	}

	kws := keywords.Extract(query)
	if len(kws) == 0 {
		return "No matching content found.", nil
	}

	seenFiles := map[string]bool{}
	var files []string
	for _, kw := range kws {
		paths, err := s.toolBox.GrepPaths(kw)
		if err != nil {
			continue
		}
		for _, p := range paths {
			if seenFiles[p] {
				continue
			}
			seenFiles[p] = true
			files = append(files, p)
			if len(files) >= maxFallbackFiles {
				break
			}
		}
		if len(files) >= maxFallbackFiles {
			break
		}
	}

	if len(files) == 0 {
		return "No matching content found.", nil
	}

	sf := newSourceFacts()
	for _, path := range files {
		text, err := s.fileReader.Read(ctx, path)
		if err != nil {
			continue
		}
		name := baseName(path)
		facts := s.extractFacts(ctx, query, text, map[string]string{"file_name": name})
		sf.add(name, facts)
	}

	if sf.empty() {
		return "Search returned results but none were relevant to the query.", nil
	}
	return sf.format(), sf.order
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
