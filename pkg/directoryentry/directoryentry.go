// Package directoryentry implements the DirectoryEntry type (spec §3):
// the per-added-directory aggregate the Server owns exclusively, bundling
// the index, searcher, agent and background handles for one data
// directory along with its conversation history and lifecycle state.
package directoryentry

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/manole-ai/neurofind/internal/fileutil"
	"github.com/manole-ai/neurofind/pkg/agent"
	"github.com/manole-ai/neurofind/pkg/captioner"
	"github.com/manole-ai/neurofind/pkg/filegraph"
	"github.com/manole-ai/neurofind/pkg/kindexer"
	"github.com/manole-ai/neurofind/pkg/llm"
	"github.com/manole-ai/neurofind/pkg/searcher"
	"github.com/manole-ai/neurofind/pkg/toolbox"
	"github.com/manole-ai/neurofind/pkg/toolregistry"
	"github.com/manole-ai/neurofind/pkg/vectorindex"
)

// State names where a DirectoryEntry is in its lifecycle. It advances
// monotonically: indexing -> ready or indexing -> error, never backward.
type State string

const (
	StateIndexing State = "indexing"
	StateReady    State = "ready"
	StateError    State = "error"
)

// maxHistoryEntries bounds conversation_history to 5 turns (spec §3).
const maxHistoryEntries = 10

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// DeriveID turns an absolute directory path into a stable dir_id by
// normalizing unsafe characters out of its base name.
func DeriveID(absPath string) string {
	base := filepath.Base(filepath.Clean(absPath))
	id := unsafeIDChars.ReplaceAllString(base, "-")
	id = strings.Trim(id, "-")
	if id == "" {
		id = "dir"
	}
	return id
}

// FileTypeStat aggregates count and size for one file extension.
type FileTypeStat struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// LargeFile names one of the largest files found during init.
type LargeFile struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// Stats holds the deterministic stats init() collects (spec §4.15).
type Stats struct {
	FileCount    int                     `json:"file_count"`
	ByType       map[string]FileTypeStat `json:"by_type"`
	TopLargest   []LargeFile             `json:"top_largest"`
	AvgFileBytes int64                   `json:"avg_file_bytes"`
	DirCount     int                     `json:"dir_count"`
	MaxDepth     int                     `json:"max_depth"`
}

// DirectoryEntry is the per-directory aggregate owned exclusively by the
// Server. Invariants (spec §3): agent.tools and searcher reference the
// same VectorIndex as Index; ConversationHistory never exceeds
// maxHistoryEntries; State advances monotonically.
type DirectoryEntry struct {
	mu sync.Mutex

	DirID     string
	Path      string
	IndexName string

	Index    *vectorindex.Index
	Searcher *searcher.Searcher
	Registry *toolregistry.Registry
	Agent    *agent.Agent
	ToolBox  *toolbox.ToolBox
	Indexer  *kindexer.Indexer

	Watcher   *kindexer.Watcher
	Captioner *captioner.Captioner

	state        State
	stats        *Stats
	summary      string
	errorMessage string
	fileGraph    *filegraph.Graph
	history      []llm.ChatMessage
}

// New creates a DirectoryEntry in the indexing state. The watcher and
// captioner handles are attached afterward, once init() starts them.
func New(dirID, path, indexName string, idx *vectorindex.Index, s *searcher.Searcher, reg *toolregistry.Registry, ag *agent.Agent, tb *toolbox.ToolBox, indexer *kindexer.Indexer) *DirectoryEntry {
	return &DirectoryEntry{
		DirID:     dirID,
		Path:      path,
		IndexName: indexName,
		Index:     idx,
		Searcher:  s,
		Registry:  reg,
		Agent:     ag,
		ToolBox:   tb,
		Indexer:   indexer,
		state:     StateIndexing,
	}
}

// State returns the entry's current lifecycle state.
func (e *DirectoryEntry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// MarkReady advances state to ready. A no-op if already in a terminal state.
func (e *DirectoryEntry) MarkReady() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIndexing {
		e.state = StateReady
	}
}

// MarkError advances state to error and records the failure message.
func (e *DirectoryEntry) MarkError(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateError
	e.errorMessage = message
}

// ErrorMessage returns the recorded error, if State is error.
func (e *DirectoryEntry) ErrorMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errorMessage
}

// SetStats records init()'s collected deterministic stats.
func (e *DirectoryEntry) SetStats(s *Stats) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = s
}

// Stats returns the last recorded stats, or nil.
func (e *DirectoryEntry) Stats() *Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// SetSummary records the asynchronously-computed one-paragraph summary.
func (e *DirectoryEntry) SetSummary(summary string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.summary = summary
}

// Summary returns the last computed summary, or "" if not computed yet.
func (e *DirectoryEntry) Summary() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// SetFileGraph caches a computed FileGraph.
func (e *DirectoryEntry) SetFileGraph(g *filegraph.Graph) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fileGraph = g
}

// FileGraph returns the cached graph, or nil if not computed yet.
func (e *DirectoryEntry) FileGraph() *filegraph.Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fileGraph
}

// InvalidateFileGraph clears the cached graph, called by reindex.
func (e *DirectoryEntry) InvalidateFileGraph() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fileGraph = nil
}

// AppendHistory appends a turn and truncates to maxHistoryEntries,
// dropping the oldest entries first.
func (e *DirectoryEntry) AppendHistory(role, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, llm.ChatMessage{Role: role, Content: content})
	if len(e.history) > maxHistoryEntries {
		e.history = e.history[len(e.history)-maxHistoryEntries:]
	}
}

// History returns a copy of the stored conversation history.
func (e *DirectoryEntry) History() []llm.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]llm.ChatMessage, len(e.history))
	copy(out, e.history)
	return out
}

const topLargestCount = 3

// CollectStats walks dataDir and aggregates the deterministic stats
// init() reports (spec §4.15): file count, per-extension counts and
// sizes, the top-3 largest files, average file size, directory count
// and max nesting depth. Hidden files and directories are skipped,
// grounded on the ToolBox walk convention.
func CollectStats(dataDir string) (*Stats, error) {
	stats := &Stats{ByType: make(map[string]FileTypeStat)}

	var totalBytes int64
	var largest []LargeFile

	err := filepath.WalkDir(dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == dataDir {
			return nil
		}
		name := d.Name()
		if fileutil.IsHidden(name) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(dataDir, path)
		if relErr != nil {
			rel = name
		}
		depth := len(strings.Split(rel, string(filepath.Separator)))

		if d.IsDir() {
			stats.DirCount++
			if depth > stats.MaxDepth {
				stats.MaxDepth = depth
			}
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}

		stats.FileCount++
		totalBytes += info.Size()
		if depth > stats.MaxDepth {
			stats.MaxDepth = depth
		}

		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		if ext == "" {
			ext = "(none)"
		}
		byType := stats.ByType[ext]
		byType.Count++
		byType.Bytes += info.Size()
		stats.ByType[ext] = byType

		largest = append(largest, LargeFile{Path: rel, Bytes: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(largest, func(i, j int) bool { return largest[i].Bytes > largest[j].Bytes })
	if len(largest) > topLargestCount {
		largest = largest[:topLargestCount]
	}
	stats.TopLargest = largest

	if stats.FileCount > 0 {
		stats.AvgFileBytes = totalBytes / int64(stats.FileCount)
	}
	return stats, nil
}

// Shutdown stops the watcher and captioner handles, if attached. Safe to
// call multiple times and on an entry that never started either.
func (e *DirectoryEntry) Shutdown() {
	e.mu.Lock()
	w := e.Watcher
	c := e.Captioner
	e.mu.Unlock()

	if w != nil {
		_ = w.Stop()
	}
	if c != nil {
		c.Stop()
	}
}
