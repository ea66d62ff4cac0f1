package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/manole-ai/neurofind/internal/protocol"
	"github.com/manole-ai/neurofind/pkg/agent"
	"github.com/manole-ai/neurofind/pkg/directoryentry"
	"github.com/manole-ai/neurofind/pkg/filegraph"
	"github.com/manole-ai/neurofind/pkg/llm"
)

type queryParams struct {
	Text        string `json:"text"`
	DirectoryID string `json:"directoryId"`
	SearchAll   bool   `json:"searchAll"`
}

// handleQuery implements query{text, directoryId?, searchAll?} (spec
// §4.15): rewrite the query against the directory's history, run the
// agent loop, stream tokens and steps, append the turn to history and
// resolve source names to absolute paths.
func (s *Server) handleQuery(ctx context.Context, req protocol.Request) bool {
	var params queryParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writer.SendError(&req.ID, "invalid query params: "+err.Error())
		return false
	}
	if strings.TrimSpace(params.Text) == "" {
		s.writer.SendError(&req.ID, "text is required")
		return false
	}
	if s.model == nil {
		s.writer.SendError(&req.ID, "not initialized")
		return false
	}

	if params.SearchAll {
		s.handleSearchAll(ctx, req, params.Text)
		return false
	}

	entry, ok := s.directory(params.DirectoryID)
	if !ok || entry.State() != directoryentry.StateReady {
		s.writer.SendError(&req.ID, "directory not ready: "+params.DirectoryID)
		return false
	}

	text, sources := s.runQuery(ctx, req, entry, params.Text)

	s.writer.SendResult(req.ID, map[string]any{
		"text":    text,
		"sources": resolveSourcePaths(entry.Path, sources),
	})
	return false
}

// runQuery rewrites params.Text against entry's history, runs the agent
// loop streaming tokens and steps through req.ID, and records the turn.
func (s *Server) runQuery(ctx context.Context, req protocol.Request, entry *directoryentry.DirectoryEntry, text string) (string, []string) {
	convo := buildConversationContext(entry.History())
	rewritten := s.rewriter.Rewrite(ctx, text, convo)

	onToken := func(tok string) { s.writer.SendToken(req.ID, tok) }
	onStep := func(ev agent.StepEvent) { s.writer.SendAgentStep(req.ID, ev.Step, ev.Tool, ev.Params) }

	final, sources := entry.Agent.Run(ctx, text, rewritten.ResolvedQuery, rewritten.Intent, entry.History(), onToken, onStep)

	entry.AppendHistory("user", text)
	entry.AppendHistory("assistant", final)
	return final, sources
}

// handleSearchAll runs the query sequentially against every ready
// directory (non-streaming), concatenating results tagged by folder.
func (s *Server) handleSearchAll(ctx context.Context, req protocol.Request, text string) {
	var builder strings.Builder
	var allSources []string

	for _, entry := range s.snapshotDirectories() {
		if entry.State() != directoryentry.StateReady {
			continue
		}
		convo := buildConversationContext(entry.History())
		rewritten := s.rewriter.Rewrite(ctx, text, convo)
		answer, sources := entry.Searcher.SearchAndExtract(ctx, rewritten.SearchQuery, 5)
		if strings.TrimSpace(answer) == "" {
			continue
		}
		builder.WriteString("[" + filepath.Base(entry.Path) + "]\n")
		builder.WriteString(answer)
		builder.WriteString("\n\n")
		allSources = append(allSources, resolveSourcePaths(entry.Path, sources)...)
	}

	s.writer.SendResult(req.ID, map[string]any{
		"text":    strings.TrimSpace(builder.String()),
		"sources": allSources,
	})
}

func buildConversationContext(history []llm.ChatMessage) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// resolveSourcePaths maps source display names returned by the agent
// back to absolute paths under dataDir, falling back to the raw name
// when no matching file is found.
func resolveSourcePaths(dataDir string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, resolveSourcePath(dataDir, name))
	}
	return out
}

func resolveSourcePath(dataDir, name string) string {
	direct := filepath.Join(dataDir, name)
	if _, err := os.Stat(direct); err == nil {
		return direct
	}

	var found string
	_ = filepath.WalkDir(dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || found != "" || d.IsDir() {
			return nil
		}
		if d.Name() == name || filepath.Base(path) == filepath.Base(name) {
			found = path
		}
		return nil
	})
	if found != "" {
		return found
	}
	return name
}

type removeDirectoryParams struct {
	DirectoryID string `json:"directoryId"`
}

// handleRemoveDirectory implements remove_directory{directoryId}.
func (s *Server) handleRemoveDirectory(req protocol.Request) bool {
	var params removeDirectoryParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writer.SendError(&req.ID, "invalid remove_directory params: "+err.Error())
		return false
	}

	entry, ok := s.removeDirectory(params.DirectoryID)
	if !ok {
		s.writer.SendError(&req.ID, "unknown directory: "+params.DirectoryID)
		return false
	}
	entry.Shutdown()

	s.writer.SendResult(req.ID, map[string]any{"status": "removed", "directoryId": params.DirectoryID})
	return false
}

type reindexParams struct {
	DirectoryID string `json:"directoryId"`
}

// handleReindex implements reindex{directoryId}: invalidates the cached
// file graph and re-runs the build path against the same data dir.
func (s *Server) handleReindex(ctx context.Context, req protocol.Request) bool {
	var params reindexParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writer.SendError(&req.ID, "invalid reindex params: "+err.Error())
		return false
	}

	entry, ok := s.directory(params.DirectoryID)
	if !ok {
		s.writer.SendError(&req.ID, "unknown directory: "+params.DirectoryID)
		return false
	}

	s.writer.SendDirectoryUpdate(map[string]any{"directoryId": params.DirectoryID, "state": "indexing"})

	if err := entry.Indexer.Build(ctx, entry.Path, true); err != nil {
		entry.MarkError(err.Error())
		s.writer.SendDirectoryUpdate(map[string]any{"directoryId": params.DirectoryID, "state": "error", "error": err.Error()})
		s.writer.SendError(&req.ID, err.Error())
		return false
	}
	entry.InvalidateFileGraph()

	stats, err := directoryentry.CollectStats(entry.Path)
	if err == nil {
		entry.SetStats(stats)
	}

	s.writer.SendDirectoryUpdate(map[string]any{"directoryId": params.DirectoryID, "state": "ready", "stats": entry.Stats()})
	s.writer.SendResult(req.ID, map[string]any{"status": "ready", "directoryId": params.DirectoryID})
	return false
}

type getFileGraphParams struct {
	DirectoryID string `json:"directoryId"`
}

// statAdapter implements filegraph.FileStater against one directory's
// data dir via os.Stat.
type statAdapter struct{ dataDir string }

func (a statAdapter) Size(relPath string) (int64, bool) {
	info, err := os.Stat(filepath.Join(a.dataDir, relPath))
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// handleGetFileGraph implements getFileGraph{directoryId}: returns the
// cached graph if present, otherwise computes and caches it.
func (s *Server) handleGetFileGraph(ctx context.Context, req protocol.Request) bool {
	var params getFileGraphParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writer.SendError(&req.ID, "invalid getFileGraph params: "+err.Error())
		return false
	}

	entry, ok := s.directory(params.DirectoryID)
	if !ok {
		s.writer.SendError(&req.ID, "unknown directory: "+params.DirectoryID)
		return false
	}

	graph := entry.FileGraph()
	if graph == nil {
		computed, err := filegraph.Compute(ctx, entry.Index, statAdapter{dataDir: entry.Path})
		if err != nil {
			s.writer.SendError(&req.ID, err.Error())
			return false
		}
		entry.SetFileGraph(computed)
		graph = computed
	}

	s.writer.SendResult(req.ID, graph)
	return false
}

// handleToggleDebug implements toggle_debug: flips the process-wide
// debug flag and propagates it to every live component.
func (s *Server) handleToggleDebug(req protocol.Request) bool {
	on := !s.debug.Load()
	s.debug.Store(on)

	if s.rewriter != nil {
		s.rewriter.SetDebug(on)
	}
	for _, entry := range s.snapshotDirectories() {
		entry.Agent.SetDebug(on)
		entry.Searcher.SetDebug(on)
	}

	s.writer.SendResult(req.ID, map[string]any{"debug": on})
	return false
}

// handleListIndexes implements list_indexes: enumerates index dirs on
// disk that carry a manifest, regardless of whether they are currently
// loaded in this process.
func (s *Server) handleListIndexes(req protocol.Request) bool {
	indexesRoot := filepath.Join(s.cfg.Service.DataDir, "indexes")
	entries, err := os.ReadDir(indexesRoot)
	if err != nil {
		s.writer.SendResult(req.ID, map[string]any{"indexes": []string{}})
		return false
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifestPath := filepath.Join(indexesRoot, e.Name(), "manifest.json")
		if _, err := os.Stat(manifestPath); err == nil {
			names = append(names, e.Name())
		}
	}

	s.writer.SendResult(req.ID, map[string]any{"indexes": names})
	return false
}

// handleShutdown implements shutdown: stops every directory's
// background work and signals the run loop to exit.
func (s *Server) handleShutdown(req protocol.Request) bool {
	for _, entry := range s.snapshotDirectories() {
		entry.Shutdown()
	}
	s.stopping.Store(true)
	s.writer.SendResult(req.ID, map[string]any{"status": "stopped"})
	return true
}
