package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/manole-ai/neurofind/internal/protocol"
	"github.com/manole-ai/neurofind/pkg/agent"
	"github.com/manole-ai/neurofind/pkg/captioncache"
	"github.com/manole-ai/neurofind/pkg/captioner"
	"github.com/manole-ai/neurofind/pkg/directoryentry"
	"github.com/manole-ai/neurofind/pkg/extractor"
	"github.com/manole-ai/neurofind/pkg/filereader"
	"github.com/manole-ai/neurofind/pkg/kindexer"
	"github.com/manole-ai/neurofind/pkg/searcher"
	"github.com/manole-ai/neurofind/pkg/toolbox"
	"github.com/manole-ai/neurofind/pkg/toolregistry"
	"github.com/manole-ai/neurofind/pkg/vectorindex"
)

type initParams struct {
	DataDir string `json:"dataDir"`
	Reuse   bool   `json:"reuse"`
}

// handleInit implements init{dataDir, reuse?} (spec §4.15). reuse=true
// asks the Server to skip all re-initialization work for a directory
// already tracked this process; otherwise the directory is (re)built via
// the normal incremental-or-full Build path and re-wired.
func (s *Server) handleInit(ctx context.Context, req protocol.Request) bool {
	var params initParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writer.SendError(&req.ID, "invalid init params: "+err.Error())
		return false
	}

	info, err := os.Stat(params.DataDir)
	if err != nil || !info.IsDir() {
		s.writer.SendError(&req.ID, "not a directory: "+params.DataDir)
		return false
	}
	absDataDir, err := filepath.Abs(params.DataDir)
	if err != nil {
		absDataDir = params.DataDir
	}

	dirID := directoryentry.DeriveID(absDataDir)

	if params.Reuse {
		if existing, ok := s.directory(dirID); ok && existing.State() == directoryentry.StateReady {
			s.writer.SendResult(req.ID, map[string]any{
				"status":      "ready",
				"directoryId": dirID,
				"indexName":   existing.IndexName,
			})
			return false
		}
	}

	s.writer.SendDirectoryUpdate(map[string]any{"directoryId": dirID, "state": "indexing"})

	if err := s.ensureInitialized(); err != nil {
		s.writer.SendDirectoryUpdate(map[string]any{"directoryId": dirID, "state": "error", "error": err.Error()})
		s.writer.SendError(&req.ID, err.Error())
		return false
	}

	entry, err := s.buildDirectory(ctx, dirID, absDataDir)
	if err != nil {
		s.writer.SendDirectoryUpdate(map[string]any{"directoryId": dirID, "state": "error", "error": err.Error()})
		s.writer.SendError(&req.ID, err.Error())
		return false
	}

	s.setDirectory(dirID, entry)

	stats := entry.Stats()
	s.writer.SendDirectoryUpdate(map[string]any{"directoryId": dirID, "state": "ready", "stats": stats})

	s.startBackgroundWork(ctx, entry)

	go s.computeSummary(ctx, entry)

	s.writer.SendResult(req.ID, map[string]any{
		"status":      "ready",
		"directoryId": dirID,
		"indexName":   entry.IndexName,
	})
	return false
}

// InitDirectory builds and registers dataDir the same way handleInit does,
// without the NDJSON request/event plumbing. Used by cmd/neurofind-mcp,
// which speaks MCP rather than the stdio protocol and has no req.ID or
// directory_update stream to write to.
func (s *Server) InitDirectory(ctx context.Context, dataDir string) (*directoryentry.DirectoryEntry, error) {
	info, err := os.Stat(dataDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dataDir)
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		absDataDir = dataDir
	}

	dirID := directoryentry.DeriveID(absDataDir)

	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	entry, err := s.buildDirectory(ctx, dirID, absDataDir)
	if err != nil {
		return nil, err
	}

	s.setDirectory(dirID, entry)
	s.startBackgroundWork(ctx, entry)
	go s.computeSummary(ctx, entry)

	return entry, nil
}

func (s *Server) buildDirectory(ctx context.Context, dirID, dataDir string) (*directoryentry.DirectoryEntry, error) {
	indexName := "idx-" + dirID
	indexDir := filepath.Join(s.cfg.Service.DataDir, "indexes", dirID)
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	manifestPath := filepath.Join(indexDir, "manifest.json")

	idx, err := vectorindex.Open(s.db, indexName, s.embedder.Embed)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	reg := extractor.NewRegistry(extractor.NewPlainTextExtractor())
	indexer := kindexer.New(reg, idx, manifestPath)
	if err := indexer.Build(ctx, dataDir, false); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	stats, err := directoryentry.CollectStats(dataDir)
	if err != nil {
		return nil, fmt.Errorf("collect stats: %w", err)
	}

	fileReader := filereader.New()
	tb := toolbox.New(dataDir)
	searchObj := searcher.New(idx, s.model, fileReader, tb)
	reg2 := toolregistry.New(searchObj, tb)
	ag := agent.New(reg2, s.model)

	entry := directoryentry.New(dirID, dataDir, indexName, idx, searchObj, reg2, ag, tb, indexer)
	entry.SetStats(stats)
	entry.MarkReady()

	if s.debug.Load() {
		ag.SetDebug(true)
		searchObj.SetDebug(true)
	}

	return entry, nil
}

// startBackgroundWork launches the watcher and the image captioner for
// entry, attaching their handles so DirectoryEntry.Shutdown can stop them.
func (s *Server) startBackgroundWork(ctx context.Context, entry *directoryentry.DirectoryEntry) {
	if s.cfg.Index.WatchEnabled {
		w, err := kindexer.NewWatcher(entry.Indexer, entry.Path)
		if err == nil {
			if err := w.Start(ctx); err == nil {
				entry.Watcher = w
			}
		}
	}

	if s.cfg.Captioning.Enabled && s.model.HasVision() {
		captionsDir := filepath.Join(entry.Path, ".neurofind", "captions")
		cache, err := captioncache.New(captionsDir)
		if err == nil {
			c := captioner.New(entry.Path, cache, s.model, entry.Index)
			dirID := entry.DirID
			c.SetProgressCallback(func(done, total int) {
				s.writer.SendCaptioningProgress(map[string]any{
					"directoryId": dirID, "done": done, "total": total,
				})
			})
			c.SetErrorCallback(func(message string) {
				s.writer.SendCaptioningProgress(map[string]any{
					"directoryId": dirID, "state": "error", "message": message,
				})
			})
			entry.Captioner = c
			go func() {
				_ = c.Run(ctx)
				s.writer.SendCaptioningProgress(map[string]any{"directoryId": dirID, "state": "complete"})
			}()
		}
	}
}

// computeSummary asynchronously queries the directory's own Searcher for
// a one-paragraph description and emits the second directory_update once
// it is ready (spec §4.15).
func (s *Server) computeSummary(ctx context.Context, entry *directoryentry.DirectoryEntry) {
	const summaryPrompt = "Summarize in one concise paragraph what kinds of files and topics are present in this folder."
	text, _ := entry.Searcher.SearchAndExtract(ctx, summaryPrompt, 5)
	entry.SetSummary(text)

	s.writer.SendDirectoryUpdate(map[string]any{
		"directoryId": entry.DirID,
		"state":       "ready",
		"stats":       entry.Stats(),
		"summary":     text,
	})
}
