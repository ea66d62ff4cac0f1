// Package server implements the Server (spec §4.15): the top-level
// dispatcher and event emitter, one instance per process. It owns the
// shared Model, the QueryRewriter, and the dir_id -> DirectoryEntry map,
// and wires every other port together on init. Grounded structurally on
// the teacher's internal/service.Daemon (stop-channel lifecycle, signal
// handling) and internal/api's per-route handler shape, adapted from an
// HTTP server to a method-dispatch table driven by NDJSON requests.
package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/manole-ai/neurofind/internal/config"
	"github.com/manole-ai/neurofind/internal/protocol"
	"github.com/manole-ai/neurofind/pkg/directoryentry"
	"github.com/manole-ai/neurofind/pkg/llm"
	"github.com/manole-ai/neurofind/pkg/rewriter"
)

// Server dispatches protocol requests and owns every directory's state.
type Server struct {
	cfg    *config.Config
	writer *protocol.Writer

	startTime time.Time
	debug     atomic.Bool

	initOnce   sync.Once
	initErr    error
	model      *llm.ModelRouter
	embedder   *llm.Embedder
	rewriter   *rewriter.Rewriter
	db         *chromem.DB

	mu          sync.Mutex
	directories map[string]*directoryentry.DirectoryEntry

	stopping atomic.Bool
}

// New creates a Server that emits events through writer.
func New(cfg *config.Config, writer *protocol.Writer) *Server {
	return &Server{
		cfg:         cfg,
		writer:      writer,
		startTime:   time.Now(),
		directories: make(map[string]*directoryentry.DirectoryEntry),
	}
}

// Dispatch executes one request and writes its result, recovering from
// any panic in a handler so the run loop never terminates (spec §4.15's
// "per-handler exceptions are caught and surfaced as error responses").
// It returns true once the process should stop reading further requests.
func (s *Server) Dispatch(ctx context.Context, req protocol.Request) (shouldStop bool) {
	defer func() {
		if r := recover(); r != nil {
			s.writer.SendError(&req.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	switch req.Method {
	case "ping":
		return s.handlePing(req)
	case "init":
		return s.handleInit(ctx, req)
	case "query":
		return s.handleQuery(ctx, req)
	case "remove_directory":
		return s.handleRemoveDirectory(req)
	case "reindex":
		return s.handleReindex(ctx, req)
	case "getFileGraph":
		return s.handleGetFileGraph(ctx, req)
	case "toggle_debug":
		return s.handleToggleDebug(req)
	case "list_indexes":
		return s.handleListIndexes(req)
	case "shutdown":
		return s.handleShutdown(req)
	default:
		s.writer.SendError(&req.ID, "unknown method: "+req.Method)
		return false
	}
}

// ensureInitialized loads the shared Model and opens the persistent
// vector store on the first call only (spec §4.15's "Load the shared
// Model on first call only").
func (s *Server) ensureInitialized() error {
	s.initOnce.Do(func() {
		s.writer.SendStatus("loading_model")

		s.model = llm.NewModelRouter(&s.cfg.Model)
		timeout := time.Duration(s.cfg.Model.TimeoutSecs) * time.Second
		s.embedder = llm.NewEmbedder(s.cfg.Model.EmbeddingURL, s.cfg.Model.EmbeddingModel, timeout)
		s.rewriter = rewriter.New(s.model)

		dbPath := filepath.Join(s.cfg.Service.DataDir, "indexes", "chromem")
		if err := os.MkdirAll(dbPath, 0o755); err != nil {
			s.initErr = fmt.Errorf("create index store: %w", err)
			return
		}
		db, err := chromem.NewPersistentDB(dbPath, false)
		if err != nil {
			s.initErr = fmt.Errorf("open persistent vector store: %w", err)
			return
		}
		s.db = db
	})
	return s.initErr
}

func (s *Server) directory(dirID string) (*directoryentry.DirectoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.directories[dirID]
	return e, ok
}

func (s *Server) setDirectory(dirID string, e *directoryentry.DirectoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directories[dirID] = e
}

func (s *Server) removeDirectory(dirID string) (*directoryentry.DirectoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.directories[dirID]
	if ok {
		delete(s.directories, dirID)
	}
	return e, ok
}

func (s *Server) snapshotDirectories() []*directoryentry.DirectoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*directoryentry.DirectoryEntry, 0, len(s.directories))
	for _, e := range s.directories {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DirID < out[j].DirID })
	return out
}

// handlePing answers {state, uptime}.
func (s *Server) handlePing(req protocol.Request) bool {
	state := "not_initialized"
	if s.model != nil {
		state = "ready"
	}
	s.writer.SendResult(req.ID, map[string]any{
		"state":  state,
		"uptime": time.Since(s.startTime).Seconds(),
	})
	return false
}
