package kindexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/manole-ai/neurofind/internal/fileutil"
	"github.com/manole-ai/neurofind/internal/logger"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher runs a debounced filesystem event loop over a data directory,
// invoking Indexer.AppendFile for each settled change. Grounded directly
// on the teacher's index.Watcher (same fsnotify + pending-map + ticker
// debounce shape), generalized from a Go-file-only filter to the
// indexer's own hidden-file and skip-extension rules.
type Watcher struct {
	indexer  *Indexer
	dataDir  string
	debounce time.Duration

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool
	mu        sync.Mutex

	pending   map[string]time.Time
	pendingMu sync.Mutex
}

// NewWatcher creates a Watcher bound to ix and dataDir.
func NewWatcher(ix *Indexer, dataDir string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		indexer:   ix,
		dataDir:   dataDir,
		debounce:  defaultDebounce,
		fsWatcher: fsWatcher,
		stopCh:    make(chan struct{}),
		pending:   make(map[string]time.Time),
	}, nil
}

// Start begins watching dataDir for changes.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirectories(); err != nil {
		return fmt.Errorf("add directories: %w", err)
	}

	go w.processEvents()
	go w.processDebounced(ctx)
	return nil
}

// Stop stops the watcher and releases its fsnotify handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	return w.fsWatcher.Close()
}

func (w *Watcher) addDirectories() error {
	return filepath.WalkDir(w.dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(w.dataDir, path)
		if w.shouldSkipDir(rel) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			logger.GetLogger().Warn().Err(err).Str("path", path).Msg("cannot watch directory")
		}
		return nil
	})
}

func (w *Watcher) shouldSkipDir(relPath string) bool {
	if relPath == "." {
		return false
	}
	for _, part := range strings.Split(relPath, string(filepath.Separator)) {
		if fileutil.IsHidden(part) {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if w.shouldSkipFile(event.Name) {
				continue
			}
			w.pendingMu.Lock()
			w.pending[event.Name] = time.Now()
			w.pendingMu.Unlock()
		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) shouldSkipFile(path string) bool {
	if fileutil.IsHidden(filepath.Base(path)) {
		return true
	}
	return fileutil.ExtensionIn(path, skipExtensions)
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processPendingFiles(ctx)
		}
	}
}

func (w *Watcher) processPendingFiles(ctx context.Context) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	now := time.Now()
	for path, ts := range w.pending {
		if now.Sub(ts) < w.debounce {
			continue
		}
		delete(w.pending, path)

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := w.indexer.AppendFile(ctx, w.dataDir, path); err != nil {
			logger.GetLogger().Warn().Err(err).Str("path", path).Msg("failed to index changed file")
		}
	}
}
