// Package service manages the neurofind process's lifecycle: the PID
// file other tooling can use to detect a running instance, and the
// signal-driven graceful shutdown that lets the stdio dispatch loop and
// an optional loopback debug HTTP server wind down together. Grounded
// on the teacher's internal/service.Daemon (stopCh/stoppedCh pattern,
// SIGTERM/SIGINT/SIGHUP handling via signal.Notify, PID file
// write/remove), adapted from an HTTP-server-owning daemon to one that
// owns only the PID file and an optional debug HTTP listener, since the
// primary interface here is NDJSON over stdio rather than HTTP.
package service

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/manole-ai/neurofind/internal/config"
)

const pidFileName = "neurofind.pid"

// Daemon owns the PID file and, if a debug HTTP handler is attached,
// a loopback-only listener for it.
type Daemon struct {
	cfg *config.Config

	mu         sync.Mutex
	httpServer *http.Server
	running    bool

	stopCh    chan os.Signal
	stoppedCh chan struct{}
}

// NewDaemon creates a Daemon bound to cfg.Service.DataDir for its PID file.
func NewDaemon(cfg *config.Config) *Daemon {
	return &Daemon{
		cfg:       cfg,
		stopCh:    make(chan os.Signal, 1),
		stoppedCh: make(chan struct{}),
	}
}

// PIDPath is where the running process's PID is recorded.
func (d *Daemon) PIDPath() string {
	return filepath.Join(d.cfg.Service.DataDir, pidFileName)
}

// Start writes the PID file and, if handler is non-nil, serves it on
// addr (expected to be a 127.0.0.1 address; spec §5 forbids binding the
// debug surface anywhere else).
func (d *Daemon) Start(handler http.Handler, addr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("daemon already running")
	}
	d.running = true

	if err := os.MkdirAll(d.cfg.Service.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := d.writePID(); err != nil {
		return fmt.Errorf("write PID: %w", err)
	}

	if handler != nil {
		d.httpServer = &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			_ = d.httpServer.ListenAndServe()
		}()
	}

	return nil
}

// NotifySignals arms SIGTERM/SIGINT/SIGHUP delivery to Signals().
func (d *Daemon) NotifySignals() {
	signal.Notify(d.stopCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
}

// Signals returns the channel a caller should select on alongside its
// own stdio read loop to detect a requested shutdown.
func (d *Daemon) Signals() <-chan os.Signal {
	return d.stopCh
}

// Shutdown stops the debug HTTP server (if any) and removes the PID
// file. Safe to call once after Start.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}

	if d.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(d.shutdownTimeoutSecs())*time.Second)
		defer cancel()
		_ = d.httpServer.Shutdown(ctx)
	}

	_ = os.Remove(d.PIDPath())
	d.running = false
	close(d.stoppedCh)
}

func (d *Daemon) shutdownTimeoutSecs() int {
	if d.cfg.Service.ShutdownTimeout > 0 {
		return d.cfg.Service.ShutdownTimeout
	}
	return 10
}

func (d *Daemon) writePID() error {
	return os.WriteFile(d.PIDPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// IsRunning reports whether a PID file names a still-alive process.
func IsRunning(cfg *config.Config) (bool, int) {
	data, err := os.ReadFile(filepath.Join(cfg.Service.DataDir, pidFileName))
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		_ = os.Remove(filepath.Join(cfg.Service.DataDir, pidFileName))
		return false, 0
	}
	return true, pid
}

// StopRunning sends SIGTERM to a running process and waits briefly for
// it to exit, force-killing it if it does not.
func StopRunning(cfg *config.Config) error {
	running, pid := IsRunning(cfg)
	if !running {
		return fmt.Errorf("daemon not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if running, _ := IsRunning(cfg); !running {
			return nil
		}
	}

	if err := process.Kill(); err != nil {
		return fmt.Errorf("kill process: %w", err)
	}
	_ = os.Remove(filepath.Join(cfg.Service.DataDir, pidFileName))
	return nil
}
