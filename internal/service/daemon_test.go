package service

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manole-ai/neurofind/internal/config"
)

func newTestConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Service.DataDir = t.TempDir()
	return cfg
}

func TestDaemon_StartWritesPIDFile(t *testing.T) {
	cfg := newTestConfig(t)
	d := NewDaemon(cfg)

	require.NoError(t, d.Start(nil, ""))
	defer d.Shutdown()

	data, err := os.ReadFile(d.PIDPath())
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(data))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestDaemon_StartTwiceErrors(t *testing.T) {
	cfg := newTestConfig(t)
	d := NewDaemon(cfg)
	require.NoError(t, d.Start(nil, ""))
	defer d.Shutdown()

	assert.Error(t, d.Start(nil, ""))
}

func TestDaemon_ShutdownRemovesPIDFile(t *testing.T) {
	cfg := newTestConfig(t)
	d := NewDaemon(cfg)
	require.NoError(t, d.Start(nil, ""))

	d.Shutdown()

	_, err := os.Stat(d.PIDPath())
	assert.True(t, os.IsNotExist(err))
}

func TestIsRunning_FalseWhenNoPIDFile(t *testing.T) {
	cfg := newTestConfig(t)
	running, pid := IsRunning(cfg)
	assert.False(t, running)
	assert.Zero(t, pid)
}

func TestIsRunning_TrueForCurrentProcess(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Service.DataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Service.DataDir, pidFileName), []byte(strconv.Itoa(os.Getpid())), 0o644))

	running, pid := IsRunning(cfg)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
}

func TestIsRunning_CleansUpStalePIDFile(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Service.DataDir, 0o755))
	// A PID very unlikely to be alive.
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Service.DataDir, pidFileName), []byte("999999"), 0o644))

	running, _ := IsRunning(cfg)
	assert.False(t, running)
	_, err := os.Stat(filepath.Join(cfg.Service.DataDir, pidFileName))
	assert.True(t, os.IsNotExist(err))
}
