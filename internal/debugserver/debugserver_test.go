package debugserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manole-ai/neurofind/internal/config"
	"github.com/manole-ai/neurofind/internal/protocol"
	"github.com/manole-ai/neurofind/pkg/server"
)

func TestHandleHealthz_ReportsNotReadyBeforeInit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Service.DataDir = t.TempDir()
	app := server.New(cfg, protocol.NewWriter(httptest.NewRecorder()))
	s := New(app)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ready"])
}

func TestHandleDirectories_EmptyBeforeInit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Service.DataDir = t.TempDir()
	app := server.New(cfg, protocol.NewWriter(httptest.NewRecorder()))
	s := New(app)

	req := httptest.NewRequest(http.MethodGet, "/directories", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body []server.DirectorySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body)
}

func TestHandleDirectoryGraph_UnknownDirectoryIs404(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Service.DataDir = t.TempDir()
	app := server.New(cfg, protocol.NewWriter(httptest.NewRecorder()))
	s := New(app)

	req := httptest.NewRequest(http.MethodGet, "/directories/nope/graph", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
