package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manole-ai/neurofind/internal/config"
	"github.com/manole-ai/neurofind/internal/protocol"
)

// newTestServer wires a Server against httptest stubs for the text and
// embedding endpoints and a scratch data directory, mirroring how the
// production binary wires it against real local inference endpoints.
func newTestServer(t *testing.T, dataDir string) (*Server, *bytes.Buffer) {
	t.Helper()

	chatSrv := httptest.NewServer(http.HandlerFunc(chatStub))
	t.Cleanup(chatSrv.Close)

	embedSrv := httptest.NewServer(http.HandlerFunc(embedStub))
	t.Cleanup(embedSrv.Close)

	cfg := config.DefaultConfig()
	cfg.Service.DataDir = t.TempDir()
	cfg.Model.TextURL = chatSrv.URL
	cfg.Model.VisionURL = ""
	cfg.Model.EmbeddingURL = embedSrv.URL
	cfg.Index.WatchEnabled = false
	cfg.Captioning.Enabled = false

	var out bytes.Buffer
	writer := protocol.NewWriter(&out)
	return New(cfg, writer), &out
}

// chatStub answers the Ollama-compatible /api/chat path: a non-streaming
// request (the rewriter's Complete call) gets a resolved-query JSON
// object; a streaming request (the agent's Stream call) gets a single
// respond() tool call so the loop terminates after one step.
func chatStub(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stream bool `json:"stream"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	w.Header().Set("Content-Type", "application/json")
	if req.Stream {
		resp := map[string]any{
			"model": "stub",
			"message": map[string]string{
				"role":    "assistant",
				"content": `respond(answer="This folder contains sample text files.")`,
			},
			"done": true,
		}
		enc := json.NewEncoder(w)
		_ = enc.Encode(resp)
		return
	}

	resp := map[string]any{
		"model": "stub",
		"message": map[string]string{
			"role":    "assistant",
			"content": `{"intent":"factual","search_query":"sample files","resolved_query":"What is in this folder?"}`,
		},
		"done": true,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func embedStub(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"embedding": []float64{0.1, 0.2, 0.3, 0.4},
	})
}

// decodeEvents parses every NDJSON line written to out into protocol
// events keyed by type, keeping the last event observed per type.
func decodeEvents(t *testing.T, out *bytes.Buffer) map[protocol.EventType]protocol.Event {
	t.Helper()
	events := make(map[protocol.EventType]protocol.Event)
	scanner := bufio.NewScanner(bytes.NewReader(out.Bytes()))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var ev protocol.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events[ev.Type] = ev
	}
	return events
}

func TestServer_Dispatch_Ping(t *testing.T) {
	s, out := newTestServer(t, t.TempDir())
	stop := s.Dispatch(context.Background(), protocol.Request{ID: 1, Method: "ping"})
	assert.False(t, stop)

	events := decodeEvents(t, out)
	result, ok := events[protocol.TypeResult]
	require.True(t, ok)
	data := result.Data.(map[string]any)
	assert.Equal(t, "not_initialized", data["state"])
}

func TestServer_Dispatch_UnknownMethod(t *testing.T) {
	s, out := newTestServer(t, t.TempDir())
	stop := s.Dispatch(context.Background(), protocol.Request{ID: 1, Method: "bogus"})
	assert.False(t, stop)

	events := decodeEvents(t, out)
	_, ok := events[protocol.TypeError]
	assert.True(t, ok)
}

func TestServer_Dispatch_Shutdown(t *testing.T) {
	s, out := newTestServer(t, t.TempDir())
	stop := s.Dispatch(context.Background(), protocol.Request{ID: 1, Method: "shutdown"})
	assert.True(t, stop)

	events := decodeEvents(t, out)
	result := events[protocol.TypeResult].Data.(map[string]any)
	assert.Equal(t, "stopped", result["status"])
}

func TestServer_Dispatch_ToggleDebug(t *testing.T) {
	s, out := newTestServer(t, t.TempDir())
	stop := s.Dispatch(context.Background(), protocol.Request{ID: 1, Method: "toggle_debug"})
	assert.False(t, stop)

	events := decodeEvents(t, out)
	result := events[protocol.TypeResult].Data.(map[string]any)
	assert.Equal(t, true, result["debug"])
	assert.True(t, s.debug.Load())
}

func TestServer_Dispatch_ListIndexesEmpty(t *testing.T) {
	s, out := newTestServer(t, t.TempDir())
	stop := s.Dispatch(context.Background(), protocol.Request{ID: 1, Method: "list_indexes"})
	assert.False(t, stop)

	events := decodeEvents(t, out)
	result := events[protocol.TypeResult].Data.(map[string]any)
	assert.Empty(t, result["indexes"])
}

func TestServer_InitAndQuery(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "notes.txt"), []byte("sample file contents about neurofind"), 0o644))

	s, out := newTestServer(t, dataDir)

	initParamsJSON, _ := json.Marshal(map[string]any{"dataDir": dataDir})
	stop := s.Dispatch(context.Background(), protocol.Request{ID: 1, Method: "init", Params: initParamsJSON})
	require.False(t, stop)

	events := decodeEvents(t, out)
	result, ok := events[protocol.TypeResult]
	require.True(t, ok)
	data := result.Data.(map[string]any)
	assert.Equal(t, "ready", data["status"])
	dirID, _ := data["directoryId"].(string)
	require.NotEmpty(t, dirID)

	entry, ok := s.directory(dirID)
	require.True(t, ok)
	assert.NotNil(t, entry.Stats())

	out.Reset()
	queryParamsJSON, _ := json.Marshal(map[string]any{"text": "what is in this folder?", "directoryId": dirID})
	stop = s.Dispatch(context.Background(), protocol.Request{ID: 2, Method: "query", Params: queryParamsJSON})
	require.False(t, stop)

	qEvents := decodeEvents(t, out)
	qResult, ok := qEvents[protocol.TypeResult]
	require.True(t, ok)
	qData := qResult.Data.(map[string]any)
	assert.Contains(t, qData["text"], "sample text files")
}

func TestServer_RemoveDirectory_UnknownIsError(t *testing.T) {
	s, out := newTestServer(t, t.TempDir())
	params, _ := json.Marshal(map[string]any{"directoryId": "nope"})
	stop := s.Dispatch(context.Background(), protocol.Request{ID: 1, Method: "remove_directory", Params: params})
	assert.False(t, stop)

	events := decodeEvents(t, out)
	_, ok := events[protocol.TypeError]
	assert.True(t, ok)
}
