// Package debugserver implements the optional loopback-only HTTP
// introspection surface (spec §5: "never bound beyond 127.0.0.1, never
// touches Model directly"). Grounded on internal/api/router.go's
// chi+cors+middleware.Recoverer setup, trimmed from a full REST API
// down to three read-only endpoints. The package takes no bind address:
// the caller binds Handler to a loopback listener.
package debugserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/manole-ai/neurofind/pkg/server"
)

// Server exposes read-only process introspection on 127.0.0.1.
type Server struct {
	app    *server.Server
	router chi.Router
}

// New builds a Server wrapping app's read-only introspection methods.
func New(app *server.Server) *Server {
	s := &Server{app: app}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://127.0.0.1:*", "http://localhost:*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/directories", s.handleDirectories)
	r.Get("/directories/{id}/graph", s.handleDirectoryGraph)

	s.router = r
}

// Handler returns the HTTP handler, for binding to a 127.0.0.1 listener
// by the caller (spec §5 forbids this package choosing any other host).
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ready": s.app.Ready()})
}

func (s *Server) handleDirectories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Snapshot())
}

func (s *Server) handleDirectoryGraph(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	graph, err := s.app.DirectoryGraph(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
