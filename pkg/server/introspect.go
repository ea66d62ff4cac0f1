package server

import (
	"context"
	"fmt"

	"github.com/manole-ai/neurofind/pkg/directoryentry"
	"github.com/manole-ai/neurofind/pkg/filegraph"
)

// DirectorySummary is the read-only view of a DirectoryEntry exposed to
// the optional loopback debug HTTP surface (internal/debugserver).
type DirectorySummary struct {
	DirID   string                `json:"directoryId"`
	Path    string                `json:"path"`
	State   directoryentry.State  `json:"state"`
	Stats   *directoryentry.Stats `json:"stats,omitempty"`
	Summary string                `json:"summary,omitempty"`
}

// Snapshot returns a read-only view of every tracked directory, for the
// debug HTTP surface's /directories endpoint.
func (s *Server) Snapshot() []DirectorySummary {
	entries := s.snapshotDirectories()
	out := make([]DirectorySummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirectorySummary{
			DirID:   e.DirID,
			Path:    e.Path,
			State:   e.State(),
			Stats:   e.Stats(),
			Summary: e.Summary(),
		})
	}
	return out
}

// Ready reports whether the shared Model has finished loading.
func (s *Server) Ready() bool {
	return s.model != nil
}

// DirectoryGraph computes (or returns the cached) FileGraph for dirID,
// for the debug HTTP surface's /directories/{id}/graph endpoint.
func (s *Server) DirectoryGraph(ctx context.Context, dirID string) (*filegraph.Graph, error) {
	entry, ok := s.directory(dirID)
	if !ok {
		return nil, fmt.Errorf("unknown directory: %s", dirID)
	}
	if g := entry.FileGraph(); g != nil {
		return g, nil
	}
	g, err := filegraph.Compute(ctx, entry.Index, statAdapter{dataDir: entry.Path})
	if err != nil {
		return nil, err
	}
	entry.SetFileGraph(g)
	return g, nil
}
