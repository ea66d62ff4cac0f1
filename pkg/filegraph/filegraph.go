// Package filegraph computes the FileGraph (spec §4.14): a pure
// projection of an existing index's passages into file-level nodes and
// typed edges (similarity, reference, structure). Grounded on the
// teacher's pkg/index/dag.go (Node/Edge/EdgeType, directed-graph
// persistence shape), generalizing EdgeType from code relationships
// (calls, imports, implements, uses, embeds) to file relationships.
package filegraph

import (
	"context"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/manole-ai/neurofind/pkg/vectorindex"
)

// EdgeType names a file-level relationship kind.
type EdgeType string

const (
	EdgeSimilarity EdgeType = "similarity"
	EdgeReference  EdgeType = "reference"
	EdgeStructure  EdgeType = "structure"
)

// Node is one file in the graph.
type Node struct {
	ID           string `json:"id"` // directory-relative path
	Name         string `json:"name"`
	Type         string `json:"type"` // always "file"
	Size         int64  `json:"size,omitempty"`
	Dir          string `json:"dir"`
	PassageCount int    `json:"passageCount,omitempty"`
}

// Edge is one typed relationship between two nodes.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
	Weight float64  `json:"weight"`
	Label  string   `json:"label,omitempty"`
}

// Graph is the full computed file graph for one directory.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

const (
	similarityTopK    = 5
	similarityMinSim  = 0.6
	sampleMaxPassages = 5
	sampleMaxChars    = 2000
	minNameLen        = 4
)

// FileStater resolves a node's on-disk size, if available.
type FileStater interface {
	Size(relPath string) (int64, bool)
}

// Compute builds nodes and edges from idx's passages. Similarity
// computation is best-effort: embedding failures degrade to an empty
// similarity edge set while reference and structure edges still return,
// per spec §4.14.
func Compute(ctx context.Context, idx *vectorindex.Index, stater FileStater) (*Graph, error) {
	passages, err := idx.Passages(ctx)
	if err != nil {
		return nil, err
	}

	byFile := groupByFile(passages)
	nodes := buildNodes(byFile, stater)

	var edges []Edge
	edges = append(edges, computeSimilarityEdges(ctx, idx, byFile)...)
	edges = append(edges, computeReferenceEdges(byFile, nodes)...)
	edges = append(edges, computeStructureEdges(nodeNames(nodes))...)

	return &Graph{Nodes: nodes, Edges: edges}, nil
}

func groupByFile(passages []vectorindex.Passage) map[string][]vectorindex.Passage {
	byFile := make(map[string][]vectorindex.Passage)
	for _, p := range passages {
		fp := p.Metadata["file_path"]
		if fp == "" {
			continue
		}
		byFile[fp] = append(byFile[fp], p)
	}
	return byFile
}

func buildNodes(byFile map[string][]vectorindex.Passage, stater FileStater) []Node {
	nodes := make([]Node, 0, len(byFile))
	for fp, passages := range byFile {
		node := Node{
			ID:           fp,
			Name:         filepath.Base(fp),
			Type:         "file",
			Dir:          filepath.Dir(fp),
			PassageCount: len(passages),
		}
		if stater != nil {
			if size, ok := stater.Size(fp); ok {
				node.Size = size
			}
		}
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

func nodeNames(nodes []Node) []string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.ID
	}
	return names
}

func computeSimilarityEdges(ctx context.Context, idx *vectorindex.Index, byFile map[string][]vectorindex.Passage) []Edge {
	embed := idx.EmbedFunc()
	if embed == nil {
		return nil
	}

	type sample struct {
		file string
		vec  []float32
	}

	files := make([]string, 0, len(byFile))
	for fp := range byFile {
		files = append(files, fp)
	}
	sort.Strings(files)

	samples := make([]sample, 0, len(files))
	for _, fp := range files {
		passages := byFile[fp]
		if len(passages) > sampleMaxPassages {
			passages = passages[:sampleMaxPassages]
		}
		var sb strings.Builder
		for _, p := range passages {
			sb.WriteString(p.Text)
			sb.WriteString("\n")
		}
		text := sb.String()
		if len(text) > sampleMaxChars {
			text = text[:sampleMaxChars]
		}

		vec, err := embed(ctx, text)
		if err != nil {
			// Best-effort: embedding failure degrades to no similarity edges.
			return nil
		}
		samples = append(samples, sample{file: fp, vec: normalize(vec)})
	}

	seen := make(map[[2]string]bool)
	var edges []Edge
	for i, a := range samples {
		type scored struct {
			file  string
			score float64
		}
		var scores []scored
		for j, b := range samples {
			if i == j {
				continue
			}
			scores = append(scores, scored{b.file, cosine(a.vec, b.vec)})
		}
		sort.Slice(scores, func(x, y int) bool { return scores[x].score > scores[y].score })
		if len(scores) > similarityTopK {
			scores = scores[:similarityTopK]
		}
		for _, s := range scores {
			if s.score < similarityMinSim {
				continue
			}
			pair := [2]string{a.file, s.file}
			if pair[0] > pair[1] {
				pair[0], pair[1] = pair[1], pair[0]
			}
			if seen[pair] {
				continue
			}
			seen[pair] = true
			edges = append(edges, Edge{
				Source: pair[0],
				Target: pair[1],
				Type:   EdgeSimilarity,
				Weight: round3(s.score),
			})
		}
	}
	return edges
}

func computeReferenceEdges(byFile map[string][]vectorindex.Passage, nodes []Node) []Edge {
	var edges []Edge
	for _, source := range nodes {
		var sb strings.Builder
		for _, p := range byFile[source.ID] {
			sb.WriteString(p.Text)
			sb.WriteString("\n")
		}
		content := strings.ToLower(sb.String())

		for _, target := range nodes {
			if target.ID == source.ID {
				continue
			}
			if len(target.Name) < minNameLen {
				continue
			}
			if strings.Contains(content, strings.ToLower(target.Name)) {
				edges = append(edges, Edge{
					Source: source.ID,
					Target: target.ID,
					Type:   EdgeReference,
					Weight: 1,
					Label:  "mentions " + target.Name,
				})
			}
		}
	}
	return edges
}

func computeStructureEdges(relPaths []string) []Edge {
	var edges []Edge
	seen := map[[2]string]bool{}

	addEdge := func(parent, child string) {
		if parent == child {
			return
		}
		key := [2]string{parent, child}
		if seen[key] {
			return
		}
		seen[key] = true
		edges = append(edges, Edge{Source: parent, Target: child, Type: EdgeStructure, Weight: 1, Label: "contains"})
	}

	visitedDirs := map[string]bool{}
	for _, rel := range relPaths {
		dir := filepath.Dir(rel)
		addEdge(dir, rel)

		for dir != "." && !visitedDirs[dir] {
			visitedDirs[dir] = true
			parent := filepath.Dir(dir)
			addEdge(parent, dir)
			dir = parent
		}
	}
	return edges
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
