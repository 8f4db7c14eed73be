package vectorindex

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/coder/hnsw"
	"github.com/poiesic/cohorts/core"
)

const hnswFileName = "hnsw.bin"

// HNSWIndex performs approximate nearest neighbor search using a Hierarchical
// Navigable Small World graph backed by github.com/coder/hnsw.
//
// hnsw.Graph.Delete can leave dangling neighbor pointers that panic during
// Search, so HNSWIndex keeps a shadow map of all vectors and rebuilds the
// graph whenever a node is removed or replaced.
type HNSWIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.SavedGraph[core.ID]
	vectors map[core.ID][]float32
}

var _ Index = (*HNSWIndex)(nil)

// HNSWConfig holds configuration parameters for HNSWIndex.
type HNSWConfig struct {
	// Dir is the directory where the graph is persisted.
	// If empty, the graph is in-memory only and Save is a no-op.
	Dir string

	// M is the maximum number of neighbors per node. Default: 16.
	M int

	// EfSearch is the number of candidates considered during search. Default: 150.
	EfSearch int

	// Ml is the level generation factor. Default: 0.25.
	Ml float64
}

func (c *HNSWConfig) withDefaults() HNSWConfig {
	out := *c
	if out.M == 0 {
		out.M = 16
	}
	if out.EfSearch == 0 {
		out.EfSearch = 150
	}
	if out.Ml == 0 {
		out.Ml = 0.25
	}
	return out
}

func newGraph(m, efSearch int, ml float64, nodes []hnsw.Node[core.ID]) *hnsw.Graph[core.ID] {
	g := hnsw.NewGraph[core.ID]()
	g.M = m
	g.EfSearch = efSearch
	g.Ml = ml
	g.Distance = hnsw.CosineDistance
	if len(nodes) > 0 {
		g.Add(nodes...)
	}
	return g
}

// NewHNSWIndex creates an HNSWIndex. If cfg.Dir is non-empty, the graph
// is loaded from (or created at) that directory and persisted on Save.
func NewHNSWIndex(cfg HNSWConfig) (*HNSWIndex, error) {
	cfg = cfg.withDefaults()

	if cfg.Dir == "" {
		return &HNSWIndex{
			graph:   &hnsw.SavedGraph[core.ID]{Graph: newGraph(cfg.M, cfg.EfSearch, cfg.Ml, nil)},
			vectors: make(map[core.ID][]float32),
		}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, err
	}
	sg, err := hnsw.LoadSavedGraph[core.ID](filepath.Join(cfg.Dir, hnswFileName))
	if err != nil {
		return nil, fmt.Errorf("loading hnsw graph: %w", err)
	}
	sg.M = cfg.M
	sg.EfSearch = cfg.EfSearch
	sg.Ml = cfg.Ml
	sg.Distance = hnsw.CosineDistance

	// The graph has no iteration API; a full-width search recovers every
	// node for the shadow map. The probe must not be the zero vector, whose
	// cosine distance is undefined.
	vecs := make(map[core.ID][]float32, sg.Len())
	if dims := sg.Dims(); sg.Len() > 0 && dims > 0 {
		probe := make([]float32, dims)
		for i := range probe {
			probe[i] = 1
		}
		for _, n := range sg.Search(probe, sg.Len()) {
			vecs[n.Key] = n.Value
		}
	}

	return &HNSWIndex{graph: sg, vectors: vecs}, nil
}

// rebuild constructs a fresh graph from the shadow map.
// Caller must hold h.mu for writing.
func (h *HNSWIndex) rebuild() {
	nodes := make([]hnsw.Node[core.ID], 0, len(h.vectors))
	for id, v := range h.vectors {
		nodes = append(nodes, hnsw.MakeNode(id, v))
	}
	// Stable insertion order keeps rebuilt graphs reproducible.
	slices.SortFunc(nodes, func(a, b hnsw.Node[core.ID]) int {
		return cmp.Compare(a.Key, b.Key)
	})
	g := newGraph(h.graph.M, h.graph.EfSearch, h.graph.Ml, nodes)
	h.graph = &hnsw.SavedGraph[core.ID]{Graph: g, Path: h.graph.Path}
}

// dims returns the dimensionality of stored vectors, or 0 when empty.
// Caller must hold h.mu.
func (h *HNSWIndex) dims() int {
	for _, v := range h.vectors {
		return len(v)
	}
	return 0
}

// Accepts reports whether Add would take vector.
func (h *HNSWIndex) Accepts(vector []float32) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.checkDims(vector)
}

// Caller must hold h.mu.
func (h *HNSWIndex) checkDims(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if d := h.dims(); d != 0 && d != len(vector) {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vector), d)
	}
	return nil
}

// Add inserts or replaces the vector for the given profile ID.
func (h *HNSWIndex) Add(_ context.Context, id core.ID, vector []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkDims(vector); err != nil {
		return fmt.Errorf("id %d: %w", id, err)
	}

	cp := slices.Clone(vector)
	_, existed := h.vectors[id]
	h.vectors[id] = cp

	if existed {
		h.rebuild()
	} else {
		h.graph.Add(hnsw.MakeNode(id, cp))
	}
	return nil
}

// Remove deletes the vector for the given profile ID. No-op if not found.
func (h *HNSWIndex) Remove(_ context.Context, id core.ID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.vectors[id]; !ok {
		return nil
	}
	delete(h.vectors, id)
	h.rebuild()
	return nil
}

// Reset removes every vector and starts an empty graph.
func (h *HNSWIndex) Reset(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.vectors = make(map[core.ID][]float32)
	h.rebuild()
	return nil
}

// Search returns the topK most similar vectors to query, sorted by descending score.
// Score is computed as 1 - CosineDistance(query, result).
func (h *HNSWIndex) Search(_ context.Context, query []float32, topK int) ([]Hit, error) {
	if len(query) == 0 || topK <= 0 {
		return nil, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.vectors) == 0 {
		return nil, nil
	}
	if d := h.dims(); d != len(query) {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), d)
	}

	nodes := h.graph.Search(query, topK)
	hits := make([]Hit, 0, len(nodes))
	for _, n := range nodes {
		hits = append(hits, Hit{
			Id:    n.Key,
			Score: 1 - hnsw.CosineDistance(query, n.Value),
		})
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return hits, nil
}

// Len returns the number of vectors in the index.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.vectors)
}

// Save persists the graph to disk. No-op if Dir was empty at creation time.
func (h *HNSWIndex) Save(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph.Path == "" {
		return nil
	}
	return h.graph.Save()
}

// Close saves and releases resources.
func (h *HNSWIndex) Close() error {
	return h.Save(context.Background())
}
