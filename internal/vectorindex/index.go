// Package vectorindex is an in-process similarity index over chunk
// embeddings with an exact scan and an IVF approximate path.
//
// IVF partitions vectors into Lists clusters by k-means and scans only the
// Probes clusters nearest the query, so a search touches roughly
// Probes/Lists of the vectors. Recall grows with Probes and reaches exact
// results when Probes equals Lists. When a scoped search cannot fill
// MaxResults from the probed clusters, further clusters are scanned in
// order of distance until it can or none remain. Below Lists*MinTrainFactor
// vectors the index stays untrained and every search is exact.
package vectorindex

import (
	"context"
	"sort"
	"sync"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	"go.uber.org/zap"
)

const (
	DefaultDimensions     = 1536
	DefaultLists          = 100
	DefaultProbes         = 10
	DefaultMinTrainFactor = 4
	defaultIterations     = 10
)

// Config sizes the index.
type Config struct {
	Dimensions     int
	Lists          int
	Probes         int
	MinTrainFactor int
}

func (c Config) withDefaults() Config {
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}
	if c.Lists <= 0 {
		c.Lists = DefaultLists
	}
	if c.Probes <= 0 {
		c.Probes = DefaultProbes
	}
	if c.Probes > c.Lists {
		c.Probes = c.Lists
	}
	if c.MinTrainFactor <= 0 {
		c.MinTrainFactor = DefaultMinTrainFactor
	}
	return c
}

// Entry is one embedded chunk with the tenant keys used for filtering.
type Entry struct {
	ChunkID    string
	MaterialID string
	OrgID      string
	CourseID   string
	Ordinal    int
	Vector     []float32
}

type entry struct {
	Entry
	unit []float32
	list int
}

// Stats describes the index state.
type Stats struct {
	Vectors     int  `json:"vectors"`
	Trained     bool `json:"trained"`
	Lists       int  `json:"lists"`
	Probes      int  `json:"probes"`
	TrainedSize int  `json:"trained_size"`
}

// Index is safe for concurrent use. Searches share a read lock.
type Index struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.RWMutex
	entries     map[string]*entry
	centroids   [][]float32
	lists       []map[string]*entry
	trainedSize int
}

// New creates an empty index.
func New(cfg Config, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Upsert inserts or replaces entries. An entry with a nil vector removes
// the chunk, so unembedded chunks are never searchable.
func (ix *Index) Upsert(entries ...Entry) error {
	for _, e := range entries {
		if e.OrgID == "" || e.ChunkID == "" {
			return domain.ErrCrossTenantReference
		}
		if e.Vector != nil && len(e.Vector) != ix.cfg.Dimensions {
			return domain.DimensionError(len(e.Vector), ix.cfg.Dimensions)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, e := range entries {
		ix.removeLocked(e.ChunkID)
		if e.Vector == nil {
			continue
		}
		stored := &entry{Entry: e, unit: normalize(e.Vector), list: -1}
		stored.Vector = append([]float32(nil), e.Vector...)
		ix.entries[e.ChunkID] = stored
		if ix.trained() {
			ix.assignLocked(stored)
		}
	}

	ix.maybeTrainLocked()
	telemetry.IndexVectors.Set(float64(len(ix.entries)))
	return nil
}

// DeleteMaterial removes every chunk of a material within an organization.
func (ix *Index) DeleteMaterial(orgID, materialID string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	removed := 0
	for id, e := range ix.entries {
		if e.OrgID == orgID && e.MaterialID == materialID {
			ix.removeLocked(id)
			removed++
		}
	}
	telemetry.IndexVectors.Set(float64(len(ix.entries)))
	return removed
}

// Train rebuilds the clusters from the current contents. It is a no-op
// while the index is too small to benefit.
func (ix *Index) Train() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.trainLocked()
}

// Stats returns a snapshot of the index state.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{
		Vectors:     len(ix.entries),
		Trained:     ix.trained(),
		Lists:       ix.cfg.Lists,
		Probes:      ix.cfg.Probes,
		TrainedSize: ix.trainedSize,
	}
}

// SearchSimilar returns matches for q ordered by domain.LessMatch. The scope
// filter runs before ranking so other tenants never consume result slots.
func (ix *Index) SearchSimilar(ctx context.Context, q domain.SimilarityQuery) ([]domain.ChunkMatch, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if len(q.Vector) != ix.cfg.Dimensions {
		return nil, domain.DimensionError(len(q.Vector), ix.cfg.Dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unitQuery := normalize(q.Vector)
	top := newTopK(q.MaxResults)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	visit := func(e *entry) {
		if e.OrgID != q.OrgID {
			return
		}
		if q.CourseID != "" && e.CourseID != q.CourseID {
			return
		}
		sim := dot(unitQuery, e.unit)
		if sim <= q.Threshold {
			return
		}
		top.offer(domain.ChunkMatch{ChunkID: e.ChunkID, MaterialID: e.MaterialID, Ordinal: e.Ordinal, Similarity: sim})
	}

	if q.Mode == domain.SearchModeExact || !ix.trained() {
		for _, e := range ix.entries {
			visit(e)
		}
		return top.sorted(), nil
	}

	order := ix.nearestLists(unitQuery)
	for i, list := range order {
		if i >= ix.cfg.Probes && top.full() {
			break
		}
		for _, e := range ix.lists[list] {
			visit(e)
		}
	}
	return top.sorted(), nil
}

func (ix *Index) trained() bool {
	return len(ix.centroids) > 0
}

func (ix *Index) removeLocked(chunkID string) {
	e, ok := ix.entries[chunkID]
	if !ok {
		return
	}
	if e.list >= 0 && e.list < len(ix.lists) {
		delete(ix.lists[e.list], chunkID)
	}
	delete(ix.entries, chunkID)
}

func (ix *Index) assignLocked(e *entry) {
	e.list = nearest(ix.centroids, e.unit)
	ix.lists[e.list][e.ChunkID] = e
}

func (ix *Index) maybeTrainLocked() {
	n := len(ix.entries)
	if !ix.trained() {
		if n >= ix.cfg.Lists*ix.cfg.MinTrainFactor {
			ix.trainLocked()
		}
		return
	}
	if n >= 2*ix.trainedSize {
		ix.trainLocked()
	}
}

func (ix *Index) trainLocked() {
	n := len(ix.entries)
	if n < ix.cfg.Lists*ix.cfg.MinTrainFactor {
		ix.centroids, ix.lists, ix.trainedSize = nil, nil, 0
		for _, e := range ix.entries {
			e.list = -1
		}
		return
	}

	ids := make([]string, 0, n)
	for id := range ix.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	points := make([][]float32, n)
	for i, id := range ids {
		points[i] = ix.entries[id].unit
	}

	ix.centroids = kmeans(points, ix.cfg.Lists, defaultIterations)
	ix.lists = make([]map[string]*entry, len(ix.centroids))
	for i := range ix.lists {
		ix.lists[i] = make(map[string]*entry)
	}
	for _, id := range ids {
		ix.assignLocked(ix.entries[id])
	}
	ix.trainedSize = n

	ix.logger.Info("similarity index trained",
		zap.Int("vectors", n),
		zap.Int("lists", len(ix.centroids)),
	)
}

// nearestLists returns all list ids ordered by centroid similarity to q.
func (ix *Index) nearestLists(q []float32) []int {
	type scored struct {
		list int
		sim  float64
	}
	all := make([]scored, len(ix.centroids))
	for i, c := range ix.centroids {
		all[i] = scored{list: i, sim: dot(q, c)}
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].sim != all[b].sim {
			return all[a].sim > all[b].sim
		}
		return all[a].list < all[b].list
	})
	order := make([]int, len(all))
	for i, s := range all {
		order[i] = s.list
	}
	return order
}
