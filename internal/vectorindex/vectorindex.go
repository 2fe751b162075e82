// Package vectorindex implements the per-tenant nearest-neighbor store. One
// index instance exists per tenant; isolation is structural, not a filter.
package vectorindex

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/radarkb/retrieval-mcp/pkg/types"
)

// Hit is one nearest-neighbor result. Distance is cosine distance: lower is
// more similar, range [0,2].
type Hit struct {
	ChunkID  string
	Distance float64
}

type entry struct {
	vector []float32
	norm   float64
	seq    uint64 // insertion order, used for the recency tie-break
}

// Index is an exact nearest-neighbor store over one tenant's embeddings.
// Safe for concurrent use: many readers, single writer.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]*entry
	nextSeq   uint64
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int) *Index {
	return &Index{
		dimension: dimension,
		entries:   make(map[string]*entry),
	}
}

// Dimension returns the vector dimension this index accepts.
func (ix *Index) Dimension() int { return ix.dimension }

// Add inserts or replaces the vector for chunkID. Re-adding moves the chunk
// to the front of the recency tie-break order.
func (ix *Index) Add(chunkID string, vector []float32) error {
	if len(vector) != ix.dimension {
		return fmt.Errorf("%w: got %d, index dimension %d",
			types.ErrDimensionMismatch, len(vector), ix.dimension)
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.nextSeq++
	ix.entries[chunkID] = &entry{
		vector: stored,
		norm:   l2norm(stored),
		seq:    ix.nextSeq,
	}
	return nil
}

// Delete removes chunkID from the index. No-op if absent.
func (ix *Index) Delete(chunkID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, chunkID)
}

// Query returns the k entries nearest to vector by cosine distance, ties
// broken by most-recently-indexed first.
func (ix *Index) Query(vector []float32, k int) ([]Hit, error) {
	if len(vector) != ix.dimension {
		return nil, fmt.Errorf("%w: got %d, index dimension %d",
			types.ErrDimensionMismatch, len(vector), ix.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	qnorm := l2norm(vector)

	ix.mu.RLock()
	type candidate struct {
		Hit
		seq uint64
	}
	candidates := make([]candidate, 0, len(ix.entries))
	for chunkID, e := range ix.entries {
		candidates = append(candidates, candidate{
			Hit: Hit{ChunkID: chunkID, Distance: cosineDistance(vector, qnorm, e.vector, e.norm)},
			seq: e.seq,
		})
	}
	ix.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].seq > candidates[j].seq
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = candidates[i].Hit
	}
	return hits, nil
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func l2norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineDistance is 1 - cosine similarity. Zero-norm vectors have no
// direction and are treated as maximally dissimilar but not opposite.
func cosineDistance(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot/(anorm*bnorm)
}
