// Package index provides the nearest-neighbor index over polyp embeddings,
// partitioned per embedding-model space. It is a derived, rebuildable
// projection of the store: entries reference polyps by identifier only and
// the index is never the source of truth for content or state.
package index

// #region imports
import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/reefipedia/reef/internal/polyp"
)

// #endregion

// #region hit

// Hit is one nearest-neighbor result.
type Hit struct {
	ID         uuid.UUID
	Similarity float32
}

// #endregion hit

// #region index

// Index is a brute-force cosine-similarity index over per-space partitions.
// Mutations are atomic per entry; queries may run concurrently with writes
// to other spaces and observe a consistent snapshot of their own space.
type Index struct {
	mu     sync.RWMutex
	spaces map[string]map[uuid.UUID][]float32
}

// New creates an empty index.
func New() *Index {
	return &Index{spaces: make(map[string]map[uuid.UUID][]float32)}
}

// #endregion index

// #region upsert

// Upsert inserts or replaces the vector for id in the model's space.
// The vector length must match the model's declared dimensionality.
func (ix *Index) Upsert(id uuid.UUID, values []float32, model polyp.ModelID) error {
	if len(values) != model.Dimensions {
		return fmt.Errorf("%w: vector has %d values, space %s expects %d",
			polyp.ErrValidation, len(values), model.SpaceKey(), model.Dimensions)
	}
	stored := make([]float32, len(values))
	copy(stored, values)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	key := model.SpaceKey()
	space, ok := ix.spaces[key]
	if !ok {
		space = make(map[uuid.UUID][]float32)
		ix.spaces[key] = space
	}
	space[id] = stored
	return nil
}

// #endregion upsert

// #region remove

// Remove deletes id from every space. Unknown IDs are a no-op: removal runs
// before insert when a polyp is superseded, and must be safely repeatable.
func (ix *Index) Remove(id uuid.UUID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for key, space := range ix.spaces {
		delete(space, id)
		if len(space) == 0 {
			delete(ix.spaces, key)
		}
	}
}

// #endregion remove

// #region query

// Query returns up to k nearest neighbors of the query vector within the
// model's space, ordered by descending cosine similarity with ties broken by
// ascending identifier. Returns polyp.ErrEmptyIndex when the space holds no
// vectors.
func (ix *Index) Query(values []float32, model polyp.ModelID, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	space := ix.spaces[model.SpaceKey()]
	hits := make([]Hit, 0, len(space))
	for id, vec := range space {
		hits = append(hits, Hit{ID: id, Similarity: cosineSimilarity(values, vec)})
	}
	ix.mu.RUnlock()

	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: %s", polyp.ErrEmptyIndex, model.SpaceKey())
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return lessUUID(hits[i].ID, hits[j].ID)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// #endregion query

// #region count

// Count returns the number of vectors indexed in the model's space.
func (ix *Index) Count(model polyp.ModelID) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.spaces[model.SpaceKey()])
}

// Size returns the total number of indexed vectors across all spaces.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, space := range ix.spaces {
		n += len(space)
	}
	return n
}

// #endregion count

// #region cosine

// cosineSimilarity returns a value in [-1, 1], and 0 for zero-magnitude or
// mismatched-length inputs. Accumulates in float64 for stability.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// #endregion cosine

// #region uuid-order

// lessUUID orders UUIDs by their byte representation.
func lessUUID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// #endregion uuid-order
