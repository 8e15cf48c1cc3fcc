package index

import (
	"fmt"
	"sort"
	"sync"
)

// Index is an in-memory flat vector index using squared L2 distance.
// Safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	dim     int
	ids     []string
	vectors [][]float64
	pos     map[string]int
}

// New creates an empty index. The dimension is fixed by the first vector
// added.
func New() *Index {
	return &Index{pos: make(map[string]int)}
}

// Add inserts or replaces the vector for id.
func (ix *Index) Add(id string, vector []float64) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for %s", id)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(vector)
	} else if len(vector) != ix.dim {
		return fmt.Errorf("vector for %s has dimension %d, index has %d", id, len(vector), ix.dim)
	}

	if i, ok := ix.pos[id]; ok {
		ix.vectors[i] = vector
		return nil
	}
	ix.pos[id] = len(ix.ids)
	ix.ids = append(ix.ids, id)
	ix.vectors = append(ix.vectors, vector)
	return nil
}

// Match is a nearest-neighbor result.
type Match struct {
	ID       string
	Distance float64
}

// Search returns up to k entries nearest to the query vector, closest first.
func (ix *Index) Search(vector []float64, k int) ([]Match, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.ids) == 0 || k <= 0 {
		return nil, nil
	}
	if len(vector) != ix.dim {
		return nil, fmt.Errorf("query vector has dimension %d, index has %d", len(vector), ix.dim)
	}

	matches := make([]Match, len(ix.ids))
	for i, id := range ix.ids {
		matches[i] = Match{ID: id, Distance: squaredL2(vector, ix.vectors[i])}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Size returns the number of indexed vectors.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}

func squaredL2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
