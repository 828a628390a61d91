package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/veilarc/ragfence/internal/models"
	"github.com/veilarc/ragfence/pkg/security"
)

// MemoryStore is a brute-force cosine-similarity store evaluating the
// security filter in process. It backs tests and the local CLI; it applies
// the exact same Filter the pgvector store renders to SQL.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	order     []string
	points    map[string]models.Point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]models.Point)}
}

func (s *MemoryStore) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension {
		return fmt.Errorf("%w: index has %d, configured %d", ErrDimensionMismatch, s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

func (s *MemoryStore) Upsert(_ context.Context, points []models.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		if len(p.Vector) != s.dimension {
			return fmt.Errorf("%w: point %s has %d, index has %d",
				ErrDimensionMismatch, p.ID, len(p.Vector), s.dimension)
		}
	}
	for _, p := range points {
		if _, ok := s.points[p.ID]; !ok {
			s.order = append(s.order, p.ID)
		}
		s.points[p.ID] = p
	}
	return nil
}

func (s *MemoryStore) Search(_ context.Context, vector []float32, filter security.Filter, limit int) ([]models.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 6
	}

	var hits []models.SearchHit
	for _, id := range s.order {
		p := s.points[id]
		if !filter.Matches(p.Payload) {
			continue
		}
		hits = append(hits, models.SearchHit{Point: p, Score: cosine(p.Vector, vector)})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) Close() {}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
