package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

// MemoryStore is an in-process Store used by tests and by small
// deployments that don't want an external vector database. It performs a
// brute-force cosine scan, which is fine at test scale and at a few
// thousand chunks but is not meant for production collections.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	points    map[string]memoryPoint
}

type memoryPoint struct {
	chunk  chunk.Chunk
	vector []float32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]memoryPoint)}
}

func (s *MemoryStore) EnsureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension {
		return &DimensionMismatchError{Configured: dimension, Collection: s.dimension}
	}
	s.dimension = dimension
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, c chunk.Chunk, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[c.ID] = memoryPoint{chunk: c, vector: vector}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int, filters query.Filters) ([]hit.RetrievedHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]hit.RetrievedHit, 0, len(s.points))
	for _, p := range s.points {
		if !matchesFilters(p.chunk, filters) {
			continue
		}
		out = append(out, toHit(p.chunk, cosineSimilarity(vector, p.vector)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func matchesFilters(c chunk.Chunk, f query.Filters) bool {
	if f.Space != "" && c.Space != f.Space {
		return false
	}
	if f.Author != "" && c.ModifiedBy != f.Author {
		return false
	}
	if f.ContentType != "" && string(c.ContentType) != f.ContentType {
		return false
	}
	if f.Status != "" {
		status, _ := c.Sidecar["status"].(string)
		if status != f.Status {
			return false
		}
	}
	if f.DateFrom != nil && c.Modified.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && c.Modified.After(*f.DateTo) {
		return false
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
