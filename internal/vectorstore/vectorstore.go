// Package vectorstore implements the vector-store capability (§6): dense
// k-NN search with server-side payload filters, behind typed variants
// (qdrant primary, chroma secondary) rather than dynamic dispatch.
//
// Grounded on _examples/kadirpekel-hector/pkg/databases/registry.go
// (DatabaseProvider capability interface) and qdrant.go (client
// construction, troubleshooting-rich connection errors, payload-filter
// construction, ScoredPoint conversion).
package vectorstore

import (
	"context"
	"strconv"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

// Store is the capability every variant implements; internal/fanout
// consumes it through the narrower fanout.DenseSearcher interface.
type Store interface {
	// Search runs cosine k-NN against collection, with filters translated
	// to a server-side payload filter.
	Search(ctx context.Context, vector []float32, k int, filters query.Filters) ([]hit.RetrievedHit, error)

	// EnsureCollection verifies (or creates) the collection with the given
	// vector dimension. Returns a DimensionMismatchError if the collection
	// already exists with a different size (§7 StartupInvariantViolation).
	EnsureCollection(ctx context.Context, dimension int) error

	Upsert(ctx context.Context, c chunk.Chunk, vector []float32) error

	Close() error
}

// DimensionMismatchError signals a fatal startup invariant violation: the
// configured embedding dimension does not match the collection's.
type DimensionMismatchError struct {
	Configured int
	Collection int
}

func (e *DimensionMismatchError) Error() string {
	return "embedding dimension mismatch: configured " +
		strconv.Itoa(e.Configured) + " but collection is " + strconv.Itoa(e.Collection)
}

func toHit(c chunk.Chunk, score float64) hit.RetrievedHit {
	return hit.RetrievedHit{
		ChunkID:    c.ID,
		Text:       c.Text,
		Chunk:      c,
		Score:      score,
		SearchType: hit.SearchTypeSemantic,
	}
}
