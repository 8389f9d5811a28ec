// Package structural implements the Structural Search override path
// (§4.5): a metadata-only retrieval against the page store, used when the
// analyzer detects an explicit hierarchical path in the query text.
//
// Grounded on _examples/kadirpekel-hector/pkg/databases/registry.go's
// capability-interface shape (a small typed contract, a concrete variant
// behind it), adapted here from vector search to a page-path substring
// match.
package structural

import (
	"context"
	"sort"
	"strings"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

// PageStore is the capability internal/pagestore implements: find chunks
// whose page_path (case-folded) contains every part of a structural query
// as a substring.
type PageStore interface {
	ChunksByPath(ctx context.Context, parts []string, filters query.Filters) ([]chunk.Chunk, error)
}

// Searcher runs the structural override path.
type Searcher struct {
	store PageStore
}

func New(store PageStore) *Searcher {
	return &Searcher{store: store}
}

// Search returns structural hits, or an empty slice if none matched (the
// caller falls back to the fused semantic path in that case, per §4.5).
func (s *Searcher) Search(ctx context.Context, structure query.Structure, filters query.Filters) ([]hit.RetrievedHit, error) {
	if !structure.IsStructural || len(structure.Parts) == 0 {
		return nil, nil
	}

	chunks, err := s.store.ChunksByPath(ctx, structure.Parts, filters)
	if err != nil {
		return nil, err
	}

	hits := make([]hit.RetrievedHit, 0, len(chunks))
	for _, c := range chunks {
		score := scoreMatch(c.PagePath, structure.Parts)
		hits = append(hits, hit.RetrievedHit{
			ChunkID:    c.ID,
			Text:       c.Text,
			Chunk:      c,
			Score:      score,
			SearchType: hit.SearchTypeStructural,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	return hits, nil
}

// scoreMatch counts matched parts (the store already guarantees every part
// matches, so this is len(parts)) plus a small bonus when parts appear in
// the path in the same order they were given in the query.
func scoreMatch(pagePath string, parts []string) float64 {
	folded := strings.ToLower(pagePath)
	matched := 0
	for _, p := range parts {
		if strings.Contains(folded, p) {
			matched++
		}
	}

	score := float64(matched)
	if inOrder(folded, parts) {
		score += 0.5
	}
	return score
}

func inOrder(folded string, parts []string) bool {
	pos := -1
	for _, p := range parts {
		idx := strings.Index(folded, p)
		if idx == -1 || idx < pos {
			return false
		}
		pos = idx
	}
	return true
}
