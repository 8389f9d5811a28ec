// Package fanout implements the Retrieval Fanout stage (§4.3): for every
// query variant, run dense and sparse retrieval concurrently, fuse each
// variant's pair, then merge all variants into one de-duplicated list.
//
// Grounded on _examples/kadirpekel-hector/pkg/rag/store.go's Index method
// for the WaitGroup concurrency idiom (a per-variant failure is logged and
// dropped, never propagated to the caller), generalized from a
// bulk-indexing loop to a concurrent fan-out over query variants: one
// goroutine per variant, with no bound on how many run at once.
package fanout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/veyron-labs/wikiq/internal/fusion"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

// Embedder computes the dense vector for one text. Fanout calls it once per
// variant, from that variant's goroutine.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DenseSearcher executes a dense k-NN search against the vector store.
type DenseSearcher interface {
	Search(ctx context.Context, vector []float32, k int, filters query.Filters) ([]hit.RetrievedHit, error)
}

// SparseSearcher executes a BM25 search against the sparse index.
type SparseSearcher interface {
	Search(ctx context.Context, text string, k int, filters query.Filters) ([]hit.RetrievedHit, error)
}

// Fanout runs the per-variant dense+sparse+fuse pipeline.
type Fanout struct {
	embedder Embedder
	dense    DenseSearcher
	sparse   SparseSearcher
}

func New(embedder Embedder, dense DenseSearcher, sparse SparseSearcher) *Fanout {
	return &Fanout{embedder: embedder, dense: dense, sparse: sparse}
}

// KCandidates implements §4.3's adaptive per-variant candidate budget:
// clamp(limit * multiplier, <= 50), multiplier 5/3/2 for short/medium/long
// queries (by token count, mirroring query.MaxVariants' buckets).
func KCandidates(limit, tokenCount int) int {
	multiplier := 2
	switch {
	case tokenCount <= 2:
		multiplier = 5
	case tokenCount <= 4:
		multiplier = 3
	}
	k := limit * multiplier
	if k > 50 {
		k = 50
	}
	if k < 1 {
		k = 1
	}
	return k
}

type variantResult struct {
	hits []hit.RetrievedHit
	err  error
}

// Stats reports how many variants Run attempted and how many failed
// outright (embed error, or both dense and sparse erroring), so a caller
// can distinguish "nothing matched" from "nothing could be reached" —
// internal/pipeline uses this to classify EmptyIndex vs UpstreamUnavailable.
type Stats struct {
	VariantsAttempted int
	VariantsFailed    int
	LastErr           error
}

// AllFailed reports whether every variant errored out, meaning the merged
// hit list being empty reflects an unreachable upstream rather than a
// clean miss.
func (s Stats) AllFailed() bool {
	return s.VariantsAttempted > 0 && s.VariantsFailed == s.VariantsAttempted
}

// Run executes every variant's dense+sparse+fuse concurrently and merges
// the results, de-duplicating by ChunkID and keeping the best Score per id.
// A per-variant failure is logged and dropped; it never fails the call —
// see RunWithStats for a variant that also reports failure counts.
func (f *Fanout) Run(ctx context.Context, variants []string, intent query.Intent, filters query.Filters, kCandidates int) []hit.RetrievedHit {
	hits, _ := f.RunWithStats(ctx, variants, intent, filters, kCandidates)
	return hits
}

// RunWithStats behaves like Run but also returns Stats describing
// per-variant failures, so callers can tell an empty result apart from an
// unreachable upstream.
func (f *Fanout) RunWithStats(ctx context.Context, variants []string, intent query.Intent, filters query.Filters, kCandidates int) ([]hit.RetrievedHit, Stats) {
	results := make([]variantResult, len(variants))
	var wg sync.WaitGroup

	for i, variant := range variants {
		wg.Add(1)
		go func(idx int, text string) {
			defer wg.Done()
			results[idx] = f.runVariant(ctx, text, intent, filters, kCandidates)
		}(i, variant)
	}
	wg.Wait()

	stats := Stats{VariantsAttempted: len(variants)}
	merged := make(map[string]hit.RetrievedHit)
	for i, r := range results {
		if r.err != nil {
			slog.Warn("fanout variant failed, dropping", "variant_index", i, "error", r.err)
			stats.VariantsFailed++
			stats.LastErr = r.err
			continue
		}
		for _, h := range r.hits {
			existing, ok := merged[h.ChunkID]
			if !ok || h.Score > existing.Score {
				merged[h.ChunkID] = h
			}
		}
	}

	out := make([]hit.RetrievedHit, 0, len(merged))
	for _, h := range merged {
		out = append(out, h)
	}
	return out, stats
}

func (f *Fanout) runVariant(ctx context.Context, text string, intent query.Intent, filters query.Filters, k int) variantResult {
	var dense, sparse []hit.RetrievedHit

	vector, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return variantResult{err: err}
	}

	dense, denseErr := f.dense.Search(ctx, vector, k, filters)
	if denseErr != nil {
		slog.Warn("dense search failed for variant", "error", denseErr)
		dense = nil
	}

	sparse, sparseErr := f.sparse.Search(ctx, text, k, filters)
	if sparseErr != nil {
		slog.Warn("sparse search failed for variant", "error", sparseErr)
		sparse = nil
	}

	if denseErr != nil && sparseErr != nil {
		return variantResult{err: denseErr}
	}

	return variantResult{hits: fusion.Fuse(dense, sparse, intent)}
}
