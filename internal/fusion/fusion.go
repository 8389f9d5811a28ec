// Package fusion implements Reciprocal Rank Fusion (§4.4): merging a dense
// and a sparse ranked list into one ranked list with an intent-adaptive
// weight split.
//
// Grounded on original_source/rag_server/hybrid_search.go's
// get_adaptive_weights table and the RRF formula from spec.md §4.4; no
// direct teacher equivalent exists (hector's rerankers operate on a single
// already-fused list), so this is new code in the teacher's value-object,
// no-dynamic-dispatch style.
package fusion

import (
	"sort"

	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

// K is the RRF rank-damping constant, fixed per spec §4.4.
const K = 60

// Weights holds the dense/sparse split for one intent. They always sum to 1.
type Weights struct {
	Dense  float64
	Sparse float64
}

var intentWeights = map[query.Intent]Weights{
	query.IntentNavigational: {Dense: 0.70, Sparse: 0.30},
	query.IntentHowTo:        {Dense: 0.55, Sparse: 0.45},
	query.IntentFactual:      {Dense: 0.60, Sparse: 0.40},
	query.IntentExploratory:  {Dense: 0.50, Sparse: 0.50},
}

// WeightsFor returns the configured (dense, sparse) weight pair for an
// intent, defensively renormalized to sum to 1, defaulting to the Factual
// split for an unrecognized intent.
func WeightsFor(intent query.Intent) Weights {
	w, ok := intentWeights[intent]
	if !ok {
		w = intentWeights[query.IntentFactual]
	}
	sum := w.Dense + w.Sparse
	if sum <= 0 {
		return Weights{Dense: 0.5, Sparse: 0.5}
	}
	return Weights{Dense: w.Dense / sum, Sparse: w.Sparse / sum}
}

// Fuse merges dense and sparse, each already sorted best-first (rank = index
// + 1), into one list carrying VectorRank, BM25Rank, RRFScore and Score
// (aliased to RRFScore). If one side is empty, per spec §9's open-question
// resolution, that side's weight rebalances to 1.0 on the other.
func Fuse(dense, sparse []hit.RetrievedHit, intent query.Intent) []hit.RetrievedHit {
	w := WeightsFor(intent)
	switch {
	case len(dense) == 0 && len(sparse) > 0:
		w = Weights{Dense: 0, Sparse: 1}
	case len(sparse) == 0 && len(dense) > 0:
		w = Weights{Dense: 1, Sparse: 0}
	}

	merged := make(map[string]*hit.RetrievedHit, len(dense)+len(sparse))
	order := make([]string, 0, len(dense)+len(sparse))

	for i, d := range dense {
		rank := i + 1
		h, ok := merged[d.ChunkID]
		if !ok {
			clone := d.Clone()
			clone.VectorRank = rank
			clone.BM25Rank = 0
			merged[d.ChunkID] = &clone
			order = append(order, d.ChunkID)
		} else {
			h.VectorRank = rank
		}
	}

	for i, s := range sparse {
		rank := i + 1
		h, ok := merged[s.ChunkID]
		if !ok {
			clone := s.Clone()
			clone.VectorRank = 0
			clone.BM25Rank = rank
			merged[s.ChunkID] = &clone
			order = append(order, s.ChunkID)
		} else {
			h.BM25Rank = rank
		}
	}

	out := make([]hit.RetrievedHit, 0, len(order))
	for _, id := range order {
		h := merged[id]
		h.RRFScore = rrfScore(w, h.VectorRank, h.BM25Rank)
		h.Score = h.RRFScore
		out = append(out, *h)
	}

	sort.Slice(out, hit.SortByScoreDesc(out))
	return out
}

func rrfScore(w Weights, vectorRank, bm25Rank int) float64 {
	var score float64
	if vectorRank > 0 {
		score += w.Dense * (1.0 / float64(K+vectorRank))
	}
	if bm25Rank > 0 {
		score += w.Sparse * (1.0 / float64(K+bm25Rank))
	}
	return score
}
