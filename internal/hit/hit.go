// Package hit defines RetrievedHit, the candidate record threaded through
// every pipeline stage from fanout to the formatter.
package hit

import "github.com/veyron-labs/wikiq/internal/chunk"

// SearchType tags how a hit entered the result set.
type SearchType string

const (
	SearchTypeSemantic   SearchType = "semantic"
	SearchTypeStructural SearchType = "structural"
)

// ExpansionMode tags how (or whether) a hit's text was context-expanded.
type ExpansionMode string

const (
	ExpansionModeNone          ExpansionMode = "none"
	ExpansionModeBidirectional ExpansionMode = "bidirectional"
	ExpansionModeRelated       ExpansionMode = "related"
	ExpansionModeAll           ExpansionMode = "all"
)

// RetrievedHit is one candidate, created by a retriever and mutated in
// place by every subsequent stage until the formatter consumes it.
//
// Score always holds the current stage's scalar: rrf_score after fusion,
// final_score after reranking. Earlier per-stage scores are kept on their
// own named fields so later stages (and tests) can inspect provenance
// without re-deriving it.
type RetrievedHit struct {
	ChunkID string
	Text    string
	Chunk   chunk.Chunk

	Score float64

	VectorRank    int // 1-based rank in the dense list, 0 = absent
	BM25Rank      int // 1-based rank in the sparse list, 0 = absent
	RRFScore      float64
	RerankScore   float64
	HierarchyBoost float64
	PathBoost      float64
	FinalScore     float64

	SearchType SearchType

	ExpandedText  string
	ContextChunks int
	ExpansionMode ExpansionMode

	PossibleHallucination bool
	GroundingSignals      GroundingSignals
}

// GroundingSignals records the three hallucination-detection signals
// (internal/grounding), kept here so the formatter can report them without
// importing the grounding package.
type GroundingSignals struct {
	SemanticSimilarity float64
	KeywordOverlap     float64
	GroundingRatio     float64
	Evaluated          bool
}

// PageID is a convenience accessor over the embedded chunk.
func (h RetrievedHit) PageID() string {
	return h.Chunk.PageID
}

// Clone returns a deep-enough copy for stages that must not mutate a shared
// slice element (e.g. diversity filtering builds a new slice from pointers
// into the same backing array otherwise).
func (h RetrievedHit) Clone() RetrievedHit {
	clone := h
	return clone
}

// SortByScoreDesc is a reusable less-function for sort.Slice over []RetrievedHit,
// ordering by Score descending, breaking ties by ChunkID for determinism.
func SortByScoreDesc(hits []RetrievedHit) func(i, j int) bool {
	return func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	}
}
