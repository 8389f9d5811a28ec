package grounding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/hit"
)

func mkHit(text string) hit.RetrievedHit {
	return hit.RetrievedHit{ChunkID: "a", Text: text, Chunk: chunk.Chunk{ID: "a"}}
}

func TestCheck_WellGroundedResponseNotFlagged(t *testing.T) {
	doc := "The deployment pipeline uses kubernetes manifests and helm charts for releases."
	response := "The deployment pipeline uses kubernetes manifests for releases."

	h := Check(DefaultConfig(), mkHit(doc), response, nil, nil)
	assert.False(t, h.PossibleHallucination)
	assert.True(t, h.GroundingSignals.Evaluated)
}

func TestCheck_UnrelatedResponseFlaggedAsHallucination(t *testing.T) {
	doc := "The deployment pipeline uses kubernetes manifests and helm charts for releases."
	response := "Quarterly revenue grew substantially due to marketing campaigns overseas."

	h := Check(DefaultConfig(), mkHit(doc), response, nil, nil)
	assert.True(t, h.PossibleHallucination)
}

func TestCheck_SemanticSignalSkippedWhenEmbeddingsMissing(t *testing.T) {
	h := Check(DefaultConfig(), mkHit("some doc text here"), "some doc text here", nil, nil)
	assert.Equal(t, 0.0, h.GroundingSignals.SemanticSimilarity)
}

func TestCheck_SemanticSignalUsedWhenEmbeddingsPresent(t *testing.T) {
	respEmb := []float32{1, 0}
	docEmb := []float32{1, 0}
	h := Check(DefaultConfig(), mkHit("doc"), "response", respEmb, docEmb)
	assert.InDelta(t, 1.0, h.GroundingSignals.SemanticSimilarity, 0.0001)
}

func TestKeywordOverlap_FullOverlap(t *testing.T) {
	overlap := keywordOverlap("kubernetes deployment pipeline", "kubernetes deployment pipeline guide")
	assert.Equal(t, 1.0, overlap)
}

func TestKeywordOverlap_NoOverlap(t *testing.T) {
	overlap := keywordOverlap("banana orchard harvest", "kubernetes deployment pipeline")
	assert.Equal(t, 0.0, overlap)
}

func TestGroundedSentenceRatio_AllSentencesGrounded(t *testing.T) {
	doc := "kubernetes deployment requires helm charts and manifests."
	ratio := groundedSentenceRatio("kubernetes deployment requires helm charts.", doc)
	assert.Equal(t, 1.0, ratio)
}
