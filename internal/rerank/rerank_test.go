package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

type fakeEncoder struct {
	scores []float64
	err    error
}

func (f *fakeEncoder) ScoreBatch(ctx context.Context, queryText string, texts []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func TestAdaptiveLimit(t *testing.T) {
	assert.Equal(t, 12, AdaptiveLimit(3, true))
	assert.Equal(t, 20, AdaptiveLimit(8, false))
	assert.Equal(t, 16, AdaptiveLimit(5, false))
}

func TestAdaptiveThreshold_BGEFamily(t *testing.T) {
	assert.InDelta(t, 0.0015, AdaptiveThreshold(ModelFamilyBGE, query.IntentNavigational, false), 0.00001)
	assert.InDelta(t, 0.01, AdaptiveThreshold(ModelFamilyBGE, query.IntentHowTo, false), 0.00001)
	assert.InDelta(t, 0.001, AdaptiveThreshold(ModelFamilyBGE, query.IntentFactual, false), 0.00001)
	assert.InDelta(t, 0.0001, AdaptiveThreshold(ModelFamilyBGE, query.IntentExploratory, false), 0.00001)
}

func TestAdaptiveThreshold_RussianFamily(t *testing.T) {
	assert.InDelta(t, 0.01, AdaptiveThreshold(ModelFamilyRussian, query.IntentHowTo, false), 0.00001)
	assert.InDelta(t, 0.005, AdaptiveThreshold(ModelFamilyRussian, query.IntentFactual, false), 0.00001)
}

func TestHierarchyBoost_RootPageAndTechnicalLabels(t *testing.T) {
	cfg := DefaultConfig()
	h := hit.RetrievedHit{Chunk: chunk.Chunk{
		HierarchyDepth: 0,
		HeadingLevel:   1,
		Labels:         []string{"api"},
	}}
	boost := HierarchyBoost(h, cfg)
	assert.InDelta(t, 0.8, boost, 0.0001) // 0.5+0.2+0.3 = 1.0, capped at 0.8
}

func TestHierarchyBoost_BoundedAtPointEight(t *testing.T) {
	cfg := DefaultConfig()
	h := hit.RetrievedHit{Chunk: chunk.Chunk{
		HierarchyDepth: 0,
		PageTitle:      "Overview",
		HeadingLevel:   1,
		Labels:         []string{"api"},
	}}
	boost := HierarchyBoost(h, cfg)
	assert.LessOrEqual(t, boost, 0.8)
}

func TestPathBoost_JaccardOverKeywordSets(t *testing.T) {
	q := keywordSet("deployment runbook guide")
	boost := PathBoost(q, "Infra > Deployment > Runbook")
	assert.Greater(t, boost, 0.0)
	assert.LessOrEqual(t, boost, 1.0)
}

func TestRerank_DropsBelowThresholdCandidates(t *testing.T) {
	encoder := &fakeEncoder{scores: []float64{0.0001, 0.0001}}
	r := New(encoder, DefaultConfig())
	candidates := []hit.RetrievedHit{
		{ChunkID: "a", Text: "xyzzy", Chunk: chunk.Chunk{}},
		{ChunkID: "b", Text: "plugh", Chunk: chunk.Chunk{}},
	}

	out, err := r.Rerank(context.Background(), "xyzzy плюмбус", query.IntentFactual, candidates, 20)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRerank_KeepsAboveThresholdCandidates(t *testing.T) {
	encoder := &fakeEncoder{scores: []float64{0.5, 0.6}}
	r := New(encoder, DefaultConfig())
	candidates := []hit.RetrievedHit{
		{ChunkID: "a", Text: "deployment guide", Chunk: chunk.Chunk{}},
		{ChunkID: "b", Text: "runbook steps", Chunk: chunk.Chunk{}},
	}

	out, err := r.Rerank(context.Background(), "deployment guide", query.IntentFactual, candidates, 20)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ChunkID) // higher rerank score first
}

func TestRerank_RespectsCandidateBudget(t *testing.T) {
	encoder := &fakeEncoder{scores: []float64{0.9}}
	r := New(encoder, DefaultConfig())
	candidates := make([]hit.RetrievedHit, 5)
	for i := range candidates {
		candidates[i] = hit.RetrievedHit{ChunkID: string(rune('a' + i)), Text: "t"}
	}

	out, err := r.Rerank(context.Background(), "q", query.IntentFactual, candidates, 1)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestRerank_EmptyCandidatesReturnsEmpty(t *testing.T) {
	r := New(&fakeEncoder{}, DefaultConfig())
	out, err := r.Rerank(context.Background(), "q", query.IntentFactual, nil, 20)
	require.NoError(t, err)
	assert.Empty(t, out)
}
