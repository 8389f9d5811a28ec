package fanout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

type fakeEmbedder struct {
	fail   bool
	failOn string // fail only for this variant text, when set
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail || (f.failOn != "" && text == f.failOn) {
		return nil, errors.New("embedding backend down")
	}
	return []float32{0.1, 0.2}, nil
}

type fakeDense struct {
	hits map[string][]hit.RetrievedHit
	fail bool
}

func (f *fakeDense) Search(ctx context.Context, vector []float32, k int, filters query.Filters) ([]hit.RetrievedHit, error) {
	if f.fail {
		return nil, errors.New("vector store unavailable")
	}
	return f.hits["default"], nil
}

type fakeSparse struct {
	hits map[string][]hit.RetrievedHit
	fail bool
}

func (f *fakeSparse) Search(ctx context.Context, text string, k int, filters query.Filters) ([]hit.RetrievedHit, error) {
	if f.fail {
		return nil, errors.New("bm25 index unavailable")
	}
	return f.hits["default"], nil
}

func mkHit(id string) hit.RetrievedHit {
	return hit.RetrievedHit{ChunkID: id, Chunk: chunk.Chunk{ID: id}}
}

func TestKCandidates_BucketsByTokenCount(t *testing.T) {
	assert.Equal(t, 25, KCandidates(5, 2))  // short: x5
	assert.Equal(t, 15, KCandidates(5, 4))  // medium: x3
	assert.Equal(t, 10, KCandidates(5, 10)) // long: x2
}

func TestKCandidates_ClampedTo50(t *testing.T) {
	assert.Equal(t, 50, KCandidates(100, 2))
}

func TestRun_MergesAndDedupesAcrossVariants(t *testing.T) {
	dense := &fakeDense{hits: map[string][]hit.RetrievedHit{"default": {mkHit("a"), mkHit("b")}}}
	sparse := &fakeSparse{hits: map[string][]hit.RetrievedHit{"default": {mkHit("b"), mkHit("c")}}}
	f := New(&fakeEmbedder{}, dense, sparse)

	out := f.Run(context.Background(), []string{"q1", "q2"}, query.IntentFactual, query.Filters{}, 10)

	ids := map[string]bool{}
	for _, h := range out {
		assert.False(t, ids[h.ChunkID], "duplicate chunk id in merged output: %s", h.ChunkID)
		ids[h.ChunkID] = true
	}
	assert.True(t, ids["a"])
	assert.True(t, ids["b"])
	assert.True(t, ids["c"])
}

func TestRun_PerVariantFailureDoesNotFailOverallQuery(t *testing.T) {
	dense := &fakeDense{hits: map[string][]hit.RetrievedHit{"default": {mkHit("a")}}}
	sparse := &fakeSparse{hits: map[string][]hit.RetrievedHit{"default": {mkHit("a")}}}
	f := New(&fakeEmbedder{fail: true}, dense, sparse)

	out := f.Run(context.Background(), []string{"broken variant"}, query.IntentFactual, query.Filters{}, 10)
	assert.Empty(t, out)
}

func TestRun_OneVariantFailsOthersSucceed(t *testing.T) {
	goodDense := &fakeDense{hits: map[string][]hit.RetrievedHit{"default": {mkHit("a")}}}
	goodSparse := &fakeSparse{hits: map[string][]hit.RetrievedHit{"default": {mkHit("a")}}}

	embedder := &fakeEmbedder{failOn: "variant two"}
	f := New(embedder, goodDense, goodSparse)

	out, stats := f.RunWithStats(context.Background(), []string{"variant one", "variant two"}, query.IntentFactual, query.Filters{}, 10)
	require.NotEmpty(t, out)
	assert.Equal(t, 1, stats.VariantsFailed)
}

func TestRun_DenseFailsSparseSurvives(t *testing.T) {
	dense := &fakeDense{fail: true}
	sparse := &fakeSparse{hits: map[string][]hit.RetrievedHit{"default": {mkHit("a")}}}
	f := New(&fakeEmbedder{}, dense, sparse)

	out := f.Run(context.Background(), []string{"q1"}, query.IntentFactual, query.Filters{}, 10)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ChunkID)
}

func TestRunWithStats_AllVariantsFailedReportsAllFailed(t *testing.T) {
	f := New(&fakeEmbedder{fail: true}, &fakeDense{}, &fakeSparse{})

	out, stats := f.RunWithStats(context.Background(), []string{"q1", "q2"}, query.IntentFactual, query.Filters{}, 10)
	assert.Empty(t, out)
	assert.Equal(t, 2, stats.VariantsAttempted)
	assert.Equal(t, 2, stats.VariantsFailed)
	assert.True(t, stats.AllFailed())
	assert.Error(t, stats.LastErr)
}

func TestRunWithStats_CleanMissIsNotAllFailed(t *testing.T) {
	f := New(&fakeEmbedder{}, &fakeDense{}, &fakeSparse{})

	out, stats := f.RunWithStats(context.Background(), []string{"q1"}, query.IntentFactual, query.Filters{}, 10)
	assert.Empty(t, out)
	assert.False(t, stats.AllFailed())
}
