package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/fanout"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
	"github.com/veyron-labs/wikiq/internal/rerank"
	"github.com/veyron-labs/wikiq/internal/structural"
)

type fakeEmbedder struct {
	dim  int
	fail bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	return []float32{0.1, 0.2}, nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (f *fakeEmbedder) Dimension() int    { return f.dim }
func (f *fakeEmbedder) ModelName() string { return "fake-embedder" }

type fakeDense struct {
	hits []hit.RetrievedHit
	fail bool
}

func (f *fakeDense) Search(ctx context.Context, vector []float32, k int, filters query.Filters) ([]hit.RetrievedHit, error) {
	if f.fail {
		return nil, errors.New("vector store unavailable")
	}
	return f.hits, nil
}

type fakeSparse struct {
	hits []hit.RetrievedHit
	fail bool
}

func (f *fakeSparse) Search(ctx context.Context, text string, k int, filters query.Filters) ([]hit.RetrievedHit, error) {
	if f.fail {
		return nil, errors.New("bm25 index unavailable")
	}
	return f.hits, nil
}

type fakePageStore struct {
	byPath []chunk.Chunk
}

func (f *fakePageStore) ChunksByPath(ctx context.Context, parts []string, filters query.Filters) ([]chunk.Chunk, error) {
	return f.byPath, nil
}

type fakeCrossEncoder struct {
	scores []float64
}

func (f *fakeCrossEncoder) ScoreBatch(ctx context.Context, queryText string, candidateTexts []string) ([]float64, error) {
	if len(f.scores) >= len(candidateTexts) {
		return f.scores[:len(candidateTexts)], nil
	}
	out := make([]float64, len(candidateTexts))
	copy(out, f.scores)
	return out, nil
}

func mkHit(id, pageID string) hit.RetrievedHit {
	return hit.RetrievedHit{
		ChunkID: id,
		Text:    "some retrieved text about " + id,
		Chunk:   chunk.Chunk{ID: id, PageID: pageID},
		Score:   1.0,
	}
}

func basicDeps(dense *fakeDense, sparse *fakeSparse) Deps {
	embedder := &fakeEmbedder{dim: 2}
	fo := fanout.New(embedder, dense, sparse)
	return Deps{Embedder: embedder, Fanout: fo}
}

// Scenario 1: structural hit wins outright, no vector-only hits above it.
func TestQuery_StructuralHitWinsOverSemantic(t *testing.T) {
	dense := &fakeDense{hits: []hit.RetrievedHit{mkHit("semantic-1", "pageX")}}
	sparse := &fakeSparse{}
	deps := basicDeps(dense, sparse)
	deps.Structural = structural.New(&fakePageStore{byPath: []chunk.Chunk{
		{ID: "struct-1", PageID: "pageY", PagePath: "RAUII/Склад/Учет номенклатуры/Классификация", Text: "структурный узел"},
	}})

	p, err := New(deps)
	require.NoError(t, err)

	report, err := p.Query(context.Background(), Request{QueryText: "Склад > Учет номенклатуры"})
	require.NoError(t, err)
	assert.Contains(t, report, "struct-1")
	assert.NotContains(t, report, "semantic-1")
}

// Scenario 2: a HowTo query with no expander wired still goes through
// fanout and fusion and renders a results report.
func TestQuery_HowToIntentProducesFusedResult(t *testing.T) {
	dense := &fakeDense{hits: []hit.RetrievedHit{mkHit("a", "p1"), mkHit("b", "p1")}}
	sparse := &fakeSparse{hits: []hit.RetrievedHit{mkHit("b", "p1"), mkHit("c", "p2")}}
	deps := basicDeps(dense, sparse)

	p, err := New(deps)
	require.NoError(t, err)

	report, err := p.Query(context.Background(), Request{QueryText: "как настроить API"})
	require.NoError(t, err)
	assert.Contains(t, report, "Search Results")
}

// Scenario 3: navigational intent caps at one hit per page.
func TestQuery_NavigationalDiversityCap(t *testing.T) {
	var hits []hit.RetrievedHit
	for i := 0; i < 4; i++ {
		hits = append(hits, mkHit("p1-"+string(rune('a'+i)), "page1"))
	}
	for i := 0; i < 4; i++ {
		hits = append(hits, mkHit("p2-"+string(rune('a'+i)), "page2"))
	}
	for i := 0; i < 2; i++ {
		hits = append(hits, mkHit("p3-"+string(rune('a'+i)), "page3"))
	}

	dense := &fakeDense{hits: hits}
	sparse := &fakeSparse{}
	deps := basicDeps(dense, sparse)
	deps.Reranker = rerank.New(&fakeCrossEncoder{scores: repeatScore(0.9, len(hits))}, rerank.DefaultConfig())

	p, err := New(deps)
	require.NoError(t, err)

	report, err := p.Query(context.Background(), Request{QueryText: "где документация по установке"})
	require.NoError(t, err)

	count := strings.Count(report, "Search Results") // sanity: exactly one header
	assert.Equal(t, 1, count)
	assert.Contains(t, report, "Results: 3") // one hit per page, 3 distinct pages
}

func repeatScore(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Scenario 4: rerank drops every candidate below the Factual threshold —
// response is the "low relevance" report, never a silent empty body.
func TestQuery_AllCandidatesFilteredRendersLowRelevanceReport(t *testing.T) {
	hits := []hit.RetrievedHit{mkHit("a", "p1"), mkHit("b", "p2")}
	dense := &fakeDense{hits: hits}
	sparse := &fakeSparse{}
	deps := basicDeps(dense, sparse)
	deps.Reranker = rerank.New(&fakeCrossEncoder{scores: []float64{0.0001, 0.0002}}, rerank.DefaultConfig())

	p, err := New(deps)
	require.NoError(t, err)

	report, err := p.Query(context.Background(), Request{QueryText: "xyzzy плюмбус"})
	require.NoError(t, err)
	assert.Contains(t, report, "No Results Found")
	assert.Contains(t, report, "threshold")
}

// Scenario 5: no rewriter wired at all (e.g. the LLM provider is down and
// the caller never constructs one) — the pipeline still completes using
// whatever expansion source remains available (here, none at all, so the
// expander stage is skipped and the original query carries the fanout).
func TestQuery_NoExpanderStillCompletes(t *testing.T) {
	dense := &fakeDense{hits: []hit.RetrievedHit{mkHit("a", "p1")}}
	sparse := &fakeSparse{}
	deps := basicDeps(dense, sparse) // deps.Expander left nil

	p, err := New(deps)
	require.NoError(t, err)

	report, err := p.Query(context.Background(), Request{QueryText: "latest docs from DevOps"})
	require.NoError(t, err)
	assert.Contains(t, report, "Search Results")
}

// Scenario 6: embedder/vector-collection dimension mismatch refuses
// startup — no query is ever served.
func TestNew_DimensionMismatchRefusesStartup(t *testing.T) {
	embedder := &fakeEmbedder{dim: 768}
	fo := fanout.New(embedder, &fakeDense{}, &fakeSparse{})

	_, err := New(Deps{Embedder: embedder, Fanout: fo, VectorCollectionDimension: 1024})
	require.Error(t, err)

	var violation *StartupInvariantViolation
	assert.True(t, errors.As(err, &violation))
}

func TestQuery_CancelledContextReturnsErrorNotReport(t *testing.T) {
	dense := &fakeDense{hits: []hit.RetrievedHit{mkHit("a", "p1")}}
	deps := basicDeps(dense, &fakeSparse{})
	p, err := New(deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Query(ctx, Request{QueryText: "irrelevant"})
	assert.Error(t, err)
	assert.Empty(t, report)
}

func TestQuery_EmptyIndexRendersNoResultsReport(t *testing.T) {
	deps := basicDeps(&fakeDense{}, &fakeSparse{})
	p, err := New(deps)
	require.NoError(t, err)

	report, err := p.Query(context.Background(), Request{QueryText: "something nobody indexed"})
	require.NoError(t, err)
	assert.Contains(t, report, "No Results Found")
	assert.Contains(t, report, "No candidates were retrieved")
}

func TestQuery_UpstreamUnavailableWhenEveryVariantFails(t *testing.T) {
	embedder := &fakeEmbedder{dim: 2, fail: true}
	fo := fanout.New(embedder, &fakeDense{}, &fakeSparse{})
	p, err := New(Deps{Embedder: embedder, Fanout: fo})
	require.NoError(t, err)

	report, err := p.Query(context.Background(), Request{QueryText: "anything"})
	require.NoError(t, err) // UpstreamUnavailable is in-band, not a Go error
	assert.Contains(t, report, "No candidates were retrieved")
}

func TestQuery_QueryTooShortRendersBadInputReport(t *testing.T) {
	deps := basicDeps(&fakeDense{}, &fakeSparse{})
	p, err := New(deps)
	require.NoError(t, err)

	report, err := p.Query(context.Background(), Request{QueryText: "   "})
	require.NoError(t, err)
	assert.Contains(t, report, "No Results Found")
}
