package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/pipeline"
)

type fakeQuerier struct {
	byQuery map[string][]hit.RetrievedHit
	err     map[string]error
}

func (f *fakeQuerier) QueryHits(_ context.Context, req pipeline.Request) ([]hit.RetrievedHit, error) {
	if err, ok := f.err[req.QueryText]; ok {
		return nil, err
	}
	return f.byQuery[req.QueryText], nil
}

func mkHit(chunkID, pageID string) hit.RetrievedHit {
	return hit.RetrievedHit{ChunkID: chunkID, Chunk: chunk.Chunk{PageID: pageID}}
}

func TestRun_HitAtFirstRankScoresFullMRR(t *testing.T) {
	q := &fakeQuerier{byQuery: map[string][]hit.RetrievedHit{
		"deploy runbook": {mkHit("c1", "p1"), mkHit("c2", "p2")},
	}}
	cases := []Case{{Query: "deploy runbook", ExpectedChunkIDs: []string{"c1"}}}

	report, err := Run(context.Background(), q, cases, 10)
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.MeanHitRate)
	assert.Equal(t, 1.0, report.MRR)
	assert.True(t, report.Results[0].Hit)
	assert.Equal(t, 1, report.Results[0].RankOfFirstHit)
}

func TestRun_HitAtSecondRankHalvesMRR(t *testing.T) {
	q := &fakeQuerier{byQuery: map[string][]hit.RetrievedHit{
		"deploy runbook": {mkHit("c1", "p1"), mkHit("c2", "p2")},
	}}
	cases := []Case{{Query: "deploy runbook", ExpectedPageIDs: []string{"p2"}}}

	report, err := Run(context.Background(), q, cases, 10)
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.MeanHitRate)
	assert.Equal(t, 0.5, report.MRR)
	assert.Equal(t, 2, report.Results[0].RankOfFirstHit)
}

func TestRun_CleanMissScoresZero(t *testing.T) {
	q := &fakeQuerier{byQuery: map[string][]hit.RetrievedHit{
		"deploy runbook": {mkHit("c1", "p1")},
	}}
	cases := []Case{{Query: "deploy runbook", ExpectedChunkIDs: []string{"c99"}}}

	report, err := Run(context.Background(), q, cases, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.MeanHitRate)
	assert.Equal(t, 0.0, report.MRR)
	assert.False(t, report.Results[0].Hit)
}

func TestRun_RespectsKCutoff(t *testing.T) {
	q := &fakeQuerier{byQuery: map[string][]hit.RetrievedHit{
		"deploy runbook": {mkHit("c1", "p1"), mkHit("c2", "p2"), mkHit("c3", "p3")},
	}}
	cases := []Case{{Query: "deploy runbook", ExpectedChunkIDs: []string{"c3"}}}

	report, err := Run(context.Background(), q, cases, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.MeanHitRate, "expected hit is ranked below the K cutoff")
}

func TestRun_QuerierErrorCountsAsMissWithoutAbortingRun(t *testing.T) {
	q := &fakeQuerier{
		byQuery: map[string][]hit.RetrievedHit{"ok query": {mkHit("c1", "p1")}},
		err:     map[string]error{"bad query": errors.New("upstream unavailable")},
	}
	cases := []Case{
		{Query: "bad query", ExpectedChunkIDs: []string{"c1"}},
		{Query: "ok query", ExpectedChunkIDs: []string{"c1"}},
	}

	report, err := Run(context.Background(), q, cases, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.5, report.MeanHitRate)
	require.Error(t, report.Results[0].Err)
	assert.False(t, report.Results[0].Hit)
	assert.True(t, report.Results[1].Hit)
}

func TestReport_FormatSummaryListsMisses(t *testing.T) {
	report := Report{
		K: 5,
		Results: []CaseResult{
			{Query: "miss me", Hit: false},
			{Query: "found me", Hit: true, RankOfFirstHit: 1, ReciprocalRank: 1},
		},
		MeanHitRate: 0.5,
		MRR:         0.5,
	}
	summary := report.FormatSummary()
	assert.Contains(t, summary, "Hit rate:    50.0%")
	assert.Contains(t, summary, "miss me")
	assert.NotContains(t, summary, "found me")
}
