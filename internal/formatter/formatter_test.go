package formatter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

func TestFormatSuccess_IncludesHeaderAndStats(t *testing.T) {
	hits := []hit.RetrievedHit{
		{
			ChunkID:     "a",
			Text:        "some content",
			FinalScore:  0.8,
			RerankScore: 0.7,
			Chunk: chunk.Chunk{
				PageTitle: "Deployment Guide",
				Space:     "INFRA",
				Breadcrumb: "Infra > Deployment",
			},
		},
	}
	out := FormatSuccess("deployment guide", query.IntentFactual, hits, Stats{LatencyMS: 42, VectorHits: 5, BM25Hits: 3})

	assert.Contains(t, out, "deployment guide")
	assert.Contains(t, out, "Results: 1")
	assert.Contains(t, out, "Time: 42ms")
	assert.Contains(t, out, "Vector: 5, BM25: 3")
	assert.Contains(t, out, "Deployment Guide")
	assert.Contains(t, out, "🟢") // score 0.8 > 0.7
}

func TestScoreEmoji_Buckets(t *testing.T) {
	assert.Equal(t, "🟢", scoreEmoji(0.8))
	assert.Equal(t, "🟡", scoreEmoji(0.5))
	assert.Equal(t, "🟠", scoreEmoji(0.2))
	assert.Equal(t, "⚪", scoreEmoji(0.05))
}

func TestPreview_TruncatesLongTextWithMarker(t *testing.T) {
	h := hit.RetrievedHit{Text: strings.Repeat("a", 600)}
	out := preview(h)
	assert.Contains(t, out, "(truncated)")
	assert.True(t, len(out) < 600+20)
}

func TestPreview_TableGetsLargerCap(t *testing.T) {
	h := hit.RetrievedHit{Text: strings.Repeat("a", 2000), Chunk: chunk.Chunk{BlockType: chunk.BlockTypeTable}}
	out := preview(h)
	assert.NotContains(t, out, "(truncated)")
}

func TestPreview_PrefersExpandedTextOverText(t *testing.T) {
	h := hit.RetrievedHit{Text: "short", ExpandedText: "expanded version"}
	assert.Equal(t, "expanded version", preview(h))
}

func TestRelevantHeadings_FiltersByKeywordOverlap(t *testing.T) {
	headings := []string{"Deployment Steps", "Unrelated Section", "Rollback Plan"}
	out := relevantHeadings("deployment rollback", headings)
	assert.Contains(t, out, "Deployment Steps")
	assert.Contains(t, out, "Rollback Plan")
	assert.NotContains(t, out, "Unrelated Section")
}

func TestRelevantHeadings_FallsBackToFirstThreeWhenNoneMatch(t *testing.T) {
	headings := []string{"Alpha", "Beta", "Gamma", "Delta"}
	out := relevantHeadings("zzz nonmatching query", headings)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, out)
}

func TestFormatNoResults_ReportsThresholdAndObservedRange(t *testing.T) {
	out := FormatNoResults("xyzzy плюмбус", query.IntentFactual, 10, 10, 0.001, 0.0001, 0.0004)
	assert.Contains(t, out, "No Results Found")
	assert.Contains(t, out, "0.0010")
	assert.Contains(t, out, "0.0001")
	assert.Contains(t, out, "0.0004")
}

func TestFormatNoResults_NoCandidatesCase(t *testing.T) {
	out := FormatNoResults("nothing matches", query.IntentFactual, 0, 0, 0, 0, 0)
	assert.Contains(t, out, "No candidates were retrieved")
}

func TestAttachmentsPreview_CapsAtThreeWithCount(t *testing.T) {
	out := attachmentsPreview([]string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"})
	assert.Contains(t, out, "a.pdf, b.pdf, c.pdf")
	assert.Contains(t, out, "+2")
}
