// Package formatter implements the Response Formatter stage (§4.10): a
// deterministic, human-readable text report over the final hit list.
//
// Grounded on original_source/rag_server/response_formatter.py's
// ResponseFormatter.format_success/format_no_results (header+banner, score
// emoji buckets, relevant-headings filtering with a stop-word set,
// truncated preview), ported from Python f-string assembly to the
// teacher's strings.Builder idiom (_examples/kadirpekel-hector uses
// strings.Builder throughout pkg/ for report-style text assembly).
package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

const (
	previewChars      = 500
	structuredCapChars = 2400
	maxHeadings       = 3
	maxAttachments    = 3
	divider           = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
)

var stopWords = map[string]struct{}{
	"в": {}, "на": {}, "по": {}, "для": {}, "с": {}, "к": {}, "из": {}, "о": {},
	"об": {}, "и": {}, "а": {}, "но": {}, "или": {}, "же": {},
	"the": {}, "a": {}, "an": {}, "in": {}, "on": {}, "at": {}, "for": {},
	"with": {}, "to": {}, "of": {}, "and": {}, "or": {}, "but": {},
}

// Stats carries the counters and timing shown in the result banner.
type Stats struct {
	LatencyMS  int64
	VectorHits int
	BM25Hits   int
}

// FormatSuccess renders the per-hit report for a non-empty final hit list.
func FormatSuccess(queryText string, intent query.Intent, hits []hit.RetrievedHit, stats Stats) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📚 Search Results for: %q\n", queryText)
	b.WriteString(divider)
	b.WriteString("\n")

	statsParts := []string{
		fmt.Sprintf("Query Type: %s", intent),
		fmt.Sprintf("Results: %d", len(hits)),
	}
	if stats.LatencyMS > 0 {
		statsParts = append(statsParts, fmt.Sprintf("Time: %dms", stats.LatencyMS))
	}
	statsParts = append(statsParts, fmt.Sprintf("Vector: %d, BM25: %d", stats.VectorHits, stats.BM25Hits))
	b.WriteString(strings.Join(statsParts, " | "))
	b.WriteString("\n\n")

	for i, h := range hits {
		writeHit(&b, i+1, queryText, h)
	}

	return b.String()
}

func writeHit(b *strings.Builder, index int, queryText string, h hit.RetrievedHit) {
	title := h.Chunk.PageTitle
	if title == "" {
		title = h.Chunk.Breadcrumb
	}
	if title == "" {
		title = "Untitled"
	}

	emoji := scoreEmoji(h.FinalScore)

	var scoreDetails []string
	if h.RerankScore > 0 {
		scoreDetails = append(scoreDetails, fmt.Sprintf("base:%.2f", h.RerankScore))
	}
	if h.HierarchyBoost > 0 {
		scoreDetails = append(scoreDetails, fmt.Sprintf("+hier:%.2f", h.HierarchyBoost))
	}
	if h.PathBoost > 0 {
		scoreDetails = append(scoreDetails, fmt.Sprintf("+path:%.2f", h.PathBoost))
	}

	scoreStr := fmt.Sprintf("%s %.3f", emoji, h.FinalScore)
	if len(scoreDetails) > 0 {
		scoreStr += fmt.Sprintf(" (%s)", strings.Join(scoreDetails, ", "))
	}

	contextStr := ""
	if h.ContextChunks > 1 {
		contextStr = fmt.Sprintf(" | 📚 %d chunks", h.ContextChunks)
	}

	fmt.Fprintf(b, "%d. %s %s\n", index, title, emoji)
	fmt.Fprintf(b, "   • Space: %s | Chunk #%d | %s%s\n", h.Chunk.Space, h.Chunk.Index, scoreStr, contextStr)

	if h.Chunk.Breadcrumb != "" {
		fmt.Fprintf(b, "   📍 Path: %s\n", h.Chunk.Breadcrumb)
	}

	if headings := relevantHeadings(queryText, h.Chunk.HeadingsList); len(headings) > 0 {
		fmt.Fprintf(b, "   📑 Sections: %s\n", strings.Join(headings, " | "))
	}

	var extra []string
	if len(h.Chunk.Labels) > 0 {
		extra = append(extra, fmt.Sprintf("🏷️ %s", strings.Join(h.Chunk.Labels, ", ")))
	}
	if h.Chunk.ModifiedBy != "" {
		extra = append(extra, fmt.Sprintf("👤 %s", h.Chunk.ModifiedBy))
	}
	if len(h.Chunk.Attachments) > 0 {
		extra = append(extra, attachmentsPreview(h.Chunk.Attachments))
	}
	if len(extra) > 0 {
		fmt.Fprintf(b, "   • %s\n", strings.Join(extra, " | "))
	}

	if h.Chunk.URL != "" {
		fmt.Fprintf(b, "   • URL: %s\n", h.Chunk.URL)
	}

	fmt.Fprintf(b, "   • Preview: %s\n\n", preview(h))
}

func scoreEmoji(finalScore float64) string {
	switch {
	case finalScore > 0.7:
		return "🟢"
	case finalScore > 0.3:
		return "🟡"
	case finalScore > 0.1:
		return "🟠"
	default:
		return "⚪"
	}
}

func relevantHeadings(queryText string, headings []string) []string {
	if len(headings) == 0 {
		return nil
	}
	queryWords := keywordSet(queryText)

	limit := headings
	if len(limit) > 10 {
		limit = limit[:10]
	}

	var relevant []string
	for _, h := range limit {
		if len(queryWords) == 0 {
			relevant = append(relevant, h)
		} else if intersects(queryWords, keywordSet(h)) {
			relevant = append(relevant, h)
		}
		if len(relevant) >= maxHeadings {
			break
		}
	}

	if len(relevant) > 0 {
		return relevant
	}

	if len(headings) > maxHeadings {
		return headings[:maxHeadings]
	}
	return headings
}

func keywordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if len(w) <= 2 {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

func intersects(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

func attachmentsPreview(attachments []string) string {
	shown := attachments
	if len(shown) > maxAttachments {
		shown = shown[:maxAttachments]
	}
	s := fmt.Sprintf("📎 %s", strings.Join(shown, ", "))
	if len(attachments) > maxAttachments {
		s += fmt.Sprintf(" (+%d)", len(attachments)-maxAttachments)
	}
	return s
}

// preview truncates the displayed text, preferring ExpandedText over Text.
// Table/list blocks get a larger cap (§4.10) with an explicit marker.
func preview(h hit.RetrievedHit) string {
	text := h.ExpandedText
	if text == "" {
		text = h.Text
	}
	if text == "" {
		return "[text unavailable]"
	}

	limitChars := previewChars
	if h.Chunk.BlockType == "table" || h.Chunk.BlockType == "list" {
		limitChars = structuredCapChars
	}

	runes := []rune(text)
	if len(runes) <= limitChars {
		return text
	}
	return string(runes[:limitChars]) + "... (truncated)"
}

// FormatNoResults renders the structured "low-relevance" report (§4.6,
// §7): never a silent empty body when rerank drops every candidate.
func FormatNoResults(queryText string, intent query.Intent, vectorHits, bm25Hits int, threshold, minScore, maxScore float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 No Results Found for: %q\n", queryText)
	b.WriteString(divider)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Query Type: %s\n\n", intent)

	if vectorHits > 0 || bm25Hits > 0 {
		fmt.Fprintf(&b, "Candidates considered: Vector: %d, BM25: %d\n", vectorHits, bm25Hits)
		fmt.Fprintf(&b, "All candidates fell below the relevance threshold (%.4f); observed scores ranged [%.4f, %.4f].\n",
			threshold, minScore, maxScore)
	} else {
		b.WriteString("No candidates were retrieved for this query.\n")
	}

	return b.String()
}

// Elapsed converts a stage duration to the millisecond stat field.
func Elapsed(d time.Duration) int64 {
	return d.Milliseconds()
}
