// Package evaluation is an offline regression harness that replays a
// golden query set through the pipeline and reports retrieval-quality
// KPIs (hit rate, mean reciprocal rank) rather than build/lint/perf KPIs.
//
// Grounded on original_source/rag_server/evaluate_rag.py's golden-dataset
// JSON shape (question + expected ground truth, read once per run) and
// context_recall/context_precision-style retrieval scoring — narrowed from
// Ragas's full generation+retrieval metric suite to the two metrics that
// make sense without a generation step — and on
// _examples/kadirpekel-hector/dev/benchmarks.go/kpis.go's
// BenchmarkRunner/FormatSummary/SaveToFile KPI-reporting convention.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/pipeline"
)

// Case is one golden-set entry: a query and the chunk/page identifiers a
// correct retrieval should surface. A hit counts as a match if its
// ChunkID is in ExpectedChunkIDs OR its Chunk.PageID is in ExpectedPageIDs
// — page-level matches let a golden set be authored before chunk IDs are
// stable (e.g. hand-written during spec review).
type Case struct {
	Query            string   `json:"question"`
	ExpectedChunkIDs []string `json:"expected_chunk_ids,omitempty"`
	ExpectedPageIDs  []string `json:"expected_page_ids,omitempty"`
}

// LoadGoldenSet reads a JSON array of Case from path.
func LoadGoldenSet(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading golden set %s: %w", path, err)
	}
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parsing golden set %s: %w", path, err)
	}
	return cases, nil
}

// Querier is the capability *pipeline.Pipeline satisfies: run a query and
// return its ranked hits (not the rendered text report).
type Querier interface {
	QueryHits(ctx context.Context, req pipeline.Request) ([]hit.RetrievedHit, error)
}

// CaseResult is one golden case's outcome.
type CaseResult struct {
	Query          string
	Hit            bool    // at least one expected identifier appeared in the top K
	RankOfFirstHit int     // 1-based rank of the first matching hit, 0 if none
	ReciprocalRank float64 // 1/RankOfFirstHit, 0 if no hit
	Err            error
}

// Report aggregates every case's result.
type Report struct {
	K           int
	Results     []CaseResult
	MeanHitRate float64
	MRR         float64
	Duration    time.Duration
}

// Run replays every case through querier, capped at the top K hits, and
// aggregates hit-rate and MRR. A querier error on one case is recorded on
// that case's result (Err) and counted as a miss, not a Run failure — one
// bad case should not abort the whole regression run.
func Run(ctx context.Context, querier Querier, cases []Case, k int) (Report, error) {
	if k <= 0 {
		k = 10
	}
	start := time.Now()
	report := Report{K: k, Results: make([]CaseResult, 0, len(cases))}

	var hitCount int
	var rrSum float64

	for _, c := range cases {
		hits, err := querier.QueryHits(ctx, pipeline.Request{QueryText: c.Query, Limit: k})
		result := CaseResult{Query: c.Query}
		if err != nil {
			result.Err = err
			report.Results = append(report.Results, result)
			continue
		}

		if len(hits) > k {
			hits = hits[:k]
		}
		for i, h := range hits {
			if matches(h, c) {
				result.Hit = true
				result.RankOfFirstHit = i + 1
				result.ReciprocalRank = 1.0 / float64(i+1)
				break
			}
		}

		if result.Hit {
			hitCount++
			rrSum += result.ReciprocalRank
		}
		report.Results = append(report.Results, result)
	}

	if len(cases) > 0 {
		report.MeanHitRate = float64(hitCount) / float64(len(cases))
		report.MRR = rrSum / float64(len(cases))
	}
	report.Duration = time.Since(start)
	return report, nil
}

func matches(h hit.RetrievedHit, c Case) bool {
	for _, id := range c.ExpectedChunkIDs {
		if h.ChunkID == id {
			return true
		}
	}
	for _, id := range c.ExpectedPageIDs {
		if h.Chunk.PageID == id {
			return true
		}
	}
	return false
}

// FormatSummary renders a human-readable report, in the same
// section-header style as the teacher's KPI summaries.
func (r Report) FormatSummary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\nRetrieval Evaluation Summary\n")
	fmt.Fprintf(&sb, "============================\n")
	fmt.Fprintf(&sb, "Cases:       %d\n", len(r.Results))
	fmt.Fprintf(&sb, "K:           %d\n", r.K)
	fmt.Fprintf(&sb, "Hit rate:    %.1f%%\n", r.MeanHitRate*100)
	fmt.Fprintf(&sb, "MRR:         %.3f\n", r.MRR)
	fmt.Fprintf(&sb, "Duration:    %s\n", r.Duration.Round(time.Millisecond))

	var misses []CaseResult
	for _, res := range r.Results {
		if !res.Hit {
			misses = append(misses, res)
		}
	}
	if len(misses) > 0 {
		fmt.Fprintf(&sb, "\nMisses (%d):\n", len(misses))
		for _, res := range misses {
			if res.Err != nil {
				fmt.Fprintf(&sb, "  - %q: error: %v\n", res.Query, res.Err)
			} else {
				fmt.Fprintf(&sb, "  - %q: no expected identifier in top %d\n", res.Query, r.K)
			}
		}
	}
	return sb.String()
}

// SaveJSON writes the report to path as indented JSON, mirroring the
// teacher's KPI SaveToFile convention.
func (r Report) SaveJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling evaluation report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing evaluation report %s: %w", path, err)
	}
	return nil
}
