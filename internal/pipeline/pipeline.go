// Package pipeline wires every stage (§4) into the single SemanticSearch
// entry point: analyze → expand → fan out → structural override → rerank →
// diversity → context expansion → grounding → format.
//
// Grounded on _examples/kadirpekel-hector/pkg/rag/service.go's top-level
// RAG orchestration method (sequential stage calls over a shared request
// context, each stage's duration and error recorded before moving on) and
// original_source/rag_server/search_pipeline.py's overall stage order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veyron-labs/wikiq/internal/analyzer"
	"github.com/veyron-labs/wikiq/internal/cache"
	"github.com/veyron-labs/wikiq/internal/contextx"
	"github.com/veyron-labs/wikiq/internal/diversity"
	"github.com/veyron-labs/wikiq/internal/embedder"
	"github.com/veyron-labs/wikiq/internal/expansion"
	"github.com/veyron-labs/wikiq/internal/fanout"
	"github.com/veyron-labs/wikiq/internal/formatter"
	"github.com/veyron-labs/wikiq/internal/grounding"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/observability"
	"github.com/veyron-labs/wikiq/internal/query"
	"github.com/veyron-labs/wikiq/internal/rerank"
	"github.com/veyron-labs/wikiq/internal/structural"
	"github.com/veyron-labs/wikiq/internal/workerpool"
)

// Request is one SemanticSearch call's input.
type Request struct {
	QueryText string
	Space     string // caller hint, takes precedence over an extracted space filter
	Limit     int    // caller's desired result count; normalized per §6 by NormalizeLimit (0/negative → 5, >20 → 20)
}

// Pipeline holds every stage's dependency and runs the full query path.
type Pipeline struct {
	embedder     embedder.Provider
	embedCache   *cache.EmbeddingCache
	fanout       *fanout.Fanout
	structural   *structural.Searcher
	expander     *expansion.Expander
	reranker     *rerank.Reranker
	rerankCfg    rerank.Config
	contextx     *contextx.Expander
	groundingCfg grounding.Config
	groundingOn  bool
	pool         *workerpool.Pool

	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Deps collects every Pipeline dependency. Reranker, Contextx and the
// grounding flag may each be absent (nil / false) to run a reduced
// pipeline — e.g. in tests that only exercise fanout and formatting.
type Deps struct {
	Embedder        embedder.Provider
	EmbedCache      *cache.EmbeddingCache
	Fanout          *fanout.Fanout
	Structural      *structural.Searcher
	Expander        *expansion.Expander
	Reranker        *rerank.Reranker
	RerankConfig    rerank.Config
	ContextExpander *contextx.Expander
	GroundingConfig grounding.Config
	GroundingOn     bool
	Pool            *workerpool.Pool
	Metrics         *observability.Metrics
	Tracer          trace.Tracer

	// VectorCollectionDimension is the vector store's configured
	// dimension. If non-zero and it disagrees with Embedder.Dimension(),
	// New refuses to construct the pipeline: per §3's data-model
	// invariant, a mismatch here must refuse startup rather than degrade
	// silently at query time.
	VectorCollectionDimension int
}

func New(d Deps) (*Pipeline, error) {
	if d.Embedder == nil {
		return nil, &StartupInvariantViolation{Component: "pipeline", Message: "embedder is required"}
	}
	if d.Fanout == nil {
		return nil, &StartupInvariantViolation{Component: "pipeline", Message: "fanout is required"}
	}
	if d.VectorCollectionDimension != 0 && d.VectorCollectionDimension != d.Embedder.Dimension() {
		return nil, &StartupInvariantViolation{
			Component: "pipeline",
			Message: fmt.Sprintf("vector collection dimension %d does not match embedder dimension %d",
				d.VectorCollectionDimension, d.Embedder.Dimension()),
		}
	}
	if d.Pool == nil {
		d.Pool = workerpool.New(4)
	}
	if d.Tracer == nil {
		d.Tracer = observability.GetTracer("wikiq/pipeline")
	}
	return &Pipeline{
		embedder:     d.Embedder,
		embedCache:   d.EmbedCache,
		fanout:       d.Fanout,
		structural:   d.Structural,
		expander:     d.Expander,
		reranker:     d.Reranker,
		rerankCfg:    d.RerankConfig,
		contextx:     d.ContextExpander,
		groundingCfg: d.GroundingConfig,
		groundingOn:  d.GroundingOn,
		pool:         d.Pool,
		metrics:      d.Metrics,
		tracer:       d.Tracer,
	}, nil
}

// Query runs the full pipeline and renders the final text report. Per
// §7, every error kind but Cancelled is rendered in-band into the returned
// string; only a cancelled/deadline-exceeded context returns a non-nil
// error, in which case the string is empty.
func (p *Pipeline) Query(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline.Query")
	defer span.End()
	span.SetAttributes(attribute.String("wikiq.query_text", req.QueryText))

	report, _, kind, err := p.run(ctx, req, start)

	if p.metrics != nil {
		p.metrics.RecordQuery(req.Space, time.Since(start), 0)
		if kind != "" {
			p.metrics.RecordQueryError(kind)
		}
	}
	if err != nil {
		var cancelled *Cancelled
		if errors.As(err, &cancelled) {
			return "", err
		}
	}
	return report, nil
}

// QueryHits runs the full pipeline like Query but returns the final ranked
// hits instead of the rendered text report. Not part of the SemanticSearch
// network contract — used by the offline evaluation harness, which needs
// chunk/page identifiers to score against a golden set rather than prose.
func (p *Pipeline) QueryHits(ctx context.Context, req Request) ([]hit.RetrievedHit, error) {
	start := time.Now()
	_, hits, _, err := p.run(ctx, req, start)
	var cancelled *Cancelled
	if err != nil && errors.As(err, &cancelled) {
		return nil, err
	}
	return hits, nil
}

// run does the actual stage-by-stage work. The returned error is never
// propagated to SemanticSearch's caller except for *Cancelled — everything
// else is rendered into report and returned as (report, hits, kind, nil) so
// the caller of run can still label it for metrics.
func (p *Pipeline) run(ctx context.Context, req Request, start time.Time) (report string, hits []hit.RetrievedHit, errKind string, err error) {
	if ctx.Err() != nil {
		return "", nil, "cancelled", &Cancelled{Err: ctx.Err()}
	}

	analyzed, stageErr := p.runAnalyzer(ctx, req)
	if stageErr != nil {
		return formatter.FormatNoResults(req.QueryText, query.IntentFactual, 0, 0, 0, 0, 0), nil, "bad_input", nil
	}

	normalizedLimit := NormalizeLimit(req.Limit)
	tokenCount := len(strings.Fields(analyzed.CleanedQuery))
	rerankBudget := rerank.AdaptiveLimit(tokenCount, !analyzed.Filters.IsEmpty())

	var structuralHits []hit.RetrievedHit
	if p.structural != nil && analyzed.Structure.IsStructural {
		structuralHits, _ = p.runStructural(ctx, analyzed)
	}

	// Structural override (§8): a structural hit replaces the fused
	// candidate set outright rather than merging into it, so no semantic
	// hit can ever leak into the final ordering alongside it. The
	// semantic fanout is skipped entirely in this case — there is
	// nothing for it to contribute.
	var candidates []hit.RetrievedHit
	var fanStats fanout.Stats
	if len(structuralHits) > 0 {
		candidates = structuralHits
	} else {
		expansionSet := p.runExpansion(ctx, analyzed)
		candidates, fanStats = p.runFanout(ctx, expansionSet, analyzed, rerankBudget, tokenCount)
	}

	if len(candidates) == 0 {
		if fanStats.AllFailed() {
			kindErr := &UpstreamUnavailable{Component: "fanout", Err: fanStats.LastErr}
			return formatter.FormatNoResults(req.QueryText, analyzed.Intent, 0, 0, 0, 0, 0), nil, "upstream_unavailable", kindErr
		}
		return formatter.FormatNoResults(req.QueryText, analyzed.Intent, 0, 0, 0, 0, 0), nil, "empty_index", nil
	}
	vectorHits, bm25Hits := countBySearchType(candidates)

	reranked := candidates
	if p.reranker != nil {
		var rerankErr error
		reranked, rerankErr = p.reranker.Rerank(ctx, analyzed.CleanedQuery, analyzed.Intent, candidates, rerankBudget)
		if rerankErr != nil {
			// Rerank is an enhancement over a fused candidate set that's
			// already individually scored; degrade to the unranked set
			// rather than fail the query.
			reranked = candidates
		}
	}

	if len(reranked) == 0 {
		minScore, maxScore := scoreRange(candidates)
		threshold := rerank.AdaptiveThreshold(p.rerankCfg.ModelFamily, analyzed.Intent, false)
		return formatter.FormatNoResults(req.QueryText, analyzed.Intent, vectorHits, bm25Hits, threshold, minScore, maxScore), nil, "all_filtered", nil
	}

	diversified := diversity.Filter(reranked, diversity.CapFor(analyzed.Intent))

	expanded := diversified
	if p.contextx != nil {
		expanded = p.contextx.Expand(ctx, diversified)
	}

	final := expanded
	if p.groundingOn {
		final = p.runGrounding(ctx, expanded)
	}
	if len(final) > normalizedLimit {
		final = final[:normalizedLimit]
	}

	stats := formatter.Stats{
		LatencyMS:  formatter.Elapsed(time.Since(start)),
		VectorHits: vectorHits,
		BM25Hits:   bm25Hits,
	}
	return formatter.FormatSuccess(req.QueryText, analyzed.Intent, final, stats), final, "", nil
}

func (p *Pipeline) runAnalyzer(ctx context.Context, req Request) (query.Analyzed, error) {
	analyzed, err := analyzer.Analyze(req.QueryText, analyzer.Hints{Space: req.Space, Limit: req.Limit})
	if err != nil {
		return query.Analyzed{}, &BadInput{Reason: err.Error()}
	}
	return analyzed, nil
}

func (p *Pipeline) runStructural(ctx context.Context, analyzed query.Analyzed) ([]hit.RetrievedHit, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.structural")
	defer span.End()
	start := time.Now()
	hits, err := p.structural.Search(ctx, analyzed.Structure, analyzed.Filters)
	if p.metrics != nil {
		p.metrics.RecordStage("structural", time.Since(start), len(hits))
	}
	return hits, err
}

func (p *Pipeline) runExpansion(ctx context.Context, analyzed query.Analyzed) query.ExpansionSet {
	if p.expander == nil {
		return query.ExpansionSet{Variants: []string{analyzed.CleanedQuery}}
	}
	ctx, span := p.tracer.Start(ctx, "pipeline.expansion")
	defer span.End()
	start := time.Now()
	set := p.expander.Expand(ctx, analyzed)
	if p.metrics != nil {
		p.metrics.RecordStage("expansion", time.Since(start), len(set.Variants))
	}
	return set
}

func (p *Pipeline) runFanout(ctx context.Context, set query.ExpansionSet, analyzed query.Analyzed, limit, tokenCount int) ([]hit.RetrievedHit, fanout.Stats) {
	ctx, span := p.tracer.Start(ctx, "pipeline.fanout")
	defer span.End()
	start := time.Now()

	k := fanout.KCandidates(limit, tokenCount)
	hits, stats := p.fanout.RunWithStats(ctx, set.Variants, analyzed.Intent, analyzed.Filters, k)

	if p.metrics != nil {
		p.metrics.RecordStage("fanout", time.Since(start), len(hits))
	}
	return hits, stats
}

// runGrounding checks each hit's originally-matched text against its own
// context-expanded text (Check falls back to Text when ExpandedText is
// empty). There is no separately generated "response" in a retrieval-only
// engine — this validates that context expansion didn't drift the
// surrounding text away from what actually matched. The semantic-
// similarity signal is only computed when an embedding for the matched
// text is already in cache (from the dense-search leg); it is never worth
// a fresh embedding call just for an optional signal.
func (p *Pipeline) runGrounding(ctx context.Context, hits []hit.RetrievedHit) []hit.RetrievedHit {
	out := make([]hit.RetrievedHit, len(hits))
	for i, h := range hits {
		responseVec, docVec := p.cachedEmbeddingPair(h)
		out[i] = grounding.Check(p.groundingCfg, h, h.Text, responseVec, docVec)
		if p.metrics != nil {
			p.metrics.RecordGroundingScore(h.Chunk.Space, out[i].GroundingSignals.KeywordOverlap)
		}
	}
	return out
}

// cachedEmbeddingPair looks up cached embeddings for a hit's matched text
// and its context-expanded text, keyed the same way the fanout stage keys
// the embedding cache. Returns (nil, nil) on any miss.
func (p *Pipeline) cachedEmbeddingPair(h hit.RetrievedHit) (response, doc []float32) {
	if p.embedCache == nil || p.embedder == nil {
		return nil, nil
	}
	modelID := p.embedder.ModelName()
	if v, ok := p.embedCache.Get(cache.EmbeddingKey(h.Text, modelID)); ok {
		response = v
	}
	if h.ExpandedText != "" {
		if v, ok := p.embedCache.Get(cache.EmbeddingKey(h.ExpandedText, modelID)); ok {
			doc = v
		}
	} else {
		doc = response
	}
	return response, doc
}

// NormalizeLimit enforces §6's RPC contract on the caller-supplied result
// limit: zero or negative (not supplied) defaults to 5, anything above 20
// clamps to 20. Exported so internal/server can apply the same rule at the
// RPC boundary before a request ever reaches the pipeline.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return 5
	}
	if limit > 20 {
		return 20
	}
	return limit
}

func countBySearchType(hits []hit.RetrievedHit) (vector, bm25 int) {
	for _, h := range hits {
		if h.VectorRank > 0 {
			vector++
		}
		if h.BM25Rank > 0 {
			bm25++
		}
	}
	return
}

func scoreRange(hits []hit.RetrievedHit) (min, max float64) {
	if len(hits) == 0 {
		return 0, 0
	}
	min, max = hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	return
}

