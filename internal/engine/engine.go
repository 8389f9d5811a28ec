// Package engine wires a config.Config into a running *pipeline.Pipeline:
// the dependency graph cmd/wikiqd and cmd/wikiq-eval both need, factored
// out so the two binaries build from the same recipe instead of
// duplicating it.
//
// Grounded on _examples/kadirpekel-hector/pkg/builder's "build a runnable
// component from configuration" concept. The teacher's fluent
// WithX()/Build() chain is not carried: every dependency here is fully
// determined by config.Config, so there is no caller-supplied
// customization step for a fluent API to serve — a single Build(cfg)
// function is the idiomatic shape for a config-driven wiring step.
package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/veyron-labs/wikiq/internal/cache"
	"github.com/veyron-labs/wikiq/internal/config"
	"github.com/veyron-labs/wikiq/internal/contextx"
	"github.com/veyron-labs/wikiq/internal/crossencoder"
	"github.com/veyron-labs/wikiq/internal/embedder"
	"github.com/veyron-labs/wikiq/internal/expansion"
	"github.com/veyron-labs/wikiq/internal/fanout"
	"github.com/veyron-labs/wikiq/internal/grounding"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/observability"
	"github.com/veyron-labs/wikiq/internal/pagestore"
	"github.com/veyron-labs/wikiq/internal/pipeline"
	"github.com/veyron-labs/wikiq/internal/rerank"
	"github.com/veyron-labs/wikiq/internal/rewriter"
	"github.com/veyron-labs/wikiq/internal/sparseindex"
	"github.com/veyron-labs/wikiq/internal/structural"
	"github.com/veyron-labs/wikiq/internal/synonyms"
	"github.com/veyron-labs/wikiq/internal/vectorstore"
	"github.com/veyron-labs/wikiq/internal/workerpool"
)

// Engine holds the constructed pipeline plus whatever must be closed at
// shutdown (page store DB connection, sparse index).
type Engine struct {
	Pipeline *pipeline.Pipeline
	closers  []func() error
}

// Close releases every resource Build opened, in reverse order, collecting
// (not short-circuiting on) individual close errors.
func (e *Engine) Close() error {
	var firstErr error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build constructs every pipeline stage from cfg. metrics may be nil (the
// eval harness runs without a metrics registry).
//
// The vector store's collection check and the page store's connection are
// independent network round trips (Qdrant/Chroma and Postgres respectively),
// so they run concurrently via errgroup and fail fast on whichever errors
// first — unlike internal/fanout's per-variant isolation, a broken upstream
// here should abort startup, not degrade.
func Build(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (*Engine, error) {
	eng := &Engine{}

	embed, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}

	store, err := buildVectorStore(cfg.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("building vector store: %w", err)
	}

	sparse, err := sparseindex.New()
	if err != nil {
		return nil, fmt.Errorf("building sparse index: %w", err)
	}
	eng.closers = append(eng.closers, sparse.Close)

	var pages *pagestore.Store
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := store.EnsureCollection(gctx, embed.Dimension()); err != nil {
			return fmt.Errorf("ensuring vector collection: %w", err)
		}
		return nil
	})
	if cfg.PageStore.DSN != "" {
		g.Go(func() error {
			p, err := pagestore.Open(gctx, cfg.PageStore.DSN)
			if err != nil {
				return fmt.Errorf("opening page store: %w", err)
			}
			pages = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if pages != nil {
		eng.closers = append(eng.closers, pages.Close)
	}

	embedCache := cache.NewEmbeddingCache(cfg.Cache.EmbeddingSize)
	fan := fanout.New(embed, store, sparse)

	var structuralSearcher *structural.Searcher
	var contextExpander *contextx.Expander
	if pages != nil {
		structuralSearcher = structural.New(pages)
		contextExpander = contextx.New(pages, contextx.Config{
			Mode:        expansionModeFrom(cfg.ContextExpander.Mode),
			WindowSize:  cfg.ContextExpander.WindowSize,
			RelatedTopR: cfg.ContextExpander.RelatedTopR,
		})
	}

	expander := buildExpander(cfg, embedCache)

	var reranker *rerank.Reranker
	rerankCfg := rerank.Config{}
	if cfg.CrossEncoder.Enabled {
		encoder := crossencoder.New(crossencoder.Config{
			BaseURL: cfg.CrossEncoder.BaseURL,
			Timeout: cfg.CrossEncoder.Timeout,
		})
		rerankCfg = rerank.DefaultConfig()
		reranker = rerank.New(encoder, rerankCfg)
	}

	p, err := pipeline.New(pipeline.Deps{
		Embedder:                  embed,
		EmbedCache:                embedCache,
		Fanout:                    fan,
		Structural:                structuralSearcher,
		Expander:                  expander,
		Reranker:                  reranker,
		RerankConfig:              rerankCfg,
		ContextExpander:           contextExpander,
		GroundingConfig:           grounding.Config{SimilarityThreshold: cfg.Grounding.SimilarityThreshold, KeywordThreshold: cfg.Grounding.KeywordThreshold},
		GroundingOn:               cfg.Grounding.Enabled,
		Pool:                      workerpool.New(4),
		Metrics:                   metrics,
		VectorCollectionDimension: embed.Dimension(),
	})
	if err != nil {
		return nil, fmt.Errorf("constructing pipeline: %w", err)
	}
	eng.Pipeline = p
	return eng, nil
}

func buildEmbedder(cfg config.EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Type {
	case "openai":
		return embedder.NewOpenAI(embedder.OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	default:
		return embedder.NewOllama(embedder.OllamaConfig{
			Host:      cfg.Host,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		}), nil
	}
}

func buildVectorStore(cfg config.VectorStoreConfig) (vectorstore.Store, error) {
	switch cfg.Type {
	case "chroma":
		return vectorstore.NewChroma(vectorstore.ChromaConfig{
			BaseURL:    cfg.Host,
			Collection: cfg.Collection,
		}), nil
	default:
		return vectorstore.NewQdrant(vectorstore.QdrantConfig{
			Host:       cfg.Host,
			Port:       cfg.Port,
			APIKey:     cfg.APIKey,
			Collection: cfg.Collection,
		})
	}
}

func buildExpander(cfg *config.Config, embedCache *cache.EmbeddingCache) *expansion.Expander {
	var rw expansion.Rewriter
	if cfg.Rewriter.Enabled {
		var err error
		if cfg.Rewriter.Type == "openai" {
			rw, err = rewriter.NewOpenAI(rewriter.OpenAIConfig{
				BaseURL:        cfg.Rewriter.BaseURL,
				APIKey:         cfg.Rewriter.APIKey,
				Model:          cfg.Rewriter.Model,
				EmbeddingModel: cfg.Embedder.Model,
				Temperature:    cfg.Rewriter.Temperature,
				Timeout:        cfg.Rewriter.Timeout,
			})
		} else {
			rw, err = rewriter.NewOllama(rewriter.OllamaConfig{
				Host:           cfg.Rewriter.Host,
				Model:          cfg.Rewriter.Model,
				EmbeddingModel: cfg.Embedder.Model,
				Temperature:    cfg.Rewriter.Temperature,
				Timeout:        cfg.Rewriter.Timeout,
			})
		}
		if err != nil {
			// A misconfigured rewriter degrades the Query Expander to its
			// synonym/stopword-only path rather than failing startup.
			rw = nil
		}
	}

	rewriteCache := cache.NewRewriteCache(cfg.Cache.RewriteTTL)
	semanticLog := cache.NewSemanticQueryLog(cfg.Cache.SemanticLogCap)
	synonymSource := synonyms.NewStatic(nil)

	return expansion.New(expansion.Config{}, semanticLog, synonymSource, rw, rewriteCache)
}

func expansionModeFrom(mode string) hit.ExpansionMode {
	switch mode {
	case "related":
		return hit.ExpansionModeRelated
	case "all":
		return hit.ExpansionModeAll
	case "none":
		return hit.ExpansionModeNone
	default:
		return hit.ExpansionModeBidirectional
	}
}
