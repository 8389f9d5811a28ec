// Package contextx implements the Context Expander stage (§4.8): widening a
// surviving hit's displayed text with neighboring or semantically related
// chunks from the same page.
//
// Grounded on original_source/rag_server/context_expansion.py's
// expand_context_bidirectional (chunk-index window fetch, soft-fail to
// expansion_mode="none" when the page store or page_id is unavailable).
package contextx

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/hit"
)

// PageChunkStore is the capability internal/pagestore implements for
// context expansion: fetch a page's chunks by index window, or by
// similarity to a reference embedding.
type PageChunkStore interface {
	ChunksInRange(ctx context.Context, pageID string, fromIndex, toIndex int) ([]chunk.Chunk, error)
	ChunksByPage(ctx context.Context, pageID string) ([]chunk.Chunk, error)
	Embedding(ctx context.Context, chunkID string) ([]float32, bool, error)
}

// Config tunes expansion behavior.
type Config struct {
	Mode        hit.ExpansionMode
	WindowSize  int // bidirectional half-window, default 2
	RelatedTopR int // related-mode candidate count, default 3
}

func DefaultConfig() Config {
	return Config{Mode: hit.ExpansionModeBidirectional, WindowSize: 2, RelatedTopR: 3}
}

// Expander runs the configured expansion mode over a hit set.
type Expander struct {
	store PageChunkStore
	cfg   Config
}

func New(store PageChunkStore, cfg Config) *Expander {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 2
	}
	if cfg.RelatedTopR <= 0 {
		cfg.RelatedTopR = 3
	}
	return &Expander{store: store, cfg: cfg}
}

// Expand mutates a copy of each hit with ExpandedText and ContextChunks. On
// any failure to reach the page store, the hit keeps its original text with
// ExpansionMode "none" and the pipeline continues (§4.8).
func (e *Expander) Expand(ctx context.Context, hits []hit.RetrievedHit) []hit.RetrievedHit {
	out := make([]hit.RetrievedHit, len(hits))
	for i, h := range hits {
		out[i] = e.expandOne(ctx, h)
	}
	return out
}

func (e *Expander) expandOne(ctx context.Context, h hit.RetrievedHit) hit.RetrievedHit {
	clone := h.Clone()
	if e.store == nil || h.Chunk.PageID == "" {
		clone.ExpandedText = h.Text
		clone.ContextChunks = 1
		clone.ExpansionMode = hit.ExpansionModeNone
		return clone
	}

	var chunks []chunk.Chunk
	var err error

	switch e.cfg.Mode {
	case hit.ExpansionModeBidirectional:
		chunks, err = e.bidirectional(ctx, h)
	case hit.ExpansionModeRelated:
		chunks, err = e.related(ctx, h)
	case hit.ExpansionModeAll:
		chunks, err = e.all(ctx, h)
	default:
		clone.ExpandedText = h.Text
		clone.ContextChunks = 1
		clone.ExpansionMode = hit.ExpansionModeNone
		return clone
	}

	if err != nil || len(chunks) == 0 {
		if err != nil {
			slog.Debug("context expansion unavailable, keeping original text", "page_id", h.Chunk.PageID, "error", err)
		}
		clone.ExpandedText = h.Text
		clone.ContextChunks = 1
		clone.ExpansionMode = hit.ExpansionModeNone
		return clone
	}

	clone.ExpandedText = concatenate(chunks)
	clone.ContextChunks = len(chunks)
	clone.ExpansionMode = e.cfg.Mode
	return clone
}

func (e *Expander) bidirectional(ctx context.Context, h hit.RetrievedHit) ([]chunk.Chunk, error) {
	from := h.Chunk.Index - e.cfg.WindowSize
	to := h.Chunk.Index + e.cfg.WindowSize
	if from < 0 {
		from = 0
	}
	chunks, err := e.store.ChunksInRange(ctx, h.Chunk.PageID, from, to)
	if err != nil {
		return nil, err
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

func (e *Expander) related(ctx context.Context, h hit.RetrievedHit) ([]chunk.Chunk, error) {
	ref, ok, err := e.store.Embedding(ctx, h.ChunkID)
	if err != nil {
		return nil, err
	}
	all, err := e.store.ChunksByPage(ctx, h.Chunk.PageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []chunk.Chunk{h.Chunk}, nil
	}

	type scored struct {
		c   chunk.Chunk
		sim float64
	}
	var candidates []scored
	for _, c := range all {
		if c.ID == h.ChunkID {
			continue
		}
		emb, hasEmb, embErr := e.store.Embedding(ctx, c.ID)
		if embErr != nil || !hasEmb {
			continue
		}
		candidates = append(candidates, scored{c: c, sim: cosineSimilarity(ref, emb)})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if len(candidates) > e.cfg.RelatedTopR {
		candidates = candidates[:e.cfg.RelatedTopR]
	}

	out := []chunk.Chunk{h.Chunk}
	for _, c := range candidates {
		out = append(out, c.c)
	}
	return out, nil
}

func (e *Expander) all(ctx context.Context, h hit.RetrievedHit) ([]chunk.Chunk, error) {
	bi, err := e.bidirectional(ctx, h)
	if err != nil {
		return nil, err
	}
	rel, err := e.related(ctx, h)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(bi)+len(rel))
	out := make([]chunk.Chunk, 0, len(bi)+len(rel))
	for _, c := range bi {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	for _, c := range rel {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func concatenate(chunks []chunk.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
