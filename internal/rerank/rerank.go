// Package rerank implements the Reranker stage (§4.6): cross-encoder
// scoring of a candidate budget, boosted by metadata-derived hierarchy and
// path signals, filtered by an adaptive per-(model family, intent) score
// threshold.
//
// Grounded on _examples/kadirpekel-hector/pkg/context/reranking/reranker.go
// for the Reranker interface shape and the package-doc discipline around
// score-semantics (this package documents the cross-encoder's scalar range
// the same way the teacher documents its LLM-ranking-position scores),
// adapted from an LLM-judge reranker to a cross-encoder scalar scorer.
package rerank

import (
	"context"
	"sort"
	"strings"

	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

// ModelFamily distinguishes cross-encoder score-range conventions.
type ModelFamily string

const (
	// ModelFamilyBGE covers MS-MARCO-style cross-encoders, scores roughly
	// in [0, 1].
	ModelFamilyBGE ModelFamily = "bge"
	// ModelFamilyRussian covers tighter-scoring Russian cross-encoders,
	// scores roughly in [0, 0.3].
	ModelFamilyRussian ModelFamily = "russian"
)

// CrossEncoder scores a (query, text) pair. Scores are model-specific
// scalars, never normalized by this package: BGE-style cross-encoders
// score roughly in [0, 1], Russian ones roughly in [0, 0.3]. The adaptive
// threshold (Config.ModelFamily) is how callers account for the range.
type CrossEncoder interface {
	ScoreBatch(ctx context.Context, queryText string, candidateTexts []string) ([]float64, error)
}

// Config tunes hierarchy boosts, path boosts, and the adaptive threshold.
type Config struct {
	ModelFamily          ModelFamily
	TechnicalVocabulary  map[string]struct{}
	TitleKeywords        map[string]struct{} // "overview", "readme", ...
	TechnicalLabels      map[string]struct{} // "api", "architecture", ...
}

func DefaultConfig() Config {
	return Config{
		ModelFamily: ModelFamilyBGE,
		TechnicalVocabulary: set(
			"api", "kubernetes", "docker", "deployment", "config",
			"endpoint", "database", "architecture", "pipeline",
			"конфигурация", "развертывание", "интеграция",
		),
		TitleKeywords: set(
			"overview", "general", "readme", "getting started", "руководство",
		),
		TechnicalLabels: set(
			"api", "architecture", "интеграция", "infrastructure", "devops",
		),
	}
}

func set(words ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// Reranker scores and filters fused candidates.
type Reranker struct {
	encoder CrossEncoder
	cfg     Config
}

func New(encoder CrossEncoder, cfg Config) *Reranker {
	return &Reranker{encoder: encoder, cfg: cfg}
}

// AdaptiveLimit implements §4.6's candidate budget: short query with an
// active space filter is capped tighter (12), long queries get more room
// (up to 20), hard cap 20.
func AdaptiveLimit(tokenCount int, hasSpaceFilter bool) int {
	switch {
	case tokenCount <= 4 && hasSpaceFilter:
		return 12
	case tokenCount > 6:
		return 20
	default:
		return 16
	}
}

// Rerank scores the top-of-fusion prefix (candidates, already best-first),
// computes hierarchy and path boosts, applies the adaptive threshold, and
// returns the surviving candidates sorted by final_score desc. If every
// candidate is dropped, the returned slice is empty — the caller (pipeline)
// is responsible for the "low-relevance" structured response, never a
// silent empty.
func (r *Reranker) Rerank(ctx context.Context, queryText string, intent query.Intent, candidates []hit.RetrievedHit, limit int) ([]hit.RetrievedHit, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	scores, err := r.encoder.ScoreBatch(ctx, queryText, texts)
	if err != nil {
		return nil, err
	}

	queryKeywords := keywordSet(queryText)
	technical := isTechnical(queryKeywords, r.cfg.TechnicalVocabulary)
	threshold := AdaptiveThreshold(r.cfg.ModelFamily, intent, technical)

	out := make([]hit.RetrievedHit, 0, len(candidates))
	for i, c := range candidates {
		h := c.Clone()
		h.RerankScore = scores[i]
		h.HierarchyBoost = HierarchyBoost(h, r.cfg)
		h.PathBoost = PathBoost(queryKeywords, h.Chunk.Breadcrumb)
		h.FinalScore = h.RerankScore + h.HierarchyBoost + h.PathBoost
		h.Score = h.FinalScore

		if h.RerankScore < threshold {
			continue
		}
		out = append(out, h)
	}

	sort.Slice(out, hit.SortByScoreDesc(out))
	return out, nil
}

// HierarchyBoost is a monotonic, bounded (<=0.8) function of chunk metadata.
func HierarchyBoost(c hit.RetrievedHit, cfg Config) float64 {
	return hierarchyBoost(c, cfg)
}

func hierarchyBoost(h hit.RetrievedHit, cfg Config) float64 {
	var boost float64
	chk := h.Chunk

	if chk.HierarchyDepth == 0 {
		boost += 0.5
	}

	titleLower := strings.ToLower(chk.PageTitle)
	for kw := range cfg.TitleKeywords {
		if strings.Contains(titleLower, kw) {
			boost += 0.3
			break
		}
	}

	switch chk.HeadingLevel {
	case 1:
		boost += 0.2
	case 2:
		boost += 0.1
	}

	hasTechnicalLabel := false
	for _, l := range chk.Labels {
		if _, ok := cfg.TechnicalLabels[strings.ToLower(l)]; ok {
			hasTechnicalLabel = true
			break
		}
	}
	switch {
	case hasTechnicalLabel:
		boost += 0.3
	case len(chk.Labels) > 0:
		boost += 0.05
	}

	if boost > 0.8 {
		boost = 0.8
	}
	return boost
}

// PathBoost is Jaccard similarity over keyword sets of the query and the
// chunk's breadcrumb, bounded [0, 1] (Jaccard is naturally bounded there).
func PathBoost(queryKeywords map[string]struct{}, breadcrumb string) float64 {
	breadcrumbKeywords := keywordSet(breadcrumb)
	if len(queryKeywords) == 0 || len(breadcrumbKeywords) == 0 {
		return 0
	}
	intersection := 0
	for k := range queryKeywords {
		if _, ok := breadcrumbKeywords[k]; ok {
			intersection++
		}
	}
	union := len(queryKeywords) + len(breadcrumbKeywords) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func keywordSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r >= 'а' && r <= 'я')
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

func isTechnical(queryKeywords map[string]struct{}, vocab map[string]struct{}) bool {
	for k := range queryKeywords {
		if _, ok := vocab[k]; ok {
			return true
		}
	}
	return false
}

// AdaptiveThreshold implements §4.6's rule table: bases depend on model
// family, the per-intent multiplier picks between base_general and
// base_technical.
func AdaptiveThreshold(family ModelFamily, intent query.Intent, technical bool) float64 {
	var baseTechnical, baseGeneral float64
	switch family {
	case ModelFamilyRussian:
		baseTechnical, baseGeneral = 0.01, 0.005
	default: // ModelFamilyBGE and unrecognized families fall back to BGE bases.
		baseTechnical, baseGeneral = 0.01, 0.001
	}

	switch intent {
	case query.IntentNavigational:
		return baseGeneral * 1.5
	case query.IntentHowTo:
		return baseTechnical
	case query.IntentExploratory:
		v := baseGeneral * 0.5
		if v > 0.0001 {
			return 0.0001
		}
		return v
	default: // Factual
		return baseGeneral
	}
}
