// Package expansion implements the Query Expander stage (§4.2): turning one
// cleaned query into an ordered, de-duplicated set of variants drawn from
// five sources in priority order.
//
// Grounded on original_source/rag_server/synonyms_manager.py (BASE_SYNONYMS,
// TERM_BLACKLIST, whole-word substitution) and
// original_source/rag_server/semantic_query_log.py (Jaccard match against
// prior successful queries), with the LLM-rewrite source adapted from
// _examples/kadirpekel-hector/pkg/rag/query_expansion.go's LLMQueryExpander.
package expansion

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/veyron-labs/wikiq/internal/query"
)

// LogEntry is one record consulted by the semantic query log source.
type LogEntry struct {
	Query     string
	Tokens    map[string]struct{}
	Success   bool
	Count     int
	AvgRating float64
}

// SemanticLog is the capability the cache package's query-log cache
// implements: find prior successful queries similar to the incoming one.
type SemanticLog interface {
	Similar(cleanedQuery string, tokens []string) []LogEntry
}

// Synonyms is the capability the synonyms manager (layered static + mined +
// learned dictionary) implements.
type Synonyms interface {
	// Lookup returns synonym candidates for a single lowercased keyword, or
	// nil if none are known.
	Lookup(keyword string) []string
}

// Rewriter is the capability an LLM rewrite backend (internal/rewriter)
// implements. Implementations must enforce their own 5s timeout; Expand
// degrades to the remaining sources on any error.
type Rewriter interface {
	Rewrite(ctx context.Context, queryText string, n int) ([]string, error)
}

// RewriteCache is the capability the cache package's TTL rewrite cache
// implements, keyed by normalized query text.
type RewriteCache interface {
	Get(normalizedQuery string) ([]string, bool)
	Set(normalizedQuery string, variants []string)
}

// Config configures an Expander's static knowledge: stopwords, a blacklist
// of proper names/tool names never substituted, and known domain space keys
// used for case-variant normalization.
type Config struct {
	Stopwords      map[string]struct{}
	NameBlacklist  map[string]struct{}
	KnownSpaceKeys []string
	JaccardMin     float64 // default 0.3, per spec §9 open question
}

// Expander implements the Query Expander contract.
type Expander struct {
	cfg      Config
	log      SemanticLog
	synonyms Synonyms
	rewriter Rewriter
	cache    RewriteCache
}

// New constructs an Expander. log, synonyms, rewriter and cache may each be
// nil, in which case that source contributes nothing and Expand continues
// with the remaining ones.
func New(cfg Config, log SemanticLog, synonyms Synonyms, rewriter Rewriter, cache RewriteCache) *Expander {
	if cfg.JaccardMin <= 0 {
		cfg.JaccardMin = 0.3
	}
	return &Expander{cfg: cfg, log: log, synonyms: synonyms, rewriter: rewriter, cache: cache}
}

var wordSplit = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(s string) []string {
	return wordSplit.FindAllString(strings.ToLower(s), -1)
}

// Expand implements §4.2: returns an ExpansionSet with the original query at
// index 0, de-duplicated, capped at query.MaxVariants(len(tokens)).
func (e *Expander) Expand(ctx context.Context, analyzed query.Analyzed) query.ExpansionSet {
	cleaned := analyzed.CleanedQuery
	tokens := tokenize(cleaned)
	maxVariants := query.MaxVariants(len(tokens))

	normalized := strings.ToLower(strings.TrimSpace(cleaned))
	if e.cache != nil {
		if cached, ok := e.cache.Get(normalized); ok {
			return capSet(cached, maxVariants)
		}
	}

	variants := []string{cleaned}
	seen := map[string]struct{}{normalized: {}}
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		variants = append(variants, v)
	}

	// 1. Semantic query log.
	if e.log != nil {
		for _, c := range e.logMatches(cleaned, tokens) {
			add(c)
		}
	}

	// 2. Synonyms manager.
	if e.synonyms != nil {
		for _, c := range e.synonymVariants(cleaned, tokens) {
			add(c)
		}
	}

	// 3. LLM rewriter (cached call; failures degrade silently).
	if e.rewriter != nil && len(variants) < maxVariants {
		if rewritten, err := e.rewriter.Rewrite(ctx, cleaned, maxVariants); err == nil {
			for _, c := range rewritten {
				add(c)
			}
		}
	}

	// 4. Stopword-stripped form, if it still carries >=2 tokens.
	if stripped := e.stopwordStripped(tokens); len(stripped) >= 1 {
		joined := strings.Join(stripped, " ")
		if len(strings.Fields(joined)) >= 2 {
			add(joined)
		}
	}

	// 5. Domain normalization: case variants of known space keys mentioned
	// in the query.
	for _, v := range e.domainNormalized(cleaned) {
		add(v)
	}

	result := capSet(variants, maxVariants)

	if e.cache != nil {
		e.cache.Set(normalized, result.Variants)
	}

	return result
}

func capSet(variants []string, max int) query.ExpansionSet {
	if len(variants) > max {
		variants = variants[:max]
	}
	out := make([]string, len(variants))
	copy(out, variants)
	return query.ExpansionSet{Variants: out}
}

// logMatches returns up to 3 prior queries with Jaccard similarity >=
// JaccardMin, sorted by (similarity, count, avg_rating) desc.
func (e *Expander) logMatches(cleaned string, tokens []string) []string {
	entries := e.log.Similar(cleaned, tokens)
	querySet := toSet(tokens)

	type scored struct {
		entry LogEntry
		sim   float64
	}
	var candidates []scored
	for _, entry := range entries {
		if !entry.Success {
			continue
		}
		sim := jaccard(querySet, entry.Tokens)
		if sim >= e.cfg.JaccardMin {
			candidates = append(candidates, scored{entry: entry, sim: sim})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		if candidates[i].entry.Count != candidates[j].entry.Count {
			return candidates[i].entry.Count > candidates[j].entry.Count
		}
		return candidates[i].entry.AvgRating > candidates[j].entry.AvgRating
	})

	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.entry.Query)
	}
	return out
}

func toSet(tokens []string) map[string]struct{} {
	s := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

var wholeWordTemplate = `\b%s\b`

// synonymVariants substitutes, one keyword at a time, each synonym of that
// keyword via whole-word replacement, producing one candidate variant per
// substitution. At most 3 keywords are considered, proper names blacklisted.
func (e *Expander) synonymVariants(cleaned string, tokens []string) []string {
	keywords := e.stopwordStripped(tokens)
	var out []string
	count := 0
	for _, kw := range keywords {
		if count >= 3 {
			break
		}
		if _, blacklisted := e.cfg.NameBlacklist[kw]; blacklisted {
			continue
		}
		synonyms := e.synonyms.Lookup(kw)
		if len(synonyms) == 0 {
			continue
		}
		count++
		re, err := regexp.Compile(`(?i)` + wordBoundary(kw))
		if err != nil {
			continue
		}
		for _, syn := range synonyms {
			out = append(out, re.ReplaceAllString(cleaned, syn))
		}
	}
	return out
}

func wordBoundary(word string) string {
	return `\b` + regexp.QuoteMeta(word) + `\b`
}

func (e *Expander) stopwordStripped(tokens []string) []string {
	if e.cfg.Stopwords == nil {
		return tokens
	}
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := e.cfg.Stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// domainNormalized produces case variants of known space keys that appear
// (case-insensitively) in the query text.
func (e *Expander) domainNormalized(cleaned string) []string {
	var out []string
	lower := strings.ToLower(cleaned)
	for _, key := range e.cfg.KnownSpaceKeys {
		if !strings.Contains(lower, strings.ToLower(key)) {
			continue
		}
		re, err := regexp.Compile(`(?i)` + wordBoundary(key))
		if err != nil {
			continue
		}
		out = append(out,
			re.ReplaceAllString(cleaned, strings.ToUpper(key)),
			re.ReplaceAllString(cleaned, strings.ToLower(key)),
		)
	}
	return out
}
