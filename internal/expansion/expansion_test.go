package expansion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veyron-labs/wikiq/internal/query"
)

type fakeLog struct {
	entries []LogEntry
}

func (f *fakeLog) Similar(cleanedQuery string, tokens []string) []LogEntry {
	return f.entries
}

type fakeSynonyms struct {
	table map[string][]string
}

func (f *fakeSynonyms) Lookup(keyword string) []string {
	return f.table[keyword]
}

type fakeRewriter struct {
	variants []string
	err      error
}

func (f *fakeRewriter) Rewrite(ctx context.Context, queryText string, n int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.variants, nil
}

type fakeCache struct {
	store map[string][]string
}

func newFakeCache() *fakeCache { return &fakeCache{store: map[string][]string{}} }

func (f *fakeCache) Get(normalizedQuery string) ([]string, bool) {
	v, ok := f.store[normalizedQuery]
	return v, ok
}

func (f *fakeCache) Set(normalizedQuery string, variants []string) {
	f.store[normalizedQuery] = variants
}

func baseConfig() Config {
	return Config{
		Stopwords: map[string]struct{}{
			"в": {}, "на": {}, "по": {}, "the": {}, "is": {}, "a": {},
		},
		NameBlacklist: map[string]struct{}{"kubernetes": {}},
	}
}

func TestExpand_OriginalAlwaysAtIndexZero(t *testing.T) {
	e := New(baseConfig(), nil, nil, nil, nil)
	analyzed := query.Analyzed{CleanedQuery: "deployment guide"}
	got := e.Expand(context.Background(), analyzed)
	require.NotEmpty(t, got.Variants)
	assert.Equal(t, "deployment guide", got.Variants[0])
}

func TestExpand_CapsAtAdaptiveMaxVariants(t *testing.T) {
	log := &fakeLog{entries: []LogEntry{
		{Query: "a1", Tokens: toSet([]string{"runbook", "deploy"}), Success: true, Count: 5, AvgRating: 4.5},
	}}
	syn := &fakeSynonyms{table: map[string][]string{"runbook": {"manual", "guide"}}}
	rewriter := &fakeRewriter{variants: []string{"how to deploy runbook", "deploy guide steps"}}
	cache := newFakeCache()

	e := New(baseConfig(), log, syn, rewriter, cache)
	analyzed := query.Analyzed{CleanedQuery: "deploy runbook"} // 2 tokens -> max 5
	got := e.Expand(context.Background(), analyzed)

	assert.LessOrEqual(t, len(got.Variants), 5)
	assert.Equal(t, "deploy runbook", got.Original())
}

func TestExpand_DeduplicatesVariants(t *testing.T) {
	syn := &fakeSynonyms{table: map[string][]string{"guide": {"guide"}}} // synonym == original word
	e := New(baseConfig(), nil, syn, nil, nil)
	analyzed := query.Analyzed{CleanedQuery: "deployment guide"}
	got := e.Expand(context.Background(), analyzed)

	seen := map[string]bool{}
	for _, v := range got.Variants {
		lower := v
		assert.False(t, seen[lower], "duplicate variant: %s", v)
		seen[lower] = true
	}
}

func TestExpand_SemanticLogRequiresSuccessAndThreshold(t *testing.T) {
	log := &fakeLog{entries: []LogEntry{
		{Query: "unrelated failed query", Tokens: toSet([]string{"zzz"}), Success: false},
		{Query: "totally different topic", Tokens: toSet([]string{"unrelated", "words"}), Success: true},
	}}
	e := New(baseConfig(), log, nil, nil, nil)
	analyzed := query.Analyzed{CleanedQuery: "deploy runbook"}
	got := e.Expand(context.Background(), analyzed)

	for _, v := range got.Variants[1:] {
		assert.NotEqual(t, "unrelated failed query", v)
		assert.NotEqual(t, "totally different topic", v)
	}
}

func TestExpand_SynonymBlacklistExcludesTerm(t *testing.T) {
	syn := &fakeSynonyms{table: map[string][]string{"kubernetes": {"k8s"}}}
	e := New(baseConfig(), nil, syn, nil, nil)
	analyzed := query.Analyzed{CleanedQuery: "kubernetes operator"}
	got := e.Expand(context.Background(), analyzed)

	for _, v := range got.Variants {
		assert.NotContains(t, v, "k8s")
	}
}

func TestExpand_RewriterFailureDegradesGracefully(t *testing.T) {
	rewriter := &fakeRewriter{err: errors.New("llm timeout")}
	e := New(baseConfig(), nil, nil, rewriter, nil)
	analyzed := query.Analyzed{CleanedQuery: "deployment guide"}

	got := e.Expand(context.Background(), analyzed)
	require.NotEmpty(t, got.Variants)
	assert.Equal(t, "deployment guide", got.Variants[0])
}

func TestExpand_CacheHitReturnsStoredVariantsUnchanged(t *testing.T) {
	cache := newFakeCache()
	cache.Set("deployment guide", []string{"deployment guide", "cached variant"})

	e := New(baseConfig(), nil, nil, nil, cache)
	analyzed := query.Analyzed{CleanedQuery: "deployment guide"}
	got := e.Expand(context.Background(), analyzed)

	assert.Equal(t, []string{"deployment guide", "cached variant"}, got.Variants)
}

func TestExpand_StopwordStrippedFormAddedWhenTwoOrMoreTokensRemain(t *testing.T) {
	e := New(baseConfig(), nil, nil, nil, nil)
	analyzed := query.Analyzed{CleanedQuery: "the deployment is on the server"}
	got := e.Expand(context.Background(), analyzed)

	found := false
	for _, v := range got.Variants {
		if v == "deployment on server" || v == "deployment server" {
			found = true
		}
	}
	assert.True(t, found, "stopword-stripped variant missing from %v", got.Variants)
	assert.NotEmpty(t, got.Variants)
}

func TestJaccard(t *testing.T) {
	a := toSet([]string{"deploy", "runbook", "guide"})
	b := toSet([]string{"deploy", "runbook"})
	sim := jaccard(a, b)
	assert.InDelta(t, 2.0/3.0, sim, 0.0001)
}
