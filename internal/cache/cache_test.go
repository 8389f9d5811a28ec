package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingKey_DeterministicAndModelScoped(t *testing.T) {
	k1 := EmbeddingKey("hello world", "model-a")
	k2 := EmbeddingKey("hello world", "model-a")
	k3 := EmbeddingKey("hello world", "model-b")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestEmbeddingCache_SetAndGet(t *testing.T) {
	c := NewEmbeddingCache(10)
	key := EmbeddingKey("text", "model")
	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, []float32{0.1, 0.2})
	v, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, v)
}

func TestRewriteCache_TTLExpiry(t *testing.T) {
	c := NewRewriteCache(1 * time.Millisecond)
	c.Set("deploy guide", []string{"deploy guide", "deployment guide"})

	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("deploy guide")
	assert.False(t, ok)
}

func TestRewriteCache_HitReturnsStoredTupleUnchanged(t *testing.T) {
	c := NewRewriteCache(time.Hour)
	c.Set("deploy guide", []string{"deploy guide", "deployment guide"})

	v, ok := c.Get("deploy guide")
	require.True(t, ok)
	assert.Equal(t, []string{"deploy guide", "deployment guide"}, v)
}

func TestPageCache_SetAndGet(t *testing.T) {
	c := NewPageCache(10)
	key := PageCacheKey{PageID: "p1", Expand: "bidirectional"}
	c.Set(key, "payload")

	v, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "payload", v)
}

func TestSemanticQueryLog_RecordAccumulatesAverageRating(t *testing.T) {
	log := NewSemanticQueryLog(100)
	log.Record("deploy guide", toSet([]string{"deploy", "guide"}), true, 4.0)
	log.Record("deploy guide", toSet([]string{"deploy", "guide"}), true, 5.0)

	entries := log.Similar("deploy guide", []string{"deploy", "guide"})
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Count)
	assert.InDelta(t, 4.5, entries[0].AvgRating, 0.0001)
}

func TestSemanticQueryLog_PrunesWhenOverCapacity(t *testing.T) {
	log := NewSemanticQueryLog(4)
	for i := 0; i < 8; i++ {
		q := string(rune('a' + i))
		log.Record(q, toSet([]string{q}), true, float64(i))
	}

	entries := log.Similar("", nil)
	assert.LessOrEqual(t, len(entries), 4)
}

func toSet(tokens []string) map[string]struct{} {
	s := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}
