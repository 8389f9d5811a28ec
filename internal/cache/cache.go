// Package cache implements the four named process-local caches (§4.11):
// embedding, rewrite, page, and semantic-query-log. Every cache is
// thread-safe; misses never serialize — concurrent misses on the same key
// may race, and the first winner populates the entry (double-checked read
// after acquiring the write lock avoids publishing a partial value).
//
// Grounded on _examples/kadirpekel-hector/pkg/registry/registry.go's
// generic BaseRegistry[T] (sync.RWMutex guarding a map) for the rewrite and
// semantic-log caches, and hashicorp/golang-lru/v2 (already a pack
// dependency via bleve's transitive graph, elevated here to a direct one)
// for the embedding and page caches' bounded LRU eviction.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/veyron-labs/wikiq/internal/expansion"
)

// EmbeddingKey derives the embedding cache key: SHA-256 of text + model id.
func EmbeddingKey(text, modelID string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// EmbeddingCache is an LRU, size-bounded cache of dense vectors keyed by
// EmbeddingKey.
type EmbeddingCache struct {
	lru *lru.Cache[string, []float32]
}

// NewEmbeddingCache creates a bounded embedding cache; size <= 0 defaults
// to 10000 entries.
func NewEmbeddingCache(size int) *EmbeddingCache {
	if size <= 0 {
		size = 10000
	}
	c, _ := lru.New[string, []float32](size)
	return &EmbeddingCache{lru: c}
}

func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	return c.lru.Get(key)
}

func (c *EmbeddingCache) Set(key string, vector []float32) {
	c.lru.ContainsOrAdd(key, vector)
}

// rewriteEntry pairs cached variants with their expiry.
type rewriteEntry struct {
	variants []string
	expires  time.Time
}

// RewriteCache is a TTL cache of LLM-rewrite variant tuples keyed by
// normalized query text. Implements expansion.RewriteCache.
type RewriteCache struct {
	mu      sync.RWMutex
	entries map[string]rewriteEntry
	ttl     time.Duration
}

var _ expansion.RewriteCache = (*RewriteCache)(nil)

// NewRewriteCache creates a TTL rewrite cache; ttl <= 0 defaults to 1h
// (spec's "e.g., 3600s").
func NewRewriteCache(ttl time.Duration) *RewriteCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RewriteCache{entries: make(map[string]rewriteEntry), ttl: ttl}
}

func (c *RewriteCache) Get(normalizedQuery string) ([]string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[normalizedQuery]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.variants, true
}

func (c *RewriteCache) Set(normalizedQuery string, variants []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-checked: another writer may have raced us here; if it already
	// published a live entry, the first winner's value stays. variants
	// arrives fully formed from the caller, so no partial slice is stored.
	if existing, ok := c.entries[normalizedQuery]; ok && time.Now().Before(existing.expires) {
		return
	}
	c.entries[normalizedQuery] = rewriteEntry{variants: variants, expires: time.Now().Add(c.ttl)}
}

// PageCacheKey derives the page cache key: (page_id, expand mode).
type PageCacheKey struct {
	PageID string
	Expand string
}

// PageCache is an LRU, size-bounded cache of fetched page payloads, reused
// between ingest-time helpers and the context expander.
type PageCache struct {
	lru *lru.Cache[PageCacheKey, any]
}

// NewPageCache creates a bounded page cache; size <= 0 defaults to 1000
// entries (spec's "e.g., 1000").
func NewPageCache(size int) *PageCache {
	if size <= 0 {
		size = 1000
	}
	c, _ := lru.New[PageCacheKey, any](size)
	return &PageCache{lru: c}
}

func (c *PageCache) Get(key PageCacheKey) (any, bool) {
	return c.lru.Get(key)
}

func (c *PageCache) Set(key PageCacheKey, payload any) {
	c.lru.ContainsOrAdd(key, payload)
}

// LogRecord is one semantic-query-log entry: a query, its token set, and
// the quality signals used both for expansion-source matching
// (expansion.LogEntry) and for pruning.
type LogRecord struct {
	Query     string
	Tokens    map[string]struct{}
	Success   bool
	Count     int
	AvgRating float64
	LastSeen  time.Time
}

// SemanticQueryLog is the size-bounded, quality-pruned log of historical
// queries consulted by the expander's first source. Implements
// expansion.SemanticLog.
type SemanticQueryLog struct {
	mu      sync.RWMutex
	records map[string]*LogRecord
	maxSize int
}

var _ expansion.SemanticLog = (*SemanticQueryLog)(nil)

// NewSemanticQueryLog creates a log bounded to maxSize records; maxSize <=
// 0 defaults to 10000 (the source's QUERY_LOG_MAX_SIZE default).
func NewSemanticQueryLog(maxSize int) *SemanticQueryLog {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &SemanticQueryLog{records: make(map[string]*LogRecord), maxSize: maxSize}
}

// Record upserts a query's outcome: increments count, updates avg_rating
// incrementally, and refreshes LastSeen.
func (l *SemanticQueryLog) Record(normalizedQuery string, tokens map[string]struct{}, success bool, rating float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.records[normalizedQuery]; ok {
		existing.Count++
		existing.AvgRating = existing.AvgRating + (rating-existing.AvgRating)/float64(existing.Count)
		existing.Success = existing.Success || success
		existing.LastSeen = time.Now()
		return
	}

	l.records[normalizedQuery] = &LogRecord{
		Query:     normalizedQuery,
		Tokens:    tokens,
		Success:   success,
		Count:     1,
		AvgRating: rating,
		LastSeen:  time.Now(),
	}

	if len(l.records) > l.maxSize {
		l.pruneLocked()
	}
}

// Similar implements expansion.SemanticLog: returns every recorded entry
// (the expander itself applies the Jaccard threshold and top-3 cutoff).
func (l *SemanticQueryLog) Similar(cleanedQuery string, tokens []string) []expansion.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]expansion.LogEntry, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, expansion.LogEntry{
			Query:     r.Query,
			Tokens:    r.Tokens,
			Success:   r.Success,
			Count:     r.Count,
			AvgRating: r.AvgRating,
		})
	}
	return out
}

// pruneLocked drops the lowest-quality quarter of entries (lowest
// avg_rating, then oldest) when the log exceeds maxSize. Caller must hold
// l.mu for writing.
func (l *SemanticQueryLog) pruneLocked() {
	type scored struct {
		key    string
		rating float64
		seen   time.Time
	}
	all := make([]scored, 0, len(l.records))
	for k, r := range l.records {
		all = append(all, scored{key: k, rating: r.AvgRating, seen: r.LastSeen})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].rating != all[j].rating {
			return all[i].rating < all[j].rating
		}
		return all[i].seen.Before(all[j].seen)
	})

	toRemove := len(all) / 4
	if toRemove < 1 {
		toRemove = 1
	}
	for i := 0; i < toRemove && i < len(all); i++ {
		delete(l.records, all[i].key)
	}
}
