// Package sparseindex implements the BM25 half of retrieval fanout (§4.3):
// keyword search over chunk text with a Russian-morphology-aware analyzer,
// since the wiki corpus mixes English and Russian content.
//
// Grounded on _examples/Aman-CERP-amanmcp/internal/store/bm25.go (Bleve v2
// index construction, custom-analyzer registration, batch indexing,
// match-query search) generalized from that store's single code analyzer
// to a dual English/Russian analyzer selected by a lightweight Cyrillic
// sniff on the query text.
package sparseindex

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/lang/ru"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

const (
	fieldText        = "text"
	fieldSpace       = "space"
	fieldAuthor      = "modified_by"
	fieldContentType = "content_type"
	fieldStatus      = "status"
)

// Index is the bleve-backed BM25 sparse index. Implements
// fanout.SparseSearcher and structural.PageStore's sibling role of owning
// chunk lookups is handled by internal/pagestore instead — this index only
// ever returns chunk IDs plus scores; callers resolve the full Chunk from
// the store that is kept alongside it.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	chunks map[string]chunk.Chunk
}

// New creates an in-memory Bleve index with the dual English/Russian
// analyzer. Production deployments that want a persistent index can swap
// bleve.NewMemOnly for bleve.New(path, ...) without changing this type's
// surface, mirroring the teacher's in-memory-for-tests / on-disk-for-prod
// split.
func New() (*Index, error) {
	m, err := buildMapping()
	if err != nil {
		return nil, fmt.Errorf("building sparse index mapping: %w", err)
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("creating sparse index: %w", err)
	}
	return &Index{index: idx, chunks: make(map[string]chunk.Chunk)}, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = en.AnalyzerName

	textFieldRU := bleve.NewTextFieldMapping()
	textFieldRU.Analyzer = ru.AnalyzerName

	// Index the same text under two fields, each analyzed for one
	// language; queries search both and let BM25's own scoring surface
	// whichever language matched better. Simpler than language detection
	// at ingest time and robust to mixed-language pages.
	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(fieldText, textField)
	docMapping.AddFieldMappingsAt(fieldText+"_ru", textFieldRU)

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt(fieldSpace, keyword)
	docMapping.AddFieldMappingsAt(fieldAuthor, keyword)
	docMapping.AddFieldMappingsAt(fieldContentType, keyword)
	docMapping.AddFieldMappingsAt(fieldStatus, keyword)

	m.DefaultMapping = docMapping
	return m, nil
}

type indexedDoc struct {
	Text        string `json:"text"`
	TextRU      string `json:"text_ru"`
	Space       string `json:"space"`
	ModifiedBy  string `json:"modified_by"`
	ContentType string `json:"content_type"`
	Status      string `json:"status"`
}

// Upsert indexes or re-indexes one chunk.
func (i *Index) Upsert(ctx context.Context, c chunk.Chunk) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	status, _ := c.Sidecar["status"].(string)
	doc := indexedDoc{
		Text:        c.Text,
		TextRU:      c.Text,
		Space:       c.Space,
		ModifiedBy:  c.ModifiedBy,
		ContentType: string(c.ContentType),
		Status:      status,
	}
	if err := i.index.Index(c.ID, doc); err != nil {
		return fmt.Errorf("indexing chunk %s: %w", c.ID, err)
	}
	i.chunks[c.ID] = c
	return nil
}

// Delete removes chunks from the index.
func (i *Index) Delete(ctx context.Context, chunkIDs []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	batch := i.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
		delete(i.chunks, id)
	}
	return i.index.Batch(batch)
}

// Search runs a BM25 match query over both language fields and returns
// hits tagged SearchTypeSparse. Implements fanout.SparseSearcher.
func (i *Index) Search(ctx context.Context, text string, k int, filters query.Filters) ([]hit.RetrievedHit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	disjunct := bleve.NewDisjunctionQuery(
		fieldMatch(fieldText, text),
		fieldMatch(fieldText+"_ru", text),
	)

	conjuncts := []bleveQuery{disjunct}
	if filters.Space != "" {
		conjuncts = append(conjuncts, termMatch(fieldSpace, filters.Space))
	}
	if filters.Author != "" {
		conjuncts = append(conjuncts, termMatch(fieldAuthor, filters.Author))
	}
	if filters.ContentType != "" {
		conjuncts = append(conjuncts, termMatch(fieldContentType, filters.ContentType))
	}
	if filters.Status != "" {
		conjuncts = append(conjuncts, termMatch(fieldStatus, filters.Status))
	}

	var q bleveQuery = disjunct
	if len(conjuncts) > 1 {
		q = bleve.NewConjunctionQuery(conjuncts...)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = k
	result, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sparse search failed: %w", err)
	}

	out := make([]hit.RetrievedHit, 0, len(result.Hits))
	for _, m := range result.Hits {
		c, ok := i.chunks[m.ID]
		if !ok {
			continue
		}
		out = append(out, hit.RetrievedHit{
			ChunkID:    c.ID,
			Text:       c.Text,
			Chunk:      c,
			Score:      m.Score,
			SearchType: hit.SearchTypeSparse,
		})
	}
	return out, nil
}

// bleveQuery is a local alias avoiding a name clash with the query package
// import while still reading naturally at call sites below.
type bleveQuery = bleve.Query

func fieldMatch(field, text string) bleveQuery {
	q := bleve.NewMatchQuery(text)
	q.SetField(field)
	return q
}

func termMatch(field, value string) bleveQuery {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}
