package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

// ChromaConfig configures the secondary vector-store variant. Chroma has
// no typed Go client in this codebase's dependency graph; like the
// teacher's chroma.go, this is a thin net/http REST client.
type ChromaConfig struct {
	BaseURL    string
	Collection string
}

type chromaStore struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func NewChroma(cfg ChromaConfig) Store {
	return &chromaStore{
		baseURL:    cfg.BaseURL,
		collection: cfg.Collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type chromaQueryRequest struct {
	QueryEmbeddings [][]float32    `json:"query_embeddings"`
	NResults        int            `json:"n_results"`
	Where           map[string]any `json:"where,omitempty"`
}

type chromaQueryResponse struct {
	IDs       [][]string       `json:"ids"`
	Documents [][]string       `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64      `json:"distances"`
}

func (s *chromaStore) Search(ctx context.Context, vector []float32, k int, filters query.Filters) ([]hit.RetrievedHit, error) {
	reqBody := chromaQueryRequest{
		QueryEmbeddings: [][]float32{vector},
		NResults:        k,
		Where:           chromaWhere(filters),
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/collections/%s/query", s.baseURL, s.collection)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chroma query at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chroma query at %s: unexpected status %d", url, resp.StatusCode)
	}

	var parsed chromaQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding chroma response: %w", err)
	}
	if len(parsed.IDs) == 0 {
		return nil, nil
	}

	ids := parsed.IDs[0]
	docs := parsed.Documents[0]
	metas := parsed.Metadatas[0]
	dists := parsed.Distances[0]

	out := make([]hit.RetrievedHit, 0, len(ids))
	for i := range ids {
		c := metadataToChunk(ids[i], docs[i], metas[i])
		// Chroma reports a distance; cosine similarity is 1 - distance.
		out = append(out, toHit(c, 1-dists[i]))
	}
	return out, nil
}

func chromaWhere(f query.Filters) map[string]any {
	where := map[string]any{}
	if f.Space != "" {
		where["space"] = f.Space
	}
	if f.Author != "" {
		where["modified_by"] = f.Author
	}
	if f.ContentType != "" {
		where["content_type"] = f.ContentType
	}
	if f.Status != "" {
		where["status"] = f.Status
	}
	if len(where) == 0 {
		return nil
	}
	return where
}

func metadataToChunk(id, text string, meta map[string]any) chunk.Chunk {
	getStr := func(k string) string {
		if v, ok := meta[k].(string); ok {
			return v
		}
		return ""
	}
	getInt := func(k string) int {
		if v, ok := meta[k].(float64); ok {
			return int(v)
		}
		return 0
	}

	return chunk.Chunk{
		ID:           id,
		PageID:       getStr("page_id"),
		Index:        getInt("chunk_index"),
		Text:         text,
		Space:        getStr("space"),
		PageTitle:    getStr("page_title"),
		PagePath:     getStr("page_path"),
		Breadcrumb:   getStr("breadcrumb"),
		Heading:      getStr("heading"),
		HeadingLevel: getInt("heading_level"),
		ContentType:  chunk.ContentType(getStr("content_type")),
		BlockType:    chunk.BlockType(getStr("block_type")),
		ModifiedBy:   getStr("modified_by"),
		URL:          getStr("url"),
	}
}

func (s *chromaStore) EnsureCollection(ctx context.Context, dimension int) error {
	url := fmt.Sprintf("%s/api/v1/collections", s.baseURL)
	body, _ := json.Marshal(map[string]any{"name": s.collection, "get_or_create": true})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chroma ensure-collection at %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chroma ensure-collection at %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}

func (s *chromaStore) Upsert(ctx context.Context, c chunk.Chunk, vector []float32) error {
	url := fmt.Sprintf("%s/api/v1/collections/%s/upsert", s.baseURL, s.collection)
	payload := map[string]any{
		"ids":        []string{c.ID},
		"embeddings": [][]float32{vector},
		"documents":  []string{c.Text},
		"metadatas": []map[string]any{{
			"page_id":       c.PageID,
			"chunk_index":   c.Index,
			"space":         c.Space,
			"page_title":    c.PageTitle,
			"page_path":     c.PagePath,
			"breadcrumb":    c.Breadcrumb,
			"heading":       c.Heading,
			"heading_level": c.HeadingLevel,
			"content_type":  string(c.ContentType),
			"block_type":    string(c.BlockType),
			"modified_by":   c.ModifiedBy,
			"url":           c.URL,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chroma upsert at %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chroma upsert at %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}

func (s *chromaStore) Close() error {
	return nil
}
