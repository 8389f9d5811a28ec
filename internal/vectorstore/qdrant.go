package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

// QdrantConfig configures the primary vector-store variant.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

type qdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrant connects to Qdrant and returns the primary Store variant.
func NewQdrant(cfg QdrantConfig) (Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s:%d: %w\n"+
			"  troubleshooting:\n"+
			"    - ensure Qdrant is running and reachable\n"+
			"    - verify host/port configuration\n"+
			"    - for Docker: docker run -p 6333:6333 -p 6334:6334 qdrant/qdrant",
			cfg.Host, cfg.Port, err)
	}

	return &qdrantStore{client: client, collection: cfg.Collection}, nil
}

func (s *qdrantStore) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("checking collection %q: %w", s.collection, err)
	}

	if !exists {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("inspecting collection %q: %w", s.collection, err)
	}
	if params := info.GetConfig().GetParams(); params != nil {
		if vectors := params.GetVectorsConfig().GetParams(); vectors != nil {
			if existing := int(vectors.GetSize()); existing != dimension {
				return &DimensionMismatchError{Configured: dimension, Collection: existing}
			}
		}
	}
	return nil
}

func (s *qdrantStore) Upsert(ctx context.Context, c chunk.Chunk, vector []float32) error {
	payload := chunkToPayload(c)
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(c.ID),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	return err
}

func (s *qdrantStore) Search(ctx context.Context, vector []float32, k int, filters query.Filters) ([]hit.RetrievedHit, error) {
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrantPtrUint64(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qf := buildFilter(filters); qf != nil {
		req.Filter = qf
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search on %q: %w", s.collection, err)
	}

	out := make([]hit.RetrievedHit, 0, len(points))
	for _, p := range points {
		c := payloadToChunk(p.GetId().GetUuid(), p.GetPayload())
		out = append(out, toHit(c, float64(p.GetScore())))
	}
	return out, nil
}

func (s *qdrantStore) Close() error {
	return s.client.Close()
}

func qdrantPtrUint64(v uint64) *uint64 { return &v }

func buildFilter(f query.Filters) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.Space != "" {
		must = append(must, qdrant.NewMatch("space", f.Space))
	}
	if f.Author != "" {
		must = append(must, qdrant.NewMatch("modified_by", f.Author))
	}
	if f.ContentType != "" {
		must = append(must, qdrant.NewMatch("content_type", f.ContentType))
	}
	if f.Status != "" {
		must = append(must, qdrant.NewMatch("status", f.Status))
	}
	if f.DateFrom != nil {
		must = append(must, qdrant.NewRange("modified_unix", &qdrant.Range{
			Gte: floatPtr(float64(f.DateFrom.Unix())),
		}))
	}
	if f.DateTo != nil {
		must = append(must, qdrant.NewRange("modified_unix", &qdrant.Range{
			Lte: floatPtr(float64(f.DateTo.Unix())),
		}))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func floatPtr(v float64) *float64 { return &v }

func chunkToPayload(c chunk.Chunk) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		"chunk_id":        qdrant.NewValueString(c.ID),
		"page_id":         qdrant.NewValueString(c.PageID),
		"chunk_index":     qdrant.NewValueInt(int64(c.Index)),
		"text":            qdrant.NewValueString(c.Text),
		"space":           qdrant.NewValueString(c.Space),
		"page_title":      qdrant.NewValueString(c.PageTitle),
		"page_path":       qdrant.NewValueString(c.PagePath),
		"breadcrumb":      qdrant.NewValueString(c.Breadcrumb),
		"heading":         qdrant.NewValueString(c.Heading),
		"heading_level":   qdrant.NewValueInt(int64(c.HeadingLevel)),
		"content_type":    qdrant.NewValueString(string(c.ContentType)),
		"block_type":      qdrant.NewValueString(string(c.BlockType)),
		"modified_by":     qdrant.NewValueString(c.ModifiedBy),
		"modified_unix":   qdrant.NewValueInt(c.Modified.Unix()),
		"hierarchy_depth": qdrant.NewValueInt(int64(c.HierarchyDepth)),
		"url":             qdrant.NewValueString(c.URL),
	}
	return payload
}

func payloadToChunk(id string, payload map[string]*qdrant.Value) chunk.Chunk {
	get := func(k string) string {
		if v, ok := payload[k]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	getInt := func(k string) int64 {
		if v, ok := payload[k]; ok {
			return v.GetIntegerValue()
		}
		return 0
	}

	return chunk.Chunk{
		ID:             get("chunk_id"),
		PageID:         get("page_id"),
		Index:          int(getInt("chunk_index")),
		Text:           get("text"),
		Space:          get("space"),
		PageTitle:      get("page_title"),
		PagePath:       get("page_path"),
		Breadcrumb:     get("breadcrumb"),
		Heading:        get("heading"),
		HeadingLevel:   int(getInt("heading_level")),
		ContentType:    chunk.ContentType(get("content_type")),
		BlockType:      chunk.BlockType(get("block_type")),
		ModifiedBy:     get("modified_by"),
		Modified:       time.Unix(getInt("modified_unix"), 0).UTC(),
		HierarchyDepth: int(getInt("hierarchy_depth")),
		URL:            get("url"),
	}
}
