package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veyron-labs/wikiq/internal/httpclient"
	"github.com/veyron-labs/wikiq/internal/retry"
)

// OpenAIConfig configures the OpenAI-compatible embedding variant (also
// used for any OpenAI-API-compatible embedding server).
type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

type openaiEmbedder struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *httpclient.Client
	retryer   *retry.Retryer
}

// NewOpenAI constructs the OpenAI embedding variant.
func NewOpenAI(cfg OpenAIConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for the OpenAI embedder")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &openaiEmbedder{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		model:     model,
		dimension: defaultDimension(model, cfg.Dimension),
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(time.Second),
		),
		retryer: retry.New(retry.DefaultConfig()),
	}, nil
}

type openaiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *openaiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return retry.DoWithResult(ctx, e.retryer, "openai_embed_batch", func() ([][]float32, error) {
		return e.embed(ctx, texts)
	})
}

func (e *openaiEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openaiEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai embed returned status %d: %s", resp.StatusCode, string(b))
	}

	var parsed openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding openai embed response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, errEmptyEmbedding
	}

	out := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (e *openaiEmbedder) Dimension() int    { return e.dimension }
func (e *openaiEmbedder) ModelName() string { return e.model }
