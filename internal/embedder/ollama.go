package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/veyron-labs/wikiq/internal/httpclient"
	"github.com/veyron-labs/wikiq/internal/retry"
)

// ollamaEmbedMu serializes every Ollama embedding request across the whole
// process: Ollama's llama runner crashes with SIGABRT ("decode: cannot
// decode batches with this context") when it receives concurrent embedding
// requests on the same model.
var ollamaEmbedMu sync.Mutex

// OllamaConfig configures the Ollama embedding variant.
type OllamaConfig struct {
	Host      string
	Model     string
	Dimension int
	Timeout   time.Duration
}

type ollamaEmbedder struct {
	host      string
	model     string
	dimension int
	client    *httpclient.Client
	retryer   *retry.Retryer
}

// NewOllama constructs the Ollama embedding variant.
func NewOllama(cfg OllamaConfig) Provider {
	host := cfg.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ollamaEmbedder{
		host:      host,
		model:     cfg.Model,
		dimension: defaultDimension(cfg.Model, cfg.Dimension),
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(time.Second),
		),
		retryer: retry.New(retry.DefaultConfig()),
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return retry.DoWithResult(ctx, e.retryer, "ollama_embed", func() ([]float32, error) {
		return e.embedOnce(ctx, text)
	})
}

func (e *ollamaEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	slog.Debug("ollama embedding request", "model", e.model, "text_length", len(text))

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embed returned status %d: %s", resp.StatusCode, string(b))
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding ollama embed response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, errEmptyEmbedding
	}
	return parsed.Embedding, nil
}

// EmbedBatch serializes through the same mutex, one request per text,
// since Ollama's embeddings endpoint has no batch form.
func (e *ollamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embedding batch item %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (e *ollamaEmbedder) Dimension() int    { return e.dimension }
func (e *ollamaEmbedder) ModelName() string { return e.model }
