package rewriter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veyron-labs/wikiq/internal/httpclient"
)

// OllamaConfig configures the Ollama chat-based rewriter variant.
type OllamaConfig struct {
	Host           string
	Model          string
	EmbeddingModel string // must differ from Model; enforced in NewOllama
	Temperature    float64
	Timeout        time.Duration
}

type ollamaRewriter struct {
	host        string
	model       string
	temperature float64
	client      *httpclient.Client
}

// NewOllama constructs the Ollama rewriter variant. Returns an error if
// Model equals EmbeddingModel, per the §6 model-separation guard.
func NewOllama(cfg OllamaConfig) (*ollamaRewriter, error) {
	if err := guard(cfg.Model, cfg.EmbeddingModel); err != nil {
		return nil, err
	}
	host := cfg.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = 0.7
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ollamaRewriter{
		host:        host,
		model:       cfg.Model,
		temperature: temp,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(time.Second),
		),
	}, nil
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaChatOptions   `json:"options"`
}

type ollamaChatOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}

// Rewrite asks Ollama's /api/chat endpoint for n alternate phrasings of
// queryText and returns them, parsed out of the model's JSON-array reply.
func (r *ollamaRewriter) Rewrite(ctx context.Context, queryText string, n int) ([]string, error) {
	return r.rewriteOnce(ctx, queryText, clampVariations(n))
}

func (r *ollamaRewriter) rewriteOnce(ctx context.Context, queryText string, n int) ([]string, error) {
	reqBody := ollamaChatRequest{
		Model: r.model,
		Messages: []ollamaChatMessage{
			{Role: "user", Content: buildPrompt(queryText, n)},
		},
		Stream:  false,
		Options: ollamaChatOptions{Temperature: r.temperature},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama rewrite request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama rewrite returned status %d: %s", resp.StatusCode, string(b))
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding ollama rewrite response: %w", err)
	}

	variants, err := parseVariants(parsed.Message.Content)
	if err != nil {
		return nil, err
	}
	return variants, nil
}
