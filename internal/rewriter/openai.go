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

// OpenAIConfig configures the OpenAI-compatible chat rewriter variant (also
// suitable for any OpenAI-API-compatible chat-completions server).
type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string // must differ from Model; enforced in NewOpenAI
	Temperature    float64
	Timeout        time.Duration
}

type openaiRewriter struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *httpclient.Client
}

// NewOpenAI constructs the openai-compatible rewriter variant.
func NewOpenAI(cfg OpenAIConfig) (*openaiRewriter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for the openai-compatible rewriter")
	}
	if err := guard(cfg.Model, cfg.EmbeddingModel); err != nil {
		return nil, err
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = 0.7
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &openaiRewriter{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: temp,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(time.Second),
		),
	}, nil
}

type openaiChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openaiChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message openaiChatMessage `json:"message"`
	} `json:"choices"`
}

// Rewrite asks the chat-completions endpoint for n alternate phrasings of
// queryText and returns them, parsed out of the model's JSON-array reply.
func (r *openaiRewriter) Rewrite(ctx context.Context, queryText string, n int) ([]string, error) {
	return r.rewriteOnce(ctx, queryText, clampVariations(n))
}

func (r *openaiRewriter) rewriteOnce(ctx context.Context, queryText string, n int) ([]string, error) {
	reqBody := openaiChatRequest{
		Model: r.model,
		Messages: []openaiChatMessage{
			{Role: "user", Content: buildPrompt(queryText, n)},
		},
		Temperature: r.temperature,
		MaxTokens:   200,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai rewrite request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai rewrite returned status %d: %s", resp.StatusCode, string(b))
	}

	var parsed openaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding openai rewrite response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai rewrite returned no choices")
	}

	variants, err := parseVariants(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return variants, nil
}
