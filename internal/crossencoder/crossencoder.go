// Package crossencoder implements the internal/rerank.CrossEncoder
// capability: scoring (query, candidate) pairs with an HTTP-served
// cross-encoder model, invoked synchronously by the reranker (§4.6).
//
// The scoring service itself has no teacher-repo equivalent (the teacher
// reranks with an LLM judge, pkg/rag/reranker.go, not a cross-encoder
// model); the client is grounded on internal/httpclient, the module's own
// adaptation of the teacher's pkg/httpclient retry/backoff wrapper, in the
// same request/response style as internal/embedder and internal/rewriter.
package crossencoder

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

// Config configures the HTTP cross-encoder client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client scores (query, candidate) pairs via a cross-encoder HTTP service.
// Satisfies rerank.CrossEncoder.
type Client struct {
	baseURL string
	client  *httpclient.Client
}

// New constructs a cross-encoder HTTP client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(500*time.Millisecond),
		),
	}
}

type scoreRequest struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// ScoreBatch scores queryText against every candidate text in one request,
// returning scores in the same order as candidateTexts.
func (c *Client) ScoreBatch(ctx context.Context, queryText string, candidateTexts []string) ([]float64, error) {
	if len(candidateTexts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(scoreRequest{Query: queryText, Candidates: candidateTexts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder score request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cross-encoder returned status %d: %s", resp.StatusCode, string(b))
	}

	var parsed scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding cross-encoder response: %w", err)
	}
	if len(parsed.Scores) != len(candidateTexts) {
		return nil, fmt.Errorf("cross-encoder returned %d scores for %d candidates", len(parsed.Scores), len(candidateTexts))
	}
	return parsed.Scores, nil
}
