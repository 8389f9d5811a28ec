// Package embedder implements the §6 internal/embedder.Provider capability:
// turning text into a dense vector, behind typed ollama/openai variants.
// Implementations satisfy fanout.Embedder directly.
//
// Grounded on _examples/kadirpekel-hector/pkg/embedders/ollama.go and
// openai.go (request/response shapes, default-dimension tables, the global
// serialize-Ollama-requests mutex for its llama-runner crash bug).
package embedder

import (
	"context"
	"fmt"
)

// Provider computes dense vectors for text. Embed serves the query path
// (fanout.Embedder); EmbedBatch serves ingestion.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// dimensionDefaults covers the models this module knows about out of the
// box; an explicit Config.Dimension always overrides these.
var dimensionDefaults = map[string]int{
	"nomic-embed-text":       768,
	"bge-small-en-v1.5":      384,
	"bge-large-en-v1.5":      1024,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

func defaultDimension(model string, configured int) int {
	if configured > 0 {
		return configured
	}
	if d, ok := dimensionDefaults[model]; ok {
		return d
	}
	return 768
}

var errEmptyEmbedding = fmt.Errorf("embedder returned an empty vector")
