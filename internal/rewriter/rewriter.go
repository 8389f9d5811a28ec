// Package rewriter implements the §6 internal/rewriter.LLM capability: the
// Query Expander's "LLM rewrite" source (§4.2), an LLM asked to produce
// alternate phrasings of a query. Two variants, ollama and an
// openai-compatible chat endpoint, both satisfy expansion.Rewriter.
//
// Grounded on _examples/kadirpekel-hector/pkg/rag/query_expansion.go's
// LLMQueryExpander (prompt shape, numVariations clamp, JSON-array parsing
// of the response) and pkg/model/ollama's /api/chat request shape,
// stripped of the a2a.Message wrapper this module doesn't use.
package rewriter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// guard enforces the §6 invariant that a rewriter's model must differ from
// the embedding model it shares a deployment with: an LLM rewriting into
// its own embedding space tends to produce variants that collapse back to
// the original under cosine similarity, defeating the point of expansion.
func guard(rewriteModel, embeddingModel string) error {
	if rewriteModel != "" && rewriteModel == embeddingModel {
		return fmt.Errorf("rewriter model %q must differ from the embedding model", rewriteModel)
	}
	return nil
}

const promptTemplate = `Generate %d different query variations for the following search query. Each variation should:
1. Use different wording or phrasing
2. Focus on different aspects or perspectives
3. Be semantically similar but not identical
4. Be suitable for document retrieval

Original query: %s

Return only a JSON array of query strings, nothing else.
Example: ["query 1", "query 2", "query 3"]`

func buildPrompt(queryText string, n int) string {
	return fmt.Sprintf(promptTemplate, n, sanitize(queryText))
}

// sanitize strips characters that could break out of the prompt's
// single-line "Original query: " context.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}

// clampVariations mirrors the teacher's numVariations clamp: default 3,
// capped at 5 to bound LLM cost.
func clampVariations(n int) int {
	if n <= 0 {
		return 3
	}
	if n > 5 {
		return 5
	}
	return n
}

// parseVariants extracts a JSON array of strings from raw model output,
// tolerating a model that wraps the array in prose or code fences.
func parseVariants(raw string) ([]string, error) {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in rewrite response")
	}

	var variants []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &variants); err != nil {
		return nil, fmt.Errorf("parsing rewrite response: %w", err)
	}

	out := make([]string, 0, len(variants))
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}
