package rewriter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_SameModelIsError(t *testing.T) {
	err := guard("nomic-embed-text", "nomic-embed-text")
	assert.Error(t, err)
}

func TestGuard_DifferentModelsOK(t *testing.T) {
	assert.NoError(t, guard("llama3", "nomic-embed-text"))
}

func TestGuard_EmptyRewriteModelOK(t *testing.T) {
	assert.NoError(t, guard("", "nomic-embed-text"))
}

func TestClampVariations(t *testing.T) {
	assert.Equal(t, 3, clampVariations(0))
	assert.Equal(t, 2, clampVariations(2))
	assert.Equal(t, 5, clampVariations(8))
}

func TestParseVariants_PlainArray(t *testing.T) {
	v, err := parseVariants(`["how to deploy", "deployment steps"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"how to deploy", "deployment steps"}, v)
}

func TestParseVariants_WrappedInProse(t *testing.T) {
	v, err := parseVariants("Sure, here you go:\n[\"a\", \"b\"]\nHope that helps!")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)
}

func TestParseVariants_NoArrayIsError(t *testing.T) {
	_, err := parseVariants("I don't understand the request.")
	assert.Error(t, err)
}

func TestNewOllama_RejectsSameModel(t *testing.T) {
	_, err := NewOllama(OllamaConfig{Model: "nomic-embed-text", EmbeddingModel: "nomic-embed-text"})
	assert.Error(t, err)
}

func TestOllamaRewriter_RewriteParsesVariants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		resp := map[string]any{
			"message": map[string]any{
				"role":    "assistant",
				"content": `["rollback procedure", "how do I revert a deployment", "undo a release"]`,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	rw, err := NewOllama(OllamaConfig{Host: srv.URL, Model: "llama3", EmbeddingModel: "nomic-embed-text"})
	require.NoError(t, err)

	variants, err := rw.Rewrite(context.Background(), "rollback deployment", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"rollback procedure", "how do I revert a deployment", "undo a release"}, variants)
}

func TestNewOpenAI_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"})
	assert.Error(t, err)
}

func TestNewOpenAI_RejectsSameModel(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{APIKey: "k", Model: "text-embedding-3-small", EmbeddingModel: "text-embedding-3-small"})
	assert.Error(t, err)
}

func TestOpenAIRewriter_RewriteParsesVariants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `["a", "b"]`}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	rw, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"})
	require.NoError(t, err)

	variants, err := rw.Rewrite(context.Background(), "deployment rollback", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, variants)
}

func TestOpenAIRewriter_NoChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{}})
	}))
	defer srv.Close()

	rw, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"})
	require.NoError(t, err)

	_, err = rw.Rewrite(context.Background(), "q", 3)
	assert.Error(t, err)
}
