package crossencoder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreBatch_ReturnsScoresInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/score", r.URL.Path)
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rollback deployment", req.Query)
		assert.Len(t, req.Candidates, 2)
		json.NewEncoder(w).Encode(scoreResponse{Scores: []float64{0.9, 0.2}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	scores, err := c.ScoreBatch(context.Background(), "rollback deployment", []string{"doc a", "doc b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.2}, scores)
}

func TestScoreBatch_EmptyCandidatesReturnsNil(t *testing.T) {
	c := New(Config{BaseURL: "http://unused"})
	scores, err := c.ScoreBatch(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Nil(t, scores)
}

func TestScoreBatch_MismatchedScoreCountIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scoreResponse{Scores: []float64{0.9}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.ScoreBatch(context.Background(), "q", []string{"a", "b"})
	assert.Error(t, err)
}

func TestScoreBatch_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.ScoreBatch(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
}
