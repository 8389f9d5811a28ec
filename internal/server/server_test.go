package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veyron-labs/wikiq/internal/pipeline"
)

type fakeQuerier struct {
	report string
	err    error
	gotReq pipeline.Request
}

func (f *fakeQuerier) Query(ctx context.Context, req pipeline.Request) (string, error) {
	f.gotReq = req
	return f.report, f.err
}

func TestHandleSearch_ReturnsReport(t *testing.T) {
	q := &fakeQuerier{report: "Search Results: 3 hits"}
	s := New(Config{}, q, nil)

	body, _ := json.Marshal(map[string]any{"query": "how to configure X", "space": "RAUII", "limit": 5})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Search Results: 3 hits", resp.Report)
	assert.Equal(t, "how to configure X", q.gotReq.QueryText)
	assert.Equal(t, "RAUII", q.gotReq.Space)
	assert.Equal(t, 5, q.gotReq.Limit)
}

func TestHandleSearch_RejectsEmptyQuery(t *testing.T) {
	q := &fakeQuerier{}
	s := New(Config{}, q, nil)

	body, _ := json.Marshal(map[string]any{"query": ""})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch_RejectsMalformedJSON(t *testing.T) {
	q := &fakeQuerier{}
	s := New(Config{}, q, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch_UpstreamErrorReturns503(t *testing.T) {
	q := &fakeQuerier{err: errors.New("vector store unreachable")}
	s := New(Config{}, q, nil)

	body, _ := json.Marshal(map[string]any{"query": "anything"})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	s := New(Config{}, &fakeQuerier{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsEndpointAbsentWhenMetricsDisabled(t *testing.T) {
	s := New(Config{}, &fakeQuerier{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := New(Config{}, &fakeQuerier{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/search", nil)
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDMiddleware_SetsUniqueHeaderPerRequest(t *testing.T) {
	s := New(Config{}, &fakeQuerier{report: "ok"}, nil)

	do := func() string {
		body, _ := json.Marshal(map[string]any{"query": "x"})
		req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		s.router().ServeHTTP(rec, req)
		return rec.Header().Get("X-Request-Id")
	}

	first, second := do(), do()
	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
}
