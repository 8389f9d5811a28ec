package structural

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veyron-labs/wikiq/internal/chunk"
	"github.com/veyron-labs/wikiq/internal/query"
)

type fakeStore struct {
	chunks []chunk.Chunk
	err    error
}

func (f *fakeStore) ChunksByPath(ctx context.Context, parts []string, filters query.Filters) ([]chunk.Chunk, error) {
	return f.chunks, f.err
}

func TestSearch_NonStructuralReturnsNil(t *testing.T) {
	s := New(&fakeStore{})
	out, err := s.Search(context.Background(), query.Structure{}, query.Filters{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestSearch_ScoresOrderedPathHigherThanUnordered(t *testing.T) {
	store := &fakeStore{chunks: []chunk.Chunk{
		{ID: "ordered", PagePath: "Infra > Deployment > Runbooks"},
		{ID: "unordered", PagePath: "Runbooks > Infra > Deployment"},
	}}
	s := New(store)
	structure := query.Structure{IsStructural: true, Parts: []string{"infra", "deployment", "runbooks"}}

	out, err := s.Search(context.Background(), structure, query.Filters{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "ordered", out[0].ChunkID)
	assert.Greater(t, out[0].Score, out[1].Score)
}

func TestSearch_TagsHitsAsStructural(t *testing.T) {
	store := &fakeStore{chunks: []chunk.Chunk{{ID: "a", PagePath: "Infra > Deploy"}}}
	s := New(store)
	structure := query.Structure{IsStructural: true, Parts: []string{"infra", "deploy"}}

	out, err := s.Search(context.Background(), structure, query.Filters{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "structural", string(out[0].SearchType))
}

func TestSearch_EmptyResultAllowsCallerFallback(t *testing.T) {
	store := &fakeStore{chunks: nil}
	s := New(store)
	structure := query.Structure{IsStructural: true, Parts: []string{"nonexistent"}}

	out, err := s.Search(context.Background(), structure, query.Filters{})
	require.NoError(t, err)
	assert.Empty(t, out)
}
