package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/toolrouter/registry"
	"github.com/jonwraymond/toolrouter/search"
)

type fakeOperations struct {
	hits  []search.OperationHit
	err   error
	limit int
}

func (f *fakeOperations) Search(_ string, limit int) ([]search.OperationHit, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

type fakeServices struct {
	results registry.Results
	err     error
}

func (f *fakeServices) SearchBySimilarity(context.Context, string, int) (registry.Results, error) {
	return f.results, f.err
}

func service(identity string, score float64) registry.SearchResult {
	return registry.SearchResult{Descriptor: registry.Descriptor{Identity: identity}, Score: score}
}

func alpha(v float64) *float64 { return &v }

func TestNewValidates(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Options{Operations: &fakeOperations{}, Alpha: alpha(1.5)})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Options{Operations: &fakeOperations{}, Alpha: alpha(-0.1)})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSearchRejectsBadLimit(t *testing.T) {
	d, err := New(Options{Operations: &fakeOperations{}})
	require.NoError(t, err)
	_, err = d.Search(context.Background(), "x", 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestSearchHybridReordersBySimilarity(t *testing.T) {
	ops := &fakeOperations{hits: []search.OperationHit{
		{Service: "files", Name: "read", Score: 2.0},
		{Service: "weather", Name: "forecast", Score: 1.8},
	}}
	svcs := &fakeServices{results: registry.Results{
		service("weather", 0.9),
		service("files", 0.1),
	}}
	d, err := New(Options{Operations: ops, Services: svcs})
	require.NoError(t, err)

	hits, err := d.Search(context.Background(), "forecast", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, []string{"weather/forecast", "files/read"}, hits.Names())
	assert.Equal(t, ScoreHybrid, hits[0].ScoreType)
	// 0.5 * (1.8/2.0) + 0.5 * 0.9
	assert.InDelta(t, 0.9, hits[0].Score, 1e-9)
	assert.Equal(t, DefaultCandidates, ops.limit)
}

func TestSearchKeywordOnly(t *testing.T) {
	ops := &fakeOperations{hits: []search.OperationHit{
		{Service: "files", Name: "read", Score: 2.0},
		{Service: "weather", Name: "forecast", Score: 1.8},
	}}
	svcs := &fakeServices{results: registry.Results{service("weather", 0.9)}}

	d, err := New(Options{Operations: ops, Services: svcs, Alpha: alpha(1)})
	require.NoError(t, err)
	hits, err := d.Search(context.Background(), "forecast", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"files/read"}, hits.Names())
	assert.Equal(t, ScoreKeyword, hits[0].ScoreType)
	assert.Equal(t, 2.0, hits[0].Score)
}

func TestSearchEmptyQueryLists(t *testing.T) {
	ops := &fakeOperations{hits: []search.OperationHit{{Service: "a", Name: "x"}}}
	d, err := New(Options{Operations: ops, Services: &fakeServices{err: errors.New("unused")}})
	require.NoError(t, err)

	hits, err := d.Search(context.Background(), "  ", 3)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, 3, ops.limit)
}

func TestSearchFallsBackWhenServicesFail(t *testing.T) {
	ops := &fakeOperations{hits: []search.OperationHit{
		{Service: "a", Name: "x", Score: 3},
		{Service: "b", Name: "y", Score: 2},
		{Service: "c", Name: "z", Score: 1},
	}}
	d, err := New(Options{Operations: ops, Services: &fakeServices{err: registry.ErrEmbedding}})
	require.NoError(t, err)

	hits, err := d.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/x", "b/y"}, hits.Names())
	assert.Equal(t, ScoreKeyword, hits[0].ScoreType)
}

func TestSearchPropagatesIndexErrors(t *testing.T) {
	d, err := New(Options{Operations: &fakeOperations{err: errors.New("index closed")}})
	require.NoError(t, err)
	_, err = d.Search(context.Background(), "q", 2)
	assert.Error(t, err)
}

func TestSearchTiesAreDeterministic(t *testing.T) {
	ops := &fakeOperations{hits: []search.OperationHit{
		{Service: "b", Name: "op", Score: 1},
		{Service: "a", Name: "op2", Score: 1},
		{Service: "a", Name: "op1", Score: 1},
	}}
	d, err := New(Options{Operations: ops, Services: &fakeServices{}})
	require.NoError(t, err)

	hits, err := d.Search(context.Background(), "op", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/op1", "a/op2", "b/op"}, hits.Names())
}

func TestSearchWithIndex(t *testing.T) {
	idx, err := search.NewOperationIndex(search.OperationIndexConfig{})
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.IndexService("weather", []byte(`[{"name":"getForecast","description":"weather forecast for a city"}]`)))
	require.NoError(t, idx.IndexService("files", []byte(`[{"name":"readFile","description":"read a file from disk"}]`)))

	d, err := New(Options{Operations: idx})
	require.NoError(t, err)
	hits, err := d.Search(context.Background(), "forecast", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "weather/getForecast", hits.Names()[0])
}
