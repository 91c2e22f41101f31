package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/toolrouter/retry"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHash_DeterministicAndSimilar(t *testing.T) {
	h := NewHash(256)
	ctx := context.Background()

	a1, err := h.Embed(ctx, "weather lookup")
	require.NoError(t, err)
	a2, err := h.Embed(ctx, "Weather   lookup!")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Len(t, a1, 256)

	q, err := h.Embed(ctx, "weather")
	require.NoError(t, err)
	unrelated, err := h.Embed(ctx, "kubernetes cluster deployment")
	require.NoError(t, err)

	assert.Greater(t, cosine(q, a1), cosine(q, unrelated))
}

func TestHash_EmptyInput(t *testing.T) {
	_, err := NewHash(16).Embed(context.Background(), "  ...  ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAI_Embed(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	e := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "secret", Dimension: 3})
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, []string{"hello"}, got.Input)
	require.NotNil(t, got.Dimensions)
	assert.Equal(t, 3, *got.Dimensions)
}

func TestOpenAI_OmitsDimensionsForLegacyModels(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1, 0}}},
		})
	}))
	defer srv.Close()

	e := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Model: "text-embedding-ada-002", Dimension: 2})
	_, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	_, present := raw["dimensions"]
	assert.False(t, present)
}

func TestOpenAI_Failures(t *testing.T) {
	t.Run("status error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
		}))
		defer srv.Close()

		_, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).Embed(context.Background(), "x")
		require.ErrorIs(t, err, ErrProvider)
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
		assert.Contains(t, err.Error(), "invalid api key")
		assert.False(t, statusErr.Retryable())
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2]}]}`))
		}))
		defer srv.Close()

		_, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Dimension: 4}).Embed(context.Background(), "x")
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("empty data", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer srv.Close()

		_, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).Embed(context.Background(), "x")
		assert.ErrorIs(t, err, ErrProvider)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := NewOpenAI(OpenAIConfig{BaseURL: "http://127.0.0.1:1"}).Embed(context.Background(), " ")
		assert.ErrorIs(t, err, ErrEmptyInput)
	})
}

func TestWithRetry(t *testing.T) {
	policy := retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
		}))
		defer srv.Close()

		p := WithRetry(NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Dimension: 2}), policy, nil)
		vec, err := p.Embed(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0}, vec)
		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, 2, p.Dimension())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		p := WithRetry(NewOpenAI(OpenAIConfig{BaseURL: srv.URL}), policy, nil)
		_, err := p.Embed(context.Background(), "x")
		require.ErrorIs(t, err, ErrProvider)
		assert.Equal(t, int32(1), calls.Load())
	})
}
