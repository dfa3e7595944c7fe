package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestNewTEIProvider(t *testing.T) {
	_, err := NewTEIProvider(TEIConfig{}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewTEIProvider(TEIConfig{BaseURL: "http://localhost:8080", Model: "BAAI/bge-base-en-v1.5"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 768, p.Dimension())
	assert.Equal(t, "tei", p.Name())
}

func TestTEIProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello world", req.Inputs)
		assert.True(t, req.Truncate)

		_ = json.NewEncoder(w).Encode([][]float32{{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL, APIKey: "secret", Retry: fastRetry()}, NewMetrics(nil))
	require.NoError(t, err)

	vec, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestTEIProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([][]float32{{1}})
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL, Retry: fastRetry()}, nil)
	require.NoError(t, err)

	vec, err := p.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTEIProvider_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL, Retry: fastRetry()}, nil)
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrEmbeddingProvider)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTEIProvider_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "input too long", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL, Retry: fastRetry()}, nil)
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrEmbeddingProvider)
	assert.Contains(t, err.Error(), "input too long")
	assert.Equal(t, int32(1), calls.Load())
}

func TestTEIProvider_EmptyInput(t *testing.T) {
	p, err := NewTEIProvider(TEIConfig{BaseURL: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmbeddingProvider)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestTEIProvider_LearnsUnknownDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{make([]float32, 1024)})
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL, Model: "BAAI/bge-m3", Retry: fastRetry()}, nil)
	require.NoError(t, err)
	assert.Zero(t, p.Dimension(), "unknown model has no dimension before the first call")

	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 1024)
	assert.Equal(t, 1024, p.Dimension())
}

func TestTEIProvider_ConfiguredDimension(t *testing.T) {
	p, err := NewTEIProvider(TEIConfig{BaseURL: "http://localhost:8080", Model: "BAAI/bge-m3", Dimension: 1024}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1024, p.Dimension())
}
