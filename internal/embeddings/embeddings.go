// Package embeddings turns text into fixed-length vectors through a
// pluggable provider.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmbeddingUnavailable is returned when no embedding provider is
	// configured.
	ErrEmbeddingUnavailable = errors.New("embedding capability unavailable")

	// ErrEmbeddingProvider wraps failures of the underlying provider call:
	// rate limits, network errors, rejected input.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Embedder maps a text to a vector of fixed length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QueryEmbedder is implemented by providers that embed search queries
// differently from stored passages.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder with a known model and lifecycle.
type Provider interface {
	Embedder

	// Name identifies the provider kind.
	Name() string

	// Dimension returns the vector length, or 0 when unknown until the
	// first call.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// EmbedQuery embeds text as a search query, using the query form when the
// embedder offers one.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if e == nil {
		return nil, ErrEmbeddingUnavailable
	}
	if q, ok := e.(QueryEmbedder); ok {
		return q.EmbedQuery(ctx, text)
	}
	return e.Embed(ctx, text)
}
