package embeddings

import "context"

// NoneProvider is configured when embeddings are disabled. Every call
// fails with ErrEmbeddingUnavailable.
type NoneProvider struct{}

// Name implements Provider.
func (NoneProvider) Name() string { return "none" }

// Embed implements Embedder.
func (NoneProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrEmbeddingUnavailable
}

// Dimension implements Provider.
func (NoneProvider) Dimension() int { return 0 }

// Close implements Provider.
func (NoneProvider) Close() error { return nil }

var _ Provider = NoneProvider{}
