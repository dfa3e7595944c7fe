package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ProviderConfig
		wantName string
		wantErr  error
	}{
		{"none", ProviderConfig{Provider: KindNone}, "none", nil},
		{"empty means none", ProviderConfig{}, "none", nil},
		{"tei", ProviderConfig{Provider: KindTEI, BaseURL: "http://localhost:8080"}, "tei", nil},
		{"tei without url", ProviderConfig{Provider: KindTEI}, "", ErrInvalidConfig},
		{"openai", ProviderConfig{Provider: KindOpenAI, APIKey: "sk"}, "openai", nil},
		{"unknown", ProviderConfig{Provider: "word2vec"}, "", ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg, nil)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
			assert.NoError(t, p.Close())
		})
	}
}

func TestNoneProvider(t *testing.T) {
	_, err := NoneProvider{}.Embed(context.Background(), "x")
	require.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

type queryAware struct{}

func (queryAware) Embed(context.Context, string) ([]float32, error)      { return []float32{1}, nil }
func (queryAware) EmbedQuery(context.Context, string) ([]float32, error) { return []float32{2}, nil }

type passageOnly struct{}

func (passageOnly) Embed(context.Context, string) ([]float32, error) { return []float32{3}, nil }

func TestEmbedQuery(t *testing.T) {
	ctx := context.Background()

	vec, err := EmbedQuery(ctx, queryAware{}, "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, vec)

	vec, err = EmbedQuery(ctx, passageOnly{}, "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, vec)

	_, err = EmbedQuery(ctx, nil, "q")
	require.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestKnownModelDimension(t *testing.T) {
	assert.Equal(t, 384, knownModelDimension("BAAI/bge-small-en-v1.5"))
	assert.Equal(t, 3072, knownModelDimension("text-embedding-3-large"))
	assert.Zero(t, knownModelDimension("BAAI/bge-m3"))
	assert.Zero(t, knownModelDimension("e5-large"))
}
