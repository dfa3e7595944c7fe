package embeddings

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Provider kinds.
const (
	KindOpenAI    = "openai"
	KindTEI       = "tei"
	KindFastEmbed = "fastembed"
	KindNone      = "none"
)

// ProviderConfig selects and configures an embedding provider.
type ProviderConfig struct {
	// Provider is one of openai, tei, fastembed or none.
	Provider string

	Model   string
	BaseURL string
	APIKey  string

	// Dimension overrides the model's default vector length.
	Dimension int

	// CacheDir is the model cache directory (fastembed only).
	CacheDir string

	MaxRetries int
	Timeout    time.Duration
}

// fastEmbedModelDimension returns dimensions for known local models.
func fastEmbedModelDimension(model string) (int, bool) {
	dims := map[string]int{
		"BAAI/bge-small-en-v1.5":                 384,
		"BAAI/bge-small-en":                      384,
		"BAAI/bge-base-en-v1.5":                  768,
		"BAAI/bge-base-en":                       768,
		"BAAI/bge-small-zh-v1.5":                 512,
		"sentence-transformers/all-MiniLM-L6-v2": 384,
	}
	dim, ok := dims[model]
	return dim, ok
}

// knownModelDimension returns the vector length of a model listed above or
// an OpenAI model, and 0 for anything else.
func knownModelDimension(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	return openAIModelDimension(model)
}

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	metrics := NewMetrics(logger)

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case KindOpenAI:
		p, err = wrap(NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimension:  cfg.Dimension,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}, metrics))
	case KindTEI:
		p, err = wrap(NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
			Retry:     RetryConfig{MaxRetries: cfg.MaxRetries},
		}, metrics))
	case KindFastEmbed:
		p, err = wrap(NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		}, metrics))
	case KindNone, "":
		p = NoneProvider{}
	default:
		err = fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// wrap drops typed nil pointers so a failed constructor never yields a
// non-nil Provider.
func wrap[P Provider](p P, err error) (Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
