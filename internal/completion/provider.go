package completion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Provider kinds.
const (
	KindAnthropic = "anthropic"
	KindOpenAI    = "openai"
	KindGemini    = "gemini"
	KindNone      = "none"
)

// DefaultMaxTokens is used when a caller leaves MaxTokens unset and the
// provider requires a limit.
const DefaultMaxTokens = 1024

// Config selects and configures a completion provider.
type Config struct {
	// Provider is one of anthropic, openai, gemini or none.
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NoneProvider is configured when generation is disabled.
type NoneProvider struct{}

// Name implements Provider.
func (NoneProvider) Name() string { return "none" }

// Complete returns ErrCompletionUnavailable.
func (NoneProvider) Complete(context.Context, string, string, Options) (string, error) {
	return "", ErrCompletionUnavailable
}

// Close implements Provider.
func (NoneProvider) Close() error { return nil }

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(ctx context.Context, cfg Config, logger *zap.Logger) (Provider, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	metrics := NewMetrics(logger)

	switch cfg.Provider {
	case KindAnthropic:
		p, err := NewAnthropicProvider(cfg, metrics)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindOpenAI:
		p, err := NewOpenAIProvider(cfg, metrics)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindGemini:
		p, err := NewGeminiProvider(ctx, cfg, metrics)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindNone, "":
		return NoneProvider{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

var _ Provider = NoneProvider{}
