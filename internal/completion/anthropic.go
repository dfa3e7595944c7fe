package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicProvider completes through the Anthropic Messages API.
type AnthropicProvider struct {
	client  anthropicsdk.Client
	model   string
	metrics *Metrics
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg Config, metrics *Metrics) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic: missing api key", ErrInvalidConfig)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicProvider{
		client:  anthropicsdk.NewClient(opts...),
		model:   model,
		metrics: metrics,
	}, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Close implements Provider.
func (p *AnthropicProvider) Close() error { return nil }

// Complete implements Completer.
func (p *AnthropicProvider) Complete(ctx context.Context, system, user string, opts Options) (text string, err error) {
	start := time.Now()
	defer func() { p.metrics.Record(ctx, p.Name(), p.model, time.Since(start), err) }()

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(p.model),
		MaxTokens: maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	if opts.Temperature != nil {
		params.Temperature = anthropicsdk.Float(*opts.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: anthropic: %w", ErrCompletionProvider, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: anthropic: response has no text", ErrCompletionProvider)
	}
	return sb.String(), nil
}

var _ Provider = (*AnthropicProvider)(nil)
