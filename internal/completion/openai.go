package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider completes through the OpenAI Chat Completions API or any
// compatible server.
type OpenAIProvider struct {
	client  openai.Client
	model   string
	metrics *Metrics
}

// NewOpenAIProvider creates an OpenAI provider. An API key is required
// unless BaseURL points at a compatible local server.
func NewOpenAIProvider(cfg Config, metrics *Metrics) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: openai: missing api key", ErrInvalidConfig)
	}
	opts := []option.RequestOption{option.WithRequestTimeout(cfg.Timeout)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client:  openai.NewClient(opts...),
		model:   model,
		metrics: metrics,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Close implements Provider.
func (p *OpenAIProvider) Close() error { return nil }

// Complete implements Completer.
func (p *OpenAIProvider) Complete(ctx context.Context, system, user string, opts Options) (text string, err error) {
	start := time.Now()
	defer func() { p.metrics.Record(ctx, p.Name(), p.model, time.Since(start), err) }()

	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(user))

	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: openai: %w", ErrCompletionProvider, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: openai: response has no text", ErrCompletionProvider)
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Provider = (*OpenAIProvider)(nil)
