package completion

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider completes through the Google Gemini API.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	metrics *Metrics
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(ctx context.Context, cfg Config, metrics *Metrics) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini: missing api key", ErrInvalidConfig)
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPOptions.Timeout = &cfg.Timeout
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model, metrics: metrics}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Close implements Provider.
func (p *GeminiProvider) Close() error { return nil }

// Complete implements Completer.
func (p *GeminiProvider) Complete(ctx context.Context, system, user string, opts Options) (text string, err error) {
	start := time.Now()
	defer func() { p.metrics.Record(ctx, p.Name(), p.model, time.Since(start), err) }()

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if opts.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(user), cfg)
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %w", ErrCompletionProvider, err)
	}
	text = resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: gemini: response has no text", ErrCompletionProvider)
	}
	return text, nil
}

var _ Provider = (*GeminiProvider)(nil)
