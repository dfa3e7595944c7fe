package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures the OpenAI embeddings provider. BaseURL points
// it at any OpenAI-compatible server.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string

	// Model defaults to text-embedding-3-small.
	Model string

	// Dimension requests shortened vectors from text-embedding-3 models.
	Dimension int

	Timeout    time.Duration
	MaxRetries int
}

// Validate validates the configuration.
func (c OpenAIConfig) Validate() error {
	if c.APIKey == "" && c.BaseURL == "" {
		return fmt.Errorf("%w: openai api key required", ErrInvalidConfig)
	}
	return nil
}

// OpenAIProvider embeds through the OpenAI embeddings API.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
	metrics   *Metrics
}

// NewOpenAIProvider creates an OpenAI embeddings provider.
func NewOpenAIProvider(cfg OpenAIConfig, metrics *Metrics) (*OpenAIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	opts := []option.RequestOption{
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = openAIModelDimension(cfg.Model)
	}
	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: dim,
		metrics:   metrics,
	}, nil
}

func openAIModelDimension(model string) int {
	switch model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	}
	return 0
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Dimension implements Provider.
func (p *OpenAIProvider) Dimension() int { return p.dimension }

// Close implements Provider.
func (p *OpenAIProvider) Close() error { return nil }

// Embed implements Embedder. The SDK retries 429 and 5xx responses itself.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (vec []float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.Name(), p.model, "embed", time.Since(start), utf8.RuneCountInString(text), err)
	}()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingProvider, ErrEmptyInput)
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.dimension > 0 && strings.HasPrefix(p.model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(p.dimension))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %w", ErrEmbeddingProvider, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: openai: empty response", ErrEmbeddingProvider)
	}

	raw := resp.Data[0].Embedding
	vec = make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

var _ Provider = (*OpenAIProvider)(nil)
