package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// TEIConfig configures a HuggingFace Text Embeddings Inference provider.
type TEIConfig struct {
	// BaseURL is the TEI server, e.g. http://localhost:8080.
	BaseURL string

	// Model is reported in metrics. Well-known models also fix the
	// dimension up front.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Dimension pins the vector length. Zero means the first response
	// decides.
	Dimension int

	Timeout time.Duration
	Retry   RetryConfig
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// teiRequest is the request body for the TEI /embed endpoint.
type teiRequest struct {
	Inputs   any  `json:"inputs"`
	Truncate bool `json:"truncate"`
}

// TEIProvider calls the native TEI /embed endpoint.
type TEIProvider struct {
	config    TEIConfig
	client    *http.Client
	metrics   *Metrics
	dimension atomic.Int64
}

// NewTEIProvider creates a TEI provider.
func NewTEIProvider(config TEIConfig, metrics *Metrics) (*TEIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	config.Retry.ApplyDefaults()
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	dim := config.Dimension
	if dim == 0 {
		dim = knownModelDimension(config.Model)
	}
	p := &TEIProvider{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		metrics: metrics,
	}
	p.dimension.Store(int64(dim))
	return p, nil
}

// Name implements Provider.
func (p *TEIProvider) Name() string { return "tei" }

// Dimension implements Provider. It is 0 for an unknown model until the
// first successful Embed.
func (p *TEIProvider) Dimension() int { return int(p.dimension.Load()) }

// Close implements Provider.
func (p *TEIProvider) Close() error { return nil }

// Embed implements Embedder.
func (p *TEIProvider) Embed(ctx context.Context, text string) (vec []float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.Name(), p.config.Model, "embed", time.Since(start), utf8.RuneCountInString(text), err)
	}()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingProvider, ErrEmptyInput)
	}

	body, err := json.Marshal(teiRequest{Inputs: text, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	vectors, err := withRetry(ctx, p.config.Retry, func() ([][]float32, error) {
		return p.post(ctx, body)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: tei: %w", ErrEmbeddingProvider, err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: tei: empty response", ErrEmbeddingProvider)
	}
	p.dimension.CompareAndSwap(0, int64(len(vectors[0])))
	return vectors[0], nil
}

func (p *TEIProvider) post(ctx context.Context, body []byte) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.config.BaseURL, "/")+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newStatusError(resp, respBody)
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return vectors, nil
}

var _ Provider = (*TEIProvider)(nil)
