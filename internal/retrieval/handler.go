// Package retrieval answers questions from stored document chunks.
//
// A Handler embeds the question, retrieves the nearest chunks, builds a
// grounded prompt and hands it to a completion provider. Generation
// failures are reported in the Result rather than returned as errors so
// callers can always show the user something.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/completion"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Query defaults.
const (
	DefaultTopK          = 5
	DefaultTemperature   = 0.3
	DefaultMaxTokens     = 1024
	DefaultPreviewLength = 200
)

// NoDocumentsMessage is returned when retrieval finds nothing relevant.
const NoDocumentsMessage = "no relevant documents found"

// ErrEmptyQuery is returned for blank questions.
var ErrEmptyQuery = errors.New("query text is required")

var tracer = otel.Tracer("ragd.retrieval")

// Options tune a single query. Zero values take the handler defaults.
type Options struct {
	TopK         int      `json:"top_k,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	ExtraContext string   `json:"extra_context,omitempty"`
}

// Source describes one retrieved chunk in a Result.
type Source struct {
	ID       string         `json:"id"`
	Source   string         `json:"source"`
	Preview  string         `json:"preview"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Result is the outcome of a query.
type Result struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Sources []Source `json:"sources"`
}

// Handler runs grounded queries.
type Handler struct {
	embedder  embeddings.Embedder
	store     vectorstore.Searcher
	completer completion.Completer
	logger    *zap.Logger

	topK        int
	temperature float64
	maxTokens   int
	previewLen  int
	minScore    float32
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// WithDefaults overrides the default topK, temperature and maxTokens.
// Non-positive values are ignored, except temperature which may be 0.
func WithDefaults(topK int, temperature float64, maxTokens int) HandlerOption {
	return func(h *Handler) {
		if topK > 0 {
			h.topK = topK
		}
		if temperature >= 0 {
			h.temperature = temperature
		}
		if maxTokens > 0 {
			h.maxTokens = maxTokens
		}
	}
}

// WithPreviewLength sets the number of runes shown per source.
func WithPreviewLength(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.previewLen = n
		}
	}
}

// WithMinScore drops chunks scoring at or below threshold. The default of 0
// keeps only chunks with some positive similarity.
func WithMinScore(threshold float32) HandlerOption {
	return func(h *Handler) { h.minScore = threshold }
}

// NewHandler builds a Handler. embedder and completer may be nil; queries
// then fail with ErrEmbeddingUnavailable or report generation as
// unavailable.
func NewHandler(embedder embeddings.Embedder, store vectorstore.Searcher, completer completion.Completer, opts ...HandlerOption) (*Handler, error) {
	if store == nil {
		return nil, errors.New("retrieval: store is required")
	}
	h := &Handler{
		embedder:    embedder,
		store:       store,
		completer:   completer,
		logger:      zap.NewNop(),
		topK:        DefaultTopK,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		previewLen:  DefaultPreviewLength,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h, nil
}

// Search embeds query and returns the nearest chunks without generating
// an answer.
func (h *Handler) Search(ctx context.Context, query string, topK int) ([]Source, error) {
	chunks, err := h.retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	return h.sources(chunks), nil
}

// Query answers query from the stored documents. Errors are returned for
// blank queries, embedding failures and store failures. Generation
// failures produce a Result with Success false.
func (h *Handler) Query(ctx context.Context, query string, opts Options) (Result, error) {
	ctx, span := tracer.Start(ctx, "Handler.Query")
	defer span.End()
	start := time.Now()

	chunks, err := h.retrieve(ctx, query, opts.TopK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("retrieval.chunks", len(chunks)))

	if len(chunks) == 0 {
		h.logger.Info("retrieval: no relevant documents", zap.Int("query_length", len(query)))
		return Result{Success: false, Message: NoDocumentsMessage, Sources: []Source{}}, nil
	}

	if h.completer == nil {
		return h.generationFailed(completion.ErrCompletionUnavailable), nil
	}

	temperature := h.temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := h.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	prompt := BuildPrompt(chunks, query, opts.ExtraContext)
	answer, err := h.completer.Complete(ctx, SystemPrompt, prompt, completion.Options{
		Temperature: completion.Float(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		h.logger.Error("retrieval: completion failed", zap.Error(err))
		return h.generationFailed(err), nil
	}

	h.logger.Info("retrieval: query answered",
		zap.Int("chunks", len(chunks)),
		zap.Float32("top_score", chunks[0].Score),
		zap.Duration("duration", time.Since(start)))

	return Result{Success: true, Message: answer, Sources: h.sources(chunks)}, nil
}

func (h *Handler) retrieve(ctx context.Context, query string, topK int) ([]vectorstore.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = h.topK
	}

	vec, err := embeddings.EmbedQuery(ctx, h.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := h.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching store: %w", err)
	}

	relevant := results[:0]
	for _, r := range results {
		if r.Score > h.minScore {
			relevant = append(relevant, r)
		}
	}
	return relevant, nil
}

func (h *Handler) sources(chunks []vectorstore.SearchResult) []Source {
	out := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Source{
			ID:       c.Record.ID,
			Source:   c.Record.Metadata.Source,
			Preview:  preview(c.Record.Text, h.previewLen),
			Score:    c.Score,
			Metadata: c.Record.Metadata.Map(),
		})
	}
	return out
}

func (h *Handler) generationFailed(err error) Result {
	return Result{
		Success: false,
		Message: fmt.Sprintf("unable to generate an answer: %v", err),
		Sources: []Source{},
	}
}
