// Package ingest turns documents into stored, embedded chunks.
//
// A Processor runs extract, scrub, chunk, embed and store for one
// document at a time. Chunks are embedded sequentially and paced by a
// rate limiter. A failure partway through leaves the chunks already
// stored in place; callers that need all-or-nothing remove the source.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/secrets"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// ErrParse is returned when a document cannot be converted to text.
var ErrParse = extract.ErrParse

// ErrInvalidDocument is returned for documents without a source.
var ErrInvalidDocument = errors.New("invalid document")

// DefaultRatePerSecond paces embedding calls when no limiter is given.
const DefaultRatePerSecond = 10

// Document is one unit of ingestion.
type Document struct {
	// Source identifies the document. Re-ingesting a source with Replace
	// set removes its previous chunks first.
	Source string

	// Name and ContentType are format hints for Content.
	Name        string
	ContentType string

	// Content holds raw bytes to extract. When nil, Text is used as is.
	Content []byte
	Text    string

	// Metadata is merged into every chunk. Reserved keys are overwritten.
	Metadata map[string]any

	Replace bool
}

// Result summarizes a processed document.
type Result struct {
	OperationID string   `json:"operation_id"`
	Source      string   `json:"source"`
	NumChunks   int      `json:"num_chunks"`
	DocumentIDs []string `json:"document_ids"`
	Redactions  int      `json:"redactions,omitempty"`
	Replaced    int      `json:"replaced,omitempty"`
}

// TextExtractor converts raw bytes to text.
type TextExtractor interface {
	Extract(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Scrubber redacts secrets from text before it leaves the process.
type Scrubber interface {
	Scrub(source, content string) secrets.Result
}

// Processor ingests documents into a chunk store.
type Processor struct {
	extractor TextExtractor
	chunker   *chunker.Chunker
	embedder  embeddings.Embedder
	store     vectorstore.ChunkWriter
	limiter   *rate.Limiter
	scrubber  Scrubber
	publisher events.Publisher
	logger    *zap.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithChunker overrides the default 1000/200 chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(p *Processor) { p.chunker = c }
}

// WithExtractor overrides the default extractor.
func WithExtractor(e TextExtractor) Option {
	return func(p *Processor) { p.extractor = e }
}

// WithRateLimiter paces embedding calls. A nil limiter disables pacing.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(p *Processor) { p.limiter = l }
}

// WithScrubber enables secret redaction before chunking.
func WithScrubber(s Scrubber) Option {
	return func(p *Processor) { p.scrubber = s }
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Processor) { p.publisher = pub }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor builds a Processor. embedder may be nil, in which case
// every document fails with embeddings.ErrEmbeddingUnavailable.
func NewProcessor(embedder embeddings.Embedder, store vectorstore.ChunkWriter, opts ...Option) (*Processor, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: chunk store is required", ErrInvalidDocument)
	}
	p := &Processor{
		extractor: extract.New(),
		chunker:   chunker.Default(),
		embedder:  embedder,
		store:     store,
		limiter:   rate.NewLimiter(rate.Limit(DefaultRatePerSecond), 1),
		publisher: events.Nop{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.publisher == nil {
		p.publisher = events.Nop{}
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p, nil
}

// NewRateLimiter returns a limiter allowing perSecond calls with a burst
// of one. perSecond <= 0 disables pacing.
func NewRateLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Process ingests one document. On an embedding or storage failure the
// returned Result lists the chunks stored before the failure.
func (p *Processor) Process(ctx context.Context, doc Document) (Result, error) {
	start := time.Now()
	res := Result{
		OperationID: events.NewOperationID(),
		Source:      doc.Source,
		DocumentIDs: []string{},
	}
	if doc.Source == "" {
		return res, fmt.Errorf("%w: source is required", ErrInvalidDocument)
	}

	logger := p.logger.With(
		zap.String("source", doc.Source),
		zap.String("operation_id", res.OperationID))
	p.publish(ctx, logger, events.Event{
		OperationID: res.OperationID,
		Operation:   "ingest",
		Kind:        events.KindStarted,
		Source:      doc.Source,
	})

	if err := p.process(ctx, logger, doc, &res); err != nil {
		logger.Error("ingest: document failed",
			zap.Int("stored", len(res.DocumentIDs)),
			zap.Error(err))
		p.publish(ctx, logger, events.Event{
			OperationID: res.OperationID,
			Operation:   "ingest",
			Kind:        events.KindFailed,
			Source:      doc.Source,
			Done:        len(res.DocumentIDs),
			Total:       res.NumChunks,
			DocumentIDs: res.DocumentIDs,
			Error:       err.Error(),
		})
		return res, err
	}

	logger.Info("ingest: document stored",
		zap.Int("chunks", res.NumChunks),
		zap.Int("redactions", res.Redactions),
		zap.Duration("duration", time.Since(start)))
	p.publish(ctx, logger, events.Event{
		OperationID: res.OperationID,
		Operation:   "ingest",
		Kind:        events.KindCompleted,
		Source:      doc.Source,
		Done:        res.NumChunks,
		Total:       res.NumChunks,
		DocumentIDs: res.DocumentIDs,
		Redactions:  res.Redactions,
	})
	return res, nil
}

func (p *Processor) process(ctx context.Context, logger *zap.Logger, doc Document, res *Result) error {
	text, err := p.text(ctx, doc)
	if err != nil {
		return err
	}

	if p.scrubber != nil {
		scrubbed := p.scrubber.Scrub(doc.Source, text)
		text = scrubbed.Content
		res.Redactions = scrubbed.Redactions
	}

	chunks := p.chunker.Chunk(text)
	res.NumChunks = len(chunks)

	// Fail before touching the stored version of the source.
	if len(chunks) > 0 && p.embedder == nil {
		return embeddings.ErrEmbeddingUnavailable
	}

	if doc.Replace {
		n, err := p.store.RemoveBySource(ctx, doc.Source)
		if err != nil {
			return fmt.Errorf("removing previous chunks: %w", err)
		}
		res.Replaced = n
	}

	extra := callerMetadata(doc.Metadata)
	for i, chunk := range chunks {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("waiting for embedding rate limit: %w", err)
			}
		}

		vec, err := p.embedder.Embed(ctx, chunk)
		if err != nil {
			return embeddingError(i, err)
		}

		id, err := p.store.Add(ctx, chunk, vec, vectorstore.Metadata{
			Source:      doc.Source,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			Extra:       maps.Clone(extra),
		})
		if err != nil {
			return fmt.Errorf("storing chunk %d: %w", i, err)
		}
		res.DocumentIDs = append(res.DocumentIDs, id)

		logger.Debug("ingest: chunk stored", zap.Int("chunk_index", i), zap.String("id", id))
		p.publish(ctx, logger, events.Event{
			OperationID: res.OperationID,
			Operation:   "ingest",
			Kind:        events.KindProgress,
			Source:      doc.Source,
			Done:        i + 1,
			Total:       len(chunks),
		})
	}
	return nil
}

func (p *Processor) text(ctx context.Context, doc Document) (string, error) {
	if doc.Content == nil {
		return doc.Text, nil
	}
	name := doc.Name
	if name == "" {
		name = doc.Source
	}
	text, err := p.extractor.Extract(ctx, name, doc.ContentType, doc.Content)
	if err != nil {
		if errors.Is(err, ErrParse) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	return text, nil
}

// Remove deletes every chunk of source and publishes a removal event.
func (p *Processor) Remove(ctx context.Context, source string) (int, error) {
	n, err := p.store.RemoveBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	logger := p.logger.With(zap.String("source", source))
	logger.Info("ingest: source removed", zap.Int("removed", n))
	p.publish(ctx, logger, events.Event{
		OperationID: events.NewOperationID(),
		Operation:   "remove",
		Kind:        events.KindRemoved,
		Source:      source,
		Removed:     n,
	})
	return n, nil
}

func (p *Processor) publish(ctx context.Context, logger *zap.Logger, e events.Event) {
	if err := p.publisher.Publish(ctx, e); err != nil {
		logger.Warn("ingest: publishing event failed", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}

func embeddingError(index int, err error) error {
	if errors.Is(err, embeddings.ErrEmbeddingUnavailable) || errors.Is(err, embeddings.ErrEmbeddingProvider) {
		return fmt.Errorf("embedding chunk %d: %w", index, err)
	}
	return fmt.Errorf("embedding chunk %d: %w: %w", index, embeddings.ErrEmbeddingProvider, err)
}

func callerMetadata(raw map[string]any) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		switch k {
		case vectorstore.KeySource, vectorstore.KeyChunkIndex, vectorstore.KeyTotalChunks, vectorstore.KeyAddedAt:
			continue
		}
		out[k] = v
	}
	return out
}
