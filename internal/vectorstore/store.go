package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var storeTracer = otel.Tracer("ragd.vectorstore")

// timeNow is swapped in tests.
var timeNow = time.Now

// Store is the chunk index. It keeps every record in memory for
// brute-force cosine search and mirrors writes to a persistence backend.
//
// A Store moves through Unconfigured → Probing → Primary-active or
// Fallback-active while opening. If a write to the primary fails later on,
// the store switches to the fallback for the rest of its lifetime and never
// re-probes. Writes made before and after the switch can therefore live in
// different backends; the fallback is seeded with the full in-memory index
// at the moment of the switch so it holds a complete copy of the session.
//
// The in-memory index is only updated after the backend write succeeds.
// All mutations hold the write lock, which keeps records and embeddings
// index-aligned.
type Store struct {
	mu         sync.RWMutex
	records    []ChunkRecord
	embeddings [][]float32
	dimension  int
	fixedDim   int

	primary  Backend
	fallback Backend
	active   Backend
	state    BackendState

	newID  func() string
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPrimary sets the primary backend that is probed on Open.
func WithPrimary(b Backend) Option {
	return func(s *Store) { s.primary = b }
}

// WithFallback sets the backend used when the primary is unreachable or
// fails a write.
func WithFallback(b Backend) Option {
	return func(s *Store) { s.fallback = b }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDimension fixes the embedding dimensionality up front. Without it
// the first stored vector establishes the dimension.
func WithDimension(d int) Option {
	return func(s *Store) {
		if d > 0 {
			s.fixedDim = d
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Status is a point-in-time view of the store.
type Status struct {
	State     string `json:"state"`
	Backend   string `json:"backend"`
	Chunks    int    `json:"chunks"`
	Dimension int    `json:"dimension"`
}

// Open builds a Store and probes its backends. It fails only when no
// backend can be loaded.
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	s := &Store{
		state:  StateUnconfigured,
		newID:  uuid.NewString,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.primary == nil && s.fallback == nil {
		return nil, ErrNoBackend
	}
	s.dimension = s.fixedDim

	s.mu.Lock()
	defer s.mu.Unlock()

	s.setState(StateProbing, nil)

	if s.primary != nil {
		records, err := probe(ctx, s.primary)
		if err == nil {
			s.setState(StatePrimaryActive, s.primary)
			s.load(records)
			s.logger.Info("vectorstore: primary backend active",
				zap.String("backend", s.primary.Name()),
				zap.Int("chunks", len(s.records)))
			return s, nil
		}
		if s.fallback == nil {
			s.setState(StateUnconfigured, nil)
			return nil, fmt.Errorf("%w: probing %s: %w", ErrPersistence, s.primary.Name(), err)
		}
		s.logger.Warn("vectorstore: primary backend unavailable, using fallback",
			zap.String("primary", s.primary.Name()),
			zap.String("fallback", s.fallback.Name()),
			zap.Error(err))
	}

	records, err := s.fallback.GetAll(ctx)
	if err != nil {
		s.setState(StateUnconfigured, nil)
		return nil, fmt.Errorf("%w: loading %s: %w", ErrPersistence, s.fallback.Name(), err)
	}
	s.setState(StateFallbackActive, s.fallback)
	s.load(records)
	s.logger.Info("vectorstore: fallback backend active",
		zap.String("backend", s.fallback.Name()),
		zap.Int("chunks", len(s.records)))
	return s, nil
}

func probe(ctx context.Context, b Backend) ([]ChunkRecord, error) {
	if p, ok := b.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return nil, err
		}
	}
	return b.GetAll(ctx)
}

// load replaces the index with records read from a backend. Records whose
// vector length disagrees with the established dimension are skipped.
func (s *Store) load(records []ChunkRecord) {
	s.records = make([]ChunkRecord, 0, len(records))
	s.embeddings = make([][]float32, 0, len(records))
	skipped := 0
	for _, rec := range records {
		if len(rec.Embedding) == 0 {
			skipped++
			continue
		}
		if s.dimension == 0 {
			s.dimension = len(rec.Embedding)
		}
		if len(rec.Embedding) != s.dimension {
			skipped++
			continue
		}
		s.records = append(s.records, rec)
		s.embeddings = append(s.embeddings, rec.Embedding)
	}
	if skipped > 0 {
		s.logger.Warn("vectorstore: skipped records with unusable embeddings",
			zap.Int("skipped", skipped),
			zap.Int("dimension", s.dimension))
	}
	chunksGauge.Set(float64(len(s.records)))
}

// setState must be called with s.mu held.
func (s *Store) setState(state BackendState, active Backend) {
	s.state = state
	s.active = active
	name := ""
	if active != nil {
		name = active.Name()
	}
	recordState(state, name)
}

// write runs op against the active backend. A failure on the primary with
// a fallback configured degrades the store and retries op on the fallback.
// Must be called with s.mu held.
func (s *Store) write(ctx context.Context, opName string, op func(context.Context, Backend) error) error {
	err := op(ctx, s.active)
	if err == nil {
		return nil
	}

	if s.state != StatePrimaryActive || s.fallback == nil {
		return fmt.Errorf("%w: %s on %s: %w", ErrPersistence, opName, s.active.Name(), err)
	}

	failed := s.active.Name()
	s.logger.Warn("vectorstore: primary write failed, switching to fallback",
		zap.String("op", opName),
		zap.String("primary", failed),
		zap.String("fallback", s.fallback.Name()),
		zap.Error(err))
	s.setState(StateFallbackActive, s.fallback)
	degradesTotal.WithLabelValues(failed).Inc()

	if seeder, ok := s.fallback.(Seeder); ok {
		snapshot := make([]ChunkRecord, len(s.records))
		copy(snapshot, s.records)
		if seedErr := seeder.Seed(ctx, snapshot); seedErr != nil {
			return fmt.Errorf("%w: seeding %s: %w", ErrPersistence, s.fallback.Name(), errors.Join(err, seedErr))
		}
	}

	if fbErr := op(ctx, s.fallback); fbErr != nil {
		return fmt.Errorf("%w: %s on %s: %w", ErrPersistence, opName, s.fallback.Name(), errors.Join(err, fbErr))
	}
	return nil
}

// Add stores one chunk and returns its id. AddedAt is stamped here and
// reserved keys in meta.Extra are dropped.
func (s *Store) Add(ctx context.Context, text string, embedding []float32, meta Metadata) (string, error) {
	ctx, span := storeTracer.Start(ctx, "Store.Add")
	defer span.End()

	if len(embedding) == 0 {
		span.RecordError(ErrEmptyEmbedding)
		span.SetStatus(codes.Error, ErrEmptyEmbedding.Error())
		return "", ErrEmptyEmbedding
	}
	meta = meta.normalize()
	if err := meta.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(
		attribute.String("source", meta.Source),
		attribute.Int("chunk_index", meta.ChunkIndex),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension != 0 && len(embedding) != s.dimension {
		err := fmt.Errorf("%w: got %d, store holds %d", ErrDimensionMismatch, len(embedding), s.dimension)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	meta.AddedAt = timeNow().UTC()
	rec := ChunkRecord{
		ID:        s.newID(),
		Text:      text,
		Embedding: append([]float32(nil), embedding...),
		Metadata:  meta,
	}

	if err := s.write(ctx, "insert", func(ctx context.Context, b Backend) error {
		return b.InsertOne(ctx, rec)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	s.records = append(s.records, rec)
	s.embeddings = append(s.embeddings, rec.Embedding)
	if s.dimension == 0 {
		s.dimension = len(rec.Embedding)
	}
	chunksGauge.Set(float64(len(s.records)))

	span.SetAttributes(attribute.String("backend", s.active.Name()))
	span.SetStatus(codes.Ok, "")
	return rec.ID, nil
}

// Search returns up to topK chunks ordered by descending cosine similarity
// to query. Ties keep insertion order. An empty store yields an empty slice.
func (s *Store) Search(ctx context.Context, query []float32, topK int) ([]SearchResult, error) {
	_, span := storeTracer.Start(ctx, "Store.Search")
	defer span.End()

	s.mu.RLock()
	ranked := rankByCosine(query, s.embeddings, topK)
	results := make([]SearchResult, len(ranked))
	for i, r := range ranked {
		results[i] = SearchResult{Record: s.records[r.idx].clone(), Score: r.score}
	}
	s.mu.RUnlock()

	span.SetAttributes(
		attribute.Int("top_k", topK),
		attribute.Int("results", len(results)),
	)
	return results, nil
}

// RemoveBySource deletes every chunk of source from the backend and the
// index and returns how many were removed.
func (s *Store) RemoveBySource(ctx context.Context, source string) (int, error) {
	ctx, span := storeTracer.Start(ctx, "Store.RemoveBySource")
	defer span.End()
	span.SetAttributes(attribute.String("source", source))

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, rec := range s.records {
		if rec.Metadata.Source == source {
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.write(ctx, "delete", func(ctx context.Context, b Backend) error {
		_, err := b.DeleteMany(ctx, source)
		return err
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	keptRecords := make([]ChunkRecord, 0, len(s.records)-count)
	keptEmbeddings := make([][]float32, 0, len(s.records)-count)
	for i, rec := range s.records {
		if rec.Metadata.Source == source {
			continue
		}
		keptRecords = append(keptRecords, rec)
		keptEmbeddings = append(keptEmbeddings, s.embeddings[i])
	}
	s.records = keptRecords
	s.embeddings = keptEmbeddings
	chunksGauge.Set(float64(len(s.records)))

	span.SetAttributes(attribute.Int("removed", count))
	span.SetStatus(codes.Ok, "")
	return count, nil
}

// Clear removes every chunk. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	ctx, span := storeTracer.Start(ctx, "Store.Clear")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(ctx, "clear", func(ctx context.Context, b Backend) error {
		return b.Clear(ctx)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.records = nil
	s.embeddings = nil
	s.dimension = s.fixedDim
	chunksGauge.Set(0)
	return nil
}

// GetAllDocuments returns a snapshot of every chunk in insertion order.
func (s *Store) GetAllDocuments() []ChunkRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ChunkRecord, len(s.records))
	for i, rec := range s.records {
		out[i] = rec.clone()
	}
	return out
}

// Sources summarizes stored chunks per source, in order of first insertion.
func (s *Store) Sources() []SourceSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := make(map[string]int)
	out := make([]SourceSummary, 0)
	for _, rec := range s.records {
		i, ok := index[rec.Metadata.Source]
		if !ok {
			index[rec.Metadata.Source] = len(out)
			out = append(out, SourceSummary{
				Source:  rec.Metadata.Source,
				AddedAt: rec.Metadata.AddedAt,
			})
			i = len(out) - 1
		}
		out[i].Chunks++
	}
	return out
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// State returns the current backend state.
func (s *Store) State() BackendState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ActiveBackend returns the name of the backend receiving writes.
func (s *Store) ActiveBackend() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return ""
	}
	return s.active.Name()
}

// Status reports state, active backend, size and dimension.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		State:     s.state.String(),
		Chunks:    len(s.records),
		Dimension: s.dimension,
	}
	if s.active != nil {
		st.Backend = s.active.Name()
	}
	return st
}

// Close releases both backends.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.primary != nil {
		if err := s.primary.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", s.primary.Name(), err))
		}
	}
	if s.fallback != nil {
		if err := s.fallback.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", s.fallback.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var (
	_ ChunkWriter = (*Store)(nil)
	_ Searcher    = (*Store)(nil)
)
