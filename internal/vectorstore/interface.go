// Package vectorstore stores document chunks with their embeddings and
// answers nearest-neighbour queries by cosine similarity.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrPersistence is returned when a backend read or write fails and no
	// fallback backend is available to absorb it.
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidConfig indicates invalid store or backend configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidMetadata indicates chunk metadata that cannot be stored.
	ErrInvalidMetadata = errors.New("invalid metadata")

	// ErrEmptyEmbedding is returned when adding a chunk without a vector.
	ErrEmptyEmbedding = errors.New("empty embedding")

	// ErrDimensionMismatch is returned when a vector's length differs from
	// the dimensionality already established for the store.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNoBackend is returned when a store is built with neither a
	// primary nor a fallback backend.
	ErrNoBackend = errors.New("no persistence backend configured")
)

// Backend is a persistence location for chunk records.
//
// Implementations only need to be durable; the Store keeps its own
// in-memory index and serializes every call, so a Backend never sees
// concurrent writes from a single Store.
type Backend interface {
	// Name identifies the backend in logs, metrics and status output.
	Name() string

	// GetAll returns every stored record in insertion order.
	GetAll(ctx context.Context) ([]ChunkRecord, error)

	// InsertOne durably stores a single record.
	InsertOne(ctx context.Context, rec ChunkRecord) error

	// DeleteMany removes every record whose metadata source matches and
	// returns how many were removed.
	DeleteMany(ctx context.Context, source string) (int, error)

	// Clear removes all records.
	Clear(ctx context.Context) error

	// Close releases any connections held by the backend.
	Close() error
}

// Pinger is implemented by backends that can be probed for reachability
// before the store commits to them.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Seeder is implemented by backends that can be overwritten with a full
// snapshot. The store seeds its fallback with the in-memory index when it
// degrades so the fallback reflects the whole session.
type Seeder interface {
	Seed(ctx context.Context, records []ChunkRecord) error
}

// ChunkWriter is the write side of the store used during ingestion.
type ChunkWriter interface {
	Add(ctx context.Context, text string, embedding []float32, meta Metadata) (string, error)
	RemoveBySource(ctx context.Context, source string) (int, error)
}

// Searcher is the read side of the store used when answering queries.
type Searcher interface {
	Search(ctx context.Context, query []float32, topK int) ([]SearchResult, error)
}

// BackendState tracks which backend a Store is writing to.
type BackendState int

const (
	// StateUnconfigured is the state before the store probes any backend.
	StateUnconfigured BackendState = iota

	// StateProbing is held while the primary backend is being checked.
	StateProbing

	// StatePrimaryActive means writes go to the primary backend.
	StatePrimaryActive

	// StateFallbackActive means writes go to the fallback backend. Once
	// entered it is kept for the lifetime of the store.
	StateFallbackActive
)

// String implements fmt.Stringer.
func (s BackendState) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateProbing:
		return "probing"
	case StatePrimaryActive:
		return "primary"
	case StateFallbackActive:
		return "fallback"
	default:
		return "unknown"
	}
}
