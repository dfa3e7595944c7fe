package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Primary backend kinds.
const (
	KindMongo  = "mongo"
	KindQdrant = "qdrant"
	KindSQLite = "sqlite"
	KindMemory = "memory"
	KindNone   = "none"
)

// Config selects and configures the store backends.
type Config struct {
	// Primary is one of mongo, qdrant, sqlite, memory or none.
	Primary string

	// FallbackPath is the JSON file used when the primary is unavailable.
	// Empty disables the fallback.
	FallbackPath string

	// Dimension fixes the embedding length. Zero lets the first vector
	// decide.
	Dimension int

	Mongo      MongoConfig
	Qdrant     QdrantConfig
	SQLitePath string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Primary {
	case KindMongo, KindQdrant, KindSQLite, KindMemory, KindNone, "":
	default:
		return fmt.Errorf("%w: unknown primary backend %q", ErrInvalidConfig, c.Primary)
	}
	if (c.Primary == KindNone || c.Primary == "") && c.FallbackPath == "" {
		return fmt.Errorf("%w: no primary backend and no fallback path", ErrInvalidConfig)
	}
	if c.Dimension < 0 {
		return fmt.Errorf("%w: dimension must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// NewPrimary builds the primary backend named by cfg.Primary. It returns
// nil for "none".
func NewPrimary(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Primary {
	case KindMongo:
		return asBackend(NewMongoBackend(ctx, cfg.Mongo))
	case KindQdrant:
		q := cfg.Qdrant
		if q.VectorSize == 0 && cfg.Dimension > 0 {
			q.VectorSize = uint64(cfg.Dimension)
		}
		return asBackend(NewQdrantBackend(q))
	case KindSQLite:
		return asBackend(NewSQLiteBackend(cfg.SQLitePath))
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown primary backend %q", ErrInvalidConfig, cfg.Primary)
	}
}

// asBackend keeps a failed constructor's nil pointer out of the interface.
func asBackend[T Backend](b T, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}

// OpenFromConfig builds the configured backends and opens a Store over
// them. A primary that cannot even be constructed is treated like an
// unreachable one when a fallback exists.
func OpenFromConfig(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []Option{WithLogger(logger), WithDimension(cfg.Dimension)}

	var fallback Backend
	if cfg.FallbackPath != "" {
		fb, err := NewFileBackend(cfg.FallbackPath)
		if err != nil {
			return nil, err
		}
		fallback = fb
		opts = append(opts, WithFallback(fb))
	}

	primary, err := NewPrimary(ctx, cfg)
	if err != nil {
		if fallback == nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		logger.Warn("vectorstore: primary backend misconfigured, using fallback",
			zap.String("primary", cfg.Primary),
			zap.Error(err))
		primary = nil
	}
	if primary != nil {
		opts = append(opts, WithPrimary(primary))
	}

	store, err := Open(ctx, opts...)
	if err != nil {
		if primary != nil {
			_ = primary.Close()
		}
		return nil, err
	}
	return store, nil
}
