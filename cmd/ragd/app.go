package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/completion"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/repository"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/secrets"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// app holds every long-lived component of the daemon.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry

	store     *vectorstore.Store
	embedder  embeddings.Provider
	completer completion.Provider
	publisher events.Publisher
	processor *ingest.Processor
	handler   *retrieval.Handler
	indexer   *repository.Indexer
}

// bootstrap loads configuration and builds the logger and telemetry.
// logOut overrides stdout for log output when non-nil.
func bootstrap(ctx context.Context, path string, logOut io.Writer) (*config.Config, *logging.Logger, *telemetry.Telemetry, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}
	logCfg.Output.Writer = logOut
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version), logger.Underlying())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return cfg, logger, tel, nil
}

// newApp builds the store, the providers and the ingest and query
// components. On error everything built so far is closed.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry) (_ *app, err error) {
	zl := logger.Underlying()
	a := &app{cfg: cfg, logger: logger, telemetry: tel, publisher: events.Nop{}}
	defer func() {
		if err != nil {
			_ = a.close(ctx)
		}
	}()

	a.embedder, err = embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		BaseURL:    cfg.Embeddings.BaseURL,
		APIKey:     cfg.Embeddings.APIKey.Value(),
		Dimension:  cfg.Embeddings.Dimension,
		CacheDir:   cfg.Embeddings.CacheDir,
		MaxRetries: cfg.Embeddings.MaxRetries,
		Timeout:    cfg.Embeddings.Timeout.Duration(),
	}, zl.Named("embeddings"))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	storeCfg := storeConfig(cfg.Store)
	if storeCfg.Dimension == 0 {
		storeCfg.Dimension = a.embedder.Dimension()
	}
	a.store, err = vectorstore.OpenFromConfig(ctx, storeCfg, zl.Named("vectorstore"))
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	a.completer, err = completion.NewProvider(ctx, completion.Config{
		Provider: cfg.Completion.Provider,
		Model:    cfg.Completion.Model,
		APIKey:   cfg.Completion.APIKey.Value(),
		BaseURL:  cfg.Completion.BaseURL,
		Timeout:  cfg.Completion.Timeout.Duration(),
	}, zl.Named("completion"))
	if err != nil {
		return nil, fmt.Errorf("failed to create completion provider: %w", err)
	}

	if cfg.NATS.URL != "" {
		pub, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, zl.Named("events"))
		if err != nil {
			return nil, err
		}
		a.publisher = pub
	}

	opts := []ingest.Option{
		ingest.WithChunker(chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)),
		ingest.WithExtractor(extract.New()),
		ingest.WithRateLimiter(ingest.NewRateLimiter(cfg.Ingest.RatePerSecond)),
		ingest.WithPublisher(a.publisher),
		ingest.WithLogger(zl.Named("ingest")),
	}
	if cfg.Ingest.ScrubSecrets {
		scrubber, err := secrets.NewScrubber(cfg.Ingest.AllowlistPath, zl.Named("secrets"))
		if err != nil {
			return nil, fmt.Errorf("failed to create secret scrubber: %w", err)
		}
		opts = append(opts, ingest.WithScrubber(scrubber))
	}
	a.processor, err = ingest.NewProcessor(a.embedder, a.store, opts...)
	if err != nil {
		return nil, err
	}

	a.handler, err = retrieval.NewHandler(a.embedder, a.store, a.completer,
		retrieval.WithLogger(zl.Named("retrieval")),
		retrieval.WithDefaults(cfg.Query.TopK, cfg.Completion.Temperature, cfg.Completion.MaxTokens),
		retrieval.WithPreviewLength(cfg.Query.PreviewLength),
		retrieval.WithMinScore(float32(cfg.Query.MinScore)),
	)
	if err != nil {
		return nil, err
	}

	a.indexer = repository.NewIndexer(a.processor, zl.Named("repository"))

	st := a.store.Status()
	logger.Info(ctx, "components ready",
		zap.String("store.state", st.State),
		zap.String("store.backend", st.Backend),
		zap.Int("store.chunks", st.Chunks),
		zap.String("embeddings", a.embedder.Name()),
		zap.String("completion", a.completer.Name()),
	)
	return a, nil
}

// dialTemporal connects to Temporal when durable ingestion is configured.
// It returns nil without error when it is not.
func dialTemporal(cfg config.TemporalConfig) (client.Client, error) {
	if cfg.HostPort == "" {
		return nil, nil
	}
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}

func storeConfig(s config.StoreConfig) vectorstore.Config {
	return vectorstore.Config{
		Primary:      s.Primary,
		FallbackPath: s.FallbackPath,
		Dimension:    s.Dimension,
		Mongo: vectorstore.MongoConfig{
			URI:            s.Mongo.URI.Value(),
			Database:       s.Mongo.Database,
			Collection:     s.Mongo.Collection,
			ConnectTimeout: s.Mongo.ConnectTimeout.Duration(),
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:           s.Qdrant.Host,
			Port:           s.Qdrant.Port,
			CollectionName: s.Qdrant.Collection,
			APIKey:         s.Qdrant.APIKey.Value(),
			UseTLS:         s.Qdrant.UseTLS,
		},
		SQLitePath: s.SQLite.Path,
	}
}

// close releases components in reverse order of construction.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.completer != nil {
		errs = append(errs, a.completer.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	errs = append(errs, a.telemetry.Shutdown(ctx))
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
