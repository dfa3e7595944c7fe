package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/ragd/internal/config"
	ragdhttp "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/watcher"
	"github.com/fyrsmithlabs/ragd/internal/workflows"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx)
}

// serve runs the daemon until ctx is cancelled.
//
//  1. Loads configuration, the logger and telemetry
//  2. Probes the store and builds the providers
//  3. Starts the HTTP server, the directory watcher and the Temporal worker
//  4. Shuts everything down when ctx is cancelled or a component fails
func serve(ctx context.Context) error {
	cfg, logger, tel, err := bootstrap(ctx, configPath, nil)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger, tel)
	if err != nil {
		logger.Error(ctx, "startup failed", zap.Error(err))
		_ = tel.Shutdown(context.Background())
		_ = logger.Sync()
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := a.close(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "error during shutdown", zap.Error(err))
		}
	}()

	srv, err := ragdhttp.NewServer(ragdhttp.Deps{
		Ingester: a.processor,
		Querier:  a.handler,
		Store:    a.store,
		Indexer:  a.indexer,
		Metrics:  ragdhttp.NewHTTPMetrics(logger.Underlying()),
		Logger:   logger,
	}, &ragdhttp.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		MaxUploadBytes: cfg.Ingest.MaxFileSize,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	bg, err := prepareBackground(cfg, a, logger)
	if err != nil {
		return err
	}
	defer bg.close()

	if bg.worker != nil {
		if err := bg.worker.Start(); err != nil {
			return fmt.Errorf("failed to start temporal worker: %w", err)
		}
		defer bg.worker.Stop()
		logger.Info(ctx, "temporal worker started",
			zap.String("host", cfg.Temporal.HostPort),
			zap.String("task_queue", cfg.Temporal.TaskQueue))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if bg.watcher != nil {
		g.Go(func() error {
			if err := bg.watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	logger.Info(ctx, "ragd started",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("version", version),
		zap.Bool("events", cfg.NATS.URL != ""))

	err = g.Wait()
	logger.Info(context.Background(), "ragd stopped")
	return err
}

// background holds the optional components that run beside the HTTP
// server. They are all built before anything starts, so a construction
// error leaves nothing running.
type background struct {
	watcher  *watcher.Watcher
	temporal client.Client
	worker   worker.Worker
}

func prepareBackground(cfg *config.Config, a *app, logger *logging.Logger) (*background, error) {
	bg := &background{}
	if dir := cfg.Ingest.WatchDir; dir != "" {
		w, err := watcher.New(dir, a.processor,
			watcher.WithDebounce(cfg.Ingest.WatchDebounce.Duration()),
			watcher.WithMaxFileSize(cfg.Ingest.MaxFileSize),
			watcher.WithLogger(logger.Underlying().Named("watcher")),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		bg.watcher = w
	}

	tc, err := dialTemporal(cfg.Temporal)
	if err != nil {
		bg.close()
		return nil, err
	}
	if tc != nil {
		bg.temporal = tc
		bg.worker = workflows.NewWorker(tc, cfg.Temporal.TaskQueue, &workflows.Activities{
			Processor: a.processor,
			Publisher: a.publisher,
			Logger:    logger.Underlying().Named("workflows"),
		})
	}
	return bg, nil
}

// close releases what prepareBackground built. Running components are
// stopped by their own contexts first.
func (b *background) close() {
	if b.watcher != nil {
		_ = b.watcher.Close()
	}
	if b.temporal != nil {
		b.temporal.Close()
	}
}
