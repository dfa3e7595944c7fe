package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/mcp"
)

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, tel, err := bootstrap(ctx, configPath, os.Stderr)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger, tel)
	if err != nil {
		logger.Error(ctx, "startup failed", zap.Error(err))
		_ = tel.Shutdown(context.Background())
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		_ = a.close(shutdownCtx)
	}()

	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "ragd",
		Version: version,
		Logger:  logger.Underlying().Named("mcp"),
	}, a.processor, a.handler, a.store)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
