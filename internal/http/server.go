// Package http serves the ragd REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/repository"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// DefaultMaxUploadBytes bounds request bodies when Config leaves it zero.
const DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

// Ingester adds and removes documents. *ingest.Processor satisfies it.
type Ingester interface {
	Process(ctx context.Context, doc ingest.Document) (ingest.Result, error)
	Remove(ctx context.Context, source string) (int, error)
}

// Querier answers queries. *retrieval.Handler satisfies it.
type Querier interface {
	Query(ctx context.Context, query string, opts retrieval.Options) (retrieval.Result, error)
	Search(ctx context.Context, query string, topK int) ([]retrieval.Source, error)
}

// StoreInspector exposes store status and bulk operations.
// *vectorstore.Store satisfies it.
type StoreInspector interface {
	Clear(ctx context.Context) error
	Sources() []vectorstore.SourceSummary
	Status() vectorstore.Status
}

// RepositoryIndexer bulk-ingests trees. *repository.Indexer satisfies it.
type RepositoryIndexer interface {
	IndexDirectory(ctx context.Context, path string, opts repository.IndexOptions) (*repository.IndexResult, error)
	IndexGit(ctx context.Context, url, ref string, opts repository.IndexOptions) (*repository.IndexResult, error)
}

var (
	_ Ingester          = (*ingest.Processor)(nil)
	_ Querier           = (*retrieval.Handler)(nil)
	_ StoreInspector    = (*vectorstore.Store)(nil)
	_ RepositoryIndexer = (*repository.Indexer)(nil)
)

// Deps are the components the server exposes. Indexer and Metrics are
// optional.
type Deps struct {
	Ingester Ingester
	Querier  Querier
	Store    StoreInspector
	Indexer  RepositoryIndexer
	Metrics  *HTTPMetrics
	Logger   *logging.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	MaxUploadBytes int64
	Version        string
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *logging.Logger
	config *Config
}

// NewServer wires routes and middleware.
func NewServer(deps Deps, cfg *Config) (*Server, error) {
	if deps.Ingester == nil || deps.Querier == nil || deps.Store == nil {
		return nil, errors.New("ingester, querier and store are required")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 9191}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, deps: deps, logger: deps.Logger, config: cfg}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if deps.Metrics != nil {
		e.Use(deps.Metrics.MetricsMiddleware())
	}
	e.Use(s.requestLogger)
	e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxUploadBytes, 10)))

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleIngest)
	v1.GET("/documents", s.handleListSources)
	v1.DELETE("/documents", s.handleClear)
	v1.DELETE("/documents/*", s.handleRemoveSource)
	v1.POST("/query", s.handleQuery)
	v1.POST("/search", s.handleSearch)
	v1.POST("/repositories", s.handleIndex)
}

// requestLogger puts the request id into the context, writes error
// responses and logs every request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		reqID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(req.Context(), reqID)
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("route", routePattern(c)),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) && he.Internal != nil {
				err = he.Internal
			}
			fields = append(fields, zap.Error(err))
		}
		switch status := c.Response().Status; {
		case status >= 500:
			s.logger.Error(ctx, "http request", fields...)
		case status >= 400:
			s.logger.Warn(ctx, "http request", fields...)
		default:
			s.logger.Info(ctx, "http request", fields...)
		}
		return nil
	}
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
