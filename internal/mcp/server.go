package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Ingester adds and removes documents.
type Ingester interface {
	Process(ctx context.Context, doc ingest.Document) (ingest.Result, error)
	Remove(ctx context.Context, source string) (int, error)
}

// Querier answers queries and runs raw searches.
type Querier interface {
	Query(ctx context.Context, query string, opts retrieval.Options) (retrieval.Result, error)
	Search(ctx context.Context, query string, topK int) ([]retrieval.Source, error)
}

// StoreInspector reports what the store holds.
type StoreInspector interface {
	Sources() []vectorstore.SourceSummary
	Status() vectorstore.Status
}

// Server is an MCP server over the ingest and retrieval components.
type Server struct {
	mcp      *mcp.Server
	ingester Ingester
	querier  Querier
	store    StoreInspector
	metrics  *Metrics
	logger   *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the implementation name (default: "ragd").
	Name string

	// Version is the implementation version (default: "dev").
	Version string

	Logger  *zap.Logger
	Metrics *Metrics
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ragd",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates the server and registers its tools.
func NewServer(cfg *Config, ingester Ingester, querier Querier, store StoreInspector) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if ingester == nil {
		return nil, errors.New("ingester is required")
	}
	if querier == nil {
		return nil, errors.New("querier is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(logger)
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		ingester: ingester,
		querier:  querier,
		store:    store,
		metrics:  metrics,
		logger:   logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
