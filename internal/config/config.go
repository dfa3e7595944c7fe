// Package config loads ragd configuration from defaults, a YAML file and
// environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete ragd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Completion CompletionConfig `koanf:"completion"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Query      QueryConfig      `koanf:"query"`
	NATS       NATSConfig       `koanf:"nats"`
	Temporal   TemporalConfig   `koanf:"temporal"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig selects the vector store backends.
type StoreConfig struct {
	Primary      string       `koanf:"primary"`
	FallbackPath string       `koanf:"fallback_path"`
	Dimension    int          `koanf:"dimension"`
	Mongo        MongoConfig  `koanf:"mongo"`
	Qdrant       QdrantConfig `koanf:"qdrant"`
	SQLite       SQLiteConfig `koanf:"sqlite"`
}

// MongoConfig configures the MongoDB primary.
type MongoConfig struct {
	URI            Secret   `koanf:"uri"`
	Database       string   `koanf:"database"`
	Collection     string   `koanf:"collection"`
	ConnectTimeout Duration `koanf:"connect_timeout"`
}

// QdrantConfig configures the Qdrant primary.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	UseTLS     bool   `koanf:"use_tls"`
	APIKey     Secret `koanf:"api_key"`
}

// SQLiteConfig configures the SQLite primary.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	Provider   string   `koanf:"provider"`
	Model      string   `koanf:"model"`
	BaseURL    string   `koanf:"base_url"`
	APIKey     Secret   `koanf:"api_key"`
	Dimension  int      `koanf:"dimension"`
	CacheDir   string   `koanf:"cache_dir"`
	MaxRetries int      `koanf:"max_retries"`
	Timeout    Duration `koanf:"timeout"`
}

// CompletionConfig selects the completion provider.
type CompletionConfig struct {
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	BaseURL     string   `koanf:"base_url"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	Timeout     Duration `koanf:"timeout"`
}

// IngestConfig tunes document ingestion.
type IngestConfig struct {
	ChunkSize     int      `koanf:"chunk_size"`
	ChunkOverlap  int      `koanf:"chunk_overlap"`
	RatePerSecond float64  `koanf:"rate_per_second"`
	ScrubSecrets  bool     `koanf:"scrub_secrets"`
	AllowlistPath string   `koanf:"allowlist_path"`
	WatchDir      string   `koanf:"watch_dir"`
	WatchDebounce Duration `koanf:"watch_debounce"`
	MaxFileSize   int64    `koanf:"max_file_size"`
}

// QueryConfig tunes retrieval.
type QueryConfig struct {
	TopK          int     `koanf:"top_k"`
	PreviewLength int     `koanf:"preview_length"`
	MinScore      float64 `koanf:"min_score"`
}

// NATSConfig enables lifecycle events. An empty URL disables them.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// TemporalConfig enables durable ingestion. An empty HostPort disables it.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// LoggingConfig is the file-facing subset of logging settings.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	OTEL     bool   `koanf:"otel"`
	Sampling bool   `koanf:"sampling"`
}

// TelemetryConfig is the file-facing subset of telemetry settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Store: StoreConfig{
			Primary:      "sqlite",
			FallbackPath: "~/.config/ragd/fallback.json",
			Mongo: MongoConfig{
				Database:       "ragd",
				Collection:     "chunks",
				ConnectTimeout: Duration(5 * time.Second),
			},
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "ragd_chunks",
			},
			SQLite: SQLiteConfig{Path: "~/.config/ragd/ragd.db"},
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "tei",
			Model:      "BAAI/bge-small-en-v1.5",
			BaseURL:    "http://localhost:8080",
			MaxRetries: 3,
			Timeout:    Duration(30 * time.Second),
		},
		Completion: CompletionConfig{
			Provider:    "none",
			Temperature: 0.3,
			MaxTokens:   1024,
			Timeout:     Duration(60 * time.Second),
		},
		Ingest: IngestConfig{
			ChunkSize:     1000,
			ChunkOverlap:  200,
			RatePerSecond: 10,
			ScrubSecrets:  true,
			WatchDebounce: Duration(500 * time.Millisecond),
			MaxFileSize:   10 << 20,
		},
		Query: QueryConfig{
			TopK:          5,
			PreviewLength: 200,
		},
		NATS: NATSConfig{
			SubjectPrefix: "ragd.documents",
		},
		Temporal: TemporalConfig{
			Namespace: "default",
			TaskQueue: "ragd-ingest",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Sampling: true,
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "ragd",
			SampleRate:  1.0,
		},
	}
}

// applyDefaults fills values that depend on other settings.
func applyDefaults(cfg *Config) {
	cfg.Store.FallbackPath = expandHome(cfg.Store.FallbackPath)
	cfg.Store.SQLite.Path = expandHome(cfg.Store.SQLite.Path)
	cfg.Embeddings.CacheDir = expandHome(cfg.Embeddings.CacheDir)
	cfg.Ingest.AllowlistPath = expandHome(cfg.Ingest.AllowlistPath)
	cfg.Ingest.WatchDir = expandHome(cfg.Ingest.WatchDir)

	if !cfg.Embeddings.APIKey.IsSet() && cfg.Embeddings.Provider == "openai" {
		cfg.Embeddings.APIKey = Secret(os.Getenv("OPENAI_API_KEY"))
	}
	if !cfg.Completion.APIKey.IsSet() {
		switch cfg.Completion.Provider {
		case "anthropic":
			cfg.Completion.APIKey = Secret(os.Getenv("ANTHROPIC_API_KEY"))
		case "openai":
			cfg.Completion.APIKey = Secret(os.Getenv("OPENAI_API_KEY"))
		case "gemini":
			cfg.Completion.APIKey = Secret(firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"))
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		add("shutdown timeout must be positive")
	}

	switch c.Store.Primary {
	case "mongo":
		if !c.Store.Mongo.URI.IsSet() {
			add("store.mongo.uri is required for the mongo primary")
		}
	case "qdrant":
		if c.Store.Qdrant.Host == "" {
			add("store.qdrant.host is required for the qdrant primary")
		}
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			add("store.sqlite.path is required for the sqlite primary")
		}
	case "memory":
	case "none", "":
		if c.Store.FallbackPath == "" {
			add("store.fallback_path is required when store.primary is none")
		}
	default:
		add("unknown store.primary %q", c.Store.Primary)
	}
	if c.Store.Dimension < 0 {
		add("store.dimension must be non-negative")
	}

	switch c.Embeddings.Provider {
	case "openai", "tei", "fastembed", "none":
	default:
		add("unknown embeddings.provider %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BaseURL != "" {
		if u, err := url.Parse(c.Embeddings.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("embeddings.base_url must be an absolute URL, got %q", c.Embeddings.BaseURL)
		}
	}

	switch c.Completion.Provider {
	case "anthropic", "openai", "gemini", "none":
	default:
		add("unknown completion.provider %q", c.Completion.Provider)
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		add("completion.temperature must be within [0, 2]")
	}
	if c.Completion.MaxTokens <= 0 {
		add("completion.max_tokens must be positive")
	}

	if c.Ingest.ChunkSize <= 0 {
		add("ingest.chunk_size must be positive")
	}
	if c.Ingest.ChunkOverlap < 0 {
		add("ingest.chunk_overlap must be non-negative")
	}
	if c.Ingest.RatePerSecond < 0 {
		add("ingest.rate_per_second must be non-negative")
	}

	if c.Query.TopK <= 0 {
		add("query.top_k must be positive")
	}
	if c.Query.PreviewLength <= 0 {
		add("query.preview_length must be positive")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		add("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			add("telemetry.service_name is required when telemetry is enabled")
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
			add("telemetry.protocol must be 'grpc' or 'http/protobuf'")
		}
	}

	return errors.Join(errs...)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
