package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Primary = "memory"
	cfg.Store.FallbackPath = ""
	cfg.Embeddings.Provider = "none"
	cfg.Completion.Provider = "none"
	cfg.Ingest.ScrubSecrets = false
	return &cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	ctx := context.Background()
	tel, err := telemetry.New(ctx, telemetry.NewDefaultConfig(), nil)
	require.NoError(t, err)

	a, err := newApp(ctx, cfg, logging.NewNop(), tel)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.close(context.Background()) })
	return a
}

func TestNewApp_MemoryStore(t *testing.T) {
	a := newTestApp(t, memoryConfig())

	st := a.store.Status()
	assert.Equal(t, vectorstore.StatePrimaryActive.String(), st.State)
	assert.Equal(t, "memory", st.Backend)
	assert.Equal(t, "none", a.embedder.Name())
	assert.Equal(t, "none", a.completer.Name())
	assert.NotNil(t, a.indexer)
}

func TestNewApp_NoEmbedderRejectsIngest(t *testing.T) {
	a := newTestApp(t, memoryConfig())

	_, err := a.processor.Process(context.Background(), ingest.Document{Source: "a.md", Text: "hello"})
	require.Error(t, err)
	assert.Zero(t, a.store.Count())
}

func TestNewApp_FallbackWhenPrimaryMisconfigured(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Primary = "mongo"
	cfg.Store.Mongo.URI = ""
	cfg.Store.FallbackPath = t.TempDir() + "/fallback.json"

	a := newTestApp(t, cfg)
	assert.Equal(t, vectorstore.StateFallbackActive, a.store.State())
}

func TestNewApp_UnknownEmbeddingModelLeavesDimensionOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{make([]float32, 1024)})
	}))
	defer srv.Close()

	cfg := memoryConfig()
	cfg.Embeddings.Provider = "tei"
	cfg.Embeddings.Model = "BAAI/bge-m3"
	cfg.Embeddings.BaseURL = srv.URL
	cfg.Embeddings.Dimension = 0
	cfg.Store.Dimension = 0

	a := newTestApp(t, cfg)
	assert.Zero(t, a.store.Status().Dimension)

	res, err := a.processor.Process(context.Background(), ingest.Document{Source: "a.md", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.NumChunks)
	assert.Equal(t, 1024, a.store.Status().Dimension)
}

func TestStoreConfig(t *testing.T) {
	sc := config.StoreConfig{
		Primary:      "qdrant",
		FallbackPath: "/tmp/fb.json",
		Dimension:    384,
		Mongo: config.MongoConfig{
			URI:            config.Secret("mongodb://localhost"),
			Database:       "ragd",
			Collection:     "chunks",
			ConnectTimeout: config.Duration(3 * time.Second),
		},
		Qdrant: config.QdrantConfig{
			Host:       "qdrant",
			Port:       6334,
			Collection: "docs",
			APIKey:     config.Secret("k"),
			UseTLS:     true,
		},
		SQLite: config.SQLiteConfig{Path: "/tmp/ragd.db"},
	}

	got := storeConfig(sc)
	assert.Equal(t, "qdrant", got.Primary)
	assert.Equal(t, 384, got.Dimension)
	assert.Equal(t, "mongodb://localhost", got.Mongo.URI)
	assert.Equal(t, 3*time.Second, got.Mongo.ConnectTimeout)
	assert.Equal(t, "docs", got.Qdrant.CollectionName)
	assert.Equal(t, "k", got.Qdrant.APIKey)
	assert.True(t, got.Qdrant.UseTLS)
	assert.Equal(t, "/tmp/ragd.db", got.SQLitePath)
	require.NoError(t, got.Validate())
}

func TestDialTemporal_Disabled(t *testing.T) {
	c, err := dialTemporal(config.TemporalConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Version:    dev")
}

func TestPrepareBackground(t *testing.T) {
	t.Run("nothing configured", func(t *testing.T) {
		a := newTestApp(t, memoryConfig())
		bg, err := prepareBackground(a.cfg, a, logging.NewNop())
		require.NoError(t, err)
		defer bg.close()
		assert.Nil(t, bg.watcher)
		assert.Nil(t, bg.worker)
	})

	t.Run("watch dir", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Ingest.WatchDir = t.TempDir()
		a := newTestApp(t, cfg)
		bg, err := prepareBackground(cfg, a, logging.NewNop())
		require.NoError(t, err)
		defer bg.close()
		assert.NotNil(t, bg.watcher)
	})

	t.Run("missing watch dir fails before anything runs", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Ingest.WatchDir = t.TempDir() + "/missing"
		a := newTestApp(t, cfg)
		bg, err := prepareBackground(cfg, a, logging.NewNop())
		require.Error(t, err)
		assert.Nil(t, bg)
		assert.Contains(t, err.Error(), "failed to create watcher")
	})
}
