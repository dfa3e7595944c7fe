package vectorstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_MissingFileIsEmpty(t *testing.T) {
	fb, err := NewFileBackend(filepath.Join(t.TempDir(), "nope", "vectors.json"))
	require.NoError(t, err)

	records, err := fb.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileBackend_Format(t *testing.T) {
	freezeTime(t, time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "vectors.json")
	fb, err := NewFileBackend(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fb.InsertOne(ctx, ChunkRecord{
		ID: "a", Text: "alpha", Embedding: []float32{1, 2}, Metadata: meta("doc", 0, 2),
	}))
	require.NoError(t, fb.InsertOne(ctx, ChunkRecord{
		ID: "b", Text: "beta", Embedding: []float32{3, 4}, Metadata: meta("doc", 1, 2),
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw struct {
		Documents   []map[string]any `json:"documents"`
		Embeddings  [][]float32      `json:"embeddings"`
		LastUpdated string           `json:"lastUpdated"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw.Documents, 2)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}}, raw.Embeddings)
	assert.Equal(t, "2026-05-06T07:08:09Z", raw.LastUpdated)
	assert.Equal(t, "alpha", raw.Documents[0]["text"])
	assert.NotContains(t, raw.Documents[0], "embedding")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileBackend_ReloadDeleteClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.json")
	ctx := context.Background()

	fb := mustFileBackend(t, path)
	require.NoError(t, fb.InsertOne(ctx, ChunkRecord{ID: "a", Text: "x", Embedding: []float32{1}, Metadata: meta("one", 0, 1)}))
	require.NoError(t, fb.InsertOne(ctx, ChunkRecord{ID: "b", Text: "y", Embedding: []float32{2}, Metadata: meta("two", 0, 1)}))

	reloaded := mustFileBackend(t, path)
	records, err := reloaded.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []float32{2}, records[1].Embedding)
	assert.Equal(t, "two", records[1].Metadata.Source)

	removed, err := reloaded.DeleteMany(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	records, err = mustFileBackend(t, path).GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].ID)

	require.NoError(t, reloaded.Clear(ctx))
	records, err = mustFileBackend(t, path).GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileBackend_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := mustFileBackend(t, path).GetAll(context.Background())
	require.Error(t, err)

	_, err = Open(context.Background(), WithFallback(mustFileBackend(t, path)))
	require.ErrorIs(t, err, ErrPersistence)
}

func TestFileBackend_Seed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.json")
	ctx := context.Background()
	fb := mustFileBackend(t, path)
	require.NoError(t, fb.InsertOne(ctx, ChunkRecord{ID: "stale", Embedding: []float32{1}, Metadata: meta("old", 0, 1)}))

	require.NoError(t, fb.Seed(ctx, []ChunkRecord{
		{ID: "fresh", Embedding: []float32{1}, Metadata: meta("new", 0, 1)},
	}))

	records, err := mustFileBackend(t, path).GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fresh", records[0].ID)
}

func TestNewFileBackend_Validation(t *testing.T) {
	_, err := NewFileBackend("")
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewFileBackend("../outside/vectors.json")
	require.ErrorIs(t, err, ErrInvalidConfig)
}
