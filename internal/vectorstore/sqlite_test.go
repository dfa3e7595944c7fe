package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "chunks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLiteBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestSQLite(t)
	require.NoError(t, b.Ping(ctx))

	recs := []ChunkRecord{
		{ID: "a", Text: "first", Embedding: []float32{0.5, -1.25}, Metadata: Metadata{Source: "s1", TotalChunks: 1, Extra: map[string]any{"tag": "x"}}},
		{ID: "b", Text: "second", Embedding: []float32{1, 2}, Metadata: meta("s2", 0, 2)},
		{ID: "c", Text: "third", Embedding: []float32{3, 4}, Metadata: meta("s2", 1, 2)},
	}
	for _, r := range recs {
		require.NoError(t, b.InsertOne(ctx, r))
	}

	got, err := b.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, []float32{0.5, -1.25}, got[0].Embedding)
	assert.Equal(t, "x", got[0].Metadata.Extra["tag"])
	assert.Equal(t, 1, got[2].Metadata.ChunkIndex)

	removed, err := b.DeleteMany(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	require.NoError(t, b.Seed(ctx, recs[1:]))
	got, err = b.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, b.Clear(ctx))
	got, err = b.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteBackend_AsStorePrimary(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunks.db")

	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	s, err := Open(ctx, WithPrimary(b))
	require.NoError(t, err)
	_, err = s.Add(ctx, "hello", []float32{1, 0}, Metadata{Source: "greeting"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	b2, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	s2, err := Open(ctx, WithPrimary(b2))
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, StatePrimaryActive, s2.State())
	assert.Equal(t, "sqlite", s2.ActiveBackend())
	require.Equal(t, 1, s2.Count())
	assert.Equal(t, "hello", s2.GetAllDocuments()[0].Text)
}
