package vectorstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_JSONFlattensExtras(t *testing.T) {
	m := Metadata{
		Source:      "guide.pdf",
		ChunkIndex:  1,
		TotalChunks: 3,
		AddedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Extra:       map[string]any{"lang": "en"},
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "guide.pdf", flat["source"])
	assert.Equal(t, float64(1), flat["chunkIndex"])
	assert.Equal(t, float64(3), flat["totalChunks"])
	assert.Equal(t, "2026-01-02T03:04:05Z", flat["addedAt"])
	assert.Equal(t, "en", flat["lang"])

	var back Metadata
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.Source, back.Source)
	assert.Equal(t, m.ChunkIndex, back.ChunkIndex)
	assert.Equal(t, m.TotalChunks, back.TotalChunks)
	assert.True(t, m.AddedAt.Equal(back.AddedAt))
	assert.Equal(t, map[string]any{"lang": "en"}, back.Extra)
}

func TestMetadataFromMap_RejectsBadTypes(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"source not string", map[string]any{"source": 12}},
		{"index not integer", map[string]any{"chunkIndex": "one"}},
		{"fractional total", map[string]any{"totalChunks": 1.5}},
		{"bad timestamp", map[string]any{"addedAt": "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MetadataFromMap(tt.raw)
			require.ErrorIs(t, err, ErrInvalidMetadata)
		})
	}
}

func TestMetadata_Normalize(t *testing.T) {
	m := Metadata{Source: "a", Extra: map[string]any{"chunkIndex": 9, "keep": true}}.normalize()
	assert.Equal(t, 1, m.TotalChunks)
	assert.Equal(t, map[string]any{"keep": true}, m.Extra)
	assert.NoError(t, m.Validate())
}
