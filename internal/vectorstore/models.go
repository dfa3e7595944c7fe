package vectorstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reserved metadata keys. They are always present on a stored chunk and
// cannot be overridden through Metadata.Extra.
const (
	KeySource      = "source"
	KeyChunkIndex  = "chunkIndex"
	KeyTotalChunks = "totalChunks"
	KeyAddedAt     = "addedAt"
)

// Metadata describes where a chunk came from. Extra holds caller-supplied
// keys that are passed through unchanged.
type Metadata struct {
	// Source identifies the originating document.
	Source string

	// ChunkIndex is the 0-based position of the chunk within Source.
	ChunkIndex int

	// TotalChunks is the number of chunks Source was split into.
	TotalChunks int

	// AddedAt is stamped by the store on insertion.
	AddedAt time.Time

	// Extra contains any additional caller metadata.
	Extra map[string]any
}

// ChunkRecord is the unit of storage.
type ChunkRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	Metadata  Metadata  `json:"metadata"`
}

// SearchResult is a stored chunk paired with its similarity to a query.
type SearchResult struct {
	Record ChunkRecord
	Score  float32
}

// SourceSummary aggregates the chunks stored for a single source.
type SourceSummary struct {
	Source  string    `json:"source"`
	Chunks  int       `json:"chunks"`
	AddedAt time.Time `json:"added_at"`
}

func isReservedKey(k string) bool {
	switch k {
	case KeySource, KeyChunkIndex, KeyTotalChunks, KeyAddedAt:
		return true
	}
	return false
}

// Map returns the metadata as a flat map, extras first and reserved keys
// on top.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}
	out[KeySource] = m.Source
	out[KeyChunkIndex] = m.ChunkIndex
	out[KeyTotalChunks] = m.TotalChunks
	out[KeyAddedAt] = m.AddedAt.UTC().Format(time.RFC3339Nano)
	return out
}

// MarshalJSON flattens Extra next to the reserved keys.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

// UnmarshalJSON splits reserved keys from extras.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := MetadataFromMap(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MetadataFromMap builds Metadata from a flat key/value map such as a
// decoded JSON object or a backend payload.
func MetadataFromMap(raw map[string]any) (Metadata, error) {
	var m Metadata
	for k, v := range raw {
		switch k {
		case KeySource:
			s, ok := v.(string)
			if !ok {
				return Metadata{}, fmt.Errorf("%w: %s must be a string", ErrInvalidMetadata, k)
			}
			m.Source = s
		case KeyChunkIndex:
			n, ok := toInt(v)
			if !ok {
				return Metadata{}, fmt.Errorf("%w: %s must be an integer", ErrInvalidMetadata, k)
			}
			m.ChunkIndex = n
		case KeyTotalChunks:
			n, ok := toInt(v)
			if !ok {
				return Metadata{}, fmt.Errorf("%w: %s must be an integer", ErrInvalidMetadata, k)
			}
			m.TotalChunks = n
		case KeyAddedAt:
			ts, err := toTime(v)
			if err != nil {
				return Metadata{}, fmt.Errorf("%w: %s: %v", ErrInvalidMetadata, k, err)
			}
			m.AddedAt = ts
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return m, nil
}

// normalize fills defaults and strips reserved keys from Extra. A lone
// record with no chunk accounting is treated as chunk 0 of 1.
func (m Metadata) normalize() Metadata {
	if m.TotalChunks == 0 && m.ChunkIndex == 0 {
		m.TotalChunks = 1
	}
	if len(m.Extra) > 0 {
		extra := make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			if !isReservedKey(k) {
				extra[k] = v
			}
		}
		m.Extra = extra
	}
	return m
}

// Validate reports whether the metadata can be stored.
func (m Metadata) Validate() error {
	if m.Source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidMetadata)
	}
	if m.ChunkIndex < 0 {
		return fmt.Errorf("%w: chunkIndex %d is negative", ErrInvalidMetadata, m.ChunkIndex)
	}
	if m.ChunkIndex >= m.TotalChunks {
		return fmt.Errorf("%w: chunkIndex %d must be below totalChunks %d", ErrInvalidMetadata, m.ChunkIndex, m.TotalChunks)
	}
	return nil
}

// clone returns a deep-enough copy for handing records out of the store.
func (r ChunkRecord) clone() ChunkRecord {
	out := r
	if r.Embedding != nil {
		out.Embedding = append([]float32(nil), r.Embedding...)
	}
	if r.Metadata.Extra != nil {
		out.Metadata.Extra = make(map[string]any, len(r.Metadata.Extra))
		for k, v := range r.Metadata.Extra {
			out.Metadata.Extra[k] = v
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}
