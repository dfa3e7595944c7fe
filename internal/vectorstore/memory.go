package vectorstore

import (
	"context"
	"sync"
)

// MemoryBackend keeps records in process memory only. It is the last
// resort fallback and the backend used in tests.
type MemoryBackend struct {
	mu      sync.Mutex
	records []ChunkRecord
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return "memory" }

// GetAll implements Backend.
func (m *MemoryBackend) GetAll(_ context.Context) ([]ChunkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChunkRecord, len(m.records))
	for i, r := range m.records {
		out[i] = r.clone()
	}
	return out, nil
}

// InsertOne implements Backend.
func (m *MemoryBackend) InsertOne(_ context.Context, rec ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec.clone())
	return nil
}

// DeleteMany implements Backend.
func (m *MemoryBackend) DeleteMany(_ context.Context, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	removed := 0
	for _, r := range m.records {
		if r.Metadata.Source == source {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return removed, nil
}

// Clear implements Backend.
func (m *MemoryBackend) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}

// Seed implements Seeder.
func (m *MemoryBackend) Seed(_ context.Context, records []ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make([]ChunkRecord, len(records))
	for i, r := range records {
		m.records[i] = r.clone()
	}
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Seeder  = (*MemoryBackend)(nil)
)
