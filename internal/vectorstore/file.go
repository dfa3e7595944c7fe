package vectorstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// fileSnapshot is the on-disk layout of a FileBackend. Documents are
// written without their vectors; embeddings[i] belongs to documents[i].
type fileSnapshot struct {
	Documents   []ChunkRecord `json:"documents"`
	Embeddings  [][]float32   `json:"embeddings"`
	LastUpdated string        `json:"lastUpdated"`
}

// FileBackend persists the whole record set as one JSON file. Every write
// rewrites the file through a temp file and an atomic rename.
type FileBackend struct {
	path string

	mu      sync.Mutex
	loaded  bool
	records []ChunkRecord
}

// NewFileBackend returns a backend writing to path. The parent directory
// is created on first write.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: file backend path is required", ErrInvalidConfig)
	}
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return nil, fmt.Errorf("%w: file backend path contains directory traversal: %s", ErrInvalidConfig, path)
	}
	return &FileBackend{path: clean}, nil
}

// Name implements Backend.
func (f *FileBackend) Name() string { return "file" }

// Path returns the JSON file location.
func (f *FileBackend) Path() string { return f.path }

// GetAll implements Backend. A missing file is an empty store.
func (f *FileBackend) GetAll(_ context.Context) ([]ChunkRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]ChunkRecord, len(f.records))
	for i, r := range f.records {
		out[i] = r.clone()
	}
	return out, nil
}

// InsertOne implements Backend.
func (f *FileBackend) InsertOne(_ context.Context, rec ChunkRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureLoaded(); err != nil {
		return err
	}
	next := append(f.records[:len(f.records):len(f.records)], rec.clone())
	if err := f.flush(next); err != nil {
		return err
	}
	f.records = next
	return nil
}

// DeleteMany implements Backend.
func (f *FileBackend) DeleteMany(_ context.Context, source string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureLoaded(); err != nil {
		return 0, err
	}
	next := make([]ChunkRecord, 0, len(f.records))
	for _, r := range f.records {
		if r.Metadata.Source != source {
			next = append(next, r)
		}
	}
	removed := len(f.records) - len(next)
	if removed == 0 {
		return 0, nil
	}
	if err := f.flush(next); err != nil {
		return 0, err
	}
	f.records = next
	return removed, nil
}

// Clear implements Backend.
func (f *FileBackend) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.flush(nil); err != nil {
		return err
	}
	f.records = nil
	f.loaded = true
	return nil
}

// Seed implements Seeder by overwriting the file with records.
func (f *FileBackend) Seed(_ context.Context, records []ChunkRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make([]ChunkRecord, len(records))
	for i, r := range records {
		next[i] = r.clone()
	}
	if err := f.flush(next); err != nil {
		return err
	}
	f.records = next
	f.loaded = true
	return nil
}

// Close implements Backend.
func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) ensureLoaded() error {
	if f.loaded {
		return nil
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.records = nil
		f.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.path, err)
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding %s: %w", f.path, err)
	}
	if len(snap.Embeddings) != len(snap.Documents) {
		return fmt.Errorf("decoding %s: %d documents but %d embeddings", f.path, len(snap.Documents), len(snap.Embeddings))
	}
	records := make([]ChunkRecord, len(snap.Documents))
	for i, doc := range snap.Documents {
		doc.Embedding = snap.Embeddings[i]
		records[i] = doc
	}
	f.records = records
	f.loaded = true
	return nil
}

// flush writes records to disk with secure permissions from creation.
func (f *FileBackend) flush(records []ChunkRecord) error {
	snap := fileSnapshot{
		Documents:   make([]ChunkRecord, len(records)),
		Embeddings:  make([][]float32, len(records)),
		LastUpdated: timeNow().UTC().Format(time.RFC3339Nano),
	}
	for i, r := range records {
		snap.Embeddings[i] = r.Embedding
		r.Embedding = nil
		snap.Documents[i] = r
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating directory for %s: %w", f.path, err)
	}
	tmpPath := f.path + ".tmp." + randomSuffix()
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmpPath, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	tmp.Close()

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}

func randomSuffix() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

var (
	_ Backend = (*FileBackend)(nil)
	_ Seeder  = (*FileBackend)(nil)
)
