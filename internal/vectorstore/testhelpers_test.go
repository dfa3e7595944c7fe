package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

// faultyBackend wraps a MemoryBackend and fails selected operations.
type faultyBackend struct {
	*MemoryBackend
	name string

	mu         sync.Mutex
	failPing   bool
	failGetAll bool
	failWrites bool
	inserts    int
}

func newFaultyBackend(name string) *faultyBackend {
	return &faultyBackend{MemoryBackend: NewMemoryBackend(), name: name}
}

func (f *faultyBackend) Name() string { return f.name }

func (f *faultyBackend) setFailWrites(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = v
}

func (f *faultyBackend) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPing {
		return errInjected
	}
	return nil
}

func (f *faultyBackend) GetAll(ctx context.Context) ([]ChunkRecord, error) {
	f.mu.Lock()
	fail := f.failGetAll
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.MemoryBackend.GetAll(ctx)
}

func (f *faultyBackend) InsertOne(ctx context.Context, rec ChunkRecord) error {
	f.mu.Lock()
	fail := f.failWrites
	f.inserts++
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.MemoryBackend.InsertOne(ctx, rec)
}

func (f *faultyBackend) DeleteMany(ctx context.Context, source string) (int, error) {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return 0, errInjected
	}
	return f.MemoryBackend.DeleteMany(ctx, source)
}

func (f *faultyBackend) Clear(ctx context.Context) error {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.MemoryBackend.Clear(ctx)
}

// sequentialIDs returns an id generator producing id-1, id-2, ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// freezeTime pins timeNow for the duration of the test.
func freezeTime(t *testing.T, ts time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return ts }
	t.Cleanup(func() { timeNow = prev })
}

func openMemoryStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithPrimary(NewMemoryBackend()), WithIDGenerator(sequentialIDs())}, opts...)
	s, err := Open(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func meta(source string, idx, total int) Metadata {
	return Metadata{Source: source, ChunkIndex: idx, TotalChunks: total}
}
