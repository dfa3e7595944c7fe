// Package watcher keeps the store in sync with a directory on disk.
//
// Created and modified files are re-ingested once writes to them have
// been quiet for the debounce interval; deleted or renamed files have their
// chunks removed. Sources are slash-separated paths relative to the watched
// directory, the same form repository.IndexDirectory uses, so an initial
// bulk index and the watcher agree on source names.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/repository"
)

const (
	// DefaultDebounce is the quiet period before a changed file is ingested.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultMaxFileSize skips larger files.
	DefaultMaxFileSize int64 = 10 * 1024 * 1024
)

// ErrWatcherFailed indicates the filesystem watcher could not start.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DocumentSink ingests and removes documents. *ingest.Processor
// satisfies it.
type DocumentSink interface {
	Process(ctx context.Context, doc ingest.Document) (ingest.Result, error)
	Remove(ctx context.Context, source string) (int, error)
}

var _ DocumentSink = (*ingest.Processor)(nil)

// Watcher mirrors file changes under a directory into a DocumentSink.
type Watcher struct {
	dir         string
	sink        DocumentSink
	fs          *fsnotify.Watcher
	debounce    time.Duration
	maxFileSize int64
	prefix      string
	logger      *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithMaxFileSize skips files larger than n bytes.
func WithMaxFileSize(n int64) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.maxFileSize = n
		}
	}
}

// WithSourcePrefix prepends prefix to every source.
func WithSourcePrefix(prefix string) Option {
	return func(w *Watcher) { w.prefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a Watcher for dir. Call Run to start it.
func New(dir string, sink DocumentSink, opts ...Option) (*Watcher, error) {
	if sink == nil {
		return nil, errors.New("watcher: sink is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path must be a directory: %s", abs)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{
		dir:         abs,
		sink:        sink,
		fs:          fw,
		debounce:    DefaultDebounce,
		maxFileSize: DefaultMaxFileSize,
		logger:      zap.NewNop(),
		pending:     make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches until ctx is cancelled, then stops pending work and returns
// nil. Setup failures are returned immediately.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addTree(w.dir); err != nil {
		_ = w.Close()
		return err
	}
	w.logger.Info("watcher: started", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))

	defer func() { _ = w.Close() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher: fsnotify error", zap.Error(err))
		}
	}
}

// Close stops the watcher and waits for in-flight ingestion. It is safe
// to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if repository.SkipDir(info.Name()) {
				return
			}
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watcher: cannot watch new directory", zap.String("dir", ev.Name), zap.Error(err))
			}
			w.scheduleTree(ctx, ev.Name)
			return
		}
	}
	w.schedule(ctx, ev.Name)
}

// addTree watches root and every non-skipped directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.dir && repository.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

// scheduleTree queues files that appeared inside a new directory before
// it was watched.
func (w *Watcher) scheduleTree(ctx context.Context, root string) {
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != root && repository.SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		w.schedule(ctx, p)
		return nil
	})
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		if t.Stop() {
			t.Reset(w.debounce)
			return
		}
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.sync(ctx, path)
	})
	w.pending[path] = t
}

// sync ingests path if it is a regular file, otherwise removes its source.
func (w *Watcher) sync(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return
	}
	source := w.prefix + filepath.ToSlash(rel)
	logger := w.logger.With(zap.String("source", source))

	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("watcher: stat failed", zap.Error(err))
			return
		}
		n, err := w.sink.Remove(ctx, source)
		if err != nil {
			logger.Error("watcher: remove failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("watcher: removed source", zap.Int("chunks", n))
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}
	if info.Size() > w.maxFileSize {
		logger.Debug("watcher: file too large", zap.Int64("size", info.Size()))
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("watcher: read failed", zap.Error(err))
		return
	}
	res, err := w.sink.Process(ctx, ingest.Document{
		Source:   source,
		Name:     filepath.Base(path),
		Content:  content,
		Metadata: map[string]any{"file_path": filepath.ToSlash(rel)},
		Replace:  true,
	})
	switch {
	case errors.Is(err, ingest.ErrParse):
		logger.Debug("watcher: skipped unreadable file", zap.Error(err))
	case err != nil:
		logger.Error("watcher: ingest failed", zap.Error(err))
	default:
		logger.Info("watcher: ingested", zap.Int("chunks", res.NumChunks))
	}
}
