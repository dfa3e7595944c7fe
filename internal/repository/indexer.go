package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/ignore"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// ErrInvalidOptions is returned for bad paths, patterns or limits.
var ErrInvalidOptions = errors.New("repository: invalid index options")

// defaultSkipDirs hold VCS data, dependencies or build output.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"target":       true,
}

// SkipDir reports whether a directory with this base name is never indexed.
func SkipDir(name string) bool {
	return defaultSkipDirs[name]
}

// DocumentProcessor ingests one document. *ingest.Processor satisfies it.
type DocumentProcessor interface {
	Process(ctx context.Context, doc ingest.Document) (ingest.Result, error)
}

var _ DocumentProcessor = (*ingest.Processor)(nil)

// Indexer bulk-ingests directories and git repositories.
type Indexer struct {
	processor DocumentProcessor
	logger    *zap.Logger
	cloner    cloner
}

// NewIndexer returns an Indexer feeding processor.
func NewIndexer(processor DocumentProcessor, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{processor: processor, logger: logger, cloner: gitCloner{depth: 1}}
}

// IndexDirectory ingests every matching file under dir. Files the
// extractor cannot read are counted as skipped; other per-file failures
// are collected in the result. Unavailable embeddings, persistence
// failures and cancellation abort the run.
func (ix *Indexer) IndexDirectory(ctx context.Context, dir string, opts IndexOptions) (*IndexResult, error) {
	root, err := validatePath(dir)
	if err != nil {
		return nil, err
	}
	if err := normalizeOptions(&opts); err != nil {
		return nil, err
	}

	res := &IndexResult{
		Path:            root,
		IncludePatterns: opts.IncludePatterns,
		ExcludePatterns: opts.ExcludePatterns,
		MaxFileSize:     opts.MaxFileSize,
	}
	res.Branch, res.Commit = detectGitHead(root)

	var ignored *ignore.Matcher
	if !opts.NoIgnoreFiles {
		if ignored, err = ignore.Load(root); err != nil {
			return nil, fmt.Errorf("reading ignore files: %w", err)
		}
		res.IgnorePatterns = ignored.Patterns()
	}

	logger := ix.logger.With(zap.String("path", root))
	logger.Info("repository: index started",
		zap.Strings("include", opts.IncludePatterns),
		zap.Strings("exclude", opts.ExcludePatterns))

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if defaultSkipDirs[d.Name()] || ignored.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ignored.Match(rel) {
			res.FilesIgnored++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", rel, err)
		}
		if !shouldIncludeFile(rel, info.Size(), opts) {
			return nil
		}
		return ix.indexFile(ctx, logger, p, rel, opts, res)
	})
	if err != nil {
		return res, fmt.Errorf("walking file tree: %w", err)
	}

	res.IndexedAt = time.Now().UTC()
	logger.Info("repository: index completed",
		zap.Int("files", res.FilesIndexed),
		zap.Int("skipped", res.FilesSkipped),
		zap.Int("ignored", res.FilesIgnored),
		zap.Int("failed", len(res.Failed)),
		zap.Int("chunks", res.Chunks))
	return res, nil
}

func (ix *Indexer) indexFile(ctx context.Context, logger *zap.Logger, p, rel string, opts IndexOptions, res *IndexResult) error {
	content, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("reading %s: %w", rel, err)
	}

	source := opts.SourcePrefix + rel
	meta := map[string]any{"file_path": rel, "extension": path.Ext(rel)}
	for k, v := range opts.Metadata {
		meta[k] = v
	}

	out, err := ix.processor.Process(ctx, ingest.Document{
		Source:   source,
		Name:     rel,
		Content:  content,
		Metadata: meta,
		Replace:  true,
	})
	switch {
	case err == nil:
		res.FilesIndexed++
		res.Chunks += out.NumChunks
		res.Redactions += out.Redactions
		return nil
	case errors.Is(err, ingest.ErrParse):
		res.FilesSkipped++
		logger.Debug("repository: skipped unreadable file", zap.String("source", source), zap.Error(err))
		return nil
	case isFatal(err):
		return fmt.Errorf("indexing %s: %w", rel, err)
	default:
		res.Failed = append(res.Failed, FileError{Source: source, Error: err.Error()})
		logger.Warn("repository: file failed", zap.String("source", source), zap.Error(err))
		return nil
	}
}

// isFatal reports errors that would fail every remaining file too.
func isFatal(err error) bool {
	return errors.Is(err, embeddings.ErrEmbeddingUnavailable) ||
		errors.Is(err, vectorstore.ErrPersistence) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func validatePath(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: path cannot be empty", ErrInvalidOptions)
	}
	clean, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	info, err := os.Stat(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: path does not exist: %s", ErrInvalidOptions, clean)
		}
		return "", fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: path must be a directory: %s", ErrInvalidOptions, clean)
	}
	return clean, nil
}

func normalizeOptions(opts *IndexOptions) error {
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MaxFileSize < 0 || opts.MaxFileSize > MaxFileSizeLimit {
		return fmt.Errorf("%w: max_file_size must be between 1 and %d", ErrInvalidOptions, MaxFileSizeLimit)
	}
	for _, p := range append(append([]string{}, opts.IncludePatterns...), opts.ExcludePatterns...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%w: invalid pattern %q", ErrInvalidOptions, p)
		}
	}
	return nil
}

func shouldIncludeFile(rel string, size int64, opts IndexOptions) bool {
	if size > opts.MaxFileSize {
		return false
	}
	for _, p := range opts.ExcludePatterns {
		if matchPattern(p, rel) {
			return false
		}
	}
	if len(opts.IncludePatterns) == 0 {
		return true
	}
	for _, p := range opts.IncludePatterns {
		if matchPattern(p, rel) {
			return true
		}
	}
	return false
}

// matchPattern matches rel against pattern; slash-free patterns also match
// the base name.
func matchPattern(pattern, rel string) bool {
	if ok, _ := doublestar.Match(pattern, rel); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, path.Base(rel))
		return ok
	}
	return false
}

// detectGitHead returns the branch and commit of a checkout, or empty
// strings when dir is not a repository or HEAD is detached.
func detectGitHead(dir string) (branch, commit string) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", ""
	}
	head, err := repo.Head()
	if err != nil {
		return "", ""
	}
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	return branch, head.Hash().String()
}
