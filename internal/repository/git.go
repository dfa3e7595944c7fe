package repository

import (
	"context"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

type cloner interface {
	clone(ctx context.Context, url, ref, dir string) error
}

type gitCloner struct {
	depth int
}

// clone tries ref as a branch, then as a tag. An empty ref clones the
// remote HEAD.
func (g gitCloner) clone(ctx context.Context, url, ref, dir string) error {
	if ref == "" {
		_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:          url,
			Depth:        g.depth,
			SingleBranch: true,
		})
		return err
	}

	var lastErr error
	for _, name := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(ref),
		plumbing.NewTagReferenceName(ref),
	} {
		_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:           url,
			ReferenceName: name,
			Depth:         g.depth,
			SingleBranch:  true,
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return rmErr
		}
	}
	return lastErr
}

// IndexGit clones url at ref into a temporary directory and indexes it.
// Sources take the form "url@ref:relative/path"; ref is "HEAD" when empty.
func (ix *Indexer) IndexGit(ctx context.Context, url, ref string, opts IndexOptions) (*IndexResult, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: git url cannot be empty", ErrInvalidOptions)
	}

	tmp, err := os.MkdirTemp("", "ragd-clone-*")
	if err != nil {
		return nil, fmt.Errorf("creating clone dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			ix.logger.Warn("repository: clone cleanup failed", zap.String("dir", tmp), zap.Error(err))
		}
	}()

	ix.logger.Info("repository: cloning", zap.String("url", url), zap.String("ref", ref))
	if err := ix.cloner.clone(ctx, url, ref, tmp); err != nil {
		return nil, fmt.Errorf("cloning %s: %w", url, err)
	}

	label := ref
	if label == "" {
		label = "HEAD"
	}
	opts.SourcePrefix = url + "@" + label + ":" + opts.SourcePrefix
	meta := maps.Clone(opts.Metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["repository"] = url
	meta["ref"] = label
	opts.Metadata = meta

	res, err := ix.IndexDirectory(ctx, tmp, opts)
	if res != nil {
		res.Path = url
	}
	return res, err
}
