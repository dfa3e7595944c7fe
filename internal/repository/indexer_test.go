package repository

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
)

type fakeProcessor struct {
	mu   sync.Mutex
	docs []ingest.Document
	errs map[string]error
}

func (f *fakeProcessor) Process(_ context.Context, doc ingest.Document) (ingest.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.HasSuffix(doc.Name, ".bin") {
		return ingest.Result{}, ingest.ErrParse
	}
	if err := f.errs[doc.Name]; err != nil {
		return ingest.Result{}, err
	}
	f.docs = append(f.docs, doc)
	return ingest.Result{Source: doc.Source, NumChunks: 2}, nil
}

func (f *fakeProcessor) sources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.docs))
	for i, d := range f.docs {
		out[i] = d.Source
	}
	sort.Strings(out)
	return out
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func sampleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"README.md":             "# Project",
		"docs/guide.md":         "Guide text",
		"docs/api/ref.txt":      "Reference",
		"node_modules/lib/x.js": "ignored",
		".git/config":           "ignored",
		"assets/logo.bin":       "\x00\x01",
		"notes/big.txt":         strings.Repeat("a", 2048),
		"src/main.go":           "package main",
	})
	return root
}

func TestIndexDirectory(t *testing.T) {
	root := sampleTree(t)
	proc := &fakeProcessor{}
	ix := NewIndexer(proc, nil)

	res, err := ix.IndexDirectory(context.Background(), root, IndexOptions{MaxFileSize: 1024})
	require.NoError(t, err)

	assert.Equal(t, []string{"README.md", "docs/api/ref.txt", "docs/guide.md", "src/main.go"}, proc.sources())
	assert.Equal(t, 4, res.FilesIndexed)
	assert.Equal(t, 1, res.FilesSkipped)
	assert.Equal(t, 8, res.Chunks)
	assert.Empty(t, res.Failed)
	assert.Empty(t, res.Commit)
	assert.False(t, res.IndexedAt.IsZero())

	for _, d := range proc.docs {
		assert.True(t, d.Replace, d.Source)
		assert.Equal(t, d.Source, d.Metadata["file_path"])
		assert.NotEmpty(t, d.Content)
	}
}

func TestIndexDirectory_Patterns(t *testing.T) {
	tests := []struct {
		name string
		opts IndexOptions
		want []string
	}{
		{
			name: "include doublestar",
			opts: IndexOptions{IncludePatterns: []string{"**/*.md"}},
			want: []string{"README.md", "docs/guide.md"},
		},
		{
			name: "include base name",
			opts: IndexOptions{IncludePatterns: []string{"*.txt"}},
			want: []string{"docs/api/ref.txt"},
		},
		{
			name: "exclude directory",
			opts: IndexOptions{ExcludePatterns: []string{"docs/**"}},
			want: []string{"README.md", "src/main.go"},
		},
		{
			name: "exclude wins",
			opts: IndexOptions{IncludePatterns: []string{"docs/**"}, ExcludePatterns: []string{"*.txt"}},
			want: []string{"docs/guide.md"},
		},
		{
			name: "prefix",
			opts: IndexOptions{IncludePatterns: []string{"src/*.go"}, SourcePrefix: "proj:"},
			want: []string{"proj:src/main.go"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcessor{}
			tt.opts.MaxFileSize = 1024
			_, err := NewIndexer(proc, nil).IndexDirectory(context.Background(), sampleTree(t), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, proc.sources())
		})
	}
}

func TestIndexDirectory_IgnoreFiles(t *testing.T) {
	root := sampleTree(t)
	writeTree(t, root, map[string]string{
		".gitignore":  "/docs/api\n*.go\n",
		".ragdignore": "/notes\n",
	})

	proc := &fakeProcessor{}
	res, err := NewIndexer(proc, nil).IndexDirectory(context.Background(), root,
		IndexOptions{IncludePatterns: []string{"**/*.md", "**/*.go", "**/*.txt"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "docs/guide.md"}, proc.sources())
	assert.Equal(t, 1, res.FilesIgnored)
	assert.Contains(t, res.IgnorePatterns, "docs/api")

	proc = &fakeProcessor{}
	_, err = NewIndexer(proc, nil).IndexDirectory(context.Background(), root,
		IndexOptions{IncludePatterns: []string{"**/*.go"}, NoIgnoreFiles: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.go"}, proc.sources())
}

func TestIndexDirectory_InvalidOptions(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	ix := NewIndexer(&fakeProcessor{}, nil)
	ctx := context.Background()

	cases := map[string]struct {
		path string
		opts IndexOptions
	}{
		"empty path":   {path: ""},
		"missing path": {path: filepath.Join(root, "nope")},
		"file path":    {path: file},
		"bad pattern":  {path: root, opts: IndexOptions{IncludePatterns: []string{"[a-"}}},
		"too large":    {path: root, opts: IndexOptions{MaxFileSize: MaxFileSizeLimit + 1}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ix.IndexDirectory(ctx, tc.path, tc.opts)
			require.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestIndexDirectory_FailureHandling(t *testing.T) {
	t.Run("per-file failure is collected", func(t *testing.T) {
		proc := &fakeProcessor{errs: map[string]error{"src/main.go": errors.New("boom")}}
		res, err := NewIndexer(proc, nil).IndexDirectory(context.Background(), sampleTree(t), IndexOptions{MaxFileSize: 1024})
		require.NoError(t, err)
		assert.Equal(t, 3, res.FilesIndexed)
		require.Len(t, res.Failed, 1)
		assert.Equal(t, "src/main.go", res.Failed[0].Source)
	})

	t.Run("unavailable embeddings abort", func(t *testing.T) {
		proc := &fakeProcessor{errs: map[string]error{"README.md": embeddings.ErrEmbeddingUnavailable}}
		_, err := NewIndexer(proc, nil).IndexDirectory(context.Background(), sampleTree(t), IndexOptions{MaxFileSize: 1024})
		require.ErrorIs(t, err, embeddings.ErrEmbeddingUnavailable)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewIndexer(&fakeProcessor{}, nil).IndexDirectory(ctx, sampleTree(t), IndexOptions{})
		require.ErrorIs(t, err, context.Canceled)
	})
}

type stubCloner struct {
	files   map[string]string
	gotURL  string
	gotRef  string
	cloneTo string
}

func (s *stubCloner) clone(_ context.Context, url, ref, dir string) error {
	s.gotURL, s.gotRef, s.cloneTo = url, ref, dir
	for name, body := range s.files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func TestIndexGit_SourcePrefix(t *testing.T) {
	proc := &fakeProcessor{}
	stub := &stubCloner{files: map[string]string{"README.md": "hello", "docs/a.md": "a"}}
	ix := NewIndexer(proc, nil)
	ix.cloner = stub

	callerMeta := map[string]any{"team": "docs"}
	res, err := ix.IndexGit(context.Background(), "https://example.com/org/repo.git", "main",
		IndexOptions{Metadata: callerMeta})
	require.NoError(t, err)

	assert.Equal(t, "main", stub.gotRef)
	assert.Equal(t, "https://example.com/org/repo.git", res.Path)
	assert.Equal(t, []string{
		"https://example.com/org/repo.git@main:README.md",
		"https://example.com/org/repo.git@main:docs/a.md",
	}, proc.sources())
	assert.Equal(t, "https://example.com/org/repo.git", proc.docs[0].Metadata["repository"])
	assert.Equal(t, "docs", proc.docs[0].Metadata["team"])
	assert.NotContains(t, callerMeta, "repository")

	_, statErr := os.Stat(stub.cloneTo)
	assert.True(t, os.IsNotExist(statErr), "clone dir should be removed")
}

func TestIndexGit_EmptyURL(t *testing.T) {
	_, err := NewIndexer(&fakeProcessor{}, nil).IndexGit(context.Background(), " ", "", IndexOptions{})
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestIndexGit_LocalRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available for the file transport")
	}

	src := t.TempDir()
	repo, err := git.PlainInit(src, false)
	require.NoError(t, err)
	writeTree(t, src, map[string]string{"guide.md": "Install with make."})
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("guide.md")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "ragd", Email: "ragd@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	proc := &fakeProcessor{}
	ix := NewIndexer(proc, nil)
	ix.cloner = gitCloner{}

	res, err := ix.IndexGit(context.Background(), src, "", IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesIndexed)
	assert.Equal(t, hash.String(), res.Commit)
	assert.Equal(t, []string{src + "@HEAD:guide.md"}, proc.sources())
}

func TestMatchPattern(t *testing.T) {
	assert.True(t, matchPattern("*.md", "docs/deep/a.md"))
	assert.True(t, matchPattern("docs/**", "docs/deep/a.md"))
	assert.False(t, matchPattern("docs/*.md", "docs/deep/a.md"))
	assert.True(t, matchPattern("**/deep/*.md", "docs/deep/a.md"))
}
