package ignore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"# comment", nil},
		{"!keep.txt", nil},
		{"/", nil},
		{"*.log", []string{"**/*.log", "**/*.log/**"}},
		{"node_modules/", []string{"**/node_modules/**"}},
		{"/dist", []string{"dist", "dist/**"}},
		{"docs/*.md", []string{"docs/*.md", "docs/*.md/**"}},
		{"**/build", []string{"**/build", "**/build/**"}},
		{"tmp/**", []string{"tmp/**"}},
		{`\#notes`, []string{"**/#notes", "**/#notes/**"}},
		{"secret.env  ", []string{"**/secret.env", "**/secret.env/**"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, Convert(tt.line))
		})
	}
}

func TestMatcher_Match(t *testing.T) {
	patterns, err := Parse(strings.NewReader("*.log\nnode_modules/\n/dist\ndocs/drafts/\n"))
	require.NoError(t, err)
	m := New(patterns...)

	ignored := []string{
		"app.log",
		"sub/dir/app.log",
		"node_modules/x/index.js",
		"web/node_modules/y.js",
		"dist/bundle.js",
		"docs/drafts/todo.md",
	}
	for _, p := range ignored {
		assert.True(t, m.Match(p), p)
	}

	kept := []string{
		"README.md",
		"src/dist/keep.go",
		"docs/guide.md",
		"logs/readme.txt",
	}
	for _, p := range kept {
		assert.False(t, m.Match(p), p)
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"),
		[]byte("# build\nbuild/\n*.pyc\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".ragdignore"),
		[]byte("build/\nfixtures/\n"), 0o644))

	m, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"**/build/**",
		"**/*.pyc",
		"**/*.pyc/**",
		"**/fixtures/**",
	}, m.Patterns())
	assert.True(t, m.Match("pkg/build/out.o"))
	assert.True(t, m.Match("fixtures/a.json"))
}

func TestLoad_NoFiles(t *testing.T) {
	m, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Match("anything.txt"))
}

func TestMatcher_Nil(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Match("a"))
	assert.Nil(t, m.Patterns())
	assert.Equal(t, 0, m.Len())
}
