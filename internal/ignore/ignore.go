// Package ignore turns gitignore-style files into doublestar patterns used
// to exclude files from repository indexing.
//
// Supported syntax covers blank lines, # comments, trailing-slash directory
// entries, leading-slash anchoring and the usual * ? [..] ** globs.
// Negations (!pattern) are dropped: a file excluded once stays excluded.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultFiles are the ignore files read from an index root.
var DefaultFiles = []string{".gitignore", ".ragdignore"}

// Matcher reports whether a slash-separated relative path is ignored.
type Matcher struct {
	patterns []string
}

// Load reads files (DefaultFiles when empty) from root. Missing files are
// skipped; a root without any yields an empty Matcher.
func Load(root string, files ...string) (*Matcher, error) {
	if len(files) == 0 {
		files = DefaultFiles
	}
	m := &Matcher{}
	for _, name := range files {
		f, err := os.Open(filepath.Join(root, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		patterns, err := Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		m.add(patterns...)
	}
	return m, nil
}

// New returns a Matcher over already converted patterns.
func New(patterns ...string) *Matcher {
	m := &Matcher{}
	m.add(patterns...)
	return m
}

func (m *Matcher) add(patterns ...string) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			continue
		}
		dup := false
		for _, have := range m.patterns {
			if have == p {
				dup = true
				break
			}
		}
		if !dup {
			m.patterns = append(m.patterns, p)
		}
	}
}

// Patterns returns the doublestar patterns in file order.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

// Len is the number of patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

// Match reports whether rel is ignored.
func (m *Matcher) Match(rel string) bool {
	if m == nil {
		return false
	}
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Parse converts every line read from r.
func Parse(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out = append(out, Convert(sc.Text())...)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Convert translates one gitignore line. It returns nil for blank lines,
// comments and negations.
//
//	*.log         -> **/*.log, **/*.log/**
//	node_modules/ -> **/node_modules/**
//	/dist         -> dist, dist/**
//	docs/*.md     -> docs/*.md, docs/*.md/**
func Convert(line string) []string {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return nil
	}
	if strings.HasPrefix(line, `\#`) || strings.HasPrefix(line, `\!`) {
		line = line[1:]
	}

	dirOnly := strings.HasSuffix(line, "/")
	line = strings.TrimRight(line, "/")
	if line == "" {
		return nil
	}

	// A slash anywhere but the end anchors the entry to the root.
	anchored := strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return nil
	}
	if !anchored && !strings.HasPrefix(line, "**/") {
		line = "**/" + line
	}

	if dirOnly {
		return []string{line + "/**"}
	}
	if strings.HasSuffix(line, "/**") {
		return []string{line}
	}
	return []string{line, line + "/**"}
}
