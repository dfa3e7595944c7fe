package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const openAIKeyDoc = `
Setup notes for the billing service.
const apiKey = "sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz"
`

func writeAllowlist(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowlist.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAllowlist(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		a, err := LoadAllowlist("")
		require.NoError(t, err)
		assert.True(t, a.Empty())
	})

	t.Run("missing file", func(t *testing.T) {
		a, err := LoadAllowlist(filepath.Join(t.TempDir(), "nope.toml"))
		require.NoError(t, err)
		assert.True(t, a.Empty())
	})

	t.Run("valid file", func(t *testing.T) {
		path := writeAllowlist(t, `[allowlist]
paths = ['''^fixtures/''']
regexes = ['''EXAMPLE_[0-9]+''', '''DEMO_KEY''']
`)
		a, err := LoadAllowlist(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"^fixtures/"}, a.Paths)
		assert.Len(t, a.Regexes, 2)
	})

	t.Run("invalid toml", func(t *testing.T) {
		path := writeAllowlist(t, "[allowlist\nregexes = ")
		_, err := LoadAllowlist(path)
		require.ErrorIs(t, err, ErrInvalidTOML)
	})

	t.Run("invalid regex", func(t *testing.T) {
		path := writeAllowlist(t, `[allowlist]
regexes = ['''([a-z''']
`)
		_, err := LoadAllowlist(path)
		require.ErrorIs(t, err, ErrInvalidRegex)
	})
}

func TestReplaceFindings(t *testing.T) {
	content := "token=abc123secret\nagain abc123secret\nlong abc123secretEXTRA"
	findings := []Finding{
		{RuleID: "short", Match: "abc123secret"},
		{RuleID: "long", Match: "abc123secretEXTRA"},
		{RuleID: "short", Match: "abc123secret"},
	}
	byRule := map[string]int{}

	out, n := replaceFindings(content, findings, byRule)
	assert.Equal(t, "token=[REDACTED:short]\nagain [REDACTED:short]\nlong [REDACTED:long]", out)
	assert.Equal(t, 3, n)
	assert.Equal(t, map[string]int{"short": 2, "long": 1}, byRule)
}

func TestReplaceFindings_None(t *testing.T) {
	out, n := replaceFindings("clean", nil, map[string]int{})
	assert.Equal(t, "clean", out)
	assert.Zero(t, n)
}

func TestScrubber_CleanText(t *testing.T) {
	s, err := NewScrubber("", nil)
	require.NoError(t, err)

	res := s.Scrub("docs/readme.md", "Our refund window is thirty days.")
	assert.Equal(t, "Our refund window is thirty days.", res.Content)
	assert.Zero(t, res.Redactions)
}

func TestScrubber_RedactsKey(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s, err := NewScrubber("", zap.New(core))
	require.NoError(t, err)

	res := s.Scrub("notes.md", openAIKeyDoc)
	require.Positive(t, res.Redactions)
	assert.Contains(t, res.Content, "[REDACTED:")
	assert.Contains(t, res.Content, "Setup notes for the billing service.")
	assert.Equal(t, 1, logs.FilterMessage("secrets: redacted document content").Len())
}

func TestScrubber_AllowlistedPath(t *testing.T) {
	path := writeAllowlist(t, `[allowlist]
paths = ['''^fixtures/''']
`)
	s, err := NewScrubber(path, nil)
	require.NoError(t, err)

	res := s.Scrub("fixtures/keys.md", openAIKeyDoc)
	assert.Equal(t, openAIKeyDoc, res.Content)
	assert.Zero(t, res.Redactions)
}

func TestNewScrubber_BadAllowlist(t *testing.T) {
	path := writeAllowlist(t, "not = [valid")
	_, err := NewScrubber(path, nil)
	require.ErrorIs(t, err, ErrInvalidTOML)
}
