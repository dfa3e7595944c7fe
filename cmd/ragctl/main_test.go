package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragdhttp "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
)

// execute runs ragctl against srv and returns stdout.
func execute(t *testing.T, srv *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	if srv != nil {
		args = append([]string{"--server", srv.URL}, args...)
	}
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestIngestText(t *testing.T) {
	var got ragdhttp.IngestTextRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"source":"notes/today","num_chunks":1,"redactions":1}`))
	}))
	defer srv.Close()

	out, err := execute(t, srv, "", "ingest", "--source", "notes/today", "--text", "deploy tuesday", "-m", "team=ops")
	require.NoError(t, err)
	assert.Equal(t, "deploy tuesday", got.Text)
	assert.Equal(t, "ops", got.Metadata["team"])
	assert.Contains(t, out, "Indexed notes/today: 1 chunks, 1 secrets redacted")
}

func TestIngestStdinRequiresSource(t *testing.T) {
	_, err := execute(t, nil, "hello", "ingest", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--source is required")
}

func TestIngestFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	require.NoError(t, os.WriteFile(path, []byte("# Guide"), 0o600))

	var source string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source = r.FormValue("source")
		_, _ = w.Write([]byte(`{"source":"` + source + `","num_chunks":2,"replaced":3}`))
	}))
	defer srv.Close()

	out, err := execute(t, srv, "", "ingest", "--replace", path)
	require.NoError(t, err)
	assert.Equal(t, filepath.ToSlash(path), source)
	assert.Contains(t, out, "2 chunks, replaced 3")
}

func TestIngestValidation(t *testing.T) {
	_, err := execute(t, nil, "", "ingest")
	assert.Error(t, err)
	_, err = execute(t, nil, "", "ingest", "--text", "x", "a.md")
	assert.Error(t, err)
	_, err = execute(t, nil, "", "ingest", "--source", "s", "a.md", "b.md")
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	var got ragdhttp.QueryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(retrieval.Result{
			Success: true,
			Message: "Deploys happen on Tuesdays.",
			Sources: []retrieval.Source{{Source: "notes/today", Preview: "deploy tuesday", Score: 0.82}},
		})
	}))
	defer srv.Close()

	out, err := execute(t, srv, "", "query", "-k", "3", "--temperature", "0", "when", "do", "we", "deploy?")
	require.NoError(t, err)
	assert.Equal(t, "when do we deploy?", got.Query)
	assert.Equal(t, 3, got.TopK)
	require.NotNil(t, got.Temperature)
	assert.Zero(t, *got.Temperature)
	assert.Contains(t, out, "Deploys happen on Tuesdays.")
	assert.Contains(t, out, "0.820")
	assert.Contains(t, out, "notes/today")
}

func TestQueryOmitsUnsetTemperature(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","sources":[]}`))
	}))
	defer srv.Close()

	_, err := execute(t, srv, "", "query", "x")
	require.NoError(t, err)
	assert.NotContains(t, raw, "temperature")
}

func TestServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"embedding capability unavailable"}`))
	}))
	defer srv.Close()

	_, err := execute(t, srv, "", "search", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClearRequiresYes(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		_, _ = w.Write([]byte(`{"cleared":true}`))
	}))
	defer srv.Close()

	_, err := execute(t, srv, "", "clear")
	require.Error(t, err)
	assert.False(t, called)

	out, err := execute(t, srv, "", "clear", "--yes")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, out, "Index cleared")
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"degraded","version":"1.0.0","store":{"state":"fallback","backend":"file","chunks":7,"dimension":384}}`))
	}))
	defer srv.Close()

	out, err := execute(t, srv, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Server Status: degraded")
	assert.Contains(t, out, "file (fallback)")
	assert.Contains(t, out, "Chunks:        7")

	out, err = execute(t, srv, "", "--json", "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"backend": "file"`)
}

func TestIndexValidation(t *testing.T) {
	_, err := execute(t, nil, "", "index")
	assert.Error(t, err)
	_, err = execute(t, nil, "", "index", "/srv", "--git", "https://example.com/r.git")
	assert.Error(t, err)
}

func TestDurableInputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha"), 0o600))

	inputs, err := durableInputs(strings.NewReader(""), "", "", []string{path}, map[string]any{"k": "v"}, true)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, filepath.ToSlash(path), inputs[0].Source)
	assert.Equal(t, "a.txt", inputs[0].Name)
	assert.Equal(t, []byte("alpha"), inputs[0].Content)
	assert.True(t, inputs[0].Replace)

	inputs, err = durableInputs(strings.NewReader("from stdin"), "s", "", []string{"-"}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", inputs[0].Text)

	_, err = durableInputs(strings.NewReader("x"), "", "", []string{"-"}, nil, false)
	assert.Error(t, err)
}
