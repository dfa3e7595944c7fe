// Package client is a typed HTTP client for the ragd API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	ragdhttp "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
)

// DefaultTimeout bounds a single request. Queries wait on a completion
// provider, so it is generous.
const DefaultTimeout = 2 * time.Minute

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ragd: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Client talks to one ragd server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL, e.g. http://localhost:9191.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// Health returns GET /health.
func (c *Client) Health(ctx context.Context) (ragdhttp.HealthResponse, error) {
	var out ragdhttp.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, "", &out)
	return out, err
}

// IngestText indexes inline text.
func (c *Client) IngestText(ctx context.Context, req ragdhttp.IngestTextRequest) (ingest.Result, error) {
	var out ingest.Result
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/documents", req, &out)
	return out, err
}

// IngestFile uploads content as a multipart file. An empty source uses
// the base name of filename.
func (c *Client) IngestFile(ctx context.Context, filename, source string, content []byte, metadata map[string]any, replace bool) (ingest.Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if source != "" {
		if err := w.WriteField("source", source); err != nil {
			return ingest.Result{}, err
		}
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return ingest.Result{}, fmt.Errorf("encoding metadata: %w", err)
		}
		if err := w.WriteField("metadata", string(raw)); err != nil {
			return ingest.Result{}, err
		}
	}
	if replace {
		if err := w.WriteField("replace", "true"); err != nil {
			return ingest.Result{}, err
		}
	}
	fw, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return ingest.Result{}, err
	}
	if _, err := fw.Write(content); err != nil {
		return ingest.Result{}, err
	}
	if err := w.Close(); err != nil {
		return ingest.Result{}, err
	}

	var out ingest.Result
	err = c.do(ctx, http.MethodPost, "/api/v1/documents", &buf, w.FormDataContentType(), &out)
	return out, err
}

// Sources lists indexed sources.
func (c *Client) Sources(ctx context.Context) (ragdhttp.SourcesResponse, error) {
	var out ragdhttp.SourcesResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/documents", nil, "", &out)
	return out, err
}

// Remove deletes every chunk of source.
func (c *Client) Remove(ctx context.Context, source string) (ragdhttp.RemoveResponse, error) {
	var out ragdhttp.RemoveResponse
	err := c.do(ctx, http.MethodDelete, "/api/v1/documents/"+url.PathEscape(source), nil, "", &out)
	return out, err
}

// Clear deletes every chunk.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/documents", nil, "", nil)
}

// Query asks a grounded question.
func (c *Client) Query(ctx context.Context, query string, opts retrieval.Options) (retrieval.Result, error) {
	var out retrieval.Result
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/query", ragdhttp.QueryRequest{Query: query, Options: opts}, &out)
	return out, err
}

// Search returns the chunks most similar to query.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]retrieval.Source, error) {
	var out ragdhttp.SearchResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/search", ragdhttp.SearchRequest{Query: query, TopK: topK}, &out)
	return out.Results, err
}

// Index bulk-indexes a server-side directory or a git repository.
func (c *Client) Index(ctx context.Context, req ragdhttp.IndexRequest) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/repositories", req, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(body), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage extracts echo's {"message": ...} body, falling back to the
// raw text.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
