package http

import (
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string             `json:"status"`
	Version string             `json:"version,omitempty"`
	Store   vectorstore.Status `json:"store"`
}

// IngestTextRequest is the JSON body for POST /api/v1/documents.
type IngestTextRequest struct {
	Source   string         `json:"source"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Replace  bool           `json:"replace,omitempty"`
}

// SourcesResponse is the response body for GET /api/v1/documents.
type SourcesResponse struct {
	Sources []vectorstore.SourceSummary `json:"sources"`
	Total   int                         `json:"total_chunks"`
}

// RemoveResponse is the response body for DELETE /api/v1/documents/{source}.
type RemoveResponse struct {
	Source  string `json:"source"`
	Removed int    `json:"removed"`
}

// ClearResponse is the response body for DELETE /api/v1/documents.
type ClearResponse struct {
	Cleared bool `json:"cleared"`
}

// QueryRequest is the body for POST /api/v1/query.
type QueryRequest struct {
	Query string `json:"query"`
	retrieval.Options
}

// SearchRequest is the body for POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Results []retrieval.Source `json:"results"`
}

// IndexRequest is the body for POST /api/v1/repositories. Exactly one of
// Path and GitURL is set.
type IndexRequest struct {
	Path        string   `json:"path,omitempty"`
	GitURL      string   `json:"git_url,omitempty"`
	Ref         string   `json:"ref,omitempty"`
	Include     []string `json:"include,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`
	MaxFileSize int64    `json:"max_file_size,omitempty"`
	NoIgnore    bool     `json:"no_ignore_files,omitempty"`
}
