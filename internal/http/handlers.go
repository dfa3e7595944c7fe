package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/repository"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

func (s *Server) handleHealth(c echo.Context) error {
	st := s.deps.Store.Status()
	status := "ok"
	if st.State == vectorstore.StateFallbackActive.String() {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: status, Version: s.config.Version, Store: st})
}

// handleIngest accepts a multipart upload (file, source, metadata) or a
// JSON body with inline text.
func (s *Server) handleIngest(c echo.Context) error {
	var (
		doc ingest.Document
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if mediaType == echo.MIMEMultipartForm {
		doc, err = uploadedDocument(c)
	} else {
		doc, err = jsonDocument(c)
	}
	if err != nil {
		return err
	}

	res, err := s.deps.Ingester.Process(c.Request().Context(), doc)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func uploadedDocument(c echo.Context) (ingest.Document, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return ingest.Document{}, echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}
	f, err := fh.Open()
	if err != nil {
		return ingest.Document{}, echo.NewHTTPError(http.StatusBadRequest, "cannot read upload")
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return ingest.Document{}, echo.NewHTTPError(http.StatusBadRequest, "cannot read upload")
	}

	doc := ingest.Document{
		Source:      strings.TrimSpace(c.FormValue("source")),
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Content:     content,
		Replace:     c.FormValue("replace") == "true",
	}
	if doc.Source == "" {
		doc.Source = fh.Filename
	}
	if raw := c.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &doc.Metadata); err != nil {
			return ingest.Document{}, echo.NewHTTPError(http.StatusBadRequest, "metadata must be a JSON object")
		}
	}
	return doc, nil
}

func jsonDocument(c echo.Context) (ingest.Document, error) {
	var req IngestTextRequest
	if err := c.Bind(&req); err != nil {
		return ingest.Document{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Source) == "" {
		return ingest.Document{}, echo.NewHTTPError(http.StatusBadRequest, "source field is required")
	}
	return ingest.Document{
		Source:   req.Source,
		Text:     req.Text,
		Metadata: req.Metadata,
		Replace:  req.Replace,
	}, nil
}

func (s *Server) handleListSources(c echo.Context) error {
	sources := s.deps.Store.Sources()
	resp := SourcesResponse{Sources: sources}
	for _, src := range sources {
		resp.Total += src.Chunks
	}
	if resp.Sources == nil {
		resp.Sources = []vectorstore.SourceSummary{}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleRemoveSource takes the source from the rest of the path, so
// sources containing slashes work with or without escaping.
func (s *Server) handleRemoveSource(c echo.Context) error {
	source, err := url.PathUnescape(c.Param("*"))
	if err != nil || source == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source is required")
	}
	n, err := s.deps.Ingester.Remove(c.Request().Context(), source)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, RemoveResponse{Source: source, Removed: n})
}

func (s *Server) handleClear(c echo.Context) error {
	if err := s.deps.Store.Clear(c.Request().Context()); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ClearResponse{Cleared: true})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := s.deps.Querier.Query(c.Request().Context(), req.Query, req.Options)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	results, err := s.deps.Querier.Search(c.Request().Context(), req.Query, req.TopK)
	if err != nil {
		return toHTTPError(err)
	}
	if results == nil {
		results = []retrieval.Source{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) handleIndex(c echo.Context) error {
	if s.deps.Indexer == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "repository indexing is not enabled")
	}
	var req IndexRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if (req.Path == "") == (req.GitURL == "") {
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of path and git_url is required")
	}

	opts := repository.IndexOptions{
		IncludePatterns: req.Include,
		ExcludePatterns: req.Exclude,
		MaxFileSize:     req.MaxFileSize,
		NoIgnoreFiles:   req.NoIgnore,
	}
	ctx := c.Request().Context()
	var (
		res *repository.IndexResult
		err error
	)
	if req.GitURL != "" {
		res, err = s.deps.Indexer.IndexGit(ctx, req.GitURL, req.Ref, opts)
	} else {
		res, err = s.deps.Indexer.IndexDirectory(ctx, req.Path, opts)
	}
	if err != nil {
		if errors.Is(err, repository.ErrInvalidOptions) || res == nil {
			return toHTTPError(err)
		}
		return c.JSON(statusFor(err), struct {
			Error string `json:"error"`
			*repository.IndexResult
		}{Error: err.Error(), IndexResult: res})
	}
	return c.JSON(http.StatusOK, res)
}
