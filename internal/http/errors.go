package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/repository"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrParse),
		errors.Is(err, ingest.ErrInvalidDocument),
		errors.Is(err, retrieval.ErrEmptyQuery),
		errors.Is(err, repository.ErrInvalidOptions),
		errors.Is(err, embeddings.ErrEmptyInput),
		errors.Is(err, vectorstore.ErrInvalidMetadata):
		return http.StatusBadRequest
	case errors.Is(err, vectorstore.ErrDimensionMismatch):
		// The embedder and the stored corpus disagree on vector length.
		return http.StatusConflict
	case errors.Is(err, embeddings.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, embeddings.ErrEmbeddingProvider):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, vectorstore.ErrPersistence):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// toHTTPError converts err into an echo error carrying its status. Server
// errors are logged by the request logger, not echoed verbatim.
func toHTTPError(err error) *echo.HTTPError {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	return echo.NewHTTPError(code, msg).SetInternal(err)
}
