package workflows

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/ragd/internal/ingest"
)

// Application error types that activities report as non-retryable.
const (
	ErrTypeParse           = "ParseError"
	ErrTypeInvalidDocument = "InvalidDocument"
)

// WrapActivityError wraps an activity error with operation context.
func WrapActivityError(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, err)
}

// FormatErrorForResult formats an error for a workflow result's Errors.
func FormatErrorForResult(operation string, err error) string {
	return fmt.Sprintf("%s: %v", operation, err)
}

// classifyIngestError marks failures that retrying cannot fix.
func classifyIngestError(err error) error {
	switch {
	case errors.Is(err, ingest.ErrParse):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeParse, err)
	case errors.Is(err, ingest.ErrInvalidDocument):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidDocument, err)
	default:
		return err
	}
}
