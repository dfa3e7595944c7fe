package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig bounds retries of provider calls.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// ApplyDefaults fills unset fields.
func (c *RetryConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 10 * time.Second
	}
}

// statusError is a non-2xx provider response.
type statusError struct {
	Code       int
	Body       string
	RetryAfter int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (e *statusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func newStatusError(resp *http.Response, body []byte) *statusError {
	se := &statusError{Code: resp.StatusCode, Body: string(body)}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			se.RetryAfter = secs
		}
	}
	return se
}

// withRetry runs op until it succeeds, returns a non-retryable error, or
// the retry budget is spent. 429 and 5xx responses are retried and honour
// Retry-After; other status errors are permanent. Transport errors are
// retried.
func withRetry[T any](ctx context.Context, cfg RetryConfig, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff

	return backoff.Retry(ctx, func() (T, error) {
		out, err := op()
		if err == nil {
			return out, nil
		}
		var se *statusError
		if errors.As(err, &se) {
			if !se.retryable() {
				return out, backoff.Permanent(err)
			}
			if se.RetryAfter > 0 {
				return out, errors.Join(err, backoff.RetryAfter(se.RetryAfter))
			}
		}
		if errors.Is(err, ErrEmptyInput) || errors.Is(err, context.Canceled) {
			return out, backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.MaxRetries+1)),
	)
}
