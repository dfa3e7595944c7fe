// Package completion generates answer text from a system and a user
// prompt through a pluggable LLM provider.
package completion

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var (
	// ErrCompletionUnavailable is returned when no provider is configured.
	ErrCompletionUnavailable = errors.New("completion capability unavailable")

	// ErrCompletionProvider wraps failures of the provider call.
	ErrCompletionProvider = errors.New("completion provider error")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Options tune a single completion.
type Options struct {
	// Temperature is passed through when non-nil.
	Temperature *float64

	// MaxTokens caps the generated length. Zero uses the provider default.
	MaxTokens int
}

// Completer produces text for a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts Options) (string, error)
}

// Provider is a Completer with a name and lifecycle.
type Provider interface {
	Completer
	Name() string
	Close() error
}

// Float returns a pointer to v, for Options.Temperature.
func Float(v float64) *float64 { return &v }

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/completion"

// Metrics holds completion instruments.
type Metrics struct {
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates the completion instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error
	m.duration, err = meter.Float64Histogram(
		"ragd.completion.duration_seconds",
		metric.WithDescription("Duration of completion calls in seconds, by provider and model"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}
	m.errors, err = meter.Int64Counter(
		"ragd.completion.errors_total",
		metric.WithDescription("Total failed completion calls by provider and model"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create errors counter", zap.Error(err))
	}
	return m
}

// Record records one completion call.
func (m *Metrics) Record(ctx context.Context, provider, model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	)
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
