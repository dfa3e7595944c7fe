package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type requestCtxKey struct{}
type sourceCtxKey struct{}
type operationCtxKey struct{}
type loggerCtxKey struct{}

// maxContextValueLen bounds values copied into every log line.
const maxContextValueLen = 256

// ContextFields extracts correlation fields from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if src := SourceFromContext(ctx); src != "" {
		fields = append(fields, zap.String("document.source", src))
	}
	if op := OperationIDFromContext(ctx); op != "" {
		fields = append(fields, zap.String("operation.id", op))
	}
	return fields
}

func truncate(s string) string {
	if len(s) <= maxContextValueLen {
		return s
	}
	return s[:maxContextValueLen]
}

func stringValue(ctx context.Context, key any) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithRequestID adds the HTTP request id to ctx. Empty ids are ignored.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, truncate(id))
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestCtxKey{})
}

// WithSource adds the document source being processed to ctx.
func WithSource(ctx context.Context, source string) context.Context {
	if source == "" {
		return ctx
	}
	return context.WithValue(ctx, sourceCtxKey{}, truncate(source))
}

// SourceFromContext returns the document source or "".
func SourceFromContext(ctx context.Context) string {
	return stringValue(ctx, sourceCtxKey{})
}

// WithOperationID adds an ingest operation id to ctx.
func WithOperationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, operationCtxKey{}, truncate(id))
}

// OperationIDFromContext returns the operation id or "".
func OperationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, operationCtxKey{})
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
