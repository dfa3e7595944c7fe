// Package logging builds the ragd zap logger.
//
// Every context-aware method adds correlation fields found on the
// context: the OpenTelemetry trace and span ids, the HTTP request id, the
// document source being processed and the ingest operation id. Output goes
// to stdout, to an OpenTelemetry LoggerProvider, or both.
//
// Sensitive field names (api_key, authorization, ...) and value patterns
// (bearer tokens, api_key=...) are masked by a redacting encoder before
// anything reaches stdout.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	ctx = logging.WithSource(ctx, "handbook.pdf")
//	logger.Info(ctx, "ingest started")
//
// Library packages take a plain *zap.Logger; pass Underlying() to them.
package logging
