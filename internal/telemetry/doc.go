// Package telemetry sets up OpenTelemetry tracing and metrics for ragd.
//
// Spans and instruments are created by the components themselves through
// otel.Tracer and otel.Meter. This package installs the global providers
// those calls resolve to, exporting over OTLP (grpc or http/protobuf) to a
// collector.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version), logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// When disabled, or when an exporter cannot be built, the global no-op
// providers stay in place and the instance reports itself degraded. The
// service keeps running either way.
package telemetry
