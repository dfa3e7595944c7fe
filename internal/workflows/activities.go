package workflows

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/workflows"

// DocumentProcessor ingests and removes documents. *ingest.Processor
// satisfies it.
type DocumentProcessor interface {
	Process(ctx context.Context, doc ingest.Document) (ingest.Result, error)
	Remove(ctx context.Context, source string) (int, error)
}

var _ DocumentProcessor = (*ingest.Processor)(nil)

// Activities holds the dependencies of the ingest activities. Register a
// pointer with the worker; the workflow refers to its methods by name.
type Activities struct {
	Processor DocumentProcessor
	Publisher events.Publisher
	Logger    *zap.Logger
}

// NotifyInput describes a finished durable ingest.
type NotifyInput struct {
	WorkflowID  string
	Source      string
	NumChunks   int
	DocumentIDs []string
	Redactions  int
	Removed     int
}

var (
	metricsOnce      sync.Once
	activityDuration metric.Float64Histogram
	activityErrors   metric.Int64Counter
)

func initMetrics() {
	meter := otel.Meter(instrumentationName)
	activityDuration, _ = meter.Float64Histogram("ragd.workflows.activity.duration",
		metric.WithDescription("Duration of ingest workflow activities"),
		metric.WithUnit("s"))
	activityErrors, _ = meter.Int64Counter("ragd.workflows.activity.errors",
		metric.WithDescription("Failed ingest workflow activity attempts"),
		metric.WithUnit("{error}"))
}

func record(ctx context.Context, name string, start time.Time, err error) {
	metricsOnce.Do(initMetrics)
	attrs := metric.WithAttributes(attribute.String("activity", name))
	if activityDuration != nil {
		activityDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if err != nil && activityErrors != nil {
		activityErrors.Add(ctx, 1, attrs)
	}
}

func (a *Activities) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// RemoveSource deletes the chunks of source and returns how many went.
func (a *Activities) RemoveSource(ctx context.Context, source string) (n int, err error) {
	defer func(start time.Time) { record(ctx, "remove_source", start, err) }(time.Now())
	n, err = a.Processor.Remove(ctx, source)
	if err != nil {
		return 0, WrapActivityError("failed to remove source", err)
	}
	return n, nil
}

// IngestDocument runs the document through the processor. Parse and
// validation failures are non-retryable.
//
// A failed attempt may leave some chunks stored, so every retry replaces
// the source before ingesting again.
func (a *Activities) IngestDocument(ctx context.Context, in IngestInput) (res ingest.Result, err error) {
	defer func(start time.Time) { record(ctx, "ingest_document", start, err) }(time.Now())
	info := activity.GetInfo(ctx)
	retry := info.Attempt > 1
	a.logger().Info("workflows: ingest attempt",
		zap.String("workflow_id", info.WorkflowExecution.ID),
		zap.String("source", in.Source),
		zap.Int32("attempt", info.Attempt))

	doc := in.document()
	doc.Replace = retry
	res, err = a.Processor.Process(ctx, doc)
	if err != nil {
		return res, classifyIngestError(err)
	}
	return res, nil
}

// NotifyIngested publishes a completion event keyed by the workflow id.
func (a *Activities) NotifyIngested(ctx context.Context, in NotifyInput) (err error) {
	defer func(start time.Time) { record(ctx, "notify_ingested", start, err) }(time.Now())
	if a.Publisher == nil {
		return nil
	}
	return a.Publisher.Publish(ctx, events.Event{
		OperationID: in.WorkflowID,
		Operation:   "workflow",
		Kind:        events.KindCompleted,
		Source:      in.Source,
		Done:        in.NumChunks,
		Total:       in.NumChunks,
		DocumentIDs: in.DocumentIDs,
		Redactions:  in.Redactions,
		Removed:     in.Removed,
	})
}
