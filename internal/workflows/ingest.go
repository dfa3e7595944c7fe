// Package workflows runs durable document ingestion on Temporal.
//
// IngestDocumentWorkflow removes the previous version of a source, ingests
// the new one and publishes a notification, each as a retried activity.
// A retried ingest attempt clears the source first, so a durable ingest
// never leaves duplicate chunks behind.
// Content travels in the workflow input, so documents are bounded by the
// Temporal payload limit (2MB by default).
package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
)

// DefaultTaskQueue is used when none is configured.
const DefaultTaskQueue = "ragd-ingest"

// IngestInput is the workflow input.
type IngestInput struct {
	Source      string
	Name        string
	ContentType string
	Content     []byte
	Text        string
	Metadata    map[string]any
	Replace     bool
}

func (in IngestInput) document() ingest.Document {
	return ingest.Document{
		Source:      in.Source,
		Name:        in.Name,
		ContentType: in.ContentType,
		Content:     in.Content,
		Text:        in.Text,
		Metadata:    in.Metadata,
	}
}

// IngestOutput is the workflow result.
type IngestOutput struct {
	Source      string
	NumChunks   int
	DocumentIDs []string
	Redactions  int
	Removed     int
	Notified    bool
	Errors      []string
}

var (
	removeOptions = workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	ingestOptions = workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeParse, ErrTypeInvalidDocument},
		},
	}
	notifyOptions = workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
)

// IngestDocumentWorkflow ingests one document durably.
//
// Removal and ingestion failures fail the workflow. A failed notification
// is recorded in the result and the workflow still completes.
func IngestDocumentWorkflow(ctx workflow.Context, in IngestInput) (*IngestOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting durable ingest", "source", in.Source, "replace", in.Replace)

	var a *Activities
	out := &IngestOutput{Source: in.Source}

	if in.Replace {
		rctx := workflow.WithActivityOptions(ctx, removeOptions)
		if err := workflow.ExecuteActivity(rctx, a.RemoveSource, in.Source).Get(ctx, &out.Removed); err != nil {
			out.Errors = append(out.Errors, FormatErrorForResult("failed to remove existing source", err))
			return out, WrapActivityError("failed to remove existing source", err)
		}
	}

	var res ingest.Result
	ictx := workflow.WithActivityOptions(ctx, ingestOptions)
	if err := workflow.ExecuteActivity(ictx, a.IngestDocument, in).Get(ctx, &res); err != nil {
		out.Errors = append(out.Errors, FormatErrorForResult("failed to ingest document", err))
		return out, WrapActivityError("failed to ingest document", err)
	}
	out.NumChunks = res.NumChunks
	out.DocumentIDs = res.DocumentIDs
	out.Redactions = res.Redactions

	nctx := workflow.WithActivityOptions(ctx, notifyOptions)
	err := workflow.ExecuteActivity(nctx, a.NotifyIngested, NotifyInput{
		WorkflowID:  workflow.GetInfo(ctx).WorkflowExecution.ID,
		Source:      in.Source,
		NumChunks:   res.NumChunks,
		DocumentIDs: res.DocumentIDs,
		Redactions:  res.Redactions,
		Removed:     out.Removed,
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("Notification failed", "error", err)
		out.Errors = append(out.Errors, FormatErrorForResult("failed to publish notification", err))
	} else {
		out.Notified = true
	}

	logger.Info("Durable ingest complete", "source", in.Source, "chunks", out.NumChunks)
	return out, nil
}

// NewWorker registers the workflow and activities on taskQueue.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(IngestDocumentWorkflow)
	w.RegisterActivity(acts)
	return w
}

// StartIngest starts IngestDocumentWorkflow and returns its run.
func StartIngest(ctx context.Context, c client.Client, taskQueue string, in IngestInput) (client.WorkflowRun, error) {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	opts := client.StartWorkflowOptions{
		ID:        "ragd-ingest-" + events.NewOperationID(),
		TaskQueue: taskQueue,
	}
	run, err := c.ExecuteWorkflow(ctx, opts, IngestDocumentWorkflow, in)
	if err != nil {
		return nil, fmt.Errorf("failed to start workflow: %w", err)
	}
	return run, nil
}
