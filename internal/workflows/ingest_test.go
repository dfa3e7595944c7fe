package workflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type fakeProcessor struct {
	mu         sync.Mutex
	processErr []error // consumed one per call; nil entries succeed
	removeErr  error
	removed    int
	processed  []ingest.Document
	calls      int
	removes    int
}

func (f *fakeProcessor) Process(_ context.Context, doc ingest.Document) (ingest.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.processErr) > 0 {
		err := f.processErr[0]
		f.processErr = f.processErr[1:]
		if err != nil {
			return ingest.Result{Source: doc.Source}, err
		}
	}
	f.processed = append(f.processed, doc)
	return ingest.Result{Source: doc.Source, NumChunks: 2, DocumentIDs: []string{"a", "b"}, Redactions: 1}, nil
}

func (f *fakeProcessor) Remove(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes++
	if f.removeErr != nil {
		return 0, f.removeErr
	}
	return f.removed, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	events []events.Event
	tries  int
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tries++
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newEnv(acts *Activities) *testsuite.TestWorkflowEnvironment {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(IngestDocumentWorkflow)
	env.RegisterActivity(acts)
	return env
}

func hasApplicationErrorType(err error, typ string) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() == typ {
			return true
		}
	}
	return false
}

func TestIngestDocumentWorkflow(t *testing.T) {
	input := IngestInput{
		Source:   "handbook.md",
		Name:     "handbook.md",
		Content:  []byte("# Handbook"),
		Metadata: map[string]any{"team": "ops"},
		Replace:  true,
	}

	t.Run("replaces, ingests and notifies", func(t *testing.T) {
		proc := &fakeProcessor{removed: 3}
		pub := &recordingPublisher{}
		env := newEnv(&Activities{Processor: proc, Publisher: pub})

		env.ExecuteWorkflow(IngestDocumentWorkflow, input)
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var out IngestOutput
		require.NoError(t, env.GetWorkflowResult(&out))
		assert.Equal(t, 3, out.Removed)
		assert.Equal(t, 2, out.NumChunks)
		assert.Equal(t, []string{"a", "b"}, out.DocumentIDs)
		assert.Equal(t, 1, out.Redactions)
		assert.True(t, out.Notified)
		assert.Empty(t, out.Errors)

		require.Len(t, proc.processed, 1)
		assert.False(t, proc.processed[0].Replace, "removal already happened in its own activity")
		assert.Equal(t, "ops", proc.processed[0].Metadata["team"])

		require.Len(t, pub.events, 1)
		ev := pub.events[0]
		assert.Equal(t, events.KindCompleted, ev.Kind)
		assert.Equal(t, "workflow", ev.Operation)
		assert.Equal(t, "handbook.md", ev.Source)
		assert.Equal(t, 3, ev.Removed)
		assert.NotEmpty(t, ev.OperationID)
	})

	t.Run("skips removal without replace", func(t *testing.T) {
		proc := &fakeProcessor{}
		env := newEnv(&Activities{Processor: proc})

		in := input
		in.Replace = false
		env.ExecuteWorkflow(IngestDocumentWorkflow, in)
		require.NoError(t, env.GetWorkflowError())
		assert.Zero(t, proc.removes)

		var out IngestOutput
		require.NoError(t, env.GetWorkflowResult(&out))
		assert.True(t, out.Notified, "nil publisher counts as delivered")
	})

	t.Run("retries transient ingest failures", func(t *testing.T) {
		proc := &fakeProcessor{processErr: []error{errors.New("store timeout"), nil}}
		env := newEnv(&Activities{Processor: proc})

		env.ExecuteWorkflow(IngestDocumentWorkflow, input)
		require.NoError(t, env.GetWorkflowError())
		assert.Equal(t, 2, proc.calls)
		require.Len(t, proc.processed, 1)
		assert.True(t, proc.processed[0].Replace, "retry clears chunks left by the failed attempt")
	})

	t.Run("parse errors are not retried", func(t *testing.T) {
		proc := &fakeProcessor{processErr: []error{
			fmt.Errorf("%w: not a pdf", ingest.ErrParse), nil,
		}}
		env := newEnv(&Activities{Processor: proc})

		env.ExecuteWorkflow(IngestDocumentWorkflow, input)
		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.True(t, hasApplicationErrorType(err, ErrTypeParse), err.Error())
		assert.Equal(t, 1, proc.calls)
	})

	t.Run("removal failure fails the workflow", func(t *testing.T) {
		proc := &fakeProcessor{removeErr: errors.New("mongo down")}
		env := newEnv(&Activities{Processor: proc})

		env.ExecuteWorkflow(IngestDocumentWorkflow, input)
		require.Error(t, env.GetWorkflowError())
		assert.Equal(t, 5, proc.removes)
		assert.Zero(t, proc.calls)
	})

	t.Run("notification failure is recorded", func(t *testing.T) {
		proc := &fakeProcessor{}
		pub := &recordingPublisher{err: errors.New("nats unavailable")}
		env := newEnv(&Activities{Processor: proc, Publisher: pub})

		env.ExecuteWorkflow(IngestDocumentWorkflow, input)
		require.NoError(t, env.GetWorkflowError())

		var out IngestOutput
		require.NoError(t, env.GetWorkflowResult(&out))
		assert.False(t, out.Notified)
		require.Len(t, out.Errors, 1)
		assert.Contains(t, out.Errors[0], "failed to publish notification")
		assert.Equal(t, 3, pub.tries)
		assert.Equal(t, 2, out.NumChunks)
	})
}

func TestClassifyIngestError(t *testing.T) {
	var appErr *temporal.ApplicationError

	err := classifyIngestError(fmt.Errorf("%w: bad", ingest.ErrInvalidDocument))
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, ErrTypeInvalidDocument, appErr.Type())
	assert.True(t, appErr.NonRetryable())

	plain := errors.New("timeout")
	assert.Same(t, plain, classifyIngestError(plain))
}

// flakyEmbedder fails the call numbered failOn exactly once.
type flakyEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn int
}

func (e *flakyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.calls == e.failOn {
		return nil, errors.New("provider returned 503")
	}
	return []float32{1, float32(len(text))}, nil
}

func TestIngestDocumentWorkflow_RetryLeavesNoDuplicates(t *testing.T) {
	for _, replace := range []bool{true, false} {
		t.Run(fmt.Sprintf("replace=%v", replace), func(t *testing.T) {
			store, err := vectorstore.Open(context.Background(),
				vectorstore.WithPrimary(vectorstore.NewMemoryBackend()))
			require.NoError(t, err)
			defer store.Close()

			proc, err := ingest.NewProcessor(&flakyEmbedder{failOn: 3}, store,
				ingest.WithRateLimiter(nil))
			require.NoError(t, err)
			env := newEnv(&Activities{Processor: proc})

			env.ExecuteWorkflow(IngestDocumentWorkflow, IngestInput{
				Source:  "doc",
				Text:    strings.Repeat("a", 2500),
				Replace: replace,
			})
			require.True(t, env.IsWorkflowCompleted())
			require.NoError(t, env.GetWorkflowError())

			var out IngestOutput
			require.NoError(t, env.GetWorkflowResult(&out))
			assert.Equal(t, 3, out.NumChunks)

			var indexes []int
			for _, rec := range store.GetAllDocuments() {
				assert.Equal(t, "doc", rec.Metadata.Source)
				indexes = append(indexes, rec.Metadata.ChunkIndex)
			}
			assert.Equal(t, []int{0, 1, 2}, indexes)
		})
	}
}
