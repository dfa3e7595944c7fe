package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type fakeIngester struct {
	docs    []ingest.Document
	removed []string
	err     error
}

func (f *fakeIngester) Process(_ context.Context, doc ingest.Document) (ingest.Result, error) {
	if f.err != nil {
		return ingest.Result{}, f.err
	}
	f.docs = append(f.docs, doc)
	return ingest.Result{OperationID: "op-1", Source: doc.Source, NumChunks: 1, DocumentIDs: []string{"id-1"}}, nil
}

func (f *fakeIngester) Remove(_ context.Context, source string) (int, error) {
	f.removed = append(f.removed, source)
	return 4, nil
}

type fakeQuerier struct {
	opts retrieval.Options
	topK int
}

func (f *fakeQuerier) Query(_ context.Context, q string, opts retrieval.Options) (retrieval.Result, error) {
	f.opts = opts
	if q == "" {
		return retrieval.Result{}, retrieval.ErrEmptyQuery
	}
	return retrieval.Result{
		Success: true,
		Message: "ragd indexes documents",
		Sources: []retrieval.Source{{ID: "id-1", Source: "readme.md", Preview: "ragd is", Score: 0.8}},
	}, nil
}

func (f *fakeQuerier) Search(_ context.Context, _ string, topK int) ([]retrieval.Source, error) {
	f.topK = topK
	return []retrieval.Source{
		{ID: "id-1", Source: "a.md", Score: 0.9},
		{ID: "id-2", Source: "b.md", Score: 0.5},
	}, nil
}

type fakeStore struct{}

func (fakeStore) Sources() []vectorstore.SourceSummary {
	added := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []vectorstore.SourceSummary{{Source: "a.md", Chunks: 2, AddedAt: added}, {Source: "b.md", Chunks: 1, AddedAt: added}}
}

func (fakeStore) Status() vectorstore.Status {
	return vectorstore.Status{State: vectorstore.StateFallbackActive.String(), Backend: "file", Chunks: 3, Dimension: 4}
}

type harness struct {
	session  *mcp.ClientSession
	ingester *fakeIngester
	querier  *fakeQuerier
	reader   *sdkmetric.ManualReader
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	h := &harness{ingester: &fakeIngester{}, querier: &fakeQuerier{}, reader: reader}
	srv, err := NewServer(&Config{
		Name:    "ragd-test",
		Version: "test",
		Metrics: newMetrics(provider.Meter("test"), nil),
	}, h.ingester, h.querier, fakeStore{})
	require.NoError(t, err)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.mcp.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "test"}, nil)
	h.session, err = client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.session.Close() })
	return h
}

// call invokes a tool and decodes its structured content into out.
func (h *harness) call(t *testing.T, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := h.session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		raw, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return res
}

func text(res *mcp.CallToolResult) string {
	if len(res.Content) == 0 {
		return ""
	}
	if tc, ok := res.Content[0].(*mcp.TextContent); ok {
		return tc.Text
	}
	return ""
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil, nil, &fakeQuerier{}, fakeStore{})
	assert.Error(t, err)
	_, err = NewServer(nil, &fakeIngester{}, nil, fakeStore{})
	assert.Error(t, err)
	_, err = NewServer(nil, &fakeIngester{}, &fakeQuerier{}, nil)
	assert.Error(t, err)

	s, err := NewServer(nil, &fakeIngester{}, &fakeQuerier{}, fakeStore{})
	require.NoError(t, err)
	assert.NotNil(t, s.metrics)
}

func TestListTools(t *testing.T) {
	h := newHarness(t)
	res, err := h.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"rag_ingest_text", "rag_query", "rag_search",
		"rag_remove_source", "rag_list_sources", "rag_status",
	}, names)
}

func TestIngestText(t *testing.T) {
	h := newHarness(t)

	var out ingestTextOutput
	res := h.call(t, "rag_ingest_text", map[string]any{
		"source":   "notes.md",
		"text":     "hello",
		"metadata": map[string]any{"team": "search"},
		"replace":  true,
	}, &out)
	require.False(t, res.IsError, text(res))

	assert.Equal(t, "notes.md", out.Source)
	assert.Equal(t, 1, out.NumChunks)
	assert.Equal(t, []string{"id-1"}, out.DocumentIDs)
	assert.Equal(t, "Indexed notes.md: 1 chunks", text(res))

	require.Len(t, h.ingester.docs, 1)
	assert.True(t, h.ingester.docs[0].Replace)
	assert.Equal(t, "search", h.ingester.docs[0].Metadata["team"])
}

func TestIngestText_Errors(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "rag_ingest_text", map[string]any{"source": " ", "text": "x"}, nil)
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "source is required")

	h.ingester.err = fmt.Errorf("embed: %w", embeddings.ErrEmbeddingUnavailable)
	res = h.call(t, "rag_ingest_text", map[string]any{"source": "a", "text": "x"}, nil)
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "embedding capability unavailable")
}

func TestQuery(t *testing.T) {
	h := newHarness(t)

	var out queryOutput
	res := h.call(t, "rag_query", map[string]any{
		"query":         "what is ragd?",
		"top_k":         3,
		"temperature":   0.1,
		"extra_context": "short",
	}, &out)
	require.False(t, res.IsError, text(res))

	assert.True(t, out.Success)
	assert.Equal(t, "ragd indexes documents", out.Message)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "readme.md", out.Sources[0].Source)

	assert.Equal(t, 3, h.querier.opts.TopK)
	require.NotNil(t, h.querier.opts.Temperature)
	assert.InDelta(t, 0.1, *h.querier.opts.Temperature, 1e-9)
	assert.Equal(t, "short", h.querier.opts.ExtraContext)
}

func TestQuery_Empty(t *testing.T) {
	h := newHarness(t)
	res := h.call(t, "rag_query", map[string]any{"query": ""}, nil)
	assert.True(t, res.IsError)
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	var out searchOutput
	res := h.call(t, "rag_search", map[string]any{"query": "chunks", "top_k": 2}, &out)
	require.False(t, res.IsError, text(res))
	require.Len(t, out.Results, 2)
	assert.Equal(t, "a.md", out.Results[0].Source)
	assert.Equal(t, 2, h.querier.topK)
}

func TestRemoveSource(t *testing.T) {
	h := newHarness(t)
	var out removeSourceOutput
	res := h.call(t, "rag_remove_source", map[string]any{"source": "docs/a.md"}, &out)
	require.False(t, res.IsError, text(res))
	assert.Equal(t, 4, out.Removed)
	assert.Equal(t, []string{"docs/a.md"}, h.ingester.removed)
}

func TestListSourcesAndStatus(t *testing.T) {
	h := newHarness(t)

	var sources listSourcesOutput
	res := h.call(t, "rag_list_sources", nil, &sources)
	require.False(t, res.IsError, text(res))
	assert.Equal(t, 3, sources.TotalChunks)
	require.Len(t, sources.Sources, 2)
	assert.Equal(t, "2026-01-02T03:04:05Z", sources.Sources[0].AddedAt)

	var status statusOutput
	res = h.call(t, "rag_status", nil, &status)
	require.False(t, res.IsError, text(res))
	assert.Equal(t, "fallback", status.State)
	assert.Equal(t, 4, status.Dimension)
	assert.Contains(t, text(res), "degraded")
}

func TestToolMetrics(t *testing.T) {
	h := newHarness(t)
	h.call(t, "rag_status", nil, nil)
	h.call(t, "rag_remove_source", map[string]any{"source": ""}, nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, h.reader.Collect(context.Background(), &rm))

	reasons := map[string]int64{}
	invocations := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				tool, _ := dp.Attributes.Value(attribute.Key("tool"))
				switch m.Name {
				case "ragd.mcp.tool.invocations_total":
					invocations[tool.AsString()] += dp.Value
				case "ragd.mcp.tool.errors_total":
					reason, _ := dp.Attributes.Value(attribute.Key("reason"))
					reasons[reason.AsString()] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), invocations["rag_status"])
	assert.Equal(t, int64(1), invocations["rag_remove_source"])
	assert.Equal(t, int64(1), reasons["validation_error"])
}

func TestCategorizeError(t *testing.T) {
	assert.Equal(t, "", categorizeError(nil))
	assert.Equal(t, "validation_error", categorizeError(ingest.ErrParse))
	assert.Equal(t, "unavailable", categorizeError(embeddings.ErrEmbeddingUnavailable))
	assert.Equal(t, "storage_error", categorizeError(fmt.Errorf("x: %w", vectorstore.ErrPersistence)))
	assert.Equal(t, "timeout", categorizeError(context.DeadlineExceeded))
	assert.Equal(t, "internal_error", categorizeError(assert.AnError))
}
