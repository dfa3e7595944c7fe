package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var errInvalidArgument = errors.New("invalid argument")

// ===== rag_ingest_text =====

type ingestTextInput struct {
	Source   string         `json:"source" jsonschema:"Source identifier used for listing and removal"`
	Text     string         `json:"text" jsonschema:"Plain text to chunk and index"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"Extra metadata stored with every chunk"`
	Replace  bool           `json:"replace,omitempty" jsonschema:"Remove existing chunks of the source first"`
}

type ingestTextOutput struct {
	OperationID string   `json:"operation_id" jsonschema:"Ingest operation ID"`
	Source      string   `json:"source" jsonschema:"Ingested source"`
	NumChunks   int      `json:"num_chunks" jsonschema:"Number of chunks stored"`
	DocumentIDs []string `json:"document_ids" jsonschema:"IDs of the stored chunks"`
	Redactions  int      `json:"redactions" jsonschema:"Secrets redacted before indexing"`
	Replaced    int      `json:"replaced" jsonschema:"Chunks removed by replace"`
}

// ===== rag_query =====

type queryInput struct {
	Query        string   `json:"query" jsonschema:"Natural language question"`
	TopK         int      `json:"top_k,omitempty" jsonschema:"Number of chunks to retrieve"`
	Temperature  *float64 `json:"temperature,omitempty" jsonschema:"Sampling temperature for the answer"`
	MaxTokens    int      `json:"max_tokens,omitempty" jsonschema:"Maximum answer length in tokens"`
	ExtraContext string   `json:"extra_context,omitempty" jsonschema:"Additional instructions appended to the prompt"`
}

type sourceOutput struct {
	ID       string         `json:"id" jsonschema:"Chunk ID"`
	Source   string         `json:"source" jsonschema:"Source the chunk came from"`
	Preview  string         `json:"preview" jsonschema:"Start of the chunk text"`
	Score    float32        `json:"score" jsonschema:"Cosine similarity to the query"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"Chunk metadata"`
}

type queryOutput struct {
	Success bool           `json:"success" jsonschema:"Whether an answer was produced"`
	Message string         `json:"message" jsonschema:"Answer or explanation"`
	Sources []sourceOutput `json:"sources" jsonschema:"Chunks used as context"`
}

// ===== rag_search =====

type searchInput struct {
	Query string `json:"query" jsonschema:"Text to search for"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Number of results"`
}

type searchOutput struct {
	Results []sourceOutput `json:"results" jsonschema:"Most similar chunks, best first"`
}

// ===== rag_remove_source =====

type removeSourceInput struct {
	Source string `json:"source" jsonschema:"Source to remove"`
}

type removeSourceOutput struct {
	Source  string `json:"source" jsonschema:"Removed source"`
	Removed int    `json:"removed" jsonschema:"Number of chunks removed"`
}

// ===== rag_list_sources / rag_status =====

type emptyInput struct{}

type sourceSummaryOutput struct {
	Source  string `json:"source" jsonschema:"Source identifier"`
	Chunks  int    `json:"chunks" jsonschema:"Chunks stored for the source"`
	AddedAt string `json:"added_at" jsonschema:"When the first chunk was added (RFC 3339)"`
}

type listSourcesOutput struct {
	Sources     []sourceSummaryOutput `json:"sources" jsonschema:"Indexed sources"`
	TotalChunks int                   `json:"total_chunks" jsonschema:"Chunks across all sources"`
}

type statusOutput struct {
	State     string `json:"state" jsonschema:"Backend state: unconfigured, probing, primary or fallback"`
	Backend   string `json:"backend" jsonschema:"Active backend name"`
	Chunks    int    `json:"chunks" jsonschema:"Stored chunk count"`
	Dimension int    `json:"dimension" jsonschema:"Embedding dimension, 0 until known"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_ingest_text",
		Description: "Chunk, embed and index plain text under a source name",
	}, s.ingestText)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_query",
		Description: "Answer a question from the indexed documents and cite the chunks used",
	}, s.query)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_search",
		Description: "Return the indexed chunks most similar to a query without generating an answer",
	}, s.search)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_remove_source",
		Description: "Remove every chunk of a source from the index",
	}, s.removeSource)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_list_sources",
		Description: "List indexed sources with their chunk counts",
	}, s.listSources)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_status",
		Description: "Report the vector store backend state",
	}, s.status)
}

func (s *Server) ingestText(ctx context.Context, _ *mcp.CallToolRequest, args ingestTextInput) (_ *mcp.CallToolResult, _ ingestTextOutput, err error) {
	done := s.metrics.track(ctx, "rag_ingest_text")
	defer func() { done(err) }()

	if strings.TrimSpace(args.Source) == "" {
		return nil, ingestTextOutput{}, fmt.Errorf("%w: source is required", errInvalidArgument)
	}
	res, err := s.ingester.Process(ctx, ingest.Document{
		Source:   args.Source,
		Text:     args.Text,
		Metadata: args.Metadata,
		Replace:  args.Replace,
	})
	if err != nil {
		s.logger.Warn("rag_ingest_text failed", zap.String("source", args.Source), zap.Error(err))
		return nil, ingestTextOutput{}, err
	}

	out := ingestTextOutput{
		OperationID: res.OperationID,
		Source:      res.Source,
		NumChunks:   res.NumChunks,
		DocumentIDs: res.DocumentIDs,
		Redactions:  res.Redactions,
		Replaced:    res.Replaced,
	}
	if out.DocumentIDs == nil {
		out.DocumentIDs = []string{}
	}
	return textResult(fmt.Sprintf("Indexed %s: %d chunks", res.Source, res.NumChunks)), out, nil
}

func (s *Server) query(ctx context.Context, _ *mcp.CallToolRequest, args queryInput) (_ *mcp.CallToolResult, _ queryOutput, err error) {
	done := s.metrics.track(ctx, "rag_query")
	defer func() { done(err) }()

	res, err := s.querier.Query(ctx, args.Query, retrieval.Options{
		TopK:         args.TopK,
		Temperature:  args.Temperature,
		MaxTokens:    args.MaxTokens,
		ExtraContext: args.ExtraContext,
	})
	if err != nil {
		return nil, queryOutput{}, err
	}

	out := queryOutput{
		Success: res.Success,
		Message: res.Message,
		Sources: toSourceOutputs(res.Sources),
	}
	return textResult(res.Message), out, nil
}

func (s *Server) search(ctx context.Context, _ *mcp.CallToolRequest, args searchInput) (_ *mcp.CallToolResult, _ searchOutput, err error) {
	done := s.metrics.track(ctx, "rag_search")
	defer func() { done(err) }()

	results, err := s.querier.Search(ctx, args.Query, args.TopK)
	if err != nil {
		return nil, searchOutput{}, err
	}
	return textResult(fmt.Sprintf("Found %d chunks", len(results))),
		searchOutput{Results: toSourceOutputs(results)}, nil
}

func (s *Server) removeSource(ctx context.Context, _ *mcp.CallToolRequest, args removeSourceInput) (_ *mcp.CallToolResult, _ removeSourceOutput, err error) {
	done := s.metrics.track(ctx, "rag_remove_source")
	defer func() { done(err) }()

	if strings.TrimSpace(args.Source) == "" {
		return nil, removeSourceOutput{}, fmt.Errorf("%w: source is required", errInvalidArgument)
	}
	n, err := s.ingester.Remove(ctx, args.Source)
	if err != nil {
		return nil, removeSourceOutput{}, err
	}
	return textResult(fmt.Sprintf("Removed %d chunks of %s", n, args.Source)),
		removeSourceOutput{Source: args.Source, Removed: n}, nil
}

func (s *Server) listSources(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, listSourcesOutput, error) {
	done := s.metrics.track(ctx, "rag_list_sources")
	defer done(nil)

	summaries := s.store.Sources()
	out := listSourcesOutput{Sources: make([]sourceSummaryOutput, 0, len(summaries))}
	for _, sum := range summaries {
		out.Sources = append(out.Sources, sourceSummaryOutput{
			Source:  sum.Source,
			Chunks:  sum.Chunks,
			AddedAt: sum.AddedAt.UTC().Format(time.RFC3339),
		})
		out.TotalChunks += sum.Chunks
	}
	return textResult(fmt.Sprintf("%d sources, %d chunks", len(out.Sources), out.TotalChunks)), out, nil
}

func (s *Server) status(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, statusOutput, error) {
	done := s.metrics.track(ctx, "rag_status")
	defer done(nil)

	st := s.store.Status()
	out := statusOutput{State: st.State, Backend: st.Backend, Chunks: st.Chunks, Dimension: st.Dimension}
	msg := fmt.Sprintf("store %s on %s with %d chunks", st.State, st.Backend, st.Chunks)
	if st.State == vectorstore.StateFallbackActive.String() {
		msg += " (degraded)"
	}
	return textResult(msg), out, nil
}

func toSourceOutputs(sources []retrieval.Source) []sourceOutput {
	out := make([]sourceOutput, 0, len(sources))
	for _, src := range sources {
		out = append(out, sourceOutput{
			ID:       src.ID,
			Source:   src.Source,
			Preview:  src.Preview,
			Score:    src.Score,
			Metadata: src.Metadata,
		})
	}
	return out
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
