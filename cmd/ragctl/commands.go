package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/internal/chat"
	ragdhttp "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
)

func (o *globalOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func parseMetadata(pairs map[string]string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]any, len(pairs))
	for k, v := range pairs {
		out[k] = v
	}
	return out
}

func newIngestCmd(opts *globalOptions) *cobra.Command {
	var (
		source   string
		text     string
		metadata map[string]string
		replace  bool
		durable  durableOptions
	)
	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Index files, stdin or inline text",
		Long: `Index documents into ragd.

Files are uploaded and parsed by the server (PDF, HTML, Markdown, text).
Use "-" to read text from stdin, or --text for inline text.

Examples:
  # Index two files
  ragctl ingest README.md docs/guide.pdf

  # Re-index a file, replacing its previous chunks
  ragctl ingest --replace README.md

  # Index inline text under a chosen source name
  ragctl ingest --source notes/today --text "Deploys happen on Tuesdays"

  # Ingest through a durable Temporal workflow
  ragctl ingest --durable --temporal-host localhost:7233 report.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" && len(args) == 0 {
				return errors.New("nothing to ingest: pass files, \"-\" or --text")
			}
			if text != "" && len(args) > 0 {
				return errors.New("--text cannot be combined with files")
			}
			if source != "" && len(args) > 1 {
				return errors.New("--source applies to a single document")
			}
			meta := parseMetadata(metadata)

			if durable.enabled {
				return runDurableIngest(cmd, durable, source, text, args, meta, replace)
			}

			c := opts.client()
			if text != "" || (len(args) == 1 && args[0] == "-") {
				if text == "" {
					raw, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return fmt.Errorf("failed to read from stdin: %w", err)
					}
					text = string(raw)
				}
				if source == "" {
					return errors.New("--source is required for text input")
				}
				ctx, cancel := opts.context(cmd)
				defer cancel()
				res, err := c.IngestText(ctx, ragdhttp.IngestTextRequest{Source: source, Text: text, Metadata: meta, Replace: replace})
				if err != nil {
					return err
				}
				return printIngest(cmd, opts, res)
			}

			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read file %s: %w", path, err)
				}
				src := source
				if src == "" {
					src = filepath.ToSlash(path)
				}
				ctx, cancel := opts.context(cmd)
				res, err := c.IngestFile(ctx, path, src, content, meta, replace)
				cancel()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := printIngest(cmd, opts, res); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source name (default: the file path)")
	cmd.Flags().StringVar(&text, "text", "", "inline text to index")
	cmd.Flags().StringToStringVarP(&metadata, "metadata", "m", nil, "metadata key=value pairs")
	cmd.Flags().BoolVar(&replace, "replace", false, "remove existing chunks of the source first")
	durable.register(cmd)
	return cmd
}

func printIngest(cmd *cobra.Command, opts *globalOptions, res ingest.Result) error {
	if opts.json {
		return printJSON(cmd.OutOrStdout(), res)
	}
	line := fmt.Sprintf("Indexed %s: %d chunks", res.Source, res.NumChunks)
	if res.Replaced > 0 {
		line += fmt.Sprintf(", replaced %d", res.Replaced)
	}
	if res.Redactions > 0 {
		line += fmt.Sprintf(", %d secrets redacted", res.Redactions)
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
	return nil
}

func newQueryCmd(opts *globalOptions) *cobra.Command {
	var (
		topK         int
		temperature  float64
		maxTokens    int
		extraContext string
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question answered from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := retrieval.Options{TopK: topK, MaxTokens: maxTokens, ExtraContext: extraContext}
			if cmd.Flags().Changed("temperature") {
				q.Temperature = &temperature
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			res, err := opts.client().Query(ctx, strings.Join(args, " "), q)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Message)
			if len(res.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
				printSources(out, res.Sources)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "chunks to retrieve (server default when 0)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "answer length limit")
	cmd.Flags().StringVar(&extraContext, "context", "", "extra instructions for the answer")
	return cmd
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Show the chunks most similar to the text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			results, err := opts.client().Search(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), results)
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results.")
				return nil
			}
			printSources(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (server default when 0)")
	return cmd
}

func printSources(w io.Writer, sources []retrieval.Source) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, s := range sources {
		fmt.Fprintf(tw, "  [%d]\t%s\t%s\t%s\n", i+1, chat.FormatScore(s.Score), s.Source, oneLine(s.Preview, 60))
	}
	_ = tw.Flush()
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <source>",
		Short: "Remove every chunk of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			res, err := opts.client().Remove(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d chunks of %s\n", res.Removed, res.Source)
			return nil
		},
	}
}

func newClearCmd(opts *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every chunk from the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear the index without --yes")
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			if err := opts.client().Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Index cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the index")
	return cmd
}

func newSourcesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List indexed sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			res, err := opts.client().Sources(ctx)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tCHUNKS\tADDED")
			for _, s := range res.Sources {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Source, s.Chunks, s.AddedAt.Local().Format(time.DateTime))
			}
			fmt.Fprintf(tw, "\t%d total\t\n", res.Total)
			return tw.Flush()
		},
	}
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health and vector store state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			res, err := opts.client().Health(ctx)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", res.Status)
			if res.Version != "" {
				fmt.Fprintf(out, "Version:       %s\n", res.Version)
			}
			fmt.Fprintf(out, "Store:         %s (%s)\n", res.Store.Backend, res.Store.State)
			fmt.Fprintf(out, "Chunks:        %d\n", res.Store.Chunks)
			if res.Store.Dimension > 0 {
				fmt.Fprintf(out, "Dimension:     %d\n", res.Store.Dimension)
			}
			return nil
		},
	}
}

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var req ragdhttp.IndexRequest
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Bulk-index a directory on the server or a git repository",
		Long: `Bulk-index a directory tree readable by the server, or clone and
index a git repository.

Examples:
  # Index Go and Markdown files under /srv/docs
  ragctl index /srv/docs --include "**/*.go" --include "**/*.md"

  # Index a tagged release of a repository
  ragctl index --git https://github.com/org/repo.git --ref v1.2.0`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				req.Path = args[0]
			}
			if (req.Path == "") == (req.GitURL == "") {
				return errors.New("pass exactly one of a path or --git")
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			res, err := opts.client().Index(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&req.GitURL, "git", "", "git repository URL to clone")
	cmd.Flags().StringVar(&req.Ref, "ref", "", "branch or tag (default: HEAD)")
	cmd.Flags().StringArrayVar(&req.Include, "include", nil, "glob of files to include (repeatable)")
	cmd.Flags().StringArrayVar(&req.Exclude, "exclude", nil, "glob of files to exclude (repeatable)")
	cmd.Flags().Int64Var(&req.MaxFileSize, "max-file-size", 0, "skip files larger than this many bytes")
	cmd.Flags().BoolVar(&req.NoIgnore, "no-ignore", false, "do not read .gitignore and .ragdignore")
	return cmd
}

func newChatCmd(opts *globalOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive question-and-answer session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return chat.Run(opts.client(), opts.server, retrieval.Options{TopK: topK}, opts.timeout)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "chunks to retrieve per question")
	return cmd
}
