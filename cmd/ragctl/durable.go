package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/fyrsmithlabs/ragd/internal/workflows"
)

// durableOptions route ingestion through the Temporal workflow instead of
// the HTTP API. The worker runs inside "ragd serve".
type durableOptions struct {
	enabled   bool
	wait      bool
	hostPort  string
	namespace string
	taskQueue string
}

func (d *durableOptions) register(cmd *cobra.Command) {
	host := os.Getenv("TEMPORAL_HOST")
	if host == "" {
		host = "localhost:7233"
	}
	cmd.Flags().BoolVar(&d.enabled, "durable", false, "ingest through a Temporal workflow")
	cmd.Flags().BoolVar(&d.wait, "wait", false, "with --durable, wait for the workflow result")
	cmd.Flags().StringVar(&d.hostPort, "temporal-host", host, "Temporal frontend host:port (env TEMPORAL_HOST)")
	cmd.Flags().StringVar(&d.namespace, "temporal-namespace", "default", "Temporal namespace")
	cmd.Flags().StringVar(&d.taskQueue, "task-queue", workflows.DefaultTaskQueue, "Temporal task queue")
}

// durableInputs builds one workflow input per document.
func durableInputs(in io.Reader, source, text string, files []string, meta map[string]any, replace bool) ([]workflows.IngestInput, error) {
	if text != "" || (len(files) == 1 && files[0] == "-") {
		if text == "" {
			raw, err := io.ReadAll(in)
			if err != nil {
				return nil, fmt.Errorf("failed to read from stdin: %w", err)
			}
			text = string(raw)
		}
		if source == "" {
			return nil, errors.New("--source is required for text input")
		}
		return []workflows.IngestInput{{Source: source, Text: text, Metadata: meta, Replace: replace}}, nil
	}

	inputs := make([]workflows.IngestInput, 0, len(files))
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
		src := source
		if src == "" {
			src = filepath.ToSlash(path)
		}
		inputs = append(inputs, workflows.IngestInput{
			Source:   src,
			Name:     filepath.Base(path),
			Content:  content,
			Metadata: meta,
			Replace:  replace,
		})
	}
	return inputs, nil
}

func runDurableIngest(cmd *cobra.Command, d durableOptions, source, text string, files []string, meta map[string]any, replace bool) error {
	inputs, err := durableInputs(cmd.InOrStdin(), source, text, files, meta, replace)
	if err != nil {
		return err
	}

	c, err := client.Dial(client.Options{HostPort: d.hostPort, Namespace: d.namespace})
	if err != nil {
		return fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	for _, in := range inputs {
		run, err := workflows.StartIngest(cmd.Context(), c, d.taskQueue, in)
		if err != nil {
			return fmt.Errorf("%s: %w", in.Source, err)
		}
		fmt.Fprintf(out, "Started %s: workflow %s run %s\n", in.Source, run.GetID(), run.GetRunID())
		if !d.wait {
			continue
		}
		var res workflows.IngestOutput
		if err := run.Get(cmd.Context(), &res); err != nil {
			return fmt.Errorf("%s: %w", in.Source, err)
		}
		fmt.Fprintf(out, "Indexed %s: %d chunks", res.Source, res.NumChunks)
		if res.Removed > 0 {
			fmt.Fprintf(out, ", replaced %d", res.Removed)
		}
		fmt.Fprintln(out)
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  warning: %s\n", e)
		}
	}
	return nil
}
