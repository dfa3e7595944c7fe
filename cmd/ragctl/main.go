// Package main implements ragctl, the command-line client for the ragd
// HTTP API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/internal/client"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	server  string
	json    bool
	timeout time.Duration
}

func (o *globalOptions) client() *client.Client {
	return client.New(o.server)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "ragctl",
		Short: "CLI for the ragd HTTP API",
		Long: `ragctl is a command-line interface for a running ragd server.
It ingests documents, asks grounded questions and inspects the index.`,
		Version:      version,
		SilenceUsage: true,
	}

	server := os.Getenv("RAGD_URL")
	if server == "" {
		server = "http://localhost:9191"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "ragd server URL (env RAGD_URL)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON responses")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "per-request timeout")

	root.AddCommand(
		newIngestCmd(opts),
		newQueryCmd(opts),
		newSearchCmd(opts),
		newRemoveCmd(opts),
		newClearCmd(opts),
		newSourcesCmd(opts),
		newStatusCmd(opts),
		newIndexCmd(opts),
		newChatCmd(opts),
	)
	return root
}

// printJSON writes v indented.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
