// Ragd is the retrieval-augmented generation daemon.
//
// It indexes documents into a vector store and answers questions grounded
// in them, over HTTP ("ragd serve", the default) or MCP on stdio
// ("ragd mcp").
//
// Configuration is read from ~/.config/ragd/config.yaml and RAGD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the HTTP daemon
//	ragd
//
//	# Serve MCP tools to a local client
//	ragd mcp
//
//	# Override settings through the environment
//	RAGD_SERVER_PORT=9292 RAGD_STORE_PRIMARY=memory ragd serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the --config flag. Empty selects the default location.
var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragd",
		Short: "Retrieval-augmented generation daemon",
		Long: `ragd indexes documents into a vector store and answers questions
grounded in them.

Without a subcommand it runs the HTTP server, like "ragd serve".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/ragd/config.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server, watcher and durable ingest worker",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "mcp",
			Short: "Serve MCP tools over stdio",
			Long: `Serve the rag_* MCP tools over stdio.

Logs go to stderr because stdout carries the protocol.`,
			Args: cobra.NoArgs,
			RunE: runMCP,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				printVersion(cmd)
			},
		},
	)
	return root
}

func printVersion(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ragd by Fyrsmith Labs\n")
	fmt.Fprintf(out, "Version:    %s\n", version)
	fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(out, "Build Date: %s\n", buildDate)
}
