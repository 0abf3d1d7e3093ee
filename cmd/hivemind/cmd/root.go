// Package cmd provides the CLI commands for hivemind.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// cfgFile holds the path to the config file
	cfgFile string
	// verbose enables verbose output
	verbose bool
	// outputFormat specifies the output format (json, plain)
	outputFormat string
)

// Execute builds the command tree and runs it. Called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates a fresh command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hivemind",
		Short: "Workflow state tracking for the hivemind agent",
		Long: `hivemind answers community questions as durable Temporal workflows.

Every query is recorded as a workflow instance with an append-only step
journal that can be inspected while it runs and after it finishes.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); HIVEMIND_* env vars override it")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "plain", "output format (json|plain)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newStateCmd())
	cmd.AddCommand(newCancelCmd())

	return cmd
}

// printVerbose prints message only if verbose mode is enabled.
func printVerbose(cmd *cobra.Command, format string, args ...any) {
	if verbose {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}
