package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelRunID string

func newCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <workflow-id>",
		Short: "Cancel a running agent query",
		Long: `Request cancellation of an AgentQueryWorkflow. The running activity
observes the cancellation on its next heartbeat and the instance is marked
failed.`,
		Args: cobra.ExactArgs(1),
		RunE: runCancel,
	}
	cmd.Flags().StringVar(&cancelRunID, "run-id", "", "run id (default: latest run)")
	return cmd
}

func runCancel(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp(a)

	tc, err := a.dialTemporal()
	if err != nil {
		return err
	}
	eng, err := a.newEngine(tc)
	if err != nil {
		return err
	}
	if err := eng.CancelWorkflow(cmd.Context(), args[0], cancelRunID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", args[0])
	return nil
}
