package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/bargom/hivemind/internal/workflow/repository"
)

var stateStepsOnly bool

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state <workflow-id>",
		Short: "Print a workflow instance as JSON",
		Args:  cobra.ExactArgs(1),
		Example: `  hivemind state 0b6f0c7e-5d0e-4a53-9d1f-3f3c0f3a1b2c
  hivemind state --steps 0b6f0c7e-5d0e-4a53-9d1f-3f3c0f3a1b2c`,
		RunE: runState,
	}
	cmd.Flags().BoolVar(&stateStepsOnly, "steps", false, "print only the step journal")
	return cmd
}

func runState(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp(a)

	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if stateStepsOnly {
		steps := []repository.StepEvent{}
		for ev, err := range repo.ReadSteps(ctx, args[0]) {
			if err != nil {
				return err
			}
			steps = append(steps, ev)
		}
		return enc.Encode(steps)
	}

	inst, err := repo.GetWorkflowState(ctx, args[0])
	if err != nil {
		return err
	}
	return enc.Encode(inst)
}
