package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bargom/hivemind/internal/workflow/definitions"
	"github.com/bargom/hivemind/internal/workflow/repository"
)

var (
	queryCommunity  string
	querySource     string
	queryChatID     string
	queryWorkflowID string
	querySkip       bool
	queryNoWait     bool
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Start an agent query and print the answer",
		Long: `Start AgentQueryWorkflow for a question and wait for the answer.

A worker must be polling the configured task queue. With --no-wait the
command prints the workflow id and run id and returns immediately.`,
		Args: cobra.MinimumNArgs(1),
		Example: `  hivemind query --community 6579c364f1120850414e0dc5 "What is hivemind?"
  hivemind query --community c1 --chat-id chat-42 --skip-answer "hello there"`,
		RunE: runQuery,
	}

	cmd.Flags().StringVar(&queryCommunity, "community", "", "community id (required)")
	cmd.Flags().StringVar(&querySource, "source", "cli", "route source recorded on the instance")
	cmd.Flags().StringVar(&queryChatID, "chat-id", "", "chat id for conversation memory")
	cmd.Flags().StringVar(&queryWorkflowID, "workflow-id", "", "Temporal workflow id (default: generated)")
	cmd.Flags().BoolVar(&querySkip, "skip-answer", false, "enable answer skipping for non-questions")
	cmd.Flags().BoolVar(&queryNoWait, "no-wait", false, "return after the workflow starts")
	_ = cmd.MarkFlagRequired("community")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp(a)

	retry := a.cfg.Temporal.Retry
	payload := definitions.QueryPayload{
		CommunityID:          queryCommunity,
		Query:                strings.Join(args, " "),
		Route:                repository.Route{Source: querySource},
		ChatID:               queryChatID,
		EnableAnswerSkipping: querySkip,
		ActivityTimeout:      a.cfg.Temporal.ActivityTimeout,
		Retry:                &retry,
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	if queryWorkflowID == "" {
		queryWorkflowID = "hivemind-agent-" + uuid.NewString()
	}

	tc, err := a.dialTemporal()
	if err != nil {
		return err
	}
	eng, err := a.newEngine(tc)
	if err != nil {
		return err
	}

	run, err := eng.StartAgentQuery(ctx, queryWorkflowID, payload)
	if err != nil {
		return err
	}
	printVerbose(cmd, "Started workflow %s (run %s)\n", run.GetID(), run.GetRunID())
	if queryNoWait {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", run.GetID(), run.GetRunID())
		return nil
	}

	res, err := eng.AwaitAgentQuery(ctx, run)
	if err != nil {
		return err
	}
	if res == nil {
		return errors.New("workflow returned no result")
	}

	if outputFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.Response == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "(answer skipped, workflow %s)\n", res.WorkflowID)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), *res.Response)
	return nil
}
