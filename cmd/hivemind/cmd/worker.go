package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bargom/hivemind/internal/shutdown"
	"github.com/bargom/hivemind/internal/workflow/activities"
)

var workerServe bool

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal worker for agent queries",
		Long: `Run the Temporal worker that executes AgentQueryWorkflow.

The worker connects to the workflow store, Redis (chat memory and the
response queue), the language model, and the retrieval workflow. With
--serve it also exposes the audit API, /health, and /metrics.`,
		Args: cobra.NoArgs,
		Example: `  hivemind worker
  hivemind worker --config hivemind.yaml --serve`,
		RunE: runWorker,
	}
	cmd.Flags().BoolVar(&workerServe, "serve", false, "also serve the audit API in this process")
	return cmd
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp(a)

	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	tc, err := a.dialTemporal()
	if err != nil {
		return err
	}
	rc, err := a.openRedis()
	if err != nil {
		return err
	}
	orch, err := a.newOrchestrator(repo, tc, rc)
	if err != nil {
		return err
	}

	eng, err := a.newEngine(tc)
	if err != nil {
		return err
	}
	eng.RegisterAgentQuery(activities.NewAgentActivities(orch, a.logger))
	if err := eng.Start(ctx); err != nil {
		return err
	}
	a.shutdown.Register("worker", shutdown.PriorityWorker, func(context.Context) error { return eng.Stop() })

	fmt.Fprintf(cmd.OutOrStdout(), "Worker polling task queue %s\n", a.cfg.Temporal.Worker.TaskQueue)

	if workerServe {
		srv, err := a.newServer(repo)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Audit API listening on %s\n", a.cfg.HTTP.Server.Addr)
		if err := srv.Run(ctx); err != nil {
			return err
		}
	} else {
		<-ctx.Done()
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Worker stopped")
	return nil
}

func closeApp(a *app) {
	if err := a.close(context.Background()); err != nil {
		a.logger.Error("releasing resources", "error", err)
	}
}
