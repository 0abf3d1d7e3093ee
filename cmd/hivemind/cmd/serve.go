package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bargom/hivemind/internal/api"
	"github.com/bargom/hivemind/internal/auth"
	"github.com/bargom/hivemind/internal/health"
	"github.com/bargom/hivemind/internal/workflow/repository"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only audit API",
		Long: `Serve the audit API over workflow instances:

  GET /workflows              list instances (community_id, status, limit, offset)
  GET /workflows/{id}         full instance record
  GET /workflows/{id}/steps   step journal in order
  GET /health                 health checks
  GET /metrics                Prometheus metrics

Bearer tokens are required when http.auth.secret or http.auth.public_key is set.`,
		Args: cobra.NoArgs,
		Example: `  hivemind serve
  HIVEMIND_HTTP_ADDR=:9090 hivemind serve`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
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
	srv, err := a.newServer(repo)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Audit API listening on %s\n", a.cfg.HTTP.Server.Addr)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
	return nil
}

func (a *app) newServer(repo *repository.StateRepository) (*api.Server, error) {
	rc := api.RouterConfig{
		Workflows: repo,
		Health:    health.NewHandler(a.health),
		Metrics:   a.metrics,
		Logger:    a.logger,
		Timeout:   a.cfg.HTTP.RequestTimeout,
	}
	if a.cfg.HTTP.Auth.Enabled() {
		v, err := auth.NewValidator(a.cfg.HTTP.Auth, a.logger)
		if err != nil {
			return nil, fmt.Errorf("configuring auth: %w", err)
		}
		rc.Auth = auth.NewMiddleware(v)
	} else {
		a.logger.Warn("audit API is running without authentication")
	}
	return api.NewServer(api.NewRouter(rc), a.cfg.HTTP.Server), nil
}
