// Package api serves the read-only audit API over workflow instances.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/bargom/hivemind/internal/api/handlers"
	"github.com/bargom/hivemind/internal/auth"
	"github.com/bargom/hivemind/internal/health"
	"github.com/bargom/hivemind/pkg/logging"
	"github.com/bargom/hivemind/pkg/metrics"
)

// RouterConfig holds the router's collaborators. Auth, Health, Metrics and
// TracerProvider are optional.
type RouterConfig struct {
	Workflows handlers.WorkflowReader
	Auth      *auth.Middleware
	Health    *health.Handler
	Metrics   *metrics.Registry
	Logger    *slog.Logger
	Timeout   time.Duration
	// TracerProvider overrides the global provider for request spans.
	TracerProvider trace.TracerProvider
}

// NewRouter creates a chi router with all routes and middleware configured.
// Health and metrics endpoints are never authenticated.
func NewRouter(cfg RouterConfig) chi.Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var traceOpts []otelhttp.Option
	if cfg.TracerProvider != nil {
		traceOpts = append(traceOpts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}

	r := chi.NewRouter()
	r.Use(otelhttp.NewMiddleware("hivemind-audit", traceOpts...))
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.HTTPMiddleware)
	}

	if cfg.Health != nil {
		cfg.Health.Routes(r)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Timeout))
		if cfg.Auth != nil {
			r.Use(cfg.Auth.RequireAuth)
		}
		handlers.NewWorkflowHandler(cfg.Workflows, cfg.Logger).Routes(r)
	})

	return r
}
