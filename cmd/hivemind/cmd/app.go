package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.temporal.io/sdk/client"

	"github.com/bargom/hivemind/internal/agent"
	"github.com/bargom/hivemind/internal/agent/adapters"
	"github.com/bargom/hivemind/internal/cache"
	"github.com/bargom/hivemind/internal/config"
	"github.com/bargom/hivemind/internal/database"
	"github.com/bargom/hivemind/internal/dispatch"
	"github.com/bargom/hivemind/internal/health"
	"github.com/bargom/hivemind/internal/health/checks"
	"github.com/bargom/hivemind/internal/llm"
	"github.com/bargom/hivemind/internal/retrieval"
	"github.com/bargom/hivemind/internal/shutdown"
	"github.com/bargom/hivemind/internal/workflow/engine"
	"github.com/bargom/hivemind/internal/workflow/repository"
	"github.com/bargom/hivemind/pkg/integration"
	hredis "github.com/bargom/hivemind/pkg/integration/redis"
	"github.com/bargom/hivemind/pkg/integration/rest"
	"github.com/bargom/hivemind/pkg/integration/temporal"
	"github.com/bargom/hivemind/pkg/logging"
	"github.com/bargom/hivemind/pkg/metrics"
	"github.com/bargom/hivemind/pkg/telemetry"
)

// app holds the loaded configuration and every resource opened for one
// command. close releases them through the shutdown manager.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	logger   *slog.Logger
	metrics  *metrics.Registry
	health   *health.Registry
	shutdown *shutdown.Manager
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger := logging.New(cfg.Logging)
	logger.SetDefault()

	reg := metrics.NewRegistry(cfg.Metrics)
	metrics.SetGlobal(reg)

	stopTracing, err := telemetry.Setup(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	sm := shutdown.NewManager(cfg.Shutdown, logger.Logger)
	sm.Register("telemetry", shutdown.PriorityTelemetry, stopTracing)

	printVerbose(cmd, "Loaded config (store=%s, task_queue=%s, tracing=%t)\n",
		cfg.Database.Type, cfg.Temporal.Worker.TaskQueue, cfg.Telemetry.Enabled)
	return &app{
		cfg:      cfg,
		log:      logger,
		logger:   logger.Logger,
		metrics:  reg,
		health:   health.NewRegistry(Version, health.WithLogger(logger.Logger)),
		shutdown: sm,
	}, nil
}

func (a *app) moduleLogger(module string) *slog.Logger {
	return a.log.WithModule(module).Logger
}

func (a *app) close(ctx context.Context) error {
	return a.shutdown.Shutdown(ctx)
}

func (a *app) openRepository(ctx context.Context) (*repository.StateRepository, error) {
	conn, err := database.Open(ctx, a.cfg.Database, a.logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", a.cfg.Database.Type, err)
	}
	a.shutdown.Register("store", shutdown.PriorityStore, conn.Close)
	a.health.Register(checks.NewPingChecker("store", conn))

	return repository.NewStateRepository(repository.Instrument(conn.Store),
		repository.WithLogger(a.moduleLogger("store")),
		repository.WithOperationTimeout(a.cfg.Store.OperationTimeout),
	), nil
}

func (a *app) dialTemporal() (client.Client, error) {
	c, err := temporal.NewClient(a.cfg.Temporal.Client, a.logger)
	if err != nil {
		return nil, err
	}
	a.shutdown.Register("temporal", shutdown.PriorityClient, func(context.Context) error {
		c.Close()
		return nil
	})
	a.health.Register(checks.NewPingChecker("temporal", checks.PingFunc(func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &client.CheckHealthRequest{})
		return err
	})))
	return c, nil
}

func (a *app) newEngine(c client.Client) (*engine.Engine, error) {
	return engine.NewEngine(c, a.cfg.Temporal.Worker, a.logger)
}

func (a *app) openRedis() (*hredis.Client, error) {
	rc, err := hredis.NewClient(a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.shutdown.Register("redis", shutdown.PriorityClient, func(context.Context) error { return rc.Close() })
	a.health.Register(checks.NewPingChecker("redis", rc, checks.WithSeverity(health.SeverityWarning)))
	return rc, nil
}

// newOrchestrator wires the orchestrator and every collaborator it uses.
func (a *app) newOrchestrator(repo *repository.StateRepository, tc client.Client, rc *hredis.Client) (*agent.Orchestrator, error) {
	store, err := cache.New(a.cfg.Cache, rc.Redis())
	if err != nil {
		return nil, err
	}
	a.shutdown.Register("chat_memory", shutdown.PriorityCache, func(context.Context) error { return store.Close() })
	memory := cache.NewChatMemory(store, a.cfg.Agent.ChatHistoryTTL, a.moduleLogger("chat_memory"))

	lm, err := llm.New(a.cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	local, err := a.localModel()
	if err != nil {
		return nil, err
	}
	classifiers := agent.Classifiers{
		Local:    local,
		Question: adapters.NewQuestionClassifier(lm),
		RAG:      adapters.NewRAGClassifier(lm, a.cfg.Classifiers.RAGThreshold),
	}
	if a.cfg.Classifiers.HistoryQuery {
		classifiers.History = adapters.NewHistoryQueryClassifier(lm)
	}

	retriever, err := retrieval.NewTemporalRetriever(tc, a.cfg.Temporal.Retrieval, a.moduleLogger("retrieval"))
	if err != nil {
		return nil, err
	}

	queue := asynq.NewClient(rc.AsynqOpt())
	a.shutdown.Register("response_queue", shutdown.PriorityQueue, func(context.Context) error { return queue.Close() })
	dispatcher, err := dispatch.New(queue, a.cfg.Queue, a.moduleLogger("dispatch"))
	if err != nil {
		return nil, err
	}

	opts := []agent.Option{
		agent.WithChatMemory(memory),
		agent.WithDispatcher(dispatcher),
		agent.WithLogger(a.moduleLogger("agent")),
		agent.WithFailureTimeout(a.cfg.Agent.FailureTimeout),
	}
	if a.cfg.Classifiers.AnswerValidation {
		opts = append(opts, agent.WithAnswerValidator(adapters.NewLMAnswerValidator(lm)))
	}
	return agent.New(repo, classifiers, adapters.NewLMAnswerer(lm), retriever, opts...)
}

func (a *app) localModel() (*adapters.LocalModel, error) {
	ic := integration.DefaultConfig()
	ic.ServiceName = "local_model"
	ic.BaseURL = a.cfg.Classifiers.LocalModelURL
	if a.cfg.Classifiers.LocalModelTimeout > 0 {
		ic.Timeout = a.cfg.Classifiers.LocalModelTimeout
	}
	hc, err := rest.New(ic)
	if err != nil {
		return nil, fmt.Errorf("creating local model client: %w", err)
	}
	hc.WithHTTPClient(&http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   ic.Timeout,
	})
	return adapters.NewLocalModel(hc, a.cfg.Classifiers.LocalModelPath, a.cfg.Classifiers.LocalModelName), nil
}
