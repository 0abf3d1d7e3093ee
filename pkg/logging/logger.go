package logging

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	RequestIDKey   contextKey = "request_id"
	WorkflowIDKey  contextKey = "workflow_id"
	CommunityIDKey contextKey = "community_id"
)

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
	config Config
}

// New creates a new Logger with the given configuration.
func New(config Config) *Logger {
	return NewWithWriter(config, config.GetOutput())
}

// NewWithWriter creates a new Logger with a custom writer.
func NewWithWriter(config Config, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(&ContextHandler{Handler: handler}),
		config: config,
	}
}

// SetDefault sets this logger as the default slog logger.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

// WithModule returns a new Logger with module context.
func (l *Logger) WithModule(module string) *Logger {
	return &Logger{Logger: l.Logger.With("module", module), config: l.config}
}

// ContextHandler adds request, workflow and trace identifiers found in the
// context to each record.
type ContextHandler struct {
	slog.Handler
}

// Handle adds context values to the record and passes it on.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, key := range []contextKey{RequestIDKey, WorkflowIDKey, CommunityIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			r.AddAttrs(slog.String(string(key), v))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// WithWorkflow returns a context carrying the workflow and community ids.
func WithWorkflow(ctx context.Context, workflowID, communityID string) context.Context {
	ctx = context.WithValue(ctx, WorkflowIDKey, workflowID)
	return context.WithValue(ctx, CommunityIDKey, communityID)
}

// RequestIDFromContext returns the request id, if any.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

// Default returns a logger configured from the environment.
func Default() *Logger {
	return New(ConfigFromEnv())
}
