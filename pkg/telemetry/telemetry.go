// Package telemetry provides OpenTelemetry tracing for the hivemind services.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InstrumentationName is the OTel instrumentation scope name.
	InstrumentationName = "github.com/bargom/hivemind"

	// InstrumentationVersion is the OTel instrumentation scope version.
	InstrumentationVersion = "0.1.0"
)

// Config holds tracing configuration.
type Config struct {
	// Enabled turns on span export. When false the global no-op provider stays in place.
	Enabled bool `mapstructure:"enabled"`

	// Endpoint is the OTLP/HTTP collector URL.
	Endpoint string `mapstructure:"endpoint"`

	ServiceName string `mapstructure:"service_name"`

	// SampleRatio is the fraction of root spans kept, between 0 and 1.
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// DefaultConfig returns tracing disabled, pointed at a local collector.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Endpoint:    "http://localhost:4318",
		ServiceName: "hivemind",
		SampleRatio: 1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("telemetry: endpoint is required when enabled"))
	}
	if c.ServiceName == "" {
		errs = append(errs, errors.New("telemetry: service name is required when enabled"))
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry: sample ratio %v must be between 0 and 1", c.SampleRatio))
	}
	return errors.Join(errs...)
}

// Tracer returns the hivemind tracer from tp. If tp is nil the global
// provider is used.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(InstrumentationVersion))
}

// NewTracerProvider creates a TracerProvider that exports spans via OTLP/HTTP.
// The caller is responsible for calling Shutdown on the returned provider.
func NewTracerProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter: %w", err)
	}
	return newProvider(cfg, sdktrace.WithBatcher(exporter))
}

func newProvider(cfg Config, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	opts = append(opts,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	return sdktrace.NewTracerProvider(opts...), nil
}

// Setup installs an exporting provider as the global one when tracing is
// enabled. The returned func flushes and stops it; it is a no-op when
// tracing is disabled.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	tp, err := NewTracerProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	SetupPropagation()
	return tp.Shutdown, nil
}

// SetupPropagation configures the global text-map propagator for W3C
// TraceContext and Baggage headers.
func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
