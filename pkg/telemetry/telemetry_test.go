package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"enabled", func(c *Config) { c.Enabled = true }, false},
		{"disabled ignores fields", func(c *Config) { c.Endpoint = "" }, false},
		{"missing endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, true},
		{"missing service", func(c *Config) { c.Enabled = true; c.ServiceName = "" }, true},
		{"bad ratio", func(c *Config) { c.Enabled = true; c.SampleRatio = 2 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTracerRecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp, err := newProvider(DefaultConfig(), sdktrace.WithSpanProcessor(sr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := Tracer(tp).Start(context.Background(), "agent.run")
	assert.True(t, span.SpanContext().IsValid())
	_, child := Tracer(tp).Start(ctx, "agent.classifying")
	child.End()
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "agent.classifying", ended[0].Name())
	assert.Equal(t, span.SpanContext().SpanID(), ended[0].Parent().SpanID())
	assert.Equal(t, InstrumentationName, ended[1].InstrumentationScope().Name)

	var service string
	for _, kv := range ended[1].Resource().Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "hivemind", service)
}

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
