package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/hivemind/internal/database"
	"github.com/bargom/hivemind/internal/workflow/definitions"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, database.DatabaseTypeMongoDB, cfg.Database.Type)
	assert.Equal(t, "hivemind-retrieval", cfg.Temporal.Retrieval.TaskQueue)
	assert.Equal(t, definitions.DefaultActivityTimeout, cfg.Temporal.ActivityTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Agent.ChatHistoryTTL)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.False(t, cfg.Classifiers.AnswerValidation)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hivemind.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  type: sqlite
  sqlite:
    path: /tmp/hivemind.db
temporal:
  host_port: temporal:7233
  activity_timeout: 2m
  worker:
    task_queue: agent-queue
  retrieval:
    task_queue: rag-queue
http:
  addr: ":9090"
  auth:
    secret: s3cret
classifiers:
  rag_threshold: 0.7
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, database.DatabaseTypeSQLite, cfg.Database.Type)
	assert.Equal(t, "/tmp/hivemind.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "temporal:7233", cfg.Temporal.Client.HostPort)
	assert.Equal(t, "default", cfg.Temporal.Client.Namespace)
	assert.Equal(t, 2*time.Minute, cfg.Temporal.ActivityTimeout)
	assert.Equal(t, "agent-queue", cfg.Temporal.Worker.TaskQueue)
	assert.Equal(t, "rag-queue", cfg.Temporal.Retrieval.TaskQueue)
	assert.Equal(t, ":9090", cfg.HTTP.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.HTTP.Server.ReadTimeout)
	assert.Equal(t, "s3cret", cfg.HTTP.Auth.Secret)
	assert.Equal(t, "communities", cfg.HTTP.Auth.CommunitiesClaim)
	assert.InDelta(t, 0.7, cfg.Classifiers.RAGThreshold, 1e-9)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HIVEMIND_DATABASE_TYPE", "pg")
	t.Setenv("HIVEMIND_DATABASE_POSTGRES_HOST", "db.internal")
	t.Setenv("HIVEMIND_REDIS_ADDR", "redis:6379")
	t.Setenv("HIVEMIND_TEMPORAL_NAMESPACE", "hivemind")
	t.Setenv("HIVEMIND_QUEUE_MAX_RETRY", "7")
	t.Setenv("HIVEMIND_LLM_API_KEY", "sk-test")
	t.Setenv("HIVEMIND_STORE_OPERATION_TIMEOUT", "3s")
	t.Setenv("HIVEMIND_CLASSIFIERS_HISTORY_QUERY", "false")
	t.Setenv("HIVEMIND_CLASSIFIERS_ANSWER_VALIDATION", "true")
	t.Setenv("HIVEMIND_TELEMETRY_ENABLED", "true")
	t.Setenv("HIVEMIND_TELEMETRY_ENDPOINT", "http://collector:4318")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, database.DatabaseTypePostgres, cfg.Database.Type)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "hivemind", cfg.Temporal.Client.Namespace)
	assert.Equal(t, 7, cfg.Queue.MaxRetry)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Store.OperationTimeout)
	assert.False(t, cfg.Classifiers.HistoryQuery)
	assert.True(t, cfg.Classifiers.AnswerValidation)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "http://collector:4318", cfg.Telemetry.Endpoint)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hivemind.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  addr: file:6379\n"), 0o600))
	t.Setenv("HIVEMIND_REDIS_ADDR", "env:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env:6379", cfg.Redis.Addr)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("unknown database", func(t *testing.T) {
		t.Setenv("HIVEMIND_DATABASE_TYPE", "oracle")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oracle")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"cache type", func(c *Config) { c.Cache.Type = "memcached" }, "cache"},
		{"rag threshold", func(c *Config) { c.Classifiers.RAGThreshold = 1.5 }, "rag_threshold"},
		{"local model", func(c *Config) { c.Classifiers.LocalModelURL = "" }, "local_model_url"},
		{"activity timeout", func(c *Config) { c.Temporal.ActivityTimeout = 0 }, "activity_timeout"},
		{"http addr", func(c *Config) { c.HTTP.Server.Addr = "" }, "addr"},
		{"redis", func(c *Config) { c.Redis.Addr = "" }, "redis"},
		{"temporal", func(c *Config) { c.Temporal.Client.HostPort = "" }, "host_port"},
		{"telemetry", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.SampleRatio = 2 }, "sample ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
