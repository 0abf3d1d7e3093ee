// Package config loads hivemind configuration from an optional YAML file and
// HIVEMIND_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bargom/hivemind/internal/agent"
	"github.com/bargom/hivemind/internal/agent/adapters"
	"github.com/bargom/hivemind/internal/api"
	"github.com/bargom/hivemind/internal/auth"
	"github.com/bargom/hivemind/internal/cache"
	"github.com/bargom/hivemind/internal/database"
	"github.com/bargom/hivemind/internal/dispatch"
	"github.com/bargom/hivemind/internal/llm"
	"github.com/bargom/hivemind/internal/retrieval"
	"github.com/bargom/hivemind/internal/shutdown"
	"github.com/bargom/hivemind/internal/workflow/definitions"
	"github.com/bargom/hivemind/internal/workflow/engine"
	"github.com/bargom/hivemind/internal/workflow/repository"
	hredis "github.com/bargom/hivemind/pkg/integration/redis"
	"github.com/bargom/hivemind/pkg/integration/temporal"
	"github.com/bargom/hivemind/pkg/logging"
	"github.com/bargom/hivemind/pkg/metrics"
	"github.com/bargom/hivemind/pkg/telemetry"
)

// EnvPrefix prefixes every environment override, e.g.
// HIVEMIND_DATABASE_MONGODB_URI for database.mongodb.uri.
const EnvPrefix = "HIVEMIND"

// Config is the complete process configuration.
type Config struct {
	Database    database.Config   `mapstructure:"database"`
	Store       StoreConfig       `mapstructure:"store"`
	Redis       hredis.Config     `mapstructure:"redis"`
	Cache       cache.Config      `mapstructure:"cache"`
	Agent       AgentConfig       `mapstructure:"agent"`
	Temporal    TemporalConfig    `mapstructure:"temporal"`
	Queue       dispatch.Config   `mapstructure:"queue"`
	Classifiers ClassifiersConfig `mapstructure:"classifiers"`
	LLM         llm.Config        `mapstructure:"llm"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Logging     logging.Config    `mapstructure:"logging"`
	Metrics     metrics.Config    `mapstructure:"metrics"`
	Telemetry   telemetry.Config  `mapstructure:"telemetry"`
	Shutdown    shutdown.Config   `mapstructure:"shutdown"`
}

// StoreConfig tunes the state repository.
type StoreConfig struct {
	// OperationTimeout bounds store calls whose context has no deadline.
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// AgentConfig tunes the orchestrator and its chat memory.
type AgentConfig struct {
	ChatHistoryTTL time.Duration `mapstructure:"chat_history_ttl"`
	FailureTimeout time.Duration `mapstructure:"failure_timeout"`
}

// TemporalConfig groups the frontend connection, the agent worker, the
// external retrieval workflow, and the activity retry policy.
type TemporalConfig struct {
	Client          temporal.ClientConfig   `mapstructure:",squash"`
	Worker          engine.Config           `mapstructure:"worker"`
	Retrieval       retrieval.Config        `mapstructure:"retrieval"`
	Retry           definitions.RetryConfig `mapstructure:"retry"`
	ActivityTimeout time.Duration           `mapstructure:"activity_timeout"`
}

// ClassifiersConfig configures the local text classifier and the
// language-model classifiers.
type ClassifiersConfig struct {
	LocalModelURL     string        `mapstructure:"local_model_url"`
	LocalModelPath    string        `mapstructure:"local_model_path"`
	LocalModelName    string        `mapstructure:"local_model_name"`
	LocalModelTimeout time.Duration `mapstructure:"local_model_timeout"`
	RAGThreshold      float64       `mapstructure:"rag_threshold"`
	// HistoryQuery enables the history-query classifier.
	HistoryQuery bool `mapstructure:"history_query"`
	// AnswerValidation checks generated answers for relevance.
	AnswerValidation bool `mapstructure:"answer_validation"`
}

// HTTPConfig configures the audit API.
type HTTPConfig struct {
	Server         api.ServerConfig `mapstructure:",squash"`
	RequestTimeout time.Duration    `mapstructure:"request_timeout"`
	Auth           auth.Config      `mapstructure:"auth"`
}

// Default returns a configuration that runs against local services.
func Default() Config {
	return Config{
		Database: database.DefaultConfig(),
		Store:    StoreConfig{OperationTimeout: repository.DefaultOperationTimeout},
		Redis:    hredis.DefaultConfig(),
		Cache:    cache.DefaultConfig(),
		Agent: AgentConfig{
			ChatHistoryTTL: cache.ChatMemoryTTL,
			FailureTimeout: agent.DefaultFailureTimeout,
		},
		Temporal: TemporalConfig{
			Client:          temporal.DefaultClientConfig(),
			Worker:          engine.DefaultConfig(),
			Retrieval:       retrieval.DefaultConfig(),
			Retry:           definitions.DefaultRetryConfig(),
			ActivityTimeout: definitions.DefaultActivityTimeout,
		},
		Queue: dispatch.DefaultConfig(),
		Classifiers: ClassifiersConfig{
			LocalModelURL:     "http://localhost:8000",
			LocalModelPath:    "/classify",
			LocalModelName:    adapters.DefaultLocalModel,
			LocalModelTimeout: 10 * time.Second,
			RAGThreshold:      adapters.DefaultRAGThreshold,
			HistoryQuery:      true,
		},
		LLM: llm.DefaultConfig(),
		HTTP: HTTPConfig{
			Server:         api.DefaultServerConfig(),
			RequestTimeout: 30 * time.Second,
			Auth:           auth.DefaultConfig(),
		},
		Logging:   logging.DefaultConfig(),
		Metrics:   metrics.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
		Shutdown:  shutdown.DefaultConfig(),
	}
}

// Load reads path (optional) over the defaults and applies environment
// overrides, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := bindEnvs(v, reflect.TypeOf(cfg), ""); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Database.Type = database.ParseDatabaseType(string(cfg.Database.Type))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindEnvs registers every leaf key of t so that environment variables are
// honored even when no file mentions the key.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			continue
		}
		key := prefix
		if opts != "squash" {
			if name == "" {
				name = strings.ToLower(f.Name)
			}
			if key != "" {
				key += "."
			}
			key += name
		}

		if f.Type.Kind() == reflect.Struct {
			if err := bindEnvs(v, f.Type, key); err != nil {
				return err
			}
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(c.Database.Validate())
	add(c.Redis.Validate())
	add(c.Temporal.Client.Validate())
	add(c.Temporal.Worker.Validate())
	add(c.Temporal.Retrieval.Validate())
	add(c.Temporal.Retry.Validate())
	add(c.Queue.Validate())
	add(c.LLM.Validate())
	add(c.Telemetry.Validate())

	if c.Store.OperationTimeout < 0 {
		add(errors.New("store: operation_timeout cannot be negative"))
	}
	if c.Temporal.ActivityTimeout <= 0 {
		add(errors.New("temporal: activity_timeout must be positive"))
	}
	switch c.Cache.Type {
	case "redis", "memory":
	default:
		add(fmt.Errorf("cache: unsupported type %q", c.Cache.Type))
	}
	if c.Classifiers.LocalModelURL == "" {
		add(errors.New("classifiers: local_model_url is required"))
	}
	if c.Classifiers.RAGThreshold <= 0 || c.Classifiers.RAGThreshold > 1 {
		add(errors.New("classifiers: rag_threshold must be within (0, 1]"))
	}
	if c.HTTP.Server.Addr == "" {
		add(errors.New("http: addr is required"))
	}
	return errors.Join(errs...)
}
