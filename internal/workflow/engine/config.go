// Package engine runs the hivemind Temporal worker and starts agent query
// workflows.
package engine

import "time"

// Config holds the worker configuration. Connection settings live with the
// Temporal client.
type Config struct {
	// TaskQueue serves AgentQueryWorkflow and its activity.
	TaskQueue string `mapstructure:"task_queue"`
	// MaxConcurrentWorkflows is the maximum number of concurrent workflow task executions.
	MaxConcurrentWorkflows int `mapstructure:"max_concurrent_workflows"`
	// MaxConcurrentActivities is the maximum number of concurrent activity executions.
	MaxConcurrentActivities int `mapstructure:"max_concurrent_activities"`
	// DefaultTimeout is the workflow execution timeout for started workflows.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	WorkerID       string        `mapstructure:"worker_id"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TaskQueue:               "hivemind-agent",
		MaxConcurrentWorkflows:  100,
		MaxConcurrentActivities: 50,
		DefaultTimeout:          10 * time.Minute,
		WorkerID:                "hivemind-worker",
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.TaskQueue == "" {
		return ErrConfigInvalid{Field: "TaskQueue", Reason: "cannot be empty"}
	}
	if c.MaxConcurrentWorkflows <= 0 {
		return ErrConfigInvalid{Field: "MaxConcurrentWorkflows", Reason: "must be positive"}
	}
	if c.MaxConcurrentActivities <= 0 {
		return ErrConfigInvalid{Field: "MaxConcurrentActivities", Reason: "must be positive"}
	}
	if c.DefaultTimeout < 0 {
		return ErrConfigInvalid{Field: "DefaultTimeout", Reason: "cannot be negative"}
	}
	return nil
}
