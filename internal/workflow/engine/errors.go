package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotStarted is returned when Stop is called before Start.
	ErrEngineNotStarted = errors.New("workflow engine not started")
	// ErrEngineAlreadyStarted is returned when Start is called on a running engine.
	ErrEngineAlreadyStarted = errors.New("workflow engine already started")
)

// ErrConfigInvalid is returned when configuration validation fails.
type ErrConfigInvalid struct {
	Field  string
	Reason string
}

func (e ErrConfigInvalid) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// ErrWorkflowFailed is returned when a started workflow ends in failure.
type ErrWorkflowFailed struct {
	WorkflowID string
	RunID      string
	Cause      error
}

func (e ErrWorkflowFailed) Error() string {
	return fmt.Sprintf("workflow %s (run: %s) failed: %v", e.WorkflowID, e.RunID, e.Cause)
}

func (e ErrWorkflowFailed) Unwrap() error {
	return e.Cause
}
