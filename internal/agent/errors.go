package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/bargom/hivemind/internal/agent/adapters"
	"github.com/bargom/hivemind/internal/workflow/repository"
)

// ErrWorkflowFailed is returned when a redelivered query finds its
// instance already failed.
var ErrWorkflowFailed = errors.New("workflow failed")

// StageError attributes a workflow-fatal error to the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// errorType names the failure class recorded in error_occurred.
func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, adapters.ErrClassificationUnavailable):
		return "classification_unavailable"
	case errors.Is(err, adapters.ErrClassificationInvalid):
		return "classification_invalid"
	case repository.IsRetryable(err):
		return "storage_unavailable"
	case errors.Is(err, repository.ErrTerminalStateViolation),
		errors.Is(err, repository.ErrInstanceNotFound):
		return "state_violation"
	}
	return "internal"
}

const maxErrorChain = 8

// errorChain lists the messages of err and every error it wraps, outermost
// first.
func errorChain(err error) []string {
	var chain []string
	var walk func(error)
	walk = func(e error) {
		if e == nil || len(chain) >= maxErrorChain {
			return
		}
		chain = append(chain, e.Error())
		switch u := e.(type) {
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		case interface{ Unwrap() []error }:
			for _, w := range u.Unwrap() {
				walk(w)
			}
		}
	}
	walk(err)
	return chain
}

// IsRetryable reports whether err should be surfaced to the engine for
// another attempt.
func IsRetryable(err error) bool {
	return repository.IsRetryable(err)
}
