package repository

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable is returned when the backing store cannot be reached.
	// The caller must not assume the write was recorded.
	ErrStorageUnavailable = errors.New("workflow storage unavailable")
	// ErrStorageTimeout is returned when a store operation exceeds its deadline.
	ErrStorageTimeout = errors.New("workflow storage timeout")

	ErrInstanceNotFound       = errors.New("workflow instance not found")
	ErrTerminalStateViolation = errors.New("workflow instance is in a terminal state")
	ErrAlreadyAnswered        = errors.New("workflow instance already has a response")
	ErrDuplicateInstance      = errors.New("workflow instance already exists for idempotency key")
	ErrInvalidTransition      = errors.New("invalid workflow status transition")
	ErrInvalidMetadataKey     = errors.New("invalid metadata key")

	// ErrPreconditionFailed is returned by Store.Apply when the instance
	// exists but does not satisfy the mutation's guard.
	ErrPreconditionFailed = errors.New("workflow instance precondition failed")
	// ErrDuplicateKey is returned by Store.Insert on an id or idempotency key collision.
	ErrDuplicateKey = errors.New("workflow instance duplicate key")
)

// IsRetryable reports whether err is a transient storage failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrStorageTimeout)
}

// StorageError wraps a driver error with the operation that produced it.
type StorageError struct {
	Op    string
	Kind  error
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Cause)
}

func (e *StorageError) Unwrap() []error {
	return []error{e.Kind, e.Cause}
}

// classifyContextErr maps context expiry to the storage taxonomy. It returns
// nil when err is not a context error.
func classifyContextErr(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &StorageError{Op: op, Kind: ErrStorageTimeout, Cause: err}
	case errors.Is(err, context.Canceled):
		return &StorageError{Op: op, Kind: ErrStorageUnavailable, Cause: err}
	}
	return nil
}
