package consult

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy of the lifecycle engine.
// Callers branch with errors.Is.
var (
	// ErrInvalidTransition means the attempted edge is not in the state
	// graph. Not retryable; the caller should refresh its view.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrForbidden means the actor lacks permission for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict means an optimistic-concurrency write lost to a
	// concurrent writer. Safe to retry once after a refetch.
	ErrConflict = errors.New("conflict")

	// ErrNotFound means the consult does not exist.
	ErrNotFound = errors.New("consult not found")

	// ErrDirectoryUnavailable means an identity or department-config
	// lookup failed before any write. Safe to retry.
	ErrDirectoryUnavailable = errors.New("directory unavailable")

	// ErrValidation means the request itself is malformed.
	ErrValidation = errors.New("validation failed")
)

func invalidTransitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func forbiddenError(action string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, action)
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}
