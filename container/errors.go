package container

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrInvalidOperation is returned for operations not allowed in the
	// current state, such as updating an uninstalled bundle or a transient
	// start below the bundle's start level.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrStateChangeTimeout is returned when a bundle's state lock cannot be
	// acquired in time.
	ErrStateChangeTimeout = errors.New("timed out waiting for a state change")

	// ErrConcurrentCommit is returned when the wiring changed between the
	// start and the commit of a resolve operation.
	ErrConcurrentCommit = errors.New("wiring changed concurrently")
)

// ActivatorError wraps a failure of a bundle activator.
type ActivatorError struct {
	Bundle *Bundle
	// Op is "start" or "stop".
	Op  string
	Err error
}

func (e *ActivatorError) Error() string {
	return fmt.Sprintf("activator %s of %s failed: %v", e.Op, e.Bundle, e.Err)
}

func (e *ActivatorError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}
