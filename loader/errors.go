package loader

import (
	"errors"
	"fmt"

	"github.com/albertocavalcante/go-modrt/resource"
)

// Sentinel errors.
var (
	// ErrClassNotFound is returned when no step of the delegation pipeline
	// provides a class.
	ErrClassNotFound = errors.New("class not found")

	// ErrResourceNotFound is returned by FindResource on a miss.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrNotResolved is returned when building a loader for a revision that
	// has no wiring, or for a fragment.
	ErrNotResolved = errors.New("revision is not a resolved host")
)

// StaleWiringError reports a lookup through a loader whose wires were
// invalidated: its revision was removed from the current wiring, or a
// refresh rebuilt the revision's wires.
type StaleWiringError struct {
	Revision   *resource.Revision
	Generation uint64
	Current    uint64
	Name       string
}

func (e *StaleWiringError) Error() string {
	return fmt.Sprintf("stale wiring: %s loads %s from generation %d, current generation is %d",
		e.Revision, e.Name, e.Generation, e.Current)
}

// WeavingError reports a weaving hook that failed for a class.
type WeavingError struct {
	Class string
	Err   error
}

func (e *WeavingError) Error() string {
	return "weaving " + e.Class + ": " + e.Err.Error()
}

func (e *WeavingError) Unwrap() error { return e.Err }

func classNotFound(name string) error {
	return fmt.Errorf("%w: %s", ErrClassNotFound, name)
}
