package airspace

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers. NoPath is a confirmed negative result,
// Timeout an inconclusive one; the API layer must keep them distinct.
var (
	// ErrNodeNotFound means a query referenced an unknown identity, or an
	// identity of the wrong node type.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoPath means start and end are disconnected in the feasible graph.
	// This is an expected outcome, not a system failure.
	ErrNoPath = errors.New("no feasible path")

	// ErrTimeout means the search was abandoned at the caller's deadline.
	ErrTimeout = errors.New("search deadline exceeded")

	// ErrNotReady means the engine has no snapshot to answer queries from.
	ErrNotReady = errors.New("engine snapshot not ready")

	// ErrEmptyBatch means an aircraft update carried no observations.
	ErrEmptyBatch = errors.New("no aircraft positions provided")

	// ErrStateCorrupted means an internal invariant broke between the entity
	// model and the spatial index. Fatal to the call, never to the engine.
	ErrStateCorrupted = errors.New("airspace state corrupted")
)

// ValidationError reports an entity rejected during an update batch. The
// whole batch is discarded and prior state retained.
type ValidationError struct {
	Kind string // entity kind: vertiport, waypoint, no_fly_zone, aircraft_position
	ID   string // offending entity identifier, if known
	Err  error  // the violated invariant
}

func (e *ValidationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("invalid %s %q: %v", e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("invalid %s: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
