package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes the reconciliation loops react to.
var (
	// ErrSchemaMismatch marks an unparseable or unexpected venue payload.
	// Affected orders are treated as unknown: not canceled, not mirrored.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrInvariantViolation marks an impossible state. The holder of the
	// affected record force-cleans it and emits a high-priority notification.
	ErrInvariantViolation = errors.New("invariant violation")
)

// VenueError is an explicit business error returned by a venue API.
type VenueError struct {
	Venue string
	Code  string
	Msg   string
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("%s venue error %s: %s", e.Venue, e.Code, e.Msg)
}

// Idempotent reports whether the error means the requested state already
// holds (order gone, already canceled). Such errors are treated as success
// by cancel and cleanup paths.
func (e *VenueError) Idempotent() bool {
	switch e.Code {
	case "not_found", "order_does_not_exist", "already_canceled",
		"ORDER_NOT_FOUND", "AUTO_ORDER_NOT_FOUND", "-2011", "-2013":
		return true
	}
	return false
}

// IsIdempotentVenueError reports whether err (possibly wrapped) is a venue
// business error whose effect already holds.
func IsIdempotentVenueError(err error) bool {
	var ve *VenueError
	return errors.As(err, &ve) && ve.Idempotent()
}

// OperationFailed is surfaced by adapters after transport retries are
// exhausted. The caller fiber decides whether to mark the operation failed
// or retry on the next tick.
type OperationFailed struct {
	Category string
	Err      error
}

func (e *OperationFailed) Error() string {
	return fmt.Sprintf("operation failed (%s): %v", e.Category, e.Err)
}

func (e *OperationFailed) Unwrap() error {
	return e.Err
}
