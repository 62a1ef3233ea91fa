package ride

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both an unknown ride id and a ride with no
	// tracking entry; callers treat the two identically.
	ErrNotFound = errors.New("ride not found")

	// ErrForbidden means the caller is not a participant of the ride, or
	// not the participant the operation requires.
	ErrForbidden = errors.New("not authorized for this ride")

	// ErrInvalidState rejects an operation that is legal in general but
	// not in the ride's current status, e.g. a location report for a ride
	// that is no longer trackable.
	ErrInvalidState = errors.New("ride is not in a valid state for this operation")

	// ErrActiveRideConflict enforces the one-active-ride invariant per
	// driver and per passenger.
	ErrActiveRideConflict = errors.New("an active ride already exists")

	// ErrInvalidSchedule rejects scheduled times in the past or beyond
	// the allowed booking window.
	ErrInvalidSchedule = errors.New("invalid scheduled time")

	// ErrNoDriversAvailable is returned by Order when the matcher finds
	// no candidate; the ride is persisted as REJECTED.
	ErrNoDriversAvailable = errors.New("no drivers available")
)

// InvalidTransitionError reports a lifecycle event that is not legal from the
// ride's current status. The ride is left unchanged.
type InvalidTransitionError struct {
	From  Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %s from status %s", e.Event, e.From)
}
