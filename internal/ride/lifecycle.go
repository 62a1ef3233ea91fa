package ride

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/observability"
)

// Hooks receives lifecycle side effects. All hooks run while the per-ride
// lock is still held, so the cache mutation they perform is atomic with the
// status change. Implemented by the tracking service.
type Hooks interface {
	// RideStarted fires on entry into IN_PROGRESS: the tracking cache
	// entry must be created here.
	RideStarted(ctx context.Context, r *Ride)
	// StopRequested fires on IN_PROGRESS -> STOP_REQUESTED: the entry is
	// retained, only its status mirror changes.
	StopRequested(ctx context.Context, r *Ride)
	// RideEnded fires on any transition out of a trackable state:
	// final push, then eviction, then channel close.
	RideEnded(ctx context.Context, r *Ride)
}

// FareProcessor holds, captures and releases fare payments. Nil disables
// payment handling.
type FareProcessor interface {
	Hold(ctx context.Context, amountCents int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, holdID string) error
	Cancel(ctx context.Context, holdID string) error
}

// Notifier delivers best-effort push notifications to participants. Nil
// disables notifications.
type Notifier interface {
	RideOrdered(ctx context.Context, r *Ride)
	RideRejected(ctx context.Context, email, reason string)
	RideCancelled(ctx context.Context, r *Ride, cancelledBy, reason string)
}

// Lifecycle applies lifecycle events to rides. Every transition is a locked
// read-validate-mutate-persist on the ride's key; concurrent attempts on the
// same ride serialize and at most one wins.
type Lifecycle struct {
	Store Store
	Locks *KeyedMutex
	Hooks Hooks

	Fares          FareProcessor
	FareCurrency   string
	FareBaseCents  int64
	FarePerKmCents int64
	Notify         Notifier

	Matcher        DriverMatcher
	Estimator      RouteEstimator
	ScheduleWindow time.Duration

	Log *slog.Logger
	Now func() time.Time
}

func (l *Lifecycle) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Apply executes ev on the ride as actor. It returns the updated ride, or
// ErrNotFound, ErrForbidden, ErrActiveRideConflict, or an
// InvalidTransitionError with the ride unchanged.
func (l *Lifecycle) Apply(ctx context.Context, rideID string, ev Event, actor models.Identity) (*Ride, error) {
	return l.apply(ctx, rideID, ev, actor, nil)
}

// Cancel is Apply(EventCancel) plus the recorded reason.
func (l *Lifecycle) Cancel(ctx context.Context, rideID, reason string, actor models.Identity) (*Ride, error) {
	return l.apply(ctx, rideID, EventCancel, actor, func(r *Ride) {
		r.CancellationReason = reason
	})
}

// apply runs the locked read-validate-mutate-persist cycle. mutate, when
// non-nil, runs after validation and before persistence. Only the cache
// hooks run while the per-ride lock is held; payments and notifications
// leave the process and therefore run after the unlock, so a slow payment
// backend never stalls reports or further transitions on the same ride.
func (l *Lifecycle) apply(ctx context.Context, rideID string, ev Event, actor models.Identity, mutate func(*Ride)) (*Ride, error) {
	l.Locks.Lock(rideID)

	r, err := l.Store.Get(ctx, rideID)
	if err != nil {
		l.Locks.Unlock(rideID)
		return nil, err
	}

	to, ok := Next(r.Status, ev)
	if !ok {
		l.Locks.Unlock(rideID)
		return nil, &InvalidTransitionError{From: r.Status, Event: ev}
	}

	if err := l.authorize(r, ev, actor); err != nil {
		l.Locks.Unlock(rideID)
		return nil, err
	}

	if ev == EventDriverConfirm {
		// One IN_PROGRESS or STOP_REQUESTED ride per driver.
		conflict, err := l.Store.ActiveForDriver(ctx, r.DriverEmail, StatusInProgress, StatusStopRequested)
		if err != nil {
			l.Locks.Unlock(rideID)
			return nil, err
		}
		if conflict != nil && conflict.ID != r.ID {
			l.Locks.Unlock(rideID)
			return nil, ErrActiveRideConflict
		}
	}

	from := r.Status
	now := l.now()
	if mutate != nil {
		mutate(r)
	}
	r.Status = to
	switch to {
	case StatusInProgress:
		r.StartedAt = &now
	case StatusCompleted:
		r.CompletedAt = &now
	case StatusCancelled:
		r.CancelledAt = &now
		if r.IsDriver(actor.Email) {
			r.CancelledBy = models.RoleDriver
		} else {
			r.CancelledBy = models.RolePassenger
		}
	}

	if err := l.Store.Update(ctx, r); err != nil {
		r.Status = from
		l.Locks.Unlock(rideID)
		return nil, err
	}

	l.runHooks(ctx, r, from)
	l.Locks.Unlock(rideID)

	l.sideEffects(ctx, r)
	observability.TransitionsTotal.WithLabelValues(string(from), string(ev), string(to)).Inc()
	l.Log.Info("ride transition",
		"ride_id", r.ID, "from", from, "event", ev, "to", to, "actor", actor.Email)

	return r.clone(), nil
}

func (l *Lifecycle) authorize(r *Ride, ev Event, actor models.Identity) error {
	switch ev {
	case EventDriverConfirm, EventComplete:
		if !r.IsDriver(actor.Email) {
			return ErrForbidden
		}
	case EventStopRequest, EventCancel:
		if !r.IsParticipant(actor.Email) {
			return ErrForbidden
		}
	case EventStopConfirm:
		if !r.IsDriver(actor.Email) && !r.IsPassenger(actor.Email) {
			return ErrForbidden
		}
	case EventNoDriver:
		if actor.Role != models.RoleSystem && actor.Role != models.RoleAdmin {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}
	return nil
}

// runHooks fires the cache hooks for a committed transition. It runs while
// the per-ride lock is still held, which keeps the tracking entry's lifetime
// atomic with the status change. Hook errors do not exist; the cache is
// process-local.
func (l *Lifecycle) runHooks(ctx context.Context, r *Ride, from Status) {
	if l.Hooks == nil {
		return
	}
	switch {
	case r.Status == StatusInProgress:
		l.Hooks.RideStarted(ctx, r)
	case r.Status == StatusStopRequested:
		l.Hooks.StopRequested(ctx, r)
	case r.Status.Terminal() && from.Trackable():
		l.Hooks.RideEnded(ctx, r)
	}
}

// sideEffects runs the payment and notification consequences of a committed
// transition. It runs after the per-ride lock is released: these calls leave
// the process and must never block transitions or location reports. All of
// them are best-effort.
func (l *Lifecycle) sideEffects(ctx context.Context, r *Ride) {
	switch r.Status {
	case StatusInProgress:
		l.holdFare(ctx, r)
	case StatusCompleted:
		l.settleFare(ctx, r.ID, r.Status, r.PaymentHoldID)
	case StatusCancelled:
		l.settleFare(ctx, r.ID, r.Status, r.PaymentHoldID)
		if l.Notify != nil {
			l.Notify.RideCancelled(ctx, r, r.CancelledBy, r.CancellationReason)
		}
	case StatusRejected:
		if l.Notify != nil {
			l.Notify.RideRejected(ctx, r.CreatorEmail, "no active drivers available")
		}
	}
}

// holdFare places the payment hold and persists its id. The payment call
// happens unlocked; the result is committed back under the lock. If the ride
// reached a terminal status while the hold was in flight, the hold is
// settled directly instead of persisted.
func (l *Lifecycle) holdFare(ctx context.Context, r *Ride) {
	if l.Fares == nil || r.EstimatedFareCents <= 0 {
		return
	}
	holdID, err := l.Fares.Hold(ctx, r.EstimatedFareCents, l.FareCurrency, "")
	if err != nil {
		l.Log.Warn("fare hold failed", "ride_id", r.ID, "error", err)
		return
	}

	late := Status("")
	l.Locks.Lock(r.ID)
	cur, err := l.Store.Get(ctx, r.ID)
	switch {
	case err != nil:
		late = StatusCancelled
	case cur.Status.Terminal():
		late = cur.Status
	default:
		cur.PaymentHoldID = holdID
		if err := l.Store.Update(ctx, cur); err != nil {
			l.Log.Warn("persisting fare hold failed", "ride_id", r.ID, "error", err)
		}
		r.PaymentHoldID = holdID
	}
	l.Locks.Unlock(r.ID)

	if late != "" {
		l.settleFare(ctx, r.ID, late, holdID)
	}
}

func (l *Lifecycle) settleFare(ctx context.Context, rideID string, status Status, holdID string) {
	if l.Fares == nil || holdID == "" {
		return
	}
	var err error
	if status == StatusCompleted {
		err = l.Fares.Capture(ctx, holdID)
	} else {
		err = l.Fares.Cancel(ctx, holdID)
	}
	if err != nil {
		l.Log.Warn("fare settlement failed", "ride_id", rideID, "status", status, "error", err)
	}
}

// Get returns the ride when the requester is a participant or an admin.
func (l *Lifecycle) Get(ctx context.Context, rideID string, requester models.Identity) (*Ride, error) {
	r, err := l.Store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if requester.Role != models.RoleAdmin && !r.IsParticipant(requester.Email) {
		return nil, ErrForbidden
	}
	return r.clone(), nil
}

// ActiveFor returns the caller's active ride, driver or passenger side, or
// ErrNotFound when there is none.
func (l *Lifecycle) ActiveFor(ctx context.Context, id models.Identity) (*Ride, error) {
	var r *Ride
	var err error
	if id.Role == models.RoleDriver {
		r, err = l.Store.ActiveForDriver(ctx, id.Email, ActiveStatuses...)
	} else {
		r, err = l.Store.ActiveForPassenger(ctx, id.Email, ActiveStatuses...)
	}
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r.clone(), nil
}
