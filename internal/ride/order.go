package ride

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/observability"
)

// OrderRequest carries everything needed to create a ride. The pickup is
// stop 0 and the dropoff the last stop; intermediate stops keep their order.
type OrderRequest struct {
	Pickup          models.LocationPoint
	Stops           []models.LocationPoint
	Dropoff         models.LocationPoint
	VehicleType     string
	PassengerEmails []string
	BabyTransport   bool
	PetTransport    bool
	ScheduledAt     *time.Time
}

// DriverAssignment identifies the driver chosen by the external matcher.
type DriverAssignment struct {
	DriverID     string
	DriverEmail  string
	LicensePlate string
}

// DriverMatcher selects a driver for a new ride. The selection policy is
// external; a nil assignment with a nil error means no driver is available.
type DriverMatcher interface {
	Match(ctx context.Context, req OrderRequest) (*DriverAssignment, error)
}

// RouteEstimator computes distance and duration over an ordered point
// sequence. Implemented by eta.Estimator.
type RouteEstimator interface {
	EstimateRoute(ctx context.Context, points []models.Coord) (distanceKm float64, durationMin int, err error)
}

// Fare schedule defaults; overridden from config in main.
const (
	DefaultFareBaseCents  = 250
	DefaultFarePerKmCents = 120
)

// Order creates a ride for creator: schedule and conflict validation, route
// estimate, driver match, then persistence as ACCEPTED or SCHEDULED. With no
// driver available the ride is persisted REJECTED and ErrNoDriversAvailable
// returned.
func (l *Lifecycle) Order(ctx context.Context, creator models.Identity, req OrderRequest) (*Ride, error) {
	now := l.now()

	if err := l.validateSchedule(req.ScheduledAt, now); err != nil {
		return nil, err
	}
	if err := l.validateNoActiveRides(ctx, creator.Email, req.PassengerEmails); err != nil {
		return nil, err
	}

	distanceKm, durationMin, err := l.Estimator.EstimateRoute(ctx, routePoints(req))
	if err != nil {
		return nil, fmt.Errorf("route estimate: %w", err)
	}
	fare := l.fareFor(distanceKm)

	r := &Ride{
		ID:                   uuid.NewString(),
		Status:               StatusAccepted,
		VehicleType:          req.VehicleType,
		CreatorEmail:         creator.Email,
		PassengerEmails:      passengerList(creator.Email, req.PassengerEmails),
		Stops:                buildStops(req),
		BabyTransport:        req.BabyTransport,
		PetTransport:         req.PetTransport,
		EstimatedFareCents:   fare,
		DistanceKm:           roundKm(distanceKm),
		EstimatedDurationMin: durationMin,
		ScheduledAt:          req.ScheduledAt,
		CreatedAt:            now,
	}
	if req.ScheduledAt != nil {
		r.Status = StatusScheduled
	}

	assignment, err := l.Matcher.Match(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("driver match: %w", err)
	}
	if assignment == nil {
		r.Status = StatusRejected
		if err := l.Store.Create(ctx, r); err != nil {
			return nil, err
		}
		if l.Notify != nil {
			l.Notify.RideRejected(ctx, creator.Email, "no active drivers available")
		}
		return nil, ErrNoDriversAvailable
	}

	r.DriverID = assignment.DriverID
	r.DriverEmail = assignment.DriverEmail
	r.DriverLicensePlate = assignment.LicensePlate

	if err := l.Store.Create(ctx, r); err != nil {
		return nil, err
	}
	if l.Notify != nil {
		l.Notify.RideOrdered(ctx, r)
	}
	observability.RidesOrderedTotal.Inc()
	l.Log.Info("ride ordered",
		"ride_id", r.ID, "status", r.Status, "creator", creator.Email, "driver", r.DriverEmail)

	return r.clone(), nil
}

func (l *Lifecycle) validateSchedule(scheduledAt *time.Time, now time.Time) error {
	if scheduledAt == nil {
		return nil
	}
	window := l.ScheduleWindow
	if window <= 0 {
		window = 5 * time.Hour
	}
	if scheduledAt.Before(now) {
		return fmt.Errorf("%w: scheduled time must be in the future", ErrInvalidSchedule)
	}
	if scheduledAt.After(now.Add(window)) {
		return fmt.Errorf("%w: at most %s in advance", ErrInvalidSchedule, window)
	}
	return nil
}

// validateNoActiveRides enforces the active-ride invariant: the creator may
// have no ride in any active status; listed co-passengers only block on
// trackable rides (they may still be named on someone else's pending order).
func (l *Lifecycle) validateNoActiveRides(ctx context.Context, creatorEmail string, passengers []string) error {
	if r, err := l.Store.ActiveForPassenger(ctx, creatorEmail, ActiveStatuses...); err != nil {
		return err
	} else if r != nil {
		return fmt.Errorf("%w: ride %s is %s", ErrActiveRideConflict, r.ID, r.Status)
	}
	for _, email := range passengers {
		if email == "" || email == creatorEmail {
			continue
		}
		if r, err := l.Store.ActiveForPassenger(ctx, email, StatusInProgress, StatusStopRequested); err != nil {
			return err
		} else if r != nil {
			return fmt.Errorf("%w: passenger %s is on ride %s", ErrActiveRideConflict, email, r.ID)
		}
	}
	return nil
}

func (l *Lifecycle) fareFor(distanceKm float64) int64 {
	base, perKm := l.FareBaseCents, l.FarePerKmCents
	if base <= 0 {
		base = DefaultFareBaseCents
	}
	if perKm <= 0 {
		perKm = DefaultFarePerKmCents
	}
	return base + int64(math.Round(float64(perKm)*distanceKm))
}

func routePoints(req OrderRequest) []models.Coord {
	points := make([]models.Coord, 0, len(req.Stops)+2)
	points = append(points, req.Pickup.Coord())
	for _, s := range req.Stops {
		points = append(points, s.Coord())
	}
	return append(points, req.Dropoff.Coord())
}

func buildStops(req OrderRequest) []Stop {
	stops := make([]Stop, 0, len(req.Stops)+2)
	seq := 0
	add := func(p models.LocationPoint) {
		stops = append(stops, Stop{Sequence: seq, Address: p.Address, Lat: p.Lat, Lon: p.Lon})
		seq++
	}
	add(req.Pickup)
	for _, s := range req.Stops {
		add(s)
	}
	add(req.Dropoff)
	return stops
}

func passengerList(creator string, extra []string) []string {
	out := []string{creator}
	for _, e := range extra {
		if e != "" && !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	return out
}

func roundKm(km float64) float64 {
	return math.Round(km*1000) / 1000
}
