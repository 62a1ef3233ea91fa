package track

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-tracking/internal/eta"
	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/observability"
	"github.com/example/ride-tracking/internal/ride"
)

// ErrInvalidCoordinates rejects samples outside the WGS84 range.
var ErrInvalidCoordinates = errors.New("invalid coordinate values")

// Publisher fans an entry out to the ride's admitted subscribers. Publish
// must never block the reporting path.
type Publisher interface {
	Publish(rideID string, e Entry)
	CloseRide(rideID string)
}

// PositionProducer streams accepted samples to downstream consumers. Nil
// disables streaming.
type PositionProducer interface {
	PublishPosition(ctx context.Context, p models.DriverPosition) error
}

// VehicleIndex keeps the online-vehicle geo index current. Nil disables it.
type VehicleIndex interface {
	Upsert(v models.Vehicle)
}

// Service is the tracking orchestrator: the driver write path, the
// participant read path, and the lifecycle hooks that couple cache lifetime
// to ride status.
type Service struct {
	Store     ride.Store
	Locks     *ride.KeyedMutex
	Cache     *Cache
	Estimator *eta.Estimator

	Hub      Publisher
	Producer PositionProducer
	Vehicles VehicleIndex

	Log *slog.Logger
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ReportLocation accepts one sample from the assigned driver. The validating
// read and the cache write hold the per-ride lock; the planner call happens
// between them so a slow planner never blocks lifecycle transitions, and the
// post-estimate re-check guarantees a concurrent COMPLETED transition can
// never be overwritten by a stale entry.
func (s *Service) ReportLocation(ctx context.Context, rideID string, driver models.Identity, sample models.LocationSample) error {
	if sample.Latitude < -90 || sample.Latitude > 90 || sample.Longitude < -180 || sample.Longitude > 180 {
		return ErrInvalidCoordinates
	}

	s.Locks.Lock(rideID)
	r, err := s.Store.Get(ctx, rideID)
	if err != nil {
		s.Locks.Unlock(rideID)
		return err
	}
	if !r.IsDriver(driver.Email) {
		s.Locks.Unlock(rideID)
		return ride.ErrForbidden
	}
	if !r.Status.Trackable() {
		s.Locks.Unlock(rideID)
		return fmt.Errorf("%w: status %s", ride.ErrInvalidState, r.Status)
	}
	remaining := remainingCoords(r)
	dest := r.Dropoff()
	s.Locks.Unlock(rideID)

	speed := 0.0
	if sample.Speed != nil {
		speed = *sample.Speed
	}
	current := models.Coord{Lat: sample.Latitude, Lon: sample.Longitude}
	etaSec, distKm := s.Estimator.Estimate(ctx, current, remaining, models.Coord{Lat: dest.Lat, Lon: dest.Lon}, speed)

	now := s.now()
	recordedAt := now
	if sample.RecordedAt != nil {
		recordedAt = *sample.RecordedAt
	}

	s.Locks.Lock(rideID)
	r, err = s.Store.Get(ctx, rideID)
	if err != nil {
		s.Locks.Unlock(rideID)
		return err
	}
	if !r.Status.Trackable() {
		// The ride ended while we were estimating; the entry was already
		// evicted and must stay gone.
		s.Locks.Unlock(rideID)
		return fmt.Errorf("%w: status %s", ride.ErrInvalidState, r.Status)
	}
	entry := Entry{
		RideID:                  r.ID,
		RideStatus:              r.Status,
		Latitude:                sample.Latitude,
		Longitude:               sample.Longitude,
		Heading:                 sample.Heading,
		Speed:                   sample.Speed,
		EtaSeconds:              etaSec,
		DistanceToDestinationKm: distKm,
		RecordedAt:              recordedAt,
		UpdatedAt:               now,
		DriverID:                r.DriverID,
		DriverLicensePlate:      r.DriverLicensePlate,
		VehicleType:             r.VehicleType,
		NextStopAddress:         dest.Address,
	}
	s.Cache.Put(entry)
	s.Locks.Unlock(rideID)

	s.publish(ctx, r, entry)
	observability.LocationReportsTotal.Inc()
	observability.TrackedRides.Set(float64(s.Cache.Len()))
	return nil
}

// publish is the fire-and-forget fan-out after an accepted report.
func (s *Service) publish(ctx context.Context, r *ride.Ride, entry Entry) {
	if s.Hub != nil {
		s.Hub.Publish(r.ID, entry)
	}
	if s.Vehicles != nil {
		s.Vehicles.Upsert(models.Vehicle{
			DriverID:     r.DriverID,
			DriverEmail:  r.DriverEmail,
			LicensePlate: r.DriverLicensePlate,
			VehicleType:  r.VehicleType,
			Loc:          models.Coord{Lat: entry.Latitude, Lon: entry.Longitude},
			Online:       true,
			Updated:      entry.UpdatedAt,
		})
	}
	if s.Producer != nil {
		pos := models.DriverPosition{
			DriverID:     r.DriverID,
			DriverEmail:  r.DriverEmail,
			LicensePlate: r.DriverLicensePlate,
			VehicleType:  r.VehicleType,
			Lat:          entry.Latitude,
			Lon:          entry.Longitude,
			RecordedAt:   entry.RecordedAt,
		}
		if err := s.Producer.PublishPosition(ctx, pos); err != nil {
			s.Log.Warn("position publish failed", "ride_id", r.ID, "error", err)
		}
	}
}

// GetTracking returns the ride's current entry for a participant. Unknown or
// non-trackable rides are NotFound. Anyone who is neither the assigned driver
// nor a listed passenger is Forbidden, admins included; operators read the
// fleet through the internal snapshot endpoint instead. The subscription gate
// relies on exactly this check.
func (s *Service) GetTracking(ctx context.Context, rideID string, requester models.Identity) (Entry, error) {
	r, err := s.Store.Get(ctx, rideID)
	if err != nil {
		return Entry{}, err
	}
	if !r.Status.Trackable() {
		return Entry{}, ride.ErrNotFound
	}
	if !r.IsParticipant(requester.Email) {
		return Entry{}, ride.ErrForbidden
	}
	entry, ok := s.Cache.Get(rideID)
	if !ok {
		return Entry{}, ride.ErrNotFound
	}
	return entry, nil
}

// RideStarted seeds the cache entry from the pickup position so subscribers
// see a location and a positive ETA before the first driver report arrives.
// Runs under the per-ride lock held by the lifecycle.
func (s *Service) RideStarted(ctx context.Context, r *ride.Ride) {
	pickup := r.Pickup()
	dest := r.Dropoff()
	etaSec, distKm := s.Estimator.Estimate(ctx,
		models.Coord{Lat: pickup.Lat, Lon: pickup.Lon},
		remainingCoords(r),
		models.Coord{Lat: dest.Lat, Lon: dest.Lon}, 0)

	now := s.now()
	entry := Entry{
		RideID:                  r.ID,
		RideStatus:              r.Status,
		Latitude:                pickup.Lat,
		Longitude:               pickup.Lon,
		EtaSeconds:              etaSec,
		DistanceToDestinationKm: distKm,
		RecordedAt:              now,
		UpdatedAt:               now,
		DriverID:                r.DriverID,
		DriverLicensePlate:      r.DriverLicensePlate,
		VehicleType:             r.VehicleType,
		NextStopAddress:         dest.Address,
	}
	s.Cache.Put(entry)
	if s.Hub != nil {
		s.Hub.Publish(r.ID, entry)
	}
	observability.TrackedRides.Set(float64(s.Cache.Len()))
}

// StopRequested refreshes the entry's status mirror; the entry is retained.
func (s *Service) StopRequested(ctx context.Context, r *ride.Ride) {
	entry, ok := s.Cache.Get(r.ID)
	if !ok {
		return
	}
	entry.RideStatus = r.Status
	entry.UpdatedAt = s.now()
	s.Cache.Put(entry)
	if s.Hub != nil {
		s.Hub.Publish(r.ID, entry)
	}
}

// RideEnded delivers the last known position, then evicts, then closes the
// ride's channels. Push-then-evict so subscribers always receive the final
// update before the stream ends.
func (s *Service) RideEnded(ctx context.Context, r *ride.Ride) {
	if entry, ok := s.Cache.Get(r.ID); ok {
		entry.RideStatus = r.Status
		entry.UpdatedAt = s.now()
		if s.Hub != nil {
			s.Hub.Publish(r.ID, entry)
		}
	}
	s.Cache.Evict(r.ID)
	if s.Hub != nil {
		s.Hub.CloseRide(r.ID)
	}
	observability.TrackedRides.Set(float64(s.Cache.Len()))
}

func remainingCoords(r *ride.Ride) []models.Coord {
	stops := r.RemainingStops()
	out := make([]models.Coord, 0, len(stops))
	for _, st := range stops {
		out = append(out, models.Coord{Lat: st.Lat, Lon: st.Lon})
	}
	return out
}
