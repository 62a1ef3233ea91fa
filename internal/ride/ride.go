package ride

import (
	"slices"
	"time"
)

// Stop is one waypoint of a ride's route. Stops are ordered: index 0 is the
// pickup, the last stop is the dropoff.
type Stop struct {
	Sequence int     `json:"sequence"`
	Address  string  `json:"address"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// Ride is owned by the lifecycle; it is mutated only through Apply and Order
// while the per-ride lock is held.
type Ride struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	DriverID           string `json:"driver_id,omitempty"`
	DriverEmail        string `json:"driver_email,omitempty"`
	DriverLicensePlate string `json:"driver_license_plate,omitempty"`
	VehicleType        string `json:"vehicle_type"`

	CreatorEmail    string   `json:"creator_email"`
	PassengerEmails []string `json:"passenger_emails"`

	Stops []Stop `json:"stops"`

	BabyTransport bool `json:"baby_transport"`
	PetTransport  bool `json:"pet_transport"`

	EstimatedFareCents   int64   `json:"estimated_fare_cents"`
	DistanceKm           float64 `json:"distance_km"`
	EstimatedDurationMin int     `json:"estimated_duration_min"`
	PaymentHoldID        string  `json:"-"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	CancelledBy        string `json:"cancelled_by,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
}

// IsDriver reports whether email belongs to the assigned driver.
func (r *Ride) IsDriver(email string) bool {
	return r.DriverEmail != "" && r.DriverEmail == email
}

// IsPassenger reports whether email is on the passenger list. The creator is
// always listed.
func (r *Ride) IsPassenger(email string) bool {
	return slices.Contains(r.PassengerEmails, email)
}

// IsParticipant reports whether email is the assigned driver or a passenger.
func (r *Ride) IsParticipant(email string) bool {
	return r.IsDriver(email) || r.IsPassenger(email)
}

// Pickup returns the first stop; zero value if stops are missing.
func (r *Ride) Pickup() Stop {
	if len(r.Stops) == 0 {
		return Stop{}
	}
	return r.Stops[0]
}

// Dropoff returns the last stop; zero value if stops are missing.
func (r *Ride) Dropoff() Stop {
	if len(r.Stops) == 0 {
		return Stop{}
	}
	return r.Stops[len(r.Stops)-1]
}

// RemainingStops returns the intermediate stops between pickup and dropoff.
func (r *Ride) RemainingStops() []Stop {
	if len(r.Stops) <= 2 {
		return nil
	}
	return r.Stops[1 : len(r.Stops)-1]
}

func (r *Ride) clone() *Ride {
	c := *r
	c.PassengerEmails = slices.Clone(r.PassengerEmails)
	c.Stops = slices.Clone(r.Stops)
	return &c
}
