package ride

import "context"

// Store defines the persistence operations the lifecycle needs. Implemented
// by storage.MemoryStore and storage.PostgresStore.
type Store interface {
	Create(ctx context.Context, r *Ride) error
	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (*Ride, error)
	Update(ctx context.Context, r *Ride) error
	// ActiveForDriver returns the driver's ride in one of the given
	// statuses, or nil when there is none.
	ActiveForDriver(ctx context.Context, driverEmail string, statuses ...Status) (*Ride, error)
	// ActiveForPassenger is the passenger-side equivalent.
	ActiveForPassenger(ctx context.Context, email string, statuses ...Status) (*Ride, error)
}
