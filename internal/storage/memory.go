package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/example/ride-tracking/internal/ride"
)

// MemoryStore keeps rides in a map. Default when no Postgres DSN is
// configured; also the store the tests run against.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*ride.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*ride.Ride)}
}

func (m *MemoryStore) Create(ctx context.Context, r *ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = cloneRide(r)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	return cloneRide(r), nil
}

func (m *MemoryStore) Update(ctx context.Context, r *ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; !ok {
		return ride.ErrNotFound
	}
	m.rides[r.ID] = cloneRide(r)
	return nil
}

func (m *MemoryStore) ActiveForDriver(ctx context.Context, driverEmail string, statuses ...ride.Status) (*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.DriverEmail == driverEmail && slices.Contains(statuses, r.Status) {
			return cloneRide(r), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ActiveForPassenger(ctx context.Context, email string, statuses ...ride.Status) (*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.IsPassenger(email) && slices.Contains(statuses, r.Status) {
			return cloneRide(r), nil
		}
	}
	return nil, nil
}

func cloneRide(r *ride.Ride) *ride.Ride {
	c := *r
	c.PassengerEmails = slices.Clone(r.PassengerEmails)
	c.Stops = slices.Clone(r.Stops)
	return &c
}
