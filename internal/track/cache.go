package track

import (
	"iter"
	"sync"
	"time"

	"github.com/example/ride-tracking/internal/ride"
)

// Entry is the latest known position and derived telemetry for one active
// ride. An entry exists if and only if the ride is IN_PROGRESS or
// STOP_REQUESTED.
type Entry struct {
	RideID     string      `json:"ride_id"`
	RideStatus ride.Status `json:"ride_status"`

	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`

	EtaSeconds              int     `json:"eta_seconds"`
	DistanceToDestinationKm float64 `json:"distance_to_destination_km"`

	RecordedAt time.Time `json:"recorded_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	DriverID           string `json:"driver_id"`
	DriverLicensePlate string `json:"driver_license_plate"`
	VehicleType        string `json:"vehicle_type"`
	NextStopAddress    string `json:"next_stop_address,omitempty"`
}

// Cache holds the current Entry per active ride. Process-local by design:
// a restart loses in-flight tracking state, which drivers repair within
// seconds by re-reporting.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Put inserts or overwrites the entry for its ride. Overwrite is
// last-writer-wins by arrival order: a late-arriving older sample still
// becomes current, but UpdatedAt never moves backwards so staleness checks
// stay monotonic.
func (c *Cache) Put(e Entry) {
	c.mu.Lock()
	if prev, ok := c.entries[e.RideID]; ok && e.UpdatedAt.Before(prev.UpdatedAt) {
		e.UpdatedAt = prev.UpdatedAt
	}
	c.entries[e.RideID] = e
	c.mu.Unlock()
}

// Get returns the current snapshot without blocking writers.
func (c *Cache) Get(rideID string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[rideID]
	c.mu.RUnlock()
	return e, ok
}

// Evict removes the ride's entry; a no-op when absent.
func (c *Cache) Evict(rideID string) {
	c.mu.Lock()
	delete(c.entries, rideID)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a lazy, point-in-time sequence over all entries for
// operational introspection. The sequence is single-use.
func (c *Cache) Snapshot() iter.Seq[Entry] {
	c.mu.RLock()
	entries := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	return func(yield func(Entry) bool) {
		for _, e := range entries {
			if !yield(e) {
				return
			}
		}
	}
}
