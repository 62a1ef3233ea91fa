package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ride-tracking/internal/ride"
)

func sampleRide(id string, status ride.Status) *ride.Ride {
	return &ride.Ride{
		ID:              id,
		Status:          status,
		DriverEmail:     "driver@example.com",
		CreatorEmail:    "pax@example.com",
		PassengerEmails: []string{"pax@example.com"},
		Stops: []ride.Stop{
			{Sequence: 0, Address: "A", Lat: 44.80, Lon: 20.45},
			{Sequence: 1, Address: "B", Lat: 44.82, Lon: 20.47},
		},
	}
}

func TestMemoryStoreCRUD(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("Get missing: err = %v, want ErrNotFound", err)
	}

	r := sampleRide("r1", ride.StatusAccepted)
	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// The store hands out copies; mutating them must not leak back.
	got.Status = ride.StatusCancelled
	again, _ := s.Get(ctx, "r1")
	if again.Status != ride.StatusAccepted {
		t.Fatal("stored ride mutated through a returned copy")
	}

	got.Status = ride.StatusInProgress
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	again, _ = s.Get(ctx, "r1")
	if again.Status != ride.StatusInProgress {
		t.Fatalf("status after update = %s", again.Status)
	}

	if err := s.Update(ctx, sampleRide("ghost", ride.StatusAccepted)); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("Update missing: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreActiveLookups(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, sampleRide("r1", ride.StatusInProgress)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, sampleRide("r2", ride.StatusCompleted)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	r, err := s.ActiveForDriver(ctx, "driver@example.com", ride.ActiveStatuses...)
	if err != nil || r == nil || r.ID != "r1" {
		t.Fatalf("ActiveForDriver = %v, %v", r, err)
	}
	r, err = s.ActiveForPassenger(ctx, "pax@example.com", ride.ActiveStatuses...)
	if err != nil || r == nil || r.ID != "r1" {
		t.Fatalf("ActiveForPassenger = %v, %v", r, err)
	}

	// Completed rides never count as active.
	r, err = s.ActiveForDriver(ctx, "driver@example.com", ride.StatusCompleted)
	if err != nil {
		t.Fatalf("ActiveForDriver: %v", err)
	}
	if r == nil || r.ID != "r2" {
		t.Fatalf("explicit status filter = %v", r)
	}

	r, err = s.ActiveForDriver(ctx, "nobody@example.com", ride.ActiveStatuses...)
	if err != nil || r != nil {
		t.Fatalf("unknown driver = %v, %v", r, err)
	}
}
