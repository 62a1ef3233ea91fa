package track

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-tracking/internal/eta"
	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/ride"
)

var (
	driver    = models.Identity{Email: "driver@example.com", Role: models.RoleDriver}
	passenger = models.Identity{Email: "pax@example.com", Role: models.RolePassenger}
	stranger  = models.Identity{Email: "other@example.com", Role: models.RolePassenger}
	admin     = models.Identity{Email: "ops@example.com", Role: models.RoleAdmin}
)

type memStore struct {
	mu    sync.Mutex
	rides map[string]*ride.Ride
}

func newMemStore(rides ...*ride.Ride) *memStore {
	s := &memStore{rides: make(map[string]*ride.Ride)}
	for _, r := range rides {
		cp := *r
		s.rides[r.ID] = &cp
	}
	return s
}

func (s *memStore) Create(ctx context.Context, r *ride.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rides[r.ID] = &cp
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) Update(ctx context.Context, r *ride.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rides[r.ID]; !ok {
		return ride.ErrNotFound
	}
	cp := *r
	s.rides[r.ID] = &cp
	return nil
}

func (s *memStore) ActiveForDriver(ctx context.Context, email string, statuses ...ride.Status) (*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rides {
		if r.DriverEmail != email {
			continue
		}
		for _, st := range statuses {
			if r.Status == st {
				cp := *r
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (s *memStore) ActiveForPassenger(ctx context.Context, email string, statuses ...ride.Status) (*ride.Ride, error) {
	return nil, nil
}

type recordingHub struct {
	mu        sync.Mutex
	published []Entry
	closed    []string
}

func (h *recordingHub) Publish(rideID string, e Entry) {
	h.mu.Lock()
	h.published = append(h.published, e)
	h.mu.Unlock()
}

func (h *recordingHub) CloseRide(rideID string) {
	h.mu.Lock()
	h.closed = append(h.closed, rideID)
	h.mu.Unlock()
}

func (h *recordingHub) last() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.published) == 0 {
		return Entry{}, false
	}
	return h.published[len(h.published)-1], true
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func trackedRide() *ride.Ride {
	return &ride.Ride{
		ID:              "r1",
		Status:          ride.StatusAccepted,
		DriverID:        "d1",
		DriverEmail:     driver.Email,
		VehicleType:     "STANDARD",
		CreatorEmail:    passenger.Email,
		PassengerEmails: []string{passenger.Email},
		Stops: []ride.Stop{
			{Sequence: 0, Address: "Main St 1", Lat: 44.79, Lon: 20.44},
			{Sequence: 1, Address: "Side St 9", Lat: 44.82, Lon: 20.47},
		},
	}
}

type fixture struct {
	store     *memStore
	hub       *recordingHub
	clk       *clock
	service   *Service
	lifecycle *ride.Lifecycle
}

func newFixture(r *ride.Ride) *fixture {
	store := newMemStore(r)
	hub := &recordingHub{}
	clk := &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	locks := ride.NewKeyedMutex()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := &Service{
		Store:     store,
		Locks:     locks,
		Cache:     NewCache(),
		Estimator: &eta.Estimator{DefaultSpeedMps: 8},
		Hub:       hub,
		Log:       log,
		Now:       clk.now,
	}
	lc := &ride.Lifecycle{
		Store: store,
		Locks: locks,
		Hooks: svc,
		Log:   log,
		Now:   clk.now,
	}
	return &fixture{store: store, hub: hub, clk: clk, service: svc, lifecycle: lc}
}

func report(lat, lon, speed float64) models.LocationSample {
	return models.LocationSample{Latitude: lat, Longitude: lon, Speed: &speed}
}

// The full tracking lifecycle: confirm seeds the cache, reports refresh it,
// stop flow retains it, completion evicts it and closes the channel.
func TestTrackingLifecycle(t *testing.T) {
	f := newFixture(trackedRide())
	ctx := context.Background()

	if _, err := f.service.GetTracking(ctx, "r1", passenger); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("tracking before start: err = %v, want ErrNotFound", err)
	}

	if _, err := f.lifecycle.Apply(ctx, "r1", ride.EventDriverConfirm, driver); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	entry, err := f.service.GetTracking(ctx, "r1", passenger)
	if err != nil {
		t.Fatalf("tracking after start: %v", err)
	}
	if entry.RideStatus != ride.StatusInProgress {
		t.Fatalf("entry status = %s", entry.RideStatus)
	}
	if entry.EtaSeconds <= 0 || entry.DistanceToDestinationKm <= 0 {
		t.Fatalf("seeded entry has eta=%d dist=%v", entry.EtaSeconds, entry.DistanceToDestinationKm)
	}
	if entry.Latitude != 44.79 || entry.Longitude != 20.44 {
		t.Fatalf("seeded entry not at pickup: %v,%v", entry.Latitude, entry.Longitude)
	}
	firstDist := entry.DistanceToDestinationKm
	firstUpdated := entry.UpdatedAt

	f.clk.advance(5 * time.Second)
	if err := f.service.ReportLocation(ctx, "r1", driver, report(44.80, 20.46, 10)); err != nil {
		t.Fatalf("report: %v", err)
	}
	entry, err = f.service.GetTracking(ctx, "r1", passenger)
	if err != nil {
		t.Fatalf("tracking after report: %v", err)
	}
	if entry.Latitude != 44.80 || entry.Longitude != 20.46 {
		t.Fatalf("entry not at reported position: %v,%v", entry.Latitude, entry.Longitude)
	}
	if entry.DistanceToDestinationKm >= firstDist {
		t.Fatalf("distance did not decrease: %v -> %v", firstDist, entry.DistanceToDestinationKm)
	}
	if !entry.UpdatedAt.After(firstUpdated) {
		t.Fatalf("UpdatedAt did not advance: %v -> %v", firstUpdated, entry.UpdatedAt)
	}

	if _, err := f.lifecycle.Apply(ctx, "r1", ride.EventStopRequest, passenger); err != nil {
		t.Fatalf("stop-request: %v", err)
	}
	entry, err = f.service.GetTracking(ctx, "r1", passenger)
	if err != nil {
		t.Fatalf("tracking after stop-request: %v", err)
	}
	if entry.RideStatus != ride.StatusStopRequested {
		t.Fatalf("entry status = %s, want STOP_REQUESTED", entry.RideStatus)
	}

	if _, err := f.lifecycle.Apply(ctx, "r1", ride.EventStopConfirm, driver); err != nil {
		t.Fatalf("stop-confirm: %v", err)
	}
	// The final update reaches subscribers before the stream closes.
	last, ok := f.hub.last()
	if !ok || last.RideStatus != ride.StatusCompleted {
		t.Fatalf("final publish = %+v, %v", last, ok)
	}
	if len(f.hub.closed) != 1 || f.hub.closed[0] != "r1" {
		t.Fatalf("closed channels = %v", f.hub.closed)
	}
	if f.service.Cache.Len() != 0 {
		t.Fatalf("cache not emptied, len = %d", f.service.Cache.Len())
	}
	if _, err := f.service.GetTracking(ctx, "r1", passenger); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("tracking after completion: err = %v, want ErrNotFound", err)
	}
}

func TestReportLocationRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid coordinates", func(t *testing.T) {
		f := newFixture(trackedRide())
		if err := f.service.ReportLocation(ctx, "r1", driver, report(91, 20.46, 10)); !errors.Is(err, ErrInvalidCoordinates) {
			t.Fatalf("err = %v, want ErrInvalidCoordinates", err)
		}
	})

	t.Run("unknown ride", func(t *testing.T) {
		f := newFixture(trackedRide())
		if err := f.service.ReportLocation(ctx, "missing", driver, report(44.80, 20.46, 10)); !errors.Is(err, ride.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("not the assigned driver", func(t *testing.T) {
		r := trackedRide()
		r.Status = ride.StatusInProgress
		f := newFixture(r)
		if err := f.service.ReportLocation(ctx, "r1", stranger, report(44.80, 20.46, 10)); !errors.Is(err, ride.ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
		if f.service.Cache.Len() != 0 {
			t.Fatal("rejected report mutated the cache")
		}
	})

	t.Run("ride not trackable", func(t *testing.T) {
		r := trackedRide()
		r.Status = ride.StatusCompleted
		f := newFixture(r)
		err := f.service.ReportLocation(ctx, "r1", driver, report(44.80, 20.46, 10))
		if !errors.Is(err, ride.ErrInvalidState) {
			t.Fatalf("err = %v, want ErrInvalidState", err)
		}
		if f.service.Cache.Len() != 0 {
			t.Fatal("report for an ended ride resurrected the cache entry")
		}
	})
}

func TestGetTrackingAuthorization(t *testing.T) {
	r := trackedRide()
	r.Status = ride.StatusInProgress
	f := newFixture(r)
	ctx := context.Background()
	f.service.RideStarted(ctx, r)

	if _, err := f.service.GetTracking(ctx, "r1", passenger); err != nil {
		t.Fatalf("passenger: %v", err)
	}
	if _, err := f.service.GetTracking(ctx, "r1", driver); err != nil {
		t.Fatalf("driver: %v", err)
	}
	if _, err := f.service.GetTracking(ctx, "r1", stranger); !errors.Is(err, ride.ErrForbidden) {
		t.Fatalf("stranger err = %v, want ErrForbidden", err)
	}
	// Admins are not participants; they get the snapshot endpoint, not the
	// live stream.
	if _, err := f.service.GetTracking(ctx, "r1", admin); !errors.Is(err, ride.ErrForbidden) {
		t.Fatalf("admin err = %v, want ErrForbidden", err)
	}
	if _, err := f.service.GetTracking(ctx, "missing", passenger); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("unknown ride err = %v, want ErrNotFound", err)
	}
}

func TestGetTrackingNonTrackableBeforeForbidden(t *testing.T) {
	// A stranger asking about a completed ride learns only that there is
	// nothing to track, not that the ride exists.
	r := trackedRide()
	r.Status = ride.StatusCompleted
	f := newFixture(r)
	if _, err := f.service.GetTracking(context.Background(), "r1", stranger); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// stuckFares parks Hold until release is closed, standing in for a payment
// backend that has gone slow.
type stuckFares struct {
	entered chan struct{}
	release chan struct{}
}

func (f *stuckFares) Hold(ctx context.Context, amountCents int64, currency, customerID string) (string, error) {
	close(f.entered)
	<-f.release
	return "hold-1", nil
}

func (f *stuckFares) Capture(ctx context.Context, holdID string) error { return nil }
func (f *stuckFares) Cancel(ctx context.Context, holdID string) error  { return nil }

func TestSlowFareHoldDoesNotDelayLocationReport(t *testing.T) {
	r := trackedRide()
	r.EstimatedFareCents = 700
	f := newFixture(r)
	fares := &stuckFares{entered: make(chan struct{}), release: make(chan struct{})}
	f.lifecycle.Fares = fares
	ctx := context.Background()

	confirmed := make(chan error, 1)
	go func() {
		_, err := f.lifecycle.Apply(ctx, "r1", ride.EventDriverConfirm, driver)
		confirmed <- err
	}()
	select {
	case <-fares.entered:
	case <-time.After(time.Second):
		t.Fatal("fare hold never started")
	}

	// The payment backend is stuck, the driver keeps moving.
	reported := make(chan error, 1)
	go func() {
		reported <- f.service.ReportLocation(ctx, "r1", driver, report(44.80, 20.46, 10))
	}()
	select {
	case err := <-reported:
		if err != nil {
			t.Fatalf("report: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("location report waited on the payment call")
	}

	entry, err := f.service.GetTracking(ctx, "r1", passenger)
	if err != nil {
		t.Fatalf("tracking: %v", err)
	}
	if entry.Latitude != 44.80 || entry.Longitude != 20.46 {
		t.Fatalf("entry position = %v,%v, want the reported sample", entry.Latitude, entry.Longitude)
	}

	close(fares.release)
	if err := <-confirmed; err != nil {
		t.Fatalf("confirm: %v", err)
	}
}
