package eta

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-tracking/internal/models"
)

var (
	belgrade = models.Coord{Lat: 44.80, Lon: 20.45}
	noviSad  = models.Coord{Lat: 45.25, Lon: 19.84}
)

type stubPlanner struct {
	route Route
	err   error
	calls int
}

func (p *stubPlanner) Route(ctx context.Context, points []models.Coord) (Route, error) {
	p.calls++
	return p.route, p.err
}

func TestHaversine(t *testing.T) {
	// Belgrade to Novi Sad is roughly 69 km as the crow flies.
	d := Haversine(belgrade.Lat, belgrade.Lon, noviSad.Lat, noviSad.Lon)
	if d < 65000 || d > 73000 {
		t.Fatalf("distance = %v m, want ~69 km", d)
	}
	if Haversine(44.80, 20.45, 44.80, 20.45) != 0 {
		t.Fatal("zero distance expected for identical points")
	}
}

func TestEstimateDeterministic(t *testing.T) {
	e := &Estimator{DefaultSpeedMps: 8}
	ctx := context.Background()

	eta1, dist1 := e.Estimate(ctx, belgrade, nil, noviSad, 10)
	eta2, dist2 := e.Estimate(ctx, belgrade, nil, noviSad, 10)
	if eta1 != eta2 || dist1 != dist2 {
		t.Fatalf("identical inputs gave (%d,%v) then (%d,%v)", eta1, dist1, eta2, dist2)
	}
	if eta1 <= 0 || dist1 <= 0 {
		t.Fatalf("eta=%d dist=%v, want positive", eta1, dist1)
	}
}

func TestEstimateZeroSpeedUsesDefault(t *testing.T) {
	e := &Estimator{DefaultSpeedMps: 8}
	etaSec, dist := e.Estimate(context.Background(), belgrade, nil, noviSad, 0)
	if etaSec <= 0 {
		t.Fatalf("eta = %d, want positive with the default speed", etaSec)
	}
	if dist <= 0 {
		t.Fatalf("dist = %v", dist)
	}
	// Slower reported speed means a longer ETA.
	fast, _ := e.Estimate(context.Background(), belgrade, nil, noviSad, 25)
	if fast >= etaSec {
		t.Fatalf("faster speed gave eta %d >= %d", fast, etaSec)
	}
}

func TestEstimateIncludesRemainingStops(t *testing.T) {
	e := &Estimator{DefaultSpeedMps: 8}
	direct, distDirect := e.Estimate(context.Background(), belgrade, nil, noviSad, 10)
	detourStop := []models.Coord{{Lat: 44.60, Lon: 21.00}}
	viaStop, distVia := e.Estimate(context.Background(), belgrade, detourStop, noviSad, 10)
	if distVia <= distDirect || viaStop <= direct {
		t.Fatalf("detour did not lengthen route: %v/%d vs %v/%d", distVia, viaStop, distDirect, direct)
	}
}

func TestEstimateUsesPlanner(t *testing.T) {
	p := &stubPlanner{route: Route{DistanceKm: 80, DurationMinutes: 55}}
	e := &Estimator{Planner: p, DefaultSpeedMps: 8}

	etaSec, dist := e.Estimate(context.Background(), belgrade, nil, noviSad, 10)
	if etaSec != 55*60 {
		t.Fatalf("eta = %d, want planner's %d", etaSec, 55*60)
	}
	if dist != 80 {
		t.Fatalf("dist = %v, want planner's 80", dist)
	}
}

func TestEstimateFallsBackOnPlannerError(t *testing.T) {
	p := &stubPlanner{err: errors.New("osrm down")}
	e := &Estimator{Planner: p, DefaultSpeedMps: 8}

	etaSec, dist := e.Estimate(context.Background(), belgrade, nil, noviSad, 10)
	if etaSec <= 0 || dist <= 0 {
		t.Fatalf("fallback gave eta=%d dist=%v", etaSec, dist)
	}
	if p.calls != 1 {
		t.Fatalf("planner calls = %d", p.calls)
	}
}

func TestEstimateNeverNegative(t *testing.T) {
	p := &stubPlanner{route: Route{DistanceKm: -3, DurationMinutes: -2}}
	e := &Estimator{Planner: p, DefaultSpeedMps: 8}
	etaSec, dist := e.Estimate(context.Background(), belgrade, nil, noviSad, 10)
	if etaSec < 0 || dist < 0 {
		t.Fatalf("eta=%d dist=%v, want clamped at zero", etaSec, dist)
	}
}

func TestPlannerCacheHit(t *testing.T) {
	p := &stubPlanner{route: Route{DistanceKm: 80, DurationMinutes: 55}}
	e := &Estimator{Planner: p, Cache: NewCache(time.Minute), DefaultSpeedMps: 8}
	ctx := context.Background()

	e.Estimate(ctx, belgrade, nil, noviSad, 10)
	e.Estimate(ctx, belgrade, nil, noviSad, 10)
	if p.calls != 1 {
		t.Fatalf("planner calls = %d, want 1 (second served from cache)", p.calls)
	}
}

func TestEstimateRoute(t *testing.T) {
	e := &Estimator{DefaultSpeedMps: 8}
	km, min, err := e.EstimateRoute(context.Background(), []models.Coord{belgrade, noviSad})
	if err != nil {
		t.Fatalf("EstimateRoute: %v", err)
	}
	if km < 65 || km > 73 {
		t.Fatalf("km = %v, want ~69", km)
	}
	if min <= 0 {
		t.Fatalf("min = %d", min)
	}
}
