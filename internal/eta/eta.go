package eta

import (
	"context"
	"math"
	"time"

	"github.com/example/ride-tracking/internal/models"
)

// RoutePlanner is the external routing capability. Calls are fallible and
// time-bounded; the estimator falls back to haversine on any failure.
type RoutePlanner interface {
	Route(ctx context.Context, points []models.Coord) (Route, error)
}

// Route is a planner result over an ordered point sequence.
type Route struct {
	DistanceKm      float64        `json:"distance_km"`
	DurationMinutes int            `json:"duration_minutes"`
	Polyline        []models.Coord `json:"polyline,omitempty"`
}

// Estimator computes remaining distance and ETA for a moving vehicle.
// Deterministic: identical inputs yield identical outputs; no wall clock is
// consulted.
type Estimator struct {
	Planner         RoutePlanner // optional
	Cache           *Cache       // optional planner-result cache
	DefaultSpeedMps float64
	PlannerTimeout  time.Duration
}

const fallbackSpeedMps = 8.0 // ~28.8 km/h city average

// Estimate returns (etaSeconds, distanceKm) from current through the
// remaining stops to dest. speedMps <= 0 falls back to the configured
// default so ETA never divides by zero; results are never negative.
func (e *Estimator) Estimate(ctx context.Context, current models.Coord, remaining []models.Coord, dest models.Coord, speedMps float64) (int, float64) {
	points := make([]models.Coord, 0, len(remaining)+2)
	points = append(points, current)
	points = append(points, remaining...)
	points = append(points, dest)

	if route, ok := e.plannedRoute(ctx, points); ok {
		return maxInt(route.DurationMinutes*60, 0), roundKm(math.Max(route.DistanceKm, 0))
	}

	distM := pathMeters(points)
	speed := speedMps
	if speed <= 0 {
		speed = e.DefaultSpeedMps
	}
	if speed <= 0 {
		speed = fallbackSpeedMps
	}
	return int(distM / speed), roundKm(distM / 1000)
}

// EstimateRoute is the order-time estimate over a full route. Planner first,
// haversine with the default speed otherwise. Implements ride.RouteEstimator.
func (e *Estimator) EstimateRoute(ctx context.Context, points []models.Coord) (float64, int, error) {
	if route, ok := e.plannedRoute(ctx, points); ok {
		return roundKm(route.DistanceKm), route.DurationMinutes, nil
	}
	distM := pathMeters(points)
	speed := e.DefaultSpeedMps
	if speed <= 0 {
		speed = fallbackSpeedMps
	}
	return roundKm(distM / 1000), int(math.Ceil(distM / speed / 60)), nil
}

func (e *Estimator) plannedRoute(ctx context.Context, points []models.Coord) (Route, bool) {
	if e.Planner == nil {
		return Route{}, false
	}
	if e.Cache != nil {
		if r, ok := e.Cache.Get(points); ok {
			return r, true
		}
	}
	if e.PlannerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.PlannerTimeout)
		defer cancel()
	}
	route, err := e.Planner.Route(ctx, points)
	if err != nil {
		// Timeout or planner failure: recover locally, never surface.
		return Route{}, false
	}
	if e.Cache != nil {
		e.Cache.Set(points, route)
	}
	return route, true
}

func pathMeters(points []models.Coord) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Haversine(points[i-1].Lat, points[i-1].Lon, points[i].Lat, points[i].Lon)
	}
	return total
}

// Haversine distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

func roundKm(km float64) float64 {
	return math.Round(km*1000) / 1000
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
