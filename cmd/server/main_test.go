package main

import (
	"context"
	"testing"
	"time"

	"github.com/example/ride-tracking/internal/geo"
	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/ride"
)

func onlineVehicle(id, vehicleType string, lat, lon float64) models.Vehicle {
	return models.Vehicle{
		DriverID:     id,
		DriverEmail:  id + "@example.com",
		LicensePlate: "BG-" + id,
		VehicleType:  vehicleType,
		Loc:          models.Coord{Lat: lat, Lon: lon},
		Online:       true,
		Updated:      time.Now(),
	}
}

func TestNearestMatcherPicksClosest(t *testing.T) {
	idx := geo.NewIndex()
	idx.Upsert(onlineVehicle("far", "STANDARD", 44.90, 20.60))
	idx.Upsert(onlineVehicle("near", "STANDARD", 44.81, 20.46))
	m := &nearestMatcher{vehicles: idx}

	a, err := m.Match(context.Background(), ride.OrderRequest{
		Pickup:      models.LocationPoint{Address: "Main St 1", Lat: 44.80, Lon: 20.45},
		VehicleType: "STANDARD",
	})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if a == nil || a.DriverID != "near" {
		t.Fatalf("assignment = %+v, want driver near", a)
	}
	if a.LicensePlate != "BG-near" {
		t.Fatalf("plate = %q", a.LicensePlate)
	}
}

func TestNearestMatcherFiltersVehicleType(t *testing.T) {
	idx := geo.NewIndex()
	idx.Upsert(onlineVehicle("van1", "VAN", 44.81, 20.46))
	m := &nearestMatcher{vehicles: idx}

	a, err := m.Match(context.Background(), ride.OrderRequest{
		Pickup:      models.LocationPoint{Address: "Main St 1", Lat: 44.80, Lon: 20.45},
		VehicleType: "LUXURY",
	})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if a != nil {
		t.Fatalf("assignment = %+v, want none for mismatched type", a)
	}
}

func TestNearestMatcherNoVehicles(t *testing.T) {
	m := &nearestMatcher{vehicles: geo.NewIndex()}
	a, err := m.Match(context.Background(), ride.OrderRequest{
		Pickup: models.LocationPoint{Address: "Main St 1", Lat: 44.80, Lon: 20.45},
	})
	if err != nil || a != nil {
		t.Fatalf("Match = %v, %v; want nil, nil", a, err)
	}
}
