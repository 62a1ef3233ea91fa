package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LocationPoint is a coordinate with a human-readable address, as used for
// pickups, stops and dropoffs.
type LocationPoint struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (p LocationPoint) Coord() Coord { return Coord{Lat: p.Lat, Lon: p.Lon} }

// Identity is an authenticated caller resolved from a bearer token. It is
// carried per-request through context, never stored globally.
type Identity struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

const (
	RolePassenger = "PASSENGER"
	RoleDriver    = "DRIVER"
	RoleAdmin     = "ADMIN"
	// RoleSystem marks internally-triggered operations such as the
	// no-driver-found rejection path.
	RoleSystem = "SYSTEM"
)

// LocationSample is one GPS report from the assigned driver's device.
// Heading and speed are optional; RecordedAt is the device timestamp and may
// lag behind server receipt time.
type LocationSample struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Heading    *float64   `json:"heading,omitempty"`
	Speed      *float64   `json:"speed,omitempty"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// Vehicle is an online vehicle's position plus the metadata shown to
// operators and used by the default matcher.
type Vehicle struct {
	DriverID     string    `json:"driver_id"`
	DriverEmail  string    `json:"driver_email"`
	LicensePlate string    `json:"license_plate"`
	VehicleType  string    `json:"vehicle_type"`
	Loc          Coord     `json:"loc"`
	Online       bool      `json:"online"`
	Updated      time.Time `json:"updated"`
}

// DriverPosition is the wire shape published to Kafka for every accepted
// location report and consumed by the Redis mirror.
type DriverPosition struct {
	DriverID     string    `json:"driver_id"`
	DriverEmail  string    `json:"driver_email"`
	LicensePlate string    `json:"license_plate"`
	VehicleType  string    `json:"vehicle_type"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	RecordedAt   time.Time `json:"recorded_at"`
}
