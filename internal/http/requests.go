package httpapi

import (
	"time"

	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/ride"
)

type locationPointDTO struct {
	Address string  `json:"address" validate:"required"`
	Lat     float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon     float64 `json:"lon" validate:"gte=-180,lte=180"`
}

func (d locationPointDTO) model() models.LocationPoint {
	return models.LocationPoint{Address: d.Address, Lat: d.Lat, Lon: d.Lon}
}

type orderRideRequest struct {
	Pickup          locationPointDTO   `json:"pickup" validate:"required"`
	Stops           []locationPointDTO `json:"stops" validate:"dive"`
	Dropoff         locationPointDTO   `json:"dropoff" validate:"required"`
	VehicleType     string             `json:"vehicle_type" validate:"required"`
	PassengerEmails []string           `json:"passenger_emails" validate:"dive,email"`
	BabyTransport   bool               `json:"baby_transport"`
	PetTransport    bool               `json:"pet_transport"`
	ScheduledAt     *time.Time         `json:"scheduled_at"`
}

func (d orderRideRequest) model() ride.OrderRequest {
	stops := make([]models.LocationPoint, 0, len(d.Stops))
	for _, s := range d.Stops {
		stops = append(stops, s.model())
	}
	return ride.OrderRequest{
		Pickup:          d.Pickup.model(),
		Stops:           stops,
		Dropoff:         d.Dropoff.model(),
		VehicleType:     d.VehicleType,
		PassengerEmails: d.PassengerEmails,
		BabyTransport:   d.BabyTransport,
		PetTransport:    d.PetTransport,
		ScheduledAt:     d.ScheduledAt,
	}
}

type estimateRequest struct {
	Pickup  locationPointDTO   `json:"pickup" validate:"required"`
	Stops   []locationPointDTO `json:"stops" validate:"dive"`
	Dropoff locationPointDTO   `json:"dropoff" validate:"required"`
}

func (d estimateRequest) coords() []models.Coord {
	points := make([]models.Coord, 0, len(d.Stops)+2)
	points = append(points, d.Pickup.model().Coord())
	for _, s := range d.Stops {
		points = append(points, s.model().Coord())
	}
	return append(points, d.Dropoff.model().Coord())
}

type locationReportRequest struct {
	Latitude   float64    `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64    `json:"longitude" validate:"gte=-180,lte=180"`
	Heading    *float64   `json:"heading" validate:"omitempty,gte=0,lt=360"`
	Speed      *float64   `json:"speed" validate:"omitempty,gte=0"`
	RecordedAt *time.Time `json:"recorded_at"`
}

func (d locationReportRequest) model() models.LocationSample {
	return models.LocationSample{
		Latitude:   d.Latitude,
		Longitude:  d.Longitude,
		Heading:    d.Heading,
		Speed:      d.Speed,
		RecordedAt: d.RecordedAt,
	}
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
