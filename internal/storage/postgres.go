package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/example/ride-tracking/internal/ride"
)

// PostgresStore persists rides in the rides table; stops and passengers are
// stored inline (jsonb and text[]) since they are only ever read through the
// owning ride.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

const rideColumns = `id, status, driver_id, driver_email, driver_license_plate, vehicle_type,
	creator_email, passenger_emails, stops, baby_transport, pet_transport,
	estimated_fare_cents, distance_km, estimated_duration_min, payment_hold_id,
	scheduled_at, created_at, started_at, completed_at, cancelled_at,
	cancelled_by, cancellation_reason`

func (p *PostgresStore) Create(ctx context.Context, r *ride.Ride) error {
	stops, err := json.Marshal(r.Stops)
	if err != nil {
		return fmt.Errorf("marshal stops: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO rides(`+rideColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		r.ID, r.Status, r.DriverID, r.DriverEmail, r.DriverLicensePlate, r.VehicleType,
		r.CreatorEmail, pq.Array(r.PassengerEmails), stops, r.BabyTransport, r.PetTransport,
		r.EstimatedFareCents, r.DistanceKm, r.EstimatedDurationMin, r.PaymentHoldID,
		r.ScheduledAt, r.CreatedAt, r.StartedAt, r.CompletedAt, r.CancelledAt,
		r.CancelledBy, r.CancellationReason)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*ride.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	return scanRide(row)
}

func (p *PostgresStore) Update(ctx context.Context, r *ride.Ride) error {
	stops, err := json.Marshal(r.Stops)
	if err != nil {
		return fmt.Errorf("marshal stops: %w", err)
	}
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET
		status=$2, driver_id=$3, driver_email=$4, driver_license_plate=$5,
		passenger_emails=$6, stops=$7, estimated_fare_cents=$8, distance_km=$9,
		payment_hold_id=$10, started_at=$11, completed_at=$12, cancelled_at=$13,
		cancelled_by=$14, cancellation_reason=$15
		WHERE id=$1`,
		r.ID, r.Status, r.DriverID, r.DriverEmail, r.DriverLicensePlate,
		pq.Array(r.PassengerEmails), stops, r.EstimatedFareCents, r.DistanceKm,
		r.PaymentHoldID, r.StartedAt, r.CompletedAt, r.CancelledAt,
		r.CancelledBy, r.CancellationReason)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ride.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ActiveForDriver(ctx context.Context, driverEmail string, statuses ...ride.Status) (*ride.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE driver_email=$1 AND status = ANY($2) ORDER BY created_at LIMIT 1`,
		driverEmail, pq.Array(statusStrings(statuses)))
	r, err := scanRide(row)
	if errors.Is(err, ride.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

func (p *PostgresStore) ActiveForPassenger(ctx context.Context, email string, statuses ...ride.Status) (*ride.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE $1 = ANY(passenger_emails) AND status = ANY($2) ORDER BY created_at LIMIT 1`,
		email, pq.Array(statusStrings(statuses)))
	r, err := scanRide(row)
	if errors.Is(err, ride.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

func scanRide(row *sql.Row) (*ride.Ride, error) {
	var r ride.Ride
	var stops []byte
	err := row.Scan(&r.ID, &r.Status, &r.DriverID, &r.DriverEmail, &r.DriverLicensePlate, &r.VehicleType,
		&r.CreatorEmail, pq.Array(&r.PassengerEmails), &stops, &r.BabyTransport, &r.PetTransport,
		&r.EstimatedFareCents, &r.DistanceKm, &r.EstimatedDurationMin, &r.PaymentHoldID,
		&r.ScheduledAt, &r.CreatedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt,
		&r.CancelledBy, &r.CancellationReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ride.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stops, &r.Stops); err != nil {
		return nil, fmt.Errorf("unmarshal stops: %w", err)
	}
	return &r, nil
}

func statusStrings(statuses []ride.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
