package trip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository. Nested state
// is stored in JSONB columns; see internal/database/migrations.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL trip repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// tripRow is the column layout of the trips table.
type tripRow struct {
	origin        []byte
	destination   []byte
	preferences   []byte
	baselineRoute []byte
	route         []byte
	stops         []byte
	waypoints     []byte
}

func encodeRow(t *Trip) (*tripRow, error) {
	var row tripRow
	fields := []struct {
		dst *[]byte
		v   any
	}{
		{&row.origin, t.Origin},
		{&row.destination, t.Destination},
		{&row.preferences, t.Preferences},
		{&row.baselineRoute, t.BaselineRoute},
		{&row.route, t.Route},
		{&row.stops, t.Stops},
		{&row.waypoints, t.Waypoints},
	}
	for _, f := range fields {
		b, err := json.Marshal(f.v)
		if err != nil {
			return nil, fmt.Errorf("encoding trip %s: %w", t.ID, err)
		}
		*f.dst = b
	}
	return &row, nil
}

func (row *tripRow) decode(t *Trip) error {
	fields := []struct {
		src []byte
		v   any
	}{
		{row.origin, &t.Origin},
		{row.destination, &t.Destination},
		{row.preferences, &t.Preferences},
		{row.baselineRoute, &t.BaselineRoute},
		{row.route, &t.Route},
		{row.stops, &t.Stops},
		{row.waypoints, &t.Waypoints},
	}
	for _, f := range fields {
		if len(f.src) == 0 {
			continue
		}
		if err := json.Unmarshal(f.src, f.v); err != nil {
			return fmt.Errorf("decoding trip %s: %w", t.ID, err)
		}
	}
	return nil
}

// Get retrieves a trip by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Trip, error) {
	query := `
		SELECT
			id, origin, destination, fuel_level, vehicle_range,
			preferences, baseline_route, route, stops, waypoints,
			version, created_at, updated_at
		FROM trips
		WHERE id = $1
	`

	var t Trip
	var row tripRow
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&row.origin,
		&row.destination,
		&t.FuelLevel,
		&t.VehicleRange,
		&row.preferences,
		&row.baselineRoute,
		&row.route,
		&row.stops,
		&row.waypoints,
		&t.Version,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTripNotFound
		}
		return nil, err
	}

	if err := row.decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create stores a new trip.
func (r *PostgresRepository) Create(ctx context.Context, t *Trip) error {
	row, err := encodeRow(t)
	if err != nil {
		return err
	}
	if t.Version == 0 {
		t.Version = 1
	}

	query := `
		INSERT INTO trips (
			id, origin, destination, fuel_level, vehicle_range,
			preferences, baseline_route, route, stops, waypoints,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.pool.Exec(ctx, query,
		t.ID,
		row.origin,
		row.destination,
		t.FuelLevel,
		t.VehicleRange,
		row.preferences,
		row.baselineRoute,
		row.route,
		row.stops,
		row.waypoints,
		t.Version,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrTripExists
		}
		return err
	}
	return nil
}

// Update stores the trip when the stored version matches t.Version.
func (r *PostgresRepository) Update(ctx context.Context, t *Trip) error {
	row, err := encodeRow(t)
	if err != nil {
		return err
	}

	query := `
		UPDATE trips SET
			origin = $3,
			destination = $4,
			fuel_level = $5,
			vehicle_range = $6,
			preferences = $7,
			baseline_route = $8,
			route = $9,
			stops = $10,
			waypoints = $11,
			updated_at = $12,
			version = version + 1
		WHERE id = $1 AND version = $2
	`

	tag, err := r.pool.Exec(ctx, query,
		t.ID,
		t.Version,
		row.origin,
		row.destination,
		t.FuelLevel,
		t.VehicleRange,
		row.preferences,
		row.baselineRoute,
		row.route,
		row.stops,
		row.waypoints,
		t.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trips WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrTripNotFound
		}
		return ErrVersionConflict
	}

	t.Version++
	return nil
}

// Delete deletes a trip by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM trips WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTripNotFound
	}
	return nil
}
