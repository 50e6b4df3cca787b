package postgres

import (
	"context"
	"database/sql"
	"errors"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
//
// The conditional writes (AcceptRequested, UpdateStatus) rely on the WHERE
// clause plus RowsAffected rather than explicit row locks: the UPDATE is
// atomic at the store level, so concurrent accepts resolve to exactly one
// winner without application locking.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (id, passenger_id, driver_id, pickup, destination, price, ride_type, status, scheduled_for, cancel_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var driverID sql.NullString
	if ride.DriverID != "" {
		driverID = sql.NullString{String: ride.DriverID, Valid: true}
	}

	var scheduledFor sql.NullTime
	if !ride.ScheduledFor.IsZero() {
		scheduledFor = sql.NullTime{Time: ride.ScheduledFor, Valid: true}
	}

	var cancelReason sql.NullString
	if ride.CancelReason != "" {
		cancelReason = sql.NullString{String: ride.CancelReason, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.PassengerID,
		driverID,
		ride.Pickup,
		ride.Destination,
		ride.Price,
		ride.RideType,
		string(ride.Status),
		scheduledFor,
		cancelReason,
		ride.CreatedAt,
	)
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `
		SELECT id, passenger_id, driver_id, pickup, destination, price, ride_type, status, scheduled_for, cancel_reason, created_at
		FROM rides WHERE id = $1
	`

	var ride domain.Ride
	var driverID sql.NullString
	var scheduledFor sql.NullTime
	var cancelReason sql.NullString

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&ride.ID,
		&ride.PassengerID,
		&driverID,
		&ride.Pickup,
		&ride.Destination,
		&ride.Price,
		&ride.RideType,
		&ride.Status,
		&scheduledFor,
		&cancelReason,
		&ride.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if driverID.Valid {
		ride.DriverID = driverID.String
	}
	if scheduledFor.Valid {
		ride.ScheduledFor = scheduledFor.Time
	}
	if cancelReason.Valid {
		ride.CancelReason = cancelReason.String
	}
	return &ride, nil
}

// AcceptRequested atomically assigns the driver and moves the ride to
// accepted. The WHERE clause is the compare-and-swap: it only matches while
// the ride is still requested with no driver assigned.
func (r *RideRepository) AcceptRequested(ctx context.Context, rideID, driverID string) (bool, error) {
	query := `
		UPDATE rides
		SET driver_id = $1, status = $2
		WHERE id = $3 AND status = $4 AND driver_id IS NULL
	`

	result, err := r.q.ExecContext(ctx, query,
		driverID,
		string(domain.RideStatusAccepted),
		rideID,
		string(domain.RideStatusRequested),
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// UpdateStatus moves the ride between statuses with the prior status as the
// write condition.
func (r *RideRepository) UpdateStatus(ctx context.Context, rideID string, from, to domain.RideStatus, cancelReason string) (bool, error) {
	query := `
		UPDATE rides
		SET status = $1,
		    cancel_reason = COALESCE(NULLIF($2, ''), cancel_reason)
		WHERE id = $3 AND status = $4
	`

	result, err := r.q.ExecContext(ctx, query,
		string(to),
		cancelReason,
		rideID,
		string(from),
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// AppendUpdate inserts an in-trip progress row.
func (r *RideRepository) AppendUpdate(ctx context.Context, update *domain.RideUpdate) error {
	query := `
		INSERT INTO ride_updates (id, ride_id, driver_lat, driver_lng, estimated_arrival, status_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var lat, lng sql.NullFloat64
	if update.DriverLocation != nil {
		lat = sql.NullFloat64{Float64: update.DriverLocation.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: update.DriverLocation.Longitude, Valid: true}
	}

	var eta sql.NullTime
	if update.EstimatedArrival != nil {
		eta = sql.NullTime{Time: *update.EstimatedArrival, Valid: true}
	}

	var message sql.NullString
	if update.StatusMessage != "" {
		message = sql.NullString{String: update.StatusMessage, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		update.ID,
		update.RideID,
		lat,
		lng,
		eta,
		message,
		update.CreatedAt,
	)
	return err
}

// ListUpdates returns a ride's updates ordered by creation time.
func (r *RideRepository) ListUpdates(ctx context.Context, rideID string) ([]*domain.RideUpdate, error) {
	query := `
		SELECT id, ride_id, driver_lat, driver_lng, estimated_arrival, status_message, created_at
		FROM ride_updates
		WHERE ride_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.q.QueryContext(ctx, query, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []*domain.RideUpdate
	for rows.Next() {
		var update domain.RideUpdate
		var lat, lng sql.NullFloat64
		var eta sql.NullTime
		var message sql.NullString

		if err := rows.Scan(
			&update.ID,
			&update.RideID,
			&lat,
			&lng,
			&eta,
			&message,
			&update.CreatedAt,
		); err != nil {
			return nil, err
		}

		if lat.Valid && lng.Valid {
			update.DriverLocation = &domain.Coordinate{Latitude: lat.Float64, Longitude: lng.Float64}
		}
		if eta.Valid {
			t := eta.Time
			update.EstimatedArrival = &t
		}
		if message.Valid {
			update.StatusMessage = message.String
		}
		updates = append(updates, &update)
	}
	return updates, rows.Err()
}
