package repository

import (
	"context"

	"dispatch/internal/domain"
)

// RideRepository defines the persistence operations for rides and their
// append-only update stream.
//
// AcceptRequested and UpdateStatus are conditional writes: they succeed only
// if the row still matches the expected prior state, and report false when
// another writer got there first. This is the store-level compare-and-swap
// the lifecycle's single-winner guarantee rests on; callers must not retry a
// failed accept with the same driver.
type RideRepository interface {
	// Create persists a new ride in requested state.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// AcceptRequested atomically assigns the driver and moves the ride to
	// accepted, only if the ride is still requested with no driver. Returns
	// false when the condition no longer holds.
	AcceptRequested(ctx context.Context, rideID, driverID string) (bool, error)

	// UpdateStatus moves the ride from one status to another, only if the
	// ride is still in the expected prior status. Returns false when the
	// condition no longer holds.
	UpdateStatus(ctx context.Context, rideID string, from, to domain.RideStatus, cancelReason string) (bool, error)

	// AppendUpdate inserts an in-trip progress row. Updates are append-only;
	// they are never rewritten or deleted.
	AppendUpdate(ctx context.Context, update *domain.RideUpdate) error

	// ListUpdates returns a ride's updates ordered by creation time.
	ListUpdates(ctx context.Context, rideID string) ([]*domain.RideUpdate, error)
}
