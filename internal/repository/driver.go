package repository

import (
	"context"

	"dispatch/internal/domain"
)

// DriverRepository defines the read-only queries the match orchestrator runs
// against the persistent store. Reputation fields are a join of the driver
// base record with its reputation aggregate; this core consumes but never
// computes them.
type DriverRepository interface {
	// ListAvailable returns all drivers currently marked available, with
	// reputation attributes populated.
	ListAvailable(ctx context.Context) ([]*domain.DriverCandidate, error)

	// GetByID retrieves a single driver candidate.
	GetByID(ctx context.Context, id string) (*domain.DriverCandidate, error)

	// SetAvailability updates a driver's availability flag.
	SetAvailability(ctx context.Context, id string, availability domain.Availability) error
}
