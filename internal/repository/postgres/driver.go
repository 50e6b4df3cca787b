package postgres

import (
	"context"
	"database/sql"
	"errors"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
// Candidate rows join the driver base record with its reputation aggregate.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

const candidateColumns = `
	d.id, d.display_name, d.last_known_area, d.availability,
	COALESCE(r.rating, 0), COALESCE(r.total_rides, 0),
	COALESCE(r.compliance_score, 0), COALESCE(r.champion_acts, 0),
	COALESCE(r.infringements, 0)
`

// ListAvailable returns all drivers currently marked available, joined with
// their reputation aggregate.
func (r *DriverRepository) ListAvailable(ctx context.Context) ([]*domain.DriverCandidate, error) {
	query := `
		SELECT ` + candidateColumns + `
		FROM drivers d
		LEFT JOIN driver_reputation r ON r.driver_id = d.id
		WHERE d.availability = 'available'
		ORDER BY d.id
	`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []*domain.DriverCandidate
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

// GetByID retrieves a single driver candidate.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.DriverCandidate, error) {
	query := `
		SELECT ` + candidateColumns + `
		FROM drivers d
		LEFT JOIN driver_reputation r ON r.driver_id = d.id
		WHERE d.id = $1
	`

	var candidate domain.DriverCandidate
	var availability string
	var area sql.NullString

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&candidate.DriverID,
		&candidate.DisplayName,
		&area,
		&availability,
		&candidate.Rating,
		&candidate.TotalRides,
		&candidate.ComplianceScore,
		&candidate.ChampionActs,
		&candidate.InfringementCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if area.Valid {
		candidate.LastKnownArea = area.String
	}
	return &candidate, nil
}

// SetAvailability updates a driver's availability flag.
func (r *DriverRepository) SetAvailability(ctx context.Context, id string, availability domain.Availability) error {
	query := `UPDATE drivers SET availability = $1 WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, string(availability), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// scanner is the subset of *sql.Rows and *sql.Row used by scanCandidate.
type scanner interface {
	Scan(dest ...any) error
}

func scanCandidate(s scanner) (*domain.DriverCandidate, error) {
	var candidate domain.DriverCandidate
	var availability string
	var area sql.NullString

	if err := s.Scan(
		&candidate.DriverID,
		&candidate.DisplayName,
		&area,
		&availability,
		&candidate.Rating,
		&candidate.TotalRides,
		&candidate.ComplianceScore,
		&candidate.ChampionActs,
		&candidate.InfringementCount,
	); err != nil {
		return nil, err
	}

	if area.Valid {
		candidate.LastKnownArea = area.String
	}
	return &candidate, nil
}
