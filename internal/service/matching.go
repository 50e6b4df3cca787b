package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/observability"
	"dispatch/internal/repository"
)

const (
	maxAlternatives    = 3
	recommenderTimeout = 2 * time.Second
	cacheWriteTimeout  = 2 * time.Second
)

// Recommender produces an optional one-line human suggestion for a match
// result. Failures are never surfaced to callers.
type Recommender interface {
	Suggest(ctx context.Context, best *ScoredCandidate, pickup string) (string, error)
}

// CandidateCacher stores recently ranked candidates for hot-path reads.
type CandidateCacher interface {
	Get(ctx context.Context, driverID string) (*domain.DriverCandidate, error)
	Set(ctx context.Context, candidate *domain.DriverCandidate) error
	Invalidate(ctx context.Context, driverID string) error
}

// MatchRequest carries everything needed to rank drivers for a pickup.
type MatchRequest struct {
	PassengerID    string             `json:"passenger_id"`
	Pickup         string             `json:"pickup"`
	PickupLocation *domain.Coordinate `json:"pickup_location,omitempty"`
	Preferences    *Preferences       `json:"preferences,omitempty"`
}

// MatchResult is the ranked outcome of a match request. Alternatives are the
// fallback candidates for when the best match declines or loses the accept.
type MatchResult struct {
	BestMatch                 ScoredCandidate   `json:"best_match"`
	Alternatives              []ScoredCandidate `json:"alternatives"`
	TotalCandidatesConsidered int               `json:"total_candidates_considered"`
	Recommendation            string            `json:"recommendation,omitempty"`
}

// MatchOrchestrator ranks available drivers for a ride request. It composes
// the candidate query, ETA enrichment, the scoring engine and the optional
// recommendation step into one synchronous pipeline.
type MatchOrchestrator struct {
	drivers            repository.DriverRepository
	engine             *ScoringEngine
	estimator          EtaEstimator
	fallbackEtaMinutes float64
	cache              CandidateCacher
	recommender        Recommender
	logger             *slog.Logger
}

// NewMatchOrchestrator creates a new MatchOrchestrator. cache and recommender
// may be nil; the pipeline works without them.
func NewMatchOrchestrator(
	drivers repository.DriverRepository,
	engine *ScoringEngine,
	estimator EtaEstimator,
	fallbackEtaMinutes float64,
	cache CandidateCacher,
	recommender Recommender,
	logger *slog.Logger,
) *MatchOrchestrator {
	return &MatchOrchestrator{
		drivers:            drivers,
		engine:             engine,
		estimator:          estimator,
		fallbackEtaMinutes: fallbackEtaMinutes,
		cache:              cache,
		recommender:        recommender,
		logger:             logger,
	}
}

// FindMatch returns the best driver for the request plus up to three
// alternatives. Returns ErrNoDriversAvailable when no candidate exists.
func (o *MatchOrchestrator) FindMatch(ctx context.Context, req MatchRequest) (*MatchResult, error) {
	started := time.Now()

	if strings.TrimSpace(req.PassengerID) == "" {
		return nil, ErrInvalidPassengerID
	}
	if strings.TrimSpace(req.Pickup) == "" {
		return nil, ErrEmptyPickup
	}
	if req.PickupLocation != nil {
		if err := req.PickupLocation.Validate(); err != nil {
			return nil, err
		}
	}

	candidates, err := o.drivers.ListAvailable(ctx)
	if err != nil {
		// A store fault and an empty pool look the same to the passenger:
		// nobody can be dispatched right now.
		o.logger.Error("candidate query failed", "error", err)
		observability.MatchNoDriversTotal.Inc()
		return nil, ErrNoDriversAvailable
	}
	if len(candidates) == 0 {
		observability.MatchNoDriversTotal.Inc()
		return nil, ErrNoDriversAvailable
	}

	o.enrich(ctx, req, candidates)

	ranked := o.engine.Rank(candidates, req.Preferences)

	result := &MatchResult{
		BestMatch:                 ranked[0],
		TotalCandidatesConsidered: len(ranked),
	}
	for _, alt := range ranked[1:] {
		if len(result.Alternatives) == maxAlternatives {
			break
		}
		result.Alternatives = append(result.Alternatives, alt)
	}

	if o.cache != nil {
		o.cacheCandidates(ranked)
	}
	if o.recommender != nil {
		result.Recommendation = o.recommend(ctx, &result.BestMatch, req.Pickup)
	}

	observability.MatchesTotal.Inc()
	observability.MatchDuration.Observe(time.Since(started).Seconds())

	o.logger.Info("match found",
		"passenger_id", req.PassengerID,
		"driver_id", result.BestMatch.Driver.DriverID,
		"score", result.BestMatch.Score,
		"candidates", result.TotalCandidatesConsidered,
	)
	return result, nil
}

// GetCandidate returns one driver's reputation row, cache first. A cache miss
// falls through to the repository and refreshes the cache in the background.
func (o *MatchOrchestrator) GetCandidate(ctx context.Context, driverID string) (*domain.DriverCandidate, error) {
	if strings.TrimSpace(driverID) == "" {
		return nil, ErrInvalidDriverID
	}

	if o.cache != nil {
		cached, err := o.cache.Get(ctx, driverID)
		if err != nil {
			o.logger.Warn("candidate cache read failed", "driver_id", driverID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	candidate, err := o.drivers.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		o.cacheCandidates([]ScoredCandidate{{Driver: candidate}})
	}
	return candidate, nil
}

// enrich fills in the per-request candidate fields: pickup ETA from the live
// estimator (fallback estimate when a driver has no live position) and the
// location familiarity flag.
func (o *MatchOrchestrator) enrich(ctx context.Context, req MatchRequest, candidates []*domain.DriverCandidate) {
	var etas map[string]float64
	if o.estimator != nil && req.PickupLocation != nil {
		ids := make([]string, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.DriverID)
		}
		var err error
		etas, err = o.estimator.EstimateMinutes(ctx, *req.PickupLocation, ids)
		if err != nil {
			o.logger.Warn("eta estimation failed, using fallback", "error", err)
			etas = nil
		}
	}

	pickup := strings.ToLower(req.Pickup)
	for _, c := range candidates {
		if eta, ok := etas[c.DriverID]; ok {
			c.EstimatedEtaMinutes = eta
		} else {
			c.EstimatedEtaMinutes = o.fallbackEtaMinutes
		}
		c.LocationFamiliarity = c.LastKnownArea != "" &&
			strings.Contains(pickup, strings.ToLower(c.LastKnownArea))
	}
}

// cacheCandidates writes ranked candidates through to the cache without
// blocking the response.
func (o *MatchOrchestrator) cacheCandidates(ranked []ScoredCandidate) {
	drivers := make([]*domain.DriverCandidate, 0, len(ranked))
	for _, sc := range ranked {
		drivers = append(drivers, sc.Driver)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()
		for _, d := range drivers {
			if err := o.cache.Set(ctx, d); err != nil {
				o.logger.Warn("candidate cache write failed", "driver_id", d.DriverID, "error", err)
				return
			}
		}
	}()
}

// recommend asks the recommender for a one-liner under its own deadline.
// Any failure degrades to an empty recommendation.
func (o *MatchOrchestrator) recommend(ctx context.Context, best *ScoredCandidate, pickup string) string {
	rctx, cancel := context.WithTimeout(ctx, recommenderTimeout)
	defer cancel()

	suggestion, err := o.recommender.Suggest(rctx, best, pickup)
	if err != nil {
		o.logger.Warn("recommendation unavailable", "error", err)
		return ""
	}
	return suggestion
}
