package tests

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrchestrator(drivers *MockDriverRepository, geo *MockGeoStore, fallbackEta float64) *service.MatchOrchestrator {
	var estimator service.EtaEstimator
	if geo != nil {
		estimator = service.NewLiveEtaEstimator(geo, "drivers-location", 15)
	}
	return service.NewMatchOrchestrator(
		drivers,
		service.NewScoringEngine(),
		estimator,
		fallbackEta,
		NewMockCandidateCache(),
		nil,
		newTestLogger(),
	)
}

func TestFindMatch_NoDriversAvailable(t *testing.T) {
	orchestrator := newOrchestrator(NewMockDriverRepository(), nil, 7)

	_, err := orchestrator.FindMatch(context.Background(), service.MatchRequest{
		PassengerID: "passenger-1",
		Pickup:      "MG Road",
	})
	if !errors.Is(err, service.ErrNoDriversAvailable) {
		t.Fatalf("expected ErrNoDriversAvailable, got %v", err)
	}
}

func TestFindMatch_StoreFaultBecomesNoDriversOutcome(t *testing.T) {
	drivers := NewMockDriverRepository()
	drivers.ListAvailableError = errors.New("connection refused")
	orchestrator := newOrchestrator(drivers, nil, 7)

	_, err := orchestrator.FindMatch(context.Background(), service.MatchRequest{
		PassengerID: "passenger-1",
		Pickup:      "MG Road",
	})
	if !errors.Is(err, service.ErrNoDriversAvailable) {
		t.Fatalf("expected store fault masked as ErrNoDriversAvailable, got %v", err)
	}
}

func TestGetCandidate_CacheFirst(t *testing.T) {
	drivers := NewMockDriverRepository()
	drivers.AddCandidate(&domain.DriverCandidate{DriverID: "driver-1", Rating: 4.1})

	cache := NewMockCandidateCache()
	_ = cache.Set(context.Background(), &domain.DriverCandidate{DriverID: "driver-1", Rating: 4.9})

	orchestrator := service.NewMatchOrchestrator(
		drivers, service.NewScoringEngine(), nil, 7, cache, nil, newTestLogger())

	got, err := orchestrator.GetCandidate(context.Background(), "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The cached row wins over the repository row.
	if got.Rating != 4.9 {
		t.Errorf("expected cached candidate, got rating %v", got.Rating)
	}

	if _, err := orchestrator.GetCandidate(context.Background(), "absent"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown driver, got %v", err)
	}
}

func TestFindMatch_ValidatesInput(t *testing.T) {
	drivers := NewMockDriverRepository()
	drivers.AddCandidate(&domain.DriverCandidate{DriverID: "driver-1", Rating: 4.0})
	orchestrator := newOrchestrator(drivers, nil, 7)

	ctx := context.Background()

	if _, err := orchestrator.FindMatch(ctx, service.MatchRequest{Pickup: "MG Road"}); !errors.Is(err, service.ErrInvalidPassengerID) {
		t.Errorf("expected ErrInvalidPassengerID, got %v", err)
	}
	if _, err := orchestrator.FindMatch(ctx, service.MatchRequest{PassengerID: "p1"}); !errors.Is(err, service.ErrEmptyPickup) {
		t.Errorf("expected ErrEmptyPickup, got %v", err)
	}
	bad := &domain.Coordinate{Latitude: 120, Longitude: 0}
	if _, err := orchestrator.FindMatch(ctx, service.MatchRequest{PassengerID: "p1", Pickup: "MG Road", PickupLocation: bad}); !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestFindMatch_PrefersCloserDriverWithLiveEta(t *testing.T) {
	drivers := NewMockDriverRepository()
	// Identical reputation; only proximity differs.
	drivers.AddCandidate(&domain.DriverCandidate{DriverID: "driver-far", Rating: 4.0, TotalRides: 100})
	drivers.AddCandidate(&domain.DriverCandidate{DriverID: "driver-near", Rating: 4.0, TotalRides: 100})

	geo := NewMockGeoStore()
	geo.SetDistances([]redis.DriverDistance{
		{DriverID: "driver-near", DistanceMeters: 500},
		{DriverID: "driver-far", DistanceMeters: 9000},
	})

	orchestrator := newOrchestrator(drivers, geo, 7)
	result, err := orchestrator.FindMatch(context.Background(), service.MatchRequest{
		PassengerID:    "passenger-1",
		Pickup:         "MG Road",
		PickupLocation: &domain.Coordinate{Latitude: 12.97, Longitude: 77.59},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.BestMatch.Driver.DriverID != "driver-near" {
		t.Errorf("expected driver-near to win, got %s", result.BestMatch.Driver.DriverID)
	}
	if result.TotalCandidatesConsidered != 2 {
		t.Errorf("expected 2 candidates considered, got %d", result.TotalCandidatesConsidered)
	}
}

func TestFindMatch_FallbackEtaForDriversWithoutLivePosition(t *testing.T) {
	drivers := NewMockDriverRepository()
	drivers.AddCandidate(&domain.DriverCandidate{DriverID: "driver-tracked", Rating: 4.0})
	drivers.AddCandidate(&domain.DriverCandidate{DriverID: "driver-silent", Rating: 4.0})

	// Only one driver has a live position.
	geo := NewMockGeoStore()
	geo.SetDistances([]redis.DriverDistance{
		{DriverID: "driver-tracked", DistanceMeters: 1000},
	})

	orchestrator := newOrchestrator(drivers, geo, 30)
	result, err := orchestrator.FindMatch(context.Background(), service.MatchRequest{
		PassengerID:    "passenger-1",
		Pickup:         "MG Road",
		PickupLocation: &domain.Coordinate{Latitude: 12.97, Longitude: 77.59},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 1 km at 30 kph is 2 minutes; the silent driver gets the 30 minute
	// stand-in and loses on proximity.
	if result.BestMatch.Driver.DriverID != "driver-tracked" {
		t.Errorf("expected tracked driver to win, got %s", result.BestMatch.Driver.DriverID)
	}
	if got := result.BestMatch.Driver.EstimatedEtaMinutes; got != 2 {
		t.Errorf("expected 2 minute live ETA, got %v", got)
	}
	if got := result.Alternatives[0].Driver.EstimatedEtaMinutes; got != 30 {
		t.Errorf("expected fallback ETA 30, got %v", got)
	}
}

func TestFindMatch_CapsAlternativesAtThree(t *testing.T) {
	drivers := NewMockDriverRepository()
	ratings := []float64{5.0, 4.8, 4.6, 4.4, 4.2, 4.0}
	ids := []string{"a", "b", "c", "d", "e", "f"}
	for i, id := range ids {
		drivers.AddCandidate(&domain.DriverCandidate{DriverID: id, Rating: ratings[i]})
	}

	orchestrator := newOrchestrator(drivers, nil, 7)
	result, err := orchestrator.FindMatch(context.Background(), service.MatchRequest{
		PassengerID: "passenger-1",
		Pickup:      "MG Road",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.BestMatch.Driver.DriverID != "a" {
		t.Errorf("expected top rated driver first, got %s", result.BestMatch.Driver.DriverID)
	}
	if len(result.Alternatives) != 3 {
		t.Errorf("expected 3 alternatives, got %d", len(result.Alternatives))
	}
	if result.TotalCandidatesConsidered != 6 {
		t.Errorf("expected 6 candidates considered, got %d", result.TotalCandidatesConsidered)
	}
}

func TestFindMatch_RecommenderFailureDoesNotBlock(t *testing.T) {
	drivers := NewMockDriverRepository()
	drivers.AddCandidate(&domain.DriverCandidate{DriverID: "driver-1", Rating: 4.8})
	drivers.AddCandidate(&domain.DriverCandidate{DriverID: "driver-2", Rating: 4.2})

	recommender := NewMockRecommender()
	recommender.SuggestError = errors.New("quota exceeded")

	orchestrator := service.NewMatchOrchestrator(
		drivers, service.NewScoringEngine(), nil, 7, nil, recommender, newTestLogger())

	result, err := orchestrator.FindMatch(context.Background(), service.MatchRequest{
		PassengerID: "passenger-1",
		Pickup:      "MG Road",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The ranked result is untouched by the recommendation failure.
	if result.BestMatch.Driver.DriverID != "driver-1" {
		t.Errorf("expected driver-1 to win, got %s", result.BestMatch.Driver.DriverID)
	}
	if result.TotalCandidatesConsidered != 2 {
		t.Errorf("expected 2 candidates considered, got %d", result.TotalCandidatesConsidered)
	}
	if result.Recommendation != "" {
		t.Errorf("expected empty recommendation on failure, got %q", result.Recommendation)
	}
	if got := atomic.LoadInt32(&recommender.SuggestCallCount); got != 1 {
		t.Errorf("expected one recommendation attempt, got %d", got)
	}
}

func TestFindMatch_IncludesRecommendation(t *testing.T) {
	drivers := NewMockDriverRepository()
	drivers.AddCandidate(&domain.DriverCandidate{DriverID: "driver-1", Rating: 4.8})

	recommender := NewMockRecommender()
	recommender.Suggestion = "Highly rated driver nearby."

	orchestrator := service.NewMatchOrchestrator(
		drivers, service.NewScoringEngine(), nil, 7, nil, recommender, newTestLogger())

	result, err := orchestrator.FindMatch(context.Background(), service.MatchRequest{
		PassengerID: "passenger-1",
		Pickup:      "MG Road",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Recommendation != "Highly rated driver nearby." {
		t.Errorf("unexpected recommendation: %q", result.Recommendation)
	}
}

func TestFindMatch_FlagsAreaFamiliarity(t *testing.T) {
	drivers := NewMockDriverRepository()
	drivers.AddCandidate(&domain.DriverCandidate{
		DriverID:      "driver-local",
		Rating:        4.0,
		LastKnownArea: "Indiranagar",
	})
	drivers.AddCandidate(&domain.DriverCandidate{
		DriverID:      "driver-elsewhere",
		Rating:        4.0,
		LastKnownArea: "Whitefield",
	})

	orchestrator := newOrchestrator(drivers, nil, 7)
	result, err := orchestrator.FindMatch(context.Background(), service.MatchRequest{
		PassengerID: "passenger-1",
		Pickup:      "Indiranagar Metro Station",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.BestMatch.Driver.DriverID != "driver-local" {
		t.Fatalf("expected familiar driver to win, got %s", result.BestMatch.Driver.DriverID)
	}
	if !result.BestMatch.Driver.LocationFamiliarity {
		t.Error("expected familiarity flag on best match")
	}
	found := false
	for _, r := range result.BestMatch.Reasons {
		if r == "Familiar with area" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected familiarity reason, got %v", result.BestMatch.Reasons)
	}
}
