package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/observability"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

// EventSink receives ride lifecycle events for downstream consumers
// (analytics, audit). Delivery is fire-and-forget; sink failures never affect
// the ride operation that produced the event.
type EventSink interface {
	Publish(ctx context.Context, event domain.RideEvent) error
}

const sinkTimeout = 5 * time.Second

// CreateRideRequest carries the fields needed to open a new ride.
type CreateRideRequest struct {
	PassengerID  string    `json:"passenger_id"`
	Pickup       string    `json:"pickup"`
	Destination  string    `json:"destination"`
	Price        float64   `json:"price"`
	RideType     string    `json:"ride_type"`
	ScheduledFor time.Time `json:"scheduled_for,omitempty"`
}

// RideService drives the ride lifecycle: creation, the race-safe accept,
// status transitions and the in-trip update stream.
type RideService struct {
	rides    repository.RideRepository
	drivers  repository.DriverRepository
	notifier redis.RideNotifierInterface
	cache    CandidateCacher
	sink     EventSink
	logger   *slog.Logger
}

// NewRideService creates a new RideService. cache and sink may be nil.
func NewRideService(
	rides repository.RideRepository,
	drivers repository.DriverRepository,
	notifier redis.RideNotifierInterface,
	cache CandidateCacher,
	sink EventSink,
	logger *slog.Logger,
) *RideService {
	return &RideService{
		rides:    rides,
		drivers:  drivers,
		notifier: notifier,
		cache:    cache,
		sink:     sink,
		logger:   logger,
	}
}

// Create opens a new ride in requested state.
func (s *RideService) Create(ctx context.Context, req CreateRideRequest) (*domain.Ride, error) {
	if strings.TrimSpace(req.PassengerID) == "" {
		return nil, ErrInvalidPassengerID
	}
	if strings.TrimSpace(req.Pickup) == "" {
		return nil, ErrEmptyPickup
	}
	if strings.TrimSpace(req.Destination) == "" {
		return nil, ErrEmptyDestination
	}

	ride := &domain.Ride{
		ID:           uuid.New().String(),
		PassengerID:  req.PassengerID,
		Pickup:       req.Pickup,
		Destination:  req.Destination,
		Price:        req.Price,
		RideType:     req.RideType,
		Status:       domain.RideStatusRequested,
		ScheduledFor: req.ScheduledFor,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.rides.Create(ctx, ride); err != nil {
		return nil, err
	}

	s.logger.Info("ride created", "ride_id", ride.ID, "passenger_id", ride.PassengerID)
	s.publishStatus(ride)
	return ride, nil
}

// GetByID retrieves a ride.
func (s *RideService) GetByID(ctx context.Context, rideID string) (*domain.Ride, error) {
	if strings.TrimSpace(rideID) == "" {
		return nil, ErrInvalidRideID
	}
	return s.rides.GetByID(ctx, rideID)
}

// Accept assigns the driver to a requested ride. At most one driver wins:
// the assignment is a conditional write on the store, and a lost race comes
// back as ErrRideAlreadyTaken. Losing drivers must move on to another ride,
// never retry this one.
func (s *RideService) Accept(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	if strings.TrimSpace(rideID) == "" {
		return nil, ErrInvalidRideID
	}
	if strings.TrimSpace(driverID) == "" {
		return nil, ErrInvalidDriverID
	}

	won, err := s.rides.AcceptRequested(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}
	if !won {
		// Distinguish a lost race from a ride that never existed.
		if _, err := s.rides.GetByID(ctx, rideID); err != nil {
			return nil, err
		}
		observability.AcceptConflictsTotal.Inc()
		s.logger.Info("accept lost race", "ride_id", rideID, "driver_id", driverID)
		return nil, ErrRideAlreadyTaken
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	if err := s.drivers.SetAvailability(ctx, driverID, domain.AvailabilityBusy); err != nil {
		s.logger.Error("failed to mark driver busy", "driver_id", driverID, "error", err)
	}
	s.invalidateCandidate(ctx, driverID)

	observability.RideStatusTransitionsTotal.WithLabelValues(string(domain.RideStatusAccepted)).Inc()
	s.logger.Info("ride accepted", "ride_id", rideID, "driver_id", driverID)
	s.publishStatus(ride)
	return ride, nil
}

// Transition moves a ride along its lifecycle. The target must be reachable
// from the ride's current status, and the write is conditional on that status
// still holding; a concurrent change comes back as ErrStateConflict with the
// ride untouched.
func (s *RideService) Transition(ctx context.Context, rideID string, to domain.RideStatus, cancelReason string) (*domain.Ride, error) {
	if strings.TrimSpace(rideID) == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(ride.Status, to) {
		return nil, ErrInvalidTransition
	}

	ok, err := s.rides.UpdateStatus(ctx, rideID, ride.Status, to, cancelReason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStateConflict
	}

	ride, err = s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	// A terminal state frees the assigned driver for new matches.
	if to.IsTerminal() && ride.DriverID != "" {
		if err := s.drivers.SetAvailability(ctx, ride.DriverID, domain.AvailabilityAvailable); err != nil {
			s.logger.Error("failed to free driver", "driver_id", ride.DriverID, "error", err)
		}
		s.invalidateCandidate(ctx, ride.DriverID)
	}

	observability.RideStatusTransitionsTotal.WithLabelValues(string(to)).Inc()
	s.logger.Info("ride status changed", "ride_id", rideID, "status", to)
	s.publishStatus(ride)
	return ride, nil
}

// PostUpdate appends an in-trip progress update. Only the assigned driver may
// post, and only while the ride is accepted or in progress.
func (s *RideService) PostUpdate(ctx context.Context, rideID, driverID string, location *domain.Coordinate, eta *time.Time, message string) (*domain.RideUpdate, error) {
	if strings.TrimSpace(rideID) == "" {
		return nil, ErrInvalidRideID
	}
	if strings.TrimSpace(driverID) == "" {
		return nil, ErrInvalidDriverID
	}
	if location != nil {
		if err := location.Validate(); err != nil {
			return nil, err
		}
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, ErrNotAssignedDriver
	}
	if ride.Status != domain.RideStatusAccepted && ride.Status != domain.RideStatusInProgress {
		return nil, ErrRideNotActive
	}

	update := &domain.RideUpdate{
		ID:               uuid.New().String(),
		RideID:           rideID,
		DriverLocation:   location,
		EstimatedArrival: eta,
		StatusMessage:    message,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.rides.AppendUpdate(ctx, update); err != nil {
		return nil, err
	}

	s.publishUpdate(update)
	return update, nil
}

// ListUpdates returns a ride's progress updates in order.
func (s *RideService) ListUpdates(ctx context.Context, rideID string) ([]*domain.RideUpdate, error) {
	if strings.TrimSpace(rideID) == "" {
		return nil, ErrInvalidRideID
	}
	if _, err := s.rides.GetByID(ctx, rideID); err != nil {
		return nil, err
	}
	return s.rides.ListUpdates(ctx, rideID)
}

// Subscribe streams change events for a single ride until ctx is cancelled.
func (s *RideService) Subscribe(ctx context.Context, rideID string) (<-chan domain.RideEvent, error) {
	if strings.TrimSpace(rideID) == "" {
		return nil, ErrInvalidRideID
	}
	if _, err := s.rides.GetByID(ctx, rideID); err != nil {
		return nil, err
	}
	return s.notifier.Subscribe(ctx, rideID)
}

// SubscribeStatus streams lifecycle events for every ride entering the given
// status until ctx is cancelled.
func (s *RideService) SubscribeStatus(ctx context.Context, status domain.RideStatus) (<-chan domain.RideEvent, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.notifier.SubscribeStatus(ctx, status)
}

func (s *RideService) publishStatus(ride *domain.Ride) {
	event := domain.RideEvent{
		Type:       domain.RideEventStatus,
		RideID:     ride.ID,
		Ride:       ride,
		OccurredAt: time.Now().UTC(),
	}
	s.publish(event)
}

func (s *RideService) publishUpdate(update *domain.RideUpdate) {
	event := domain.RideEvent{
		Type:       domain.RideEventUpdate,
		RideID:     update.RideID,
		Update:     update,
		OccurredAt: time.Now().UTC(),
	}
	s.publish(event)
}

// publish fans the event out to live subscribers and the event sink without
// blocking the calling operation.
func (s *RideService) publish(event domain.RideEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()

		if err := s.notifier.Publish(ctx, event); err != nil {
			s.logger.Warn("ride event fan-out failed", "ride_id", event.RideID, "error", err)
		}
		if s.sink != nil {
			if err := s.sink.Publish(ctx, event); err != nil {
				s.logger.Warn("ride event sink failed", "ride_id", event.RideID, "error", err)
			}
		}
	}()
}

func (s *RideService) invalidateCandidate(ctx context.Context, driverID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, driverID); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("candidate cache invalidation failed", "driver_id", driverID, "error", err)
	}
}
