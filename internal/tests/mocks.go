package tests

import (
	"context"
	"sync"
	"sync/atomic"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// ──────────────────────────────────────────────
// MOCK DRIVER REPOSITORY
// ──────────────────────────────────────────────

// MockDriverRepository is a mock implementation of DriverRepository.
type MockDriverRepository struct {
	mu           sync.RWMutex
	candidates   map[string]*domain.DriverCandidate
	availability map[string]domain.Availability

	// Counters for verification
	SetAvailabilityCallCount int32

	// Error injection
	ListAvailableError   error
	SetAvailabilityError error
}

// NewMockDriverRepository creates a new mock driver repository.
func NewMockDriverRepository() *MockDriverRepository {
	return &MockDriverRepository{
		candidates:   make(map[string]*domain.DriverCandidate),
		availability: make(map[string]domain.Availability),
	}
}

// AddCandidate registers a driver as available.
func (m *MockDriverRepository) AddCandidate(c *domain.DriverCandidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates[c.DriverID] = c
	m.availability[c.DriverID] = domain.AvailabilityAvailable
}

func (m *MockDriverRepository) ListAvailable(ctx context.Context) ([]*domain.DriverCandidate, error) {
	if m.ListAvailableError != nil {
		return nil, m.ListAvailableError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.DriverCandidate, 0, len(m.candidates))
	for id, c := range m.candidates {
		if m.availability[id] != domain.AvailabilityAvailable {
			continue
		}
		copy := *c
		result = append(result, &copy)
	}
	return result, nil
}

func (m *MockDriverRepository) GetByID(ctx context.Context, id string) (*domain.DriverCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.candidates[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *c
	return &copy, nil
}

func (m *MockDriverRepository) SetAvailability(ctx context.Context, id string, availability domain.Availability) error {
	atomic.AddInt32(&m.SetAvailabilityCallCount, 1)
	if m.SetAvailabilityError != nil {
		return m.SetAvailabilityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.candidates[id]; !ok {
		return repository.ErrNotFound
	}
	m.availability[id] = availability
	return nil
}

// Availability returns a driver's availability for test assertions.
func (m *MockDriverRepository) Availability(id string) domain.Availability {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.availability[id]
}

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is a mock implementation of RideRepository. The
// conditional writes hold the mutex across check and mutate, matching the
// atomicity of the SQL conditional UPDATE.
type MockRideRepository struct {
	mu      sync.Mutex
	rides   map[string]*domain.Ride
	updates map[string][]*domain.RideUpdate

	// Counters for verification
	AcceptCallCount int32

	// Error injection
	CreateError error
	AcceptError error
}

// NewMockRideRepository creates a new mock ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{
		rides:   make(map[string]*domain.Ride),
		updates: make(map[string][]*domain.RideUpdate),
	}
}

// AddRide seeds a ride.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = ride
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *ride
	m.rides[ride.ID] = &copy
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *ride
	return &copy, nil
}

func (m *MockRideRepository) AcceptRequested(ctx context.Context, rideID, driverID string) (bool, error) {
	atomic.AddInt32(&m.AcceptCallCount, 1)
	if m.AcceptError != nil {
		return false, m.AcceptError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[rideID]
	if !ok {
		return false, nil
	}
	if ride.Status != domain.RideStatusRequested || ride.DriverID != "" {
		return false, nil
	}
	ride.DriverID = driverID
	ride.Status = domain.RideStatusAccepted
	return true, nil
}

func (m *MockRideRepository) UpdateStatus(ctx context.Context, rideID string, from, to domain.RideStatus, cancelReason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[rideID]
	if !ok {
		return false, nil
	}
	if ride.Status != from {
		return false, nil
	}
	ride.Status = to
	if cancelReason != "" {
		ride.CancelReason = cancelReason
	}
	return true, nil
}

func (m *MockRideRepository) AppendUpdate(ctx context.Context, update *domain.RideUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *update
	m.updates[update.RideID] = append(m.updates[update.RideID], &copy)
	return nil
}

func (m *MockRideRepository) ListUpdates(ctx context.Context, rideID string) ([]*domain.RideUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.RideUpdate(nil), m.updates[rideID]...), nil
}

// Ride returns a ride for test assertions.
func (m *MockRideRepository) Ride(id string) *domain.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rides[id]
}

// ──────────────────────────────────────────────
// MOCK RIDE NOTIFIER
// ──────────────────────────────────────────────

// MockRideNotifier is a mock implementation of RideNotifierInterface.
type MockRideNotifier struct {
	mu        sync.Mutex
	published []domain.RideEvent
}

// NewMockRideNotifier creates a new mock notifier.
func NewMockRideNotifier() *MockRideNotifier {
	return &MockRideNotifier{}
}

func (m *MockRideNotifier) Publish(ctx context.Context, event domain.RideEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, event)
	return nil
}

func (m *MockRideNotifier) Subscribe(ctx context.Context, rideID string) (<-chan domain.RideEvent, error) {
	return m.eventStream(ctx), nil
}

func (m *MockRideNotifier) SubscribeStatus(ctx context.Context, status domain.RideStatus) (<-chan domain.RideEvent, error) {
	return m.eventStream(ctx), nil
}

func (m *MockRideNotifier) eventStream(ctx context.Context) <-chan domain.RideEvent {
	ch := make(chan domain.RideEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

// Published returns a copy of the published events.
func (m *MockRideNotifier) Published() []domain.RideEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RideEvent(nil), m.published...)
}

// ──────────────────────────────────────────────
// MOCK GEO STORE
// ──────────────────────────────────────────────

// MockGeoStore is a mock implementation of GeoStoreInterface.
type MockGeoStore struct {
	mu        sync.Mutex
	distances []redis.DriverDistance

	NearbyError error
}

// NewMockGeoStore creates a new mock geo store.
func NewMockGeoStore() *MockGeoStore {
	return &MockGeoStore{}
}

// SetDistances sets the result of the next Nearby call, closest first.
func (m *MockGeoStore) SetDistances(distances []redis.DriverDistance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.distances = distances
}

func (m *MockGeoStore) Upsert(ctx context.Context, channel, driverID string, pos domain.Coordinate) error {
	return nil
}

func (m *MockGeoStore) Remove(ctx context.Context, channel, driverID string) error {
	return nil
}

func (m *MockGeoStore) Nearby(ctx context.Context, channel string, center domain.Coordinate, radiusKm float64, limit int) ([]redis.DriverDistance, error) {
	if m.NearbyError != nil {
		return nil, m.NearbyError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit < len(m.distances) {
		return append([]redis.DriverDistance(nil), m.distances[:limit]...), nil
	}
	return append([]redis.DriverDistance(nil), m.distances...), nil
}

// ──────────────────────────────────────────────
// MOCK EVENT SINK
// ──────────────────────────────────────────────

// MockEventSink is a mock implementation of EventSink.
type MockEventSink struct {
	mu        sync.Mutex
	published []domain.RideEvent

	PublishError error
}

// NewMockEventSink creates a new mock event sink.
func NewMockEventSink() *MockEventSink {
	return &MockEventSink{}
}

func (m *MockEventSink) Publish(ctx context.Context, event domain.RideEvent) error {
	if m.PublishError != nil {
		return m.PublishError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, event)
	return nil
}

// ──────────────────────────────────────────────
// MOCK RECOMMENDER
// ──────────────────────────────────────────────

// MockRecommender is a mock implementation of Recommender.
type MockRecommender struct {
	Suggestion string

	SuggestCallCount int32

	// Error injection
	SuggestError error
}

// NewMockRecommender creates a new mock recommender.
func NewMockRecommender() *MockRecommender {
	return &MockRecommender{}
}

func (m *MockRecommender) Suggest(ctx context.Context, best *service.ScoredCandidate, pickup string) (string, error) {
	atomic.AddInt32(&m.SuggestCallCount, 1)
	if m.SuggestError != nil {
		return "", m.SuggestError
	}
	return m.Suggestion, nil
}

// ──────────────────────────────────────────────
// MOCK CANDIDATE CACHE
// ──────────────────────────────────────────────

// MockCandidateCache is a mock implementation of CandidateCacher.
type MockCandidateCache struct {
	mu      sync.Mutex
	entries map[string]*domain.DriverCandidate

	InvalidateCallCount int32
}

// NewMockCandidateCache creates a new mock candidate cache.
func NewMockCandidateCache() *MockCandidateCache {
	return &MockCandidateCache{entries: make(map[string]*domain.DriverCandidate)}
}

func (m *MockCandidateCache) Get(ctx context.Context, driverID string) (*domain.DriverCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.entries[driverID]
	if !ok {
		return nil, nil
	}
	copy := *c
	return &copy, nil
}

func (m *MockCandidateCache) Set(ctx context.Context, candidate *domain.DriverCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *candidate
	m.entries[candidate.DriverID] = &copy
	return nil
}

func (m *MockCandidateCache) Invalidate(ctx context.Context, driverID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, driverID)
	return nil
}
