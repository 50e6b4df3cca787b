package redis

import (
	"context"

	"dispatch/internal/domain"
)

// GeoStoreInterface defines the radius-query operations over the presence
// GEO mirror.
type GeoStoreInterface interface {
	Upsert(ctx context.Context, channel, driverID string, pos domain.Coordinate) error
	Remove(ctx context.Context, channel, driverID string) error
	Nearby(ctx context.Context, channel string, center domain.Coordinate, radiusKm float64, limit int) ([]DriverDistance, error)
}

// RideNotifierInterface defines the ride change fan-out contract.
type RideNotifierInterface interface {
	Publish(ctx context.Context, event domain.RideEvent) error
	Subscribe(ctx context.Context, rideID string) (<-chan domain.RideEvent, error)
	SubscribeStatus(ctx context.Context, status domain.RideStatus) (<-chan domain.RideEvent, error)
}

// Ensure concrete types implement interfaces.
var (
	_ GeoStoreInterface     = (*GeoStore)(nil)
	_ RideNotifierInterface = (*RideNotifier)(nil)
)
