package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/domain"
)

const presenceGeoKeyPrefix = "presence:geo:"

// DriverDistance is a driver's distance from a query point, in meters.
type DriverDistance struct {
	DriverID       string
	Position       domain.Coordinate
	DistanceMeters float64
}

// GeoStore mirrors the presence layer's driver positions into a Redis GEO
// index so the match orchestrator can run radius queries without walking the
// full presence snapshot.
type GeoStore struct {
	client *redis.Client
}

// NewGeoStore creates a new GeoStore.
func NewGeoStore(client *redis.Client) *GeoStore {
	return &GeoStore{client: client}
}

// Upsert stores a driver's position using GEOADD.
func (s *GeoStore) Upsert(ctx context.Context, channel, driverID string, pos domain.Coordinate) error {
	return s.client.GeoAdd(ctx, presenceGeoKeyPrefix+channel, &redis.GeoLocation{
		Name:      driverID,
		Longitude: pos.Longitude,
		Latitude:  pos.Latitude,
	}).Err()
}

// Remove deletes a driver's position from the geo index.
func (s *GeoStore) Remove(ctx context.Context, channel, driverID string) error {
	return s.client.ZRem(ctx, presenceGeoKeyPrefix+channel, driverID).Err()
}

// Nearby returns drivers within the given radius, closest first.
func (s *GeoStore) Nearby(ctx context.Context, channel string, center domain.Coordinate, radiusKm float64, limit int) ([]DriverDistance, error) {
	results, err := s.client.GeoRadius(ctx, presenceGeoKeyPrefix+channel, center.Longitude, center.Latitude, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	distances := make([]DriverDistance, 0, len(results))
	for _, r := range results {
		distances = append(distances, DriverDistance{
			DriverID:       r.Name,
			Position:       domain.Coordinate{Latitude: r.Latitude, Longitude: r.Longitude},
			DistanceMeters: r.Dist * 1000, // GeoRadius distance is in the query unit
		})
	}
	return distances, nil
}
