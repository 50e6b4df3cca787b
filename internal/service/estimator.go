package service

import (
	"context"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/internal/redis"
)

// EtaEstimator resolves pickup ETAs for a set of drivers. Implementations
// may not know every driver; missing entries fall back to the orchestrator's
// stand-in estimate.
type EtaEstimator interface {
	// EstimateMinutes returns ETA minutes keyed by driver ID for the drivers
	// it has data for.
	EstimateMinutes(ctx context.Context, pickup domain.Coordinate, driverIDs []string) (map[string]float64, error)
}

// LiveEtaEstimator derives ETAs from the presence layer's GEO mirror:
// distance to the pickup point at the assumed average urban speed.
type LiveEtaEstimator struct {
	geoStore       redis.GeoStoreInterface
	channel        string
	searchRadiusKm float64
}

// NewLiveEtaEstimator creates an estimator over the presence GEO mirror.
func NewLiveEtaEstimator(geoStore redis.GeoStoreInterface, channel string, searchRadiusKm float64) *LiveEtaEstimator {
	return &LiveEtaEstimator{geoStore: geoStore, channel: channel, searchRadiusKm: searchRadiusKm}
}

// EstimateMinutes resolves ETAs for every requested driver with a live
// position inside the search radius.
func (e *LiveEtaEstimator) EstimateMinutes(ctx context.Context, pickup domain.Coordinate, driverIDs []string) (map[string]float64, error) {
	nearby, err := e.geoStore.Nearby(ctx, e.channel, pickup, e.searchRadiusKm, len(driverIDs))
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(driverIDs))
	for _, id := range driverIDs {
		wanted[id] = struct{}{}
	}

	etas := make(map[string]float64)
	for _, d := range nearby {
		if _, ok := wanted[d.DriverID]; !ok {
			continue
		}
		etas[d.DriverID] = float64(geo.EtaSeconds(d.DistanceMeters, geo.DefaultAvgSpeedKph)) / 60.0
	}
	return etas, nil
}

// FixedEtaEstimator returns the same stand-in estimate for every driver.
// Used when no live presence data exists for a candidate; deliberately
// deterministic so rankings stay testable.
type FixedEtaEstimator struct {
	Minutes float64
}

// EstimateMinutes returns the fixed estimate for all requested drivers.
func (e FixedEtaEstimator) EstimateMinutes(_ context.Context, _ domain.Coordinate, driverIDs []string) (map[string]float64, error) {
	etas := make(map[string]float64, len(driverIDs))
	for _, id := range driverIDs {
		etas[id] = e.Minutes
	}
	return etas, nil
}

var (
	_ EtaEstimator = (*LiveEtaEstimator)(nil)
	_ EtaEstimator = FixedEtaEstimator{}
)
