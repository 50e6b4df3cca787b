// Package geo contains pure great-circle math used by the presence layer and
// the match orchestrator.
package geo

import (
	"math"

	"dispatch/internal/domain"
)

const (
	// earthRadiusMeters is the mean Earth radius used for haversine.
	earthRadiusMeters = 6371000.0

	// DefaultAvgSpeedKph is the assumed average urban driving speed used when
	// converting distance to an ETA.
	DefaultAvgSpeedKph = 30.0
)

// DistanceMeters returns the haversine great-circle distance between two
// coordinates. It is symmetric and zero for identical points.
func DistanceMeters(a, b domain.Coordinate) float64 {
	if a == b {
		return 0
	}

	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLng := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// EtaSeconds converts a distance to travel time at the given average speed,
// rounded to the nearest second. Zero distance yields zero.
func EtaSeconds(distanceMeters, avgSpeedKph float64) int {
	if distanceMeters <= 0 {
		return 0
	}
	if avgSpeedKph <= 0 {
		avgSpeedKph = DefaultAvgSpeedKph
	}
	metersPerSecond := avgSpeedKph * 1000 / 3600
	return int(math.Round(distanceMeters / metersPerSecond))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
