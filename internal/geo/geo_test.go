package geo

import (
	"math"
	"testing"

	"dispatch/internal/domain"
)

func TestDistanceMeters_IdenticalPointsAreZero(t *testing.T) {
	p := domain.Coordinate{Latitude: 12.9716, Longitude: 77.5946}

	if d := DistanceMeters(p, p); d != 0 {
		t.Errorf("expected 0 for identical points, got %f", d)
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	a := domain.Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	b := domain.Coordinate{Latitude: 13.0827, Longitude: 80.2707}

	ab := DistanceMeters(a, b)
	ba := DistanceMeters(b, a)

	if ab != ba {
		t.Errorf("expected symmetric distance, got %f and %f", ab, ba)
	}
}

func TestDistanceMeters_KnownDistance(t *testing.T) {
	// Bangalore to Chennai, roughly 290 km great-circle.
	a := domain.Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	b := domain.Coordinate{Latitude: 13.0827, Longitude: 80.2707}

	d := DistanceMeters(a, b)
	if math.Abs(d-290000) > 10000 {
		t.Errorf("expected ~290km, got %f meters", d)
	}
}

func TestEtaSeconds_ZeroDistance(t *testing.T) {
	if eta := EtaSeconds(0, DefaultAvgSpeedKph); eta != 0 {
		t.Errorf("expected 0 for zero distance, got %d", eta)
	}
}

func TestEtaSeconds_KnownValue(t *testing.T) {
	// 30 km/h is 8.333 m/s, so 8333m should take ~1000 seconds.
	eta := EtaSeconds(8333.3333, 30)
	if eta != 1000 {
		t.Errorf("expected 1000 seconds, got %d", eta)
	}
}

func TestEtaSeconds_MonotonicInDistance(t *testing.T) {
	prev := -1
	for _, d := range []float64{0, 10, 500, 1000, 5000, 25000, 100000} {
		eta := EtaSeconds(d, DefaultAvgSpeedKph)
		if eta < 0 {
			t.Fatalf("negative eta %d for distance %f", eta, d)
		}
		if eta < prev {
			t.Fatalf("eta decreased from %d to %d at distance %f", prev, eta, d)
		}
		prev = eta
	}
}

func TestEtaSeconds_DefaultsSpeedWhenNonPositive(t *testing.T) {
	withDefault := EtaSeconds(1000, DefaultAvgSpeedKph)
	withZero := EtaSeconds(1000, 0)

	if withDefault != withZero {
		t.Errorf("expected default speed fallback, got %d and %d", withDefault, withZero)
	}
}
