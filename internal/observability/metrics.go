package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level collectors, registered once at init via promauto. All metrics
// share the "dispatch" namespace.
var (
	MatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "matches_total",
		Help:      "Number of successful driver matches.",
	})

	MatchNoDriversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "match_no_drivers_total",
		Help:      "Number of match attempts that found no available driver.",
	})

	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dispatch",
		Name:      "match_duration_seconds",
		Help:      "Time spent ranking candidates for a match request.",
		Buckets:   prometheus.DefBuckets,
	})

	AcceptConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "accept_conflicts_total",
		Help:      "Number of ride accepts lost to another driver.",
	})

	RideStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "ride_status_transitions_total",
		Help:      "Ride lifecycle transitions by target status.",
	}, []string{"status"})

	PresentDrivers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatch",
		Name:      "present_drivers",
		Help:      "Drivers currently in the presence channel.",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dispatch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and path.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
)
