package domain

import "time"

// Availability represents whether a driver can currently take rides.
type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityBusy      Availability = "busy"
	AvailabilityOffline   Availability = "offline"
)

// DriverPresence is the transient record a driver session publishes while
// connected. It exists only inside the presence layer and is never persisted.
type DriverPresence struct {
	DriverID       string       `json:"driver_id"`
	DisplayName    string       `json:"display_name"`
	VehicleLabel   string       `json:"vehicle_label"`
	Position       Coordinate   `json:"position"`
	Heading        float64      `json:"heading"`
	SpeedKph       float64      `json:"speed_kph"`
	Availability   Availability `json:"availability"`
	RatingSnapshot float64      `json:"rating_snapshot"`
	LastUpdatedAt  time.Time    `json:"last_updated_at"`
}

// DriverCandidate is a driver eligible for scoring against a ride request.
// Reputation fields come from the persistent store; ETA and familiarity are
// filled in per request by the match orchestrator.
type DriverCandidate struct {
	DriverID            string  `json:"driver_id"`
	DisplayName         string  `json:"display_name"`
	Rating              float64 `json:"rating"`
	TotalRides          int     `json:"total_rides"`
	ComplianceScore     float64 `json:"compliance_score"` // 0-100
	ChampionActs        int     `json:"champion_acts"`
	InfringementCount   int     `json:"infringement_count"`
	EstimatedEtaMinutes float64 `json:"estimated_eta_minutes"`
	LocationFamiliarity bool    `json:"location_familiarity"`
	LastKnownArea       string  `json:"last_known_area,omitempty"`
}
