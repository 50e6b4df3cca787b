package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequested  RideStatus = "requested"
	RideStatusAccepted   RideStatus = "accepted"
	RideStatusInProgress RideStatus = "in_progress"
	RideStatusCompleted  RideStatus = "completed"
	RideStatusCancelled  RideStatus = "cancelled"
)

// allowedTransitions is the ride state table. A ride reaches at most one
// terminal state (completed or cancelled), after which the record is history.
var allowedTransitions = map[RideStatus][]RideStatus{
	RideStatusRequested:  {RideStatusAccepted, RideStatusCancelled},
	RideStatusAccepted:   {RideStatusInProgress, RideStatusCancelled},
	RideStatusInProgress: {RideStatusCompleted},
}

// CanTransition reports whether a ride may move from one status to another.
func CanTransition(from, to RideStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the ride lifecycle.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// Valid reports whether the status is one of the known lifecycle states.
func (s RideStatus) Valid() bool {
	switch s {
	case RideStatusRequested, RideStatusAccepted, RideStatusInProgress, RideStatusCompleted, RideStatusCancelled:
		return true
	}
	return false
}

// Ride represents a requested trip. DriverID is set exactly once, by the
// winning Accept; re-assignment requires cancelling and creating a new ride.
type Ride struct {
	ID           string
	PassengerID  string
	DriverID     string // empty until accepted, immutable afterwards
	Pickup       string
	Destination  string
	Price        float64
	RideType     string
	Status       RideStatus
	ScheduledFor time.Time // zero when the ride is immediate
	CreatedAt    time.Time
	CancelReason string
}

// RideUpdate is an append-only in-trip progress row, created only by the
// assigned driver's session while the ride is accepted or in progress.
type RideUpdate struct {
	ID               string
	RideID           string
	DriverLocation   *Coordinate
	EstimatedArrival *time.Time
	StatusMessage    string
	CreatedAt        time.Time
}
