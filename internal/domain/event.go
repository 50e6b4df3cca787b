package domain

import "time"

// RideEventType distinguishes what a ride change notification carries.
type RideEventType string

const (
	// RideEventStatus signals a lifecycle transition; Ride is populated.
	RideEventStatus RideEventType = "status"
	// RideEventUpdate signals an appended in-trip update; Update is populated.
	RideEventUpdate RideEventType = "update"
)

// RideEvent is a change notification for a single ride, fanned out to
// subscribers driving live tracking views.
type RideEvent struct {
	Type       RideEventType `json:"type"`
	RideID     string        `json:"ride_id"`
	Ride       *Ride         `json:"ride,omitempty"`
	Update     *RideUpdate   `json:"update,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
