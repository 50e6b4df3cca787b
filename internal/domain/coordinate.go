package domain

import "errors"

// ErrInvalidCoordinate is returned when a coordinate is outside the valid range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate represents a WGS84 position.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that the coordinate is within the valid WGS84 range.
func (c Coordinate) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return ErrInvalidCoordinate
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}
