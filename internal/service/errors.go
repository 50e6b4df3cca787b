package service

import "errors"

var (
	// ErrNoDriversAvailable is returned when no driver can be matched.
	// A business outcome, not a fault: callers surface it with a retry hint.
	ErrNoDriversAvailable = errors.New("no drivers available")

	// ErrRideAlreadyTaken is returned when a conditional accept loses the
	// race. The caller must offer a different candidate, never retry the
	// same driver.
	ErrRideAlreadyTaken = errors.New("ride already taken by another driver")

	// ErrInvalidTransition is returned when a requested status change is not
	// permitted by the ride state table. Ride state is left unchanged.
	ErrInvalidTransition = errors.New("invalid ride status transition")

	// ErrStateConflict is returned when a transition's conditional write
	// fails because the ride changed underneath the caller.
	ErrStateConflict = errors.New("ride state changed concurrently")

	// ErrNotAssignedDriver is returned when a driver posts an update for a
	// ride they are not assigned to.
	ErrNotAssignedDriver = errors.New("driver not assigned to this ride")

	// ErrRideNotActive is returned when an update is posted outside the
	// accepted/in_progress window.
	ErrRideNotActive = errors.New("ride not active")

	// ErrInvalidPassengerID is returned when passenger ID is empty.
	ErrInvalidPassengerID = errors.New("invalid passenger id")

	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidStatus is returned when a status value is not a known
	// lifecycle state.
	ErrInvalidStatus = errors.New("invalid ride status")

	// ErrEmptyPickup is returned when the pickup description is empty.
	ErrEmptyPickup = errors.New("pickup is required")

	// ErrEmptyDestination is returned when the destination description is empty.
	ErrEmptyDestination = errors.New("destination is required")
)

// NoDriversRecommendation is the retry hint attached to the
// ErrNoDriversAvailable outcome.
const NoDriversRecommendation = "All drivers are currently busy. Please try again in a few minutes."
