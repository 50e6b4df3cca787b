package tests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

func newRideService(rides *MockRideRepository, drivers *MockDriverRepository) *service.RideService {
	return service.NewRideService(
		rides,
		drivers,
		NewMockRideNotifier(),
		NewMockCandidateCache(),
		NewMockEventSink(),
		newTestLogger(),
	)
}

func TestCreateRide_Validation(t *testing.T) {
	svc := newRideService(NewMockRideRepository(), NewMockDriverRepository())
	ctx := context.Background()

	cases := []struct {
		name string
		req  service.CreateRideRequest
		want error
	}{
		{"missing passenger", service.CreateRideRequest{Pickup: "A", Destination: "B"}, service.ErrInvalidPassengerID},
		{"missing pickup", service.CreateRideRequest{PassengerID: "p1", Destination: "B"}, service.ErrEmptyPickup},
		{"missing destination", service.CreateRideRequest{PassengerID: "p1", Pickup: "A"}, service.ErrEmptyDestination},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateRide_StartsRequested(t *testing.T) {
	rides := NewMockRideRepository()
	svc := newRideService(rides, NewMockDriverRepository())

	ride, err := svc.Create(context.Background(), service.CreateRideRequest{
		PassengerID: "passenger-1",
		Pickup:      "MG Road",
		Destination: "Airport",
		Price:       420,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ride.Status != domain.RideStatusRequested {
		t.Errorf("expected requested status, got %s", ride.Status)
	}
	if ride.ID == "" {
		t.Error("expected generated ride ID")
	}
	if ride.DriverID != "" {
		t.Error("new ride must have no driver")
	}
}

func TestAccept_ExactlyOneWinnerUnderContention(t *testing.T) {
	rides := NewMockRideRepository()
	drivers := NewMockDriverRepository()
	svc := newRideService(rides, drivers)

	rides.AddRide(&domain.Ride{
		ID:          "ride-1",
		PassengerID: "passenger-1",
		Pickup:      "MG Road",
		Destination: "Airport",
		Status:      domain.RideStatusRequested,
	})

	const contenders = 50
	for i := 0; i < contenders; i++ {
		drivers.AddCandidate(&domain.DriverCandidate{DriverID: fmt.Sprintf("driver-%d", i)})
	}

	var wg sync.WaitGroup
	winners := make(chan string, contenders)
	losses := make(chan error, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			ride, err := svc.Accept(context.Background(), "ride-1", driverID)
			if err != nil {
				losses <- err
				return
			}
			winners <- ride.DriverID
		}(fmt.Sprintf("driver-%d", i))
	}
	wg.Wait()
	close(winners)
	close(losses)

	var won []string
	for w := range winners {
		won = append(won, w)
	}
	if len(won) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(won))
	}

	for err := range losses {
		if !errors.Is(err, service.ErrRideAlreadyTaken) {
			t.Errorf("loser got unexpected error: %v", err)
		}
	}

	ride := rides.Ride("ride-1")
	if ride.Status != domain.RideStatusAccepted {
		t.Errorf("expected accepted status, got %s", ride.Status)
	}
	if ride.DriverID != won[0] {
		t.Errorf("stored driver %s does not match winner %s", ride.DriverID, won[0])
	}
	if drivers.Availability(won[0]) != domain.AvailabilityBusy {
		t.Errorf("winner should be marked busy, got %s", drivers.Availability(won[0]))
	}
}

func TestAccept_UnknownRide(t *testing.T) {
	svc := newRideService(NewMockRideRepository(), NewMockDriverRepository())

	_, err := svc.Accept(context.Background(), "missing", "driver-1")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransition_InvalidLeavesRideUnchanged(t *testing.T) {
	rides := NewMockRideRepository()
	svc := newRideService(rides, NewMockDriverRepository())

	rides.AddRide(&domain.Ride{ID: "ride-1", Status: domain.RideStatusRequested})

	_, err := svc.Transition(context.Background(), "ride-1", domain.RideStatusCompleted, "")
	if !errors.Is(err, service.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got := rides.Ride("ride-1").Status; got != domain.RideStatusRequested {
		t.Errorf("ride status changed on rejected transition: %s", got)
	}
}

func TestTransition_TerminalStateFreesDriver(t *testing.T) {
	rides := NewMockRideRepository()
	drivers := NewMockDriverRepository()
	svc := newRideService(rides, drivers)

	drivers.AddCandidate(&domain.DriverCandidate{DriverID: "driver-1"})
	_ = drivers.SetAvailability(context.Background(), "driver-1", domain.AvailabilityBusy)
	rides.AddRide(&domain.Ride{ID: "ride-1", DriverID: "driver-1", Status: domain.RideStatusAccepted})

	if _, err := svc.Transition(context.Background(), "ride-1", domain.RideStatusInProgress, ""); err != nil {
		t.Fatalf("in_progress transition failed: %v", err)
	}
	if drivers.Availability("driver-1") != domain.AvailabilityBusy {
		t.Error("driver should stay busy while the ride runs")
	}

	if _, err := svc.Transition(context.Background(), "ride-1", domain.RideStatusCompleted, ""); err != nil {
		t.Fatalf("completed transition failed: %v", err)
	}
	if drivers.Availability("driver-1") != domain.AvailabilityAvailable {
		t.Error("driver should be freed after completion")
	}
}

func TestTransition_CancelKeepsReason(t *testing.T) {
	rides := NewMockRideRepository()
	svc := newRideService(rides, NewMockDriverRepository())

	rides.AddRide(&domain.Ride{ID: "ride-1", Status: domain.RideStatusRequested})

	ride, err := svc.Transition(context.Background(), "ride-1", domain.RideStatusCancelled, "passenger changed plans")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ride.Status != domain.RideStatusCancelled {
		t.Errorf("expected cancelled, got %s", ride.Status)
	}
	if ride.CancelReason != "passenger changed plans" {
		t.Errorf("expected cancel reason stored, got %q", ride.CancelReason)
	}
}

func TestPostUpdate_OnlyAssignedDriverWhileActive(t *testing.T) {
	rides := NewMockRideRepository()
	svc := newRideService(rides, NewMockDriverRepository())
	ctx := context.Background()

	rides.AddRide(&domain.Ride{ID: "ride-1", DriverID: "driver-1", Status: domain.RideStatusAccepted})
	rides.AddRide(&domain.Ride{ID: "ride-done", DriverID: "driver-1", Status: domain.RideStatusCompleted})

	if _, err := svc.PostUpdate(ctx, "ride-1", "driver-2", nil, nil, "on my way"); !errors.Is(err, service.ErrNotAssignedDriver) {
		t.Errorf("expected ErrNotAssignedDriver, got %v", err)
	}
	if _, err := svc.PostUpdate(ctx, "ride-done", "driver-1", nil, nil, "late"); !errors.Is(err, service.ErrRideNotActive) {
		t.Errorf("expected ErrRideNotActive, got %v", err)
	}

	eta := time.Now().Add(5 * time.Minute)
	update, err := svc.PostUpdate(ctx, "ride-1", "driver-1",
		&domain.Coordinate{Latitude: 12.97, Longitude: 77.59}, &eta, "arriving soon")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.RideID != "ride-1" || update.StatusMessage != "arriving soon" {
		t.Errorf("unexpected update: %+v", update)
	}

	updates, err := svc.ListUpdates(ctx, "ride-1")
	if err != nil {
		t.Fatalf("list updates failed: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
}

func TestPostUpdate_RejectsInvalidLocation(t *testing.T) {
	rides := NewMockRideRepository()
	svc := newRideService(rides, NewMockDriverRepository())

	rides.AddRide(&domain.Ride{ID: "ride-1", DriverID: "driver-1", Status: domain.RideStatusInProgress})

	_, err := svc.PostUpdate(context.Background(), "ride-1", "driver-1",
		&domain.Coordinate{Latitude: 91, Longitude: 0}, nil, "")
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}
