package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/domain"
)

const (
	rideEventTopicPrefix  = "rides:events:"
	rideStatusTopicPrefix = "rides:status:"
)

// RideNotifier fans ride change events out to live-tracking subscribers over
// Redis pub/sub, one topic per ride.
type RideNotifier struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRideNotifier creates a new RideNotifier.
func NewRideNotifier(client *redis.Client, logger *slog.Logger) *RideNotifier {
	return &RideNotifier{client: client, logger: logger}
}

// Publish sends a ride event to all current subscribers of that ride, and
// status events additionally to the matching status topic. Delivery is
// best-effort; the persistent store remains the source of truth.
func (n *RideNotifier) Publish(ctx context.Context, event domain.RideEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, rideEventTopicPrefix+event.RideID, payload).Err(); err != nil {
		return err
	}
	if event.Type == domain.RideEventStatus && event.Ride != nil {
		if err := n.client.Publish(ctx, rideStatusTopicPrefix+string(event.Ride.Status), payload).Err(); err != nil {
			n.logger.Warn("status topic publish failed", "ride_id", event.RideID, "error", err)
		}
	}
	return nil
}

// Subscribe returns a stream of change events for one ride. The stream is
// restartable: cancelling ctx tears down only this subscription and has no
// server-side effect.
func (n *RideNotifier) Subscribe(ctx context.Context, rideID string) (<-chan domain.RideEvent, error) {
	return n.subscribeTopic(ctx, rideEventTopicPrefix+rideID)
}

// SubscribeStatus returns a stream of lifecycle events for every ride entering
// the given status, e.g. dispatch consoles watching new requested rides.
func (n *RideNotifier) SubscribeStatus(ctx context.Context, status domain.RideStatus) (<-chan domain.RideEvent, error) {
	return n.subscribeTopic(ctx, rideStatusTopicPrefix+string(status))
}

func (n *RideNotifier) subscribeTopic(ctx context.Context, topic string) (<-chan domain.RideEvent, error) {
	pubsub := n.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	events := make(chan domain.RideEvent, 16)
	go func() {
		defer close(events)
		defer func() { _ = pubsub.Close() }()

		wire := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-wire:
				if !ok {
					return
				}
				var event domain.RideEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					n.logger.Warn("ride event decode failed", "topic", topic, "error", err)
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}
