package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/presence"
)

const presenceTopicPrefix = "presence:topic:"

// PresenceTransport carries presence events over Redis pub/sub. go-redis
// resubscribes automatically after a disconnect, so a dropped connection
// shows up to consumers as a quiet stream rather than an error.
//
// Alongside the pub/sub fan-out it mirrors driver positions into the GEO
// index so radius queries stay cheap.
type PresenceTransport struct {
	client *redis.Client
	geo    *GeoStore
	logger *slog.Logger

	mu     sync.Mutex
	topics map[string]*topicSub
}

type topicSub struct {
	pubsub *redis.PubSub
	events chan presence.Event
	cancel context.CancelFunc
}

// NewPresenceTransport creates a transport over the given Redis client.
func NewPresenceTransport(client *redis.Client, geo *GeoStore, logger *slog.Logger) *PresenceTransport {
	return &PresenceTransport{
		client: client,
		geo:    geo,
		logger: logger,
		topics: make(map[string]*topicSub),
	}
}

// Subscribe joins the named topic. Idempotent: a second subscribe to the same
// topic returns the existing event stream.
func (t *PresenceTransport) Subscribe(ctx context.Context, channel string) (<-chan presence.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sub, ok := t.topics[channel]; ok {
		return sub.events, nil
	}

	pubsub := t.client.Subscribe(ctx, presenceTopicPrefix+channel)
	// Force the subscription onto the wire so an unreachable broker fails here.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	sub := &topicSub{
		pubsub: pubsub,
		events: make(chan presence.Event, 64),
		cancel: cancel,
	}
	t.topics[channel] = sub

	go t.pump(pumpCtx, channel, sub)
	return sub.events, nil
}

// Broadcast publishes an event to every subscriber of the topic.
func (t *PresenceTransport) Broadcast(ctx context.Context, channel string, event presence.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := t.client.Publish(ctx, presenceTopicPrefix+channel, payload).Err(); err != nil {
		return err
	}

	// Best-effort GEO mirror; the pub/sub announcement is the source of truth.
	switch event.Kind {
	case presence.EventJoin:
		if err := t.geo.Upsert(ctx, channel, event.DriverID, event.Presence.Position); err != nil {
			t.logger.Warn("presence geo upsert failed", "driver_id", event.DriverID, "error", err)
		}
	case presence.EventLeave:
		if err := t.geo.Remove(ctx, channel, event.DriverID); err != nil {
			t.logger.Warn("presence geo remove failed", "driver_id", event.DriverID, "error", err)
		}
	}
	return nil
}

// Unsubscribe leaves the topic. Idempotent.
func (t *PresenceTransport) Unsubscribe(ctx context.Context, channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, ok := t.topics[channel]
	if !ok {
		return nil
	}
	delete(t.topics, channel)
	sub.cancel()
	return sub.pubsub.Close()
}

// pump copies wire messages into the event channel, dropping events a slow
// consumer cannot keep up with (snapshots reconcile, so drops heal).
func (t *PresenceTransport) pump(ctx context.Context, channel string, sub *topicSub) {
	defer close(sub.events)
	wire := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-wire:
			if !ok {
				return
			}
			var event presence.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				t.logger.Warn("presence event decode failed", "channel", channel, "error", err)
				continue
			}
			select {
			case sub.events <- event:
			default:
				t.logger.Debug("presence event dropped", "channel", channel)
			}
		}
	}
}

var _ presence.Transport = (*PresenceTransport)(nil)
