package presence

import (
	"context"
	"errors"

	"dispatch/internal/domain"
)

// ErrConnection is returned when the underlying presence transport is
// unreachable. Callers own retry/backoff; the transport itself rejoins
// automatically once connectivity returns.
var ErrConnection = errors.New("presence transport unreachable")

// EventKind identifies the three observable presence event kinds.
type EventKind string

const (
	// EventSync asks every session on the channel to re-announce itself,
	// bringing a fresh observer up to the full reconciled set.
	EventSync EventKind = "sync"
	// EventJoin announces or updates a single driver's presence.
	EventJoin EventKind = "join"
	// EventLeave removes a single driver's presence.
	EventLeave EventKind = "leave"
)

// Event is a single presence announcement on a channel.
type Event struct {
	Kind     EventKind             `json:"kind"`
	DriverID string                `json:"driver_id,omitempty"`
	Presence domain.DriverPresence `json:"presence,omitempty"`
}

// Transport is the pub/sub topic presence events travel over. Delivery is
// best-effort, at-most-once per reconciliation tick; ordering across drivers
// is not guaranteed.
type Transport interface {
	// Subscribe joins the named topic and starts delivering events on the
	// returned channel. Subscribing twice to the same topic is idempotent.
	Subscribe(ctx context.Context, channel string) (<-chan Event, error)

	// Broadcast publishes an event to every subscriber of the topic,
	// including the caller.
	Broadcast(ctx context.Context, channel string, event Event) error

	// Unsubscribe leaves the topic. Idempotent.
	Unsubscribe(ctx context.Context, channel string) error
}
