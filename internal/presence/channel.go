// Package presence maintains an eventually-consistent view of the drivers
// currently announcing themselves on a named channel.
//
// A single goroutine per channel exclusively owns the reconciled map and
// publishes immutable snapshots outward; observers never touch shared state.
package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
)

// DefaultChannelName is the topic driver sessions publish their location on.
const DefaultChannelName = "drivers-location"

// nearestLimit caps reference-point snapshots to the closest drivers.
const nearestLimit = 10

// AnnotatedPresence is a presence record enriched with distance and ETA
// relative to an observer's reference point.
type AnnotatedPresence struct {
	domain.DriverPresence
	DistanceMeters float64 `json:"distance_meters"`
	EtaSeconds     int     `json:"eta_seconds"`
}

// Snapshot is a full point-in-time view of all present drivers. Snapshots are
// always the complete reconciled set, never a delta.
type Snapshot []AnnotatedPresence

// Channel reconciles presence events from a Transport into a live driver set.
type Channel struct {
	name      string
	transport Transport
	logger    *slog.Logger

	commands chan func()
	stop     chan struct{}

	mu     sync.Mutex
	joined bool

	// Owned exclusively by the run goroutine.
	entries   map[string]domain.DriverPresence
	ownIDs    map[string]struct{}
	observers map[int]*observer
	nextObsID int
}

type observer struct {
	ch  chan Snapshot
	ref *domain.Coordinate
}

// NewChannel creates an unjoined channel.
func NewChannel(name string, transport Transport, logger *slog.Logger) *Channel {
	return &Channel{
		name:      name,
		transport: transport,
		logger:    logger,
		commands:  make(chan func(), 16),
		stop:      make(chan struct{}),
		entries:   make(map[string]domain.DriverPresence),
		ownIDs:    make(map[string]struct{}),
		observers: make(map[int]*observer),
	}
}

// Join connects the channel to the shared topic and starts reconciling.
// Idempotent; returns ErrConnection when the transport is unreachable.
func (c *Channel) Join(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.joined {
		return nil
	}

	events, err := c.transport.Subscribe(ctx, c.name)
	if err != nil {
		return ErrConnection
	}

	go c.run(events)
	c.joined = true

	// Ask existing sessions to re-announce so our view fills in.
	if err := c.transport.Broadcast(ctx, c.name, Event{Kind: EventSync}); err != nil {
		c.logger.Warn("presence sync request failed", "channel", c.name, "error", err)
	}
	return nil
}

// Publish announces or updates the caller's own presence record. Observers
// eventually receive a reconciled snapshot including it; there is no
// per-delivery acknowledgement.
func (c *Channel) Publish(ctx context.Context, p domain.DriverPresence) error {
	if err := p.Position.Validate(); err != nil {
		return err
	}
	if p.LastUpdatedAt.IsZero() {
		p.LastUpdatedAt = time.Now()
	}

	c.enqueue(func() {
		c.ownIDs[p.DriverID] = struct{}{}
		c.apply(Event{Kind: EventJoin, DriverID: p.DriverID, Presence: p})
	})

	if err := c.transport.Broadcast(ctx, c.name, Event{Kind: EventJoin, DriverID: p.DriverID, Presence: p}); err != nil {
		return ErrConnection
	}
	return nil
}

// Leave removes the caller's own presence. Idempotent: leaving an absent
// driver produces no observer notification.
func (c *Channel) Leave(ctx context.Context, driverID string) error {
	c.enqueue(func() {
		delete(c.ownIDs, driverID)
		c.apply(Event{Kind: EventLeave, DriverID: driverID})
	})

	if err := c.transport.Broadcast(ctx, c.name, Event{Kind: EventLeave, DriverID: driverID}); err != nil {
		return ErrConnection
	}
	return nil
}

// Observe returns a stream of full snapshots. The first snapshot arrives
// immediately; later ones follow each reconciled change. When referencePoint
// is non-nil the snapshot is filtered to available drivers, sorted by
// distance and truncated to the nearest 10. Cancelling ctx releases the
// observer with no other side effect. The channel must be joined first;
// observing an unjoined channel returns ErrConnection.
func (c *Channel) Observe(ctx context.Context, referencePoint *domain.Coordinate) (<-chan Snapshot, error) {
	if referencePoint != nil {
		if err := referencePoint.Validate(); err != nil {
			return nil, err
		}
	}
	if !c.isJoined() {
		return nil, ErrConnection
	}

	obs := &observer{ch: make(chan Snapshot, 1), ref: referencePoint}
	registered := make(chan int, 1)

	c.enqueue(func() {
		id := c.nextObsID
		c.nextObsID++
		c.observers[id] = obs
		obs.send(c.snapshotFor(obs))
		registered <- id
	})

	go func() {
		var id int
		select {
		case id = <-registered:
		case <-c.stop:
			return
		}
		select {
		case <-ctx.Done():
		case <-c.stop:
		}
		c.enqueue(func() {
			if o, ok := c.observers[id]; ok {
				delete(c.observers, id)
				close(o.ch)
			}
		})
	}()

	return obs.ch, nil
}

// Close stops the run loop and closes all observer streams. Closing an
// unjoined channel is a no-op.
func (c *Channel) Close() {
	if !c.isJoined() {
		return
	}
	c.enqueue(func() {
		for id, o := range c.observers {
			delete(c.observers, id)
			close(o.ch)
		}
		close(c.stop)
	})
}

func (c *Channel) isJoined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

func (c *Channel) enqueue(cmd func()) {
	select {
	case c.commands <- cmd:
	case <-c.stop:
	}
}

func (c *Channel) run(events <-chan Event) {
	for {
		select {
		case <-c.stop:
			return
		case cmd := <-c.commands:
			cmd()
		case ev, ok := <-events:
			if !ok {
				// Transport closed the stream; it reconnects on its own and
				// observers keep their last known snapshot meanwhile.
				events = nil
				continue
			}
			c.apply(ev)
		}
	}
}

// apply folds one event into the reconciled map and notifies observers when
// the set actually changed.
func (c *Channel) apply(ev Event) {
	switch ev.Kind {
	case EventJoin:
		existing, ok := c.entries[ev.DriverID]
		if ok {
			// Last writer wins per driver; an unchanged payload is a no-op.
			if ev.Presence.LastUpdatedAt.Before(existing.LastUpdatedAt) {
				return
			}
			if samePresence(existing, ev.Presence) {
				return
			}
		}
		c.entries[ev.DriverID] = ev.Presence
	case EventLeave:
		if _, ok := c.entries[ev.DriverID]; !ok {
			return
		}
		delete(c.entries, ev.DriverID)
	case EventSync:
		// Another session wants the current state: re-announce what we own.
		for id := range c.ownIDs {
			if p, ok := c.entries[id]; ok {
				go func(p domain.DriverPresence) {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = c.transport.Broadcast(ctx, c.name, Event{Kind: EventJoin, DriverID: p.DriverID, Presence: p})
				}(p)
			}
		}
		return
	default:
		return
	}

	for _, o := range c.observers {
		o.send(c.snapshotFor(o))
	}
}

// snapshotFor builds an immutable snapshot for one observer.
func (c *Channel) snapshotFor(o *observer) Snapshot {
	snap := make(Snapshot, 0, len(c.entries))
	for _, p := range c.entries {
		if o.ref != nil && p.Availability != domain.AvailabilityAvailable {
			continue
		}
		a := AnnotatedPresence{DriverPresence: p}
		if o.ref != nil {
			a.DistanceMeters = geo.DistanceMeters(*o.ref, p.Position)
			a.EtaSeconds = geo.EtaSeconds(a.DistanceMeters, geo.DefaultAvgSpeedKph)
		}
		snap = append(snap, a)
	}

	if o.ref != nil {
		sort.Slice(snap, func(i, j int) bool { return snap[i].DistanceMeters < snap[j].DistanceMeters })
		if len(snap) > nearestLimit {
			snap = snap[:nearestLimit]
		}
	} else {
		sort.Slice(snap, func(i, j int) bool { return snap[i].DriverID < snap[j].DriverID })
	}
	return snap
}

// send delivers latest-wins: a slow observer drops the stale pending
// snapshot rather than blocking the reconciler.
func (o *observer) send(snap Snapshot) {
	select {
	case o.ch <- snap:
	default:
		select {
		case <-o.ch:
		default:
		}
		select {
		case o.ch <- snap:
		default:
		}
	}
}

func samePresence(a, b domain.DriverPresence) bool {
	at, bt := a.LastUpdatedAt, b.LastUpdatedAt
	a.LastUpdatedAt, b.LastUpdatedAt = time.Time{}, time.Time{}
	return a == b && at.Equal(bt)
}
