package presence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dispatch/internal/domain"
)

// fakeTransport loops broadcasts straight back to subscribers, the way the
// pub/sub wire echoes a session's own announcements.
type fakeTransport struct {
	mu   sync.Mutex
	subs map[string][]chan Event

	subscribeCalls int32
	down           atomic.Bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string][]chan Event)}
}

func (f *fakeTransport) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	if f.down.Load() {
		return nil, errors.New("transport down")
	}
	atomic.AddInt32(&f.subscribeCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan Event, 64)
	f.subs[channel] = append(f.subs[channel], ch)
	return ch, nil
}

func (f *fakeTransport) Broadcast(ctx context.Context, channel string, event Event) error {
	if f.down.Load() {
		return errors.New("transport down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[channel] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (f *fakeTransport) Unsubscribe(ctx context.Context, channel string) error {
	return nil
}

func testChannel(t *testing.T) (*Channel, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewChannel("test-channel", transport, logger)
	t.Cleanup(c.Close)
	return c, transport
}

func presenceAt(driverID string, lat, lng float64, at time.Time) domain.DriverPresence {
	return domain.DriverPresence{
		DriverID:      driverID,
		DisplayName:   driverID,
		Position:      domain.Coordinate{Latitude: lat, Longitude: lng},
		Availability:  domain.AvailabilityAvailable,
		LastUpdatedAt: at,
	}
}

// waitForSnapshot reads snapshots until one satisfies the predicate.
func waitForSnapshot(t *testing.T, ch <-chan Snapshot, ok func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, open := <-ch:
			if !open {
				t.Fatal("snapshot stream closed")
			}
			if ok(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestJoin_Idempotent(t *testing.T) {
	c, transport := testChannel(t)
	ctx := context.Background()

	if err := c.Join(ctx); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if err := c.Join(ctx); err != nil {
		t.Fatalf("second join failed: %v", err)
	}
	if got := atomic.LoadInt32(&transport.subscribeCalls); got != 1 {
		t.Errorf("expected one subscription, got %d", got)
	}
}

func TestJoin_TransportDown(t *testing.T) {
	c, transport := testChannel(t)
	transport.down.Store(true)

	if err := c.Join(context.Background()); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestPublish_InvalidPosition(t *testing.T) {
	c, _ := testChannel(t)
	ctx := context.Background()
	if err := c.Join(ctx); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	bad := presenceAt("driver-1", 95, 0, time.Now())
	if err := c.Publish(ctx, bad); !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestPublish_TransportDown(t *testing.T) {
	c, transport := testChannel(t)
	ctx := context.Background()
	if err := c.Join(ctx); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	transport.down.Store(true)
	if err := c.Publish(ctx, presenceAt("driver-1", 12.9, 77.6, time.Now())); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestObserve_ReceivesPublishedPresence(t *testing.T) {
	c, _ := testChannel(t)
	ctx := context.Background()
	if err := c.Join(ctx); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	snapshots, err := c.Observe(ctx, nil)
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}

	// First snapshot arrives immediately and is empty.
	first := waitForSnapshot(t, snapshots, func(Snapshot) bool { return true })
	if len(first) != 0 {
		t.Errorf("expected empty initial snapshot, got %d entries", len(first))
	}

	if err := c.Publish(ctx, presenceAt("driver-1", 12.9, 77.6, time.Now())); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	snap := waitForSnapshot(t, snapshots, func(s Snapshot) bool { return len(s) == 1 })
	if snap[0].DriverID != "driver-1" {
		t.Errorf("expected driver-1 in snapshot, got %s", snap[0].DriverID)
	}
}

func TestPublish_UnchangedRecordProducesNoNotification(t *testing.T) {
	c, _ := testChannel(t)
	ctx := context.Background()
	if err := c.Join(ctx); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	snapshots, err := c.Observe(ctx, nil)
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	waitForSnapshot(t, snapshots, func(Snapshot) bool { return true })

	at := time.Now()
	p := presenceAt("driver-1", 12.9, 77.6, at)
	if err := c.Publish(ctx, p); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	waitForSnapshot(t, snapshots, func(s Snapshot) bool { return len(s) == 1 })

	// Re-announcing the identical record must not wake observers.
	if err := c.Publish(ctx, p); err != nil {
		t.Fatalf("republish failed: %v", err)
	}
	select {
	case snap := <-snapshots:
		t.Errorf("unexpected snapshot after unchanged publish: %v", snap)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestPublish_LastWriterWins(t *testing.T) {
	c, _ := testChannel(t)
	ctx := context.Background()
	if err := c.Join(ctx); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	snapshots, err := c.Observe(ctx, nil)
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	waitForSnapshot(t, snapshots, func(Snapshot) bool { return true })

	now := time.Now()
	newer := presenceAt("driver-1", 13.0, 77.7, now)
	older := presenceAt("driver-1", 12.0, 77.0, now.Add(-time.Minute))

	if err := c.Publish(ctx, newer); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	waitForSnapshot(t, snapshots, func(s Snapshot) bool { return len(s) == 1 })

	if err := c.Publish(ctx, older); err != nil {
		t.Fatalf("stale publish failed: %v", err)
	}

	select {
	case snap := <-snapshots:
		if len(snap) == 1 && snap[0].Position.Latitude != 13.0 {
			t.Errorf("stale write overwrote newer record: %+v", snap[0])
		}
	case <-time.After(150 * time.Millisecond):
	}
}

func TestLeave_Idempotent(t *testing.T) {
	c, _ := testChannel(t)
	ctx := context.Background()
	if err := c.Join(ctx); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	snapshots, err := c.Observe(ctx, nil)
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	waitForSnapshot(t, snapshots, func(Snapshot) bool { return true })

	if err := c.Publish(ctx, presenceAt("driver-1", 12.9, 77.6, time.Now())); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	waitForSnapshot(t, snapshots, func(s Snapshot) bool { return len(s) == 1 })

	if err := c.Leave(ctx, "driver-1"); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	waitForSnapshot(t, snapshots, func(s Snapshot) bool { return len(s) == 0 })

	// Leaving again is a no-op with no notification.
	if err := c.Leave(ctx, "driver-1"); err != nil {
		t.Fatalf("second leave failed: %v", err)
	}
	select {
	case snap := <-snapshots:
		t.Errorf("unexpected snapshot after idempotent leave: %v", snap)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestObserve_ReferencePointFiltersSortsAndTruncates(t *testing.T) {
	c, _ := testChannel(t)
	ctx := context.Background()
	if err := c.Join(ctx); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	ref := &domain.Coordinate{Latitude: 12.9000, Longitude: 77.6000}
	snapshots, err := c.Observe(ctx, ref)
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	waitForSnapshot(t, snapshots, func(Snapshot) bool { return true })

	// Twelve available drivers at increasing distance from the reference.
	now := time.Now()
	for i := 0; i < 12; i++ {
		p := presenceAt(fmt.Sprintf("driver-%02d", i), 12.9000+float64(i+1)*0.01, 77.6000, now.Add(time.Duration(i)*time.Millisecond))
		if err := c.Publish(ctx, p); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}
	// One busy driver closer than everyone; must be filtered out.
	busy := presenceAt("driver-busy", 12.9001, 77.6000, now)
	busy.Availability = domain.AvailabilityBusy
	if err := c.Publish(ctx, busy); err != nil {
		t.Fatalf("publish busy failed: %v", err)
	}

	snap := waitForSnapshot(t, snapshots, func(s Snapshot) bool {
		return len(s) == 10 && s[0].DriverID == "driver-00"
	})

	for _, entry := range snap {
		if entry.DriverID == "driver-busy" {
			t.Error("busy driver leaked into filtered snapshot")
		}
		if entry.DistanceMeters <= 0 {
			t.Errorf("expected positive distance annotation for %s", entry.DriverID)
		}
		if entry.EtaSeconds <= 0 {
			t.Errorf("expected positive eta annotation for %s", entry.DriverID)
		}
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].DistanceMeters < snap[i-1].DistanceMeters {
			t.Fatalf("snapshot not sorted by distance at index %d", i)
		}
	}
}

func TestObserve_RequiresJoin(t *testing.T) {
	c, _ := testChannel(t)
	ctx := context.Background()

	if _, err := c.Observe(ctx, nil); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection before join, got %v", err)
	}

	if err := c.Join(ctx); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := c.Observe(ctx, nil); err != nil {
		t.Fatalf("observe after join failed: %v", err)
	}
}

func TestObserve_CancelReleasesObserver(t *testing.T) {
	c, _ := testChannel(t)
	ctx := context.Background()
	if err := c.Join(ctx); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	obsCtx, cancel := context.WithCancel(ctx)
	snapshots, err := c.Observe(obsCtx, nil)
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	waitForSnapshot(t, snapshots, func(Snapshot) bool { return true })

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-snapshots:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("snapshot stream not closed after cancel")
		}
	}
}
