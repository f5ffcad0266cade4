package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/alert-feed/internal/adapter/metrics"
	"github.com/V4T54L/alert-feed/internal/adapter/pii"
	"github.com/V4T54L/alert-feed/internal/domain"
	"github.com/V4T54L/alert-feed/internal/domain/mocks"
)

func sampleEvent() domain.NewEvent {
	return domain.NewEvent{
		Type:        "Port Scan Detected",
		SourceIP:    "10.0.0.7",
		ActionTaken: "Blocked",
		Details:     map[string]any{"severity": "High"},
	}
}

type recordingRelay struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *recordingRelay) Publish(ctx context.Context, event domain.Event, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func TestDistributor_Submit(t *testing.T) {
	logger := discardLogger()
	fixed := time.Date(2026, 10, 16, 12, 30, 45, 123456789, time.FixedZone("CEST", 2*3600))

	t.Run("Successful Submission", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		registry := NewRegistry(logger, nil)
		sub := newFakeChannel("sub")
		registry.Register(sub)
		d := NewDistributor(store, registry, logger, DistributorOptions{Now: func() time.Time { return fixed }})

		event, err := d.Submit(context.Background(), sampleEvent())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if event.ID == "" {
			t.Error("expected event ID to be assigned by the store")
		}
		want := fixed.UTC().Truncate(time.Millisecond)
		if !event.Timestamp.Equal(want) || event.Timestamp.Location() != time.UTC {
			t.Errorf("expected UTC millisecond timestamp %v, got %v", want, event.Timestamp)
		}
		if len(store.Stored()) != 1 {
			t.Fatalf("expected 1 stored event, got %d", len(store.Stored()))
		}
		if store.Stored()[0].Timestamp != event.Timestamp {
			t.Error("stored timestamp differs from returned timestamp")
		}
		if len(sub.Received()) != 1 {
			t.Fatalf("expected 1 delivery, got %d", len(sub.Received()))
		}
	})

	t.Run("No broadcast when append fails", func(t *testing.T) {
		store := &mocks.MockEventStore{AppendErr: errors.New("store unreachable")}
		registry := NewRegistry(logger, nil)
		sub := newFakeChannel("sub")
		registry.Register(sub)
		relay := &recordingRelay{}
		d := NewDistributor(store, registry, logger, DistributorOptions{Relay: relay})

		_, err := d.Submit(context.Background(), sampleEvent())
		if !errors.Is(err, ErrSubmissionFailed) {
			t.Fatalf("expected ErrSubmissionFailed, got %v", err)
		}
		if len(sub.Received()) != 0 {
			t.Errorf("expected no delivery, got %d", len(sub.Received()))
		}
		if len(relay.events) != 0 {
			t.Errorf("expected nothing relayed, got %d", len(relay.events))
		}
	})

	t.Run("Empty id from store is a submission failure", func(t *testing.T) {
		registry := NewRegistry(logger, nil)
		sub := newFakeChannel("sub")
		registry.Register(sub)
		d := NewDistributor(emptyIDStore{}, registry, logger, DistributorOptions{})

		_, err := d.Submit(context.Background(), sampleEvent())
		if !errors.Is(err, domain.ErrEmptyID) {
			t.Fatalf("expected ErrEmptyID, got %v", err)
		}
		if len(sub.Received()) != 0 {
			t.Error("expected no delivery for an event without id")
		}
	})

	t.Run("Subscribers observe id and ISO-8601 timestamp", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		registry := NewRegistry(logger, nil)
		sub := newFakeChannel("sub")
		registry.Register(sub)
		d := NewDistributor(store, registry, logger, DistributorOptions{})

		if _, err := d.Submit(context.Background(), sampleEvent()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var wire map[string]any
		if err := json.Unmarshal(sub.Received()[0], &wire); err != nil {
			t.Fatalf("payload is not a JSON object: %v", err)
		}
		for _, field := range []string{"id", "type", "source_ip", "action_taken", "details", "timestamp"} {
			if _, ok := wire[field]; !ok {
				t.Errorf("expected field %q in payload", field)
			}
		}
		if id, _ := wire["id"].(string); id == "" {
			t.Error("expected non-empty id")
		}
		ts, _ := wire["timestamp"].(string)
		if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
			t.Errorf("timestamp %q is not ISO-8601: %v", ts, err)
		}
	})

	t.Run("Details are redacted before persistence", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		registry := NewRegistry(logger, nil)
		redactor := pii.NewRedactor([]string{"password"}, logger)
		d := NewDistributor(store, registry, logger, DistributorOptions{Redactor: redactor})

		raw := sampleEvent()
		raw.Details = map[string]any{"severity": "Low", "password": "hunter2"}
		event, err := d.Submit(context.Background(), raw)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if event.Details["password"] != pii.RedactedPlaceholder {
			t.Errorf("expected password to be redacted, got %v", event.Details["password"])
		}
		if store.Stored()[0].Details["password"] != pii.RedactedPlaceholder {
			t.Error("expected stored details to be redacted")
		}
		if raw.Details["password"] != "hunter2" {
			t.Error("expected caller's details to be left untouched")
		}
	})

	t.Run("Nil details become an empty map", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		d := NewDistributor(store, NewRegistry(logger, nil), logger, DistributorOptions{})

		raw := sampleEvent()
		raw.Details = nil
		event, err := d.Submit(context.Background(), raw)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if event.Details == nil {
			t.Error("expected non-nil details")
		}
	})

	t.Run("Relay failure does not fail the submission", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		relay := &recordingRelay{err: errors.New("nats down")}
		d := NewDistributor(store, NewRegistry(logger, nil), logger, DistributorOptions{Relay: relay})

		event, err := d.Submit(context.Background(), sampleEvent())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(relay.events) != 1 || relay.events[0].ID != event.ID {
			t.Error("expected the persisted event to be relayed")
		}
	})

	t.Run("Cancelled caller still gets a durable event broadcast", func(t *testing.T) {
		registry := NewRegistry(logger, nil)
		sub := newFakeChannel("sub")
		registry.Register(sub)
		ctx, cancel := context.WithCancel(context.Background())
		store := &cancelAfterAppendStore{cancel: cancel}
		d := NewDistributor(store, registry, logger, DistributorOptions{})

		if _, err := d.Submit(ctx, sampleEvent()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(sub.Received()) != 1 {
			t.Errorf("expected delivery despite cancelled caller, got %d", len(sub.Received()))
		}
	})
}

func TestDistributor_Broadcast(t *testing.T) {
	logger := discardLogger()
	event := domain.Event{ID: "evt-1", Type: "Brute Force Attack", Details: map[string]any{}, Timestamp: time.Now().UTC()}

	t.Run("Failing subscriber is isolated and pruned", func(t *testing.T) {
		registry := NewRegistry(logger, nil)
		const n = 5
		channels := make([]*fakeChannel, n)
		for i := range channels {
			channels[i] = newFakeChannel(fmt.Sprintf("sub-%d", i))
			registry.Register(channels[i])
		}
		channels[2].err = ErrChannelClosed

		d := NewDistributor(&mocks.MockEventStore{}, registry, logger, DistributorOptions{})
		report := d.Broadcast(context.Background(), event)

		if report.Delivered != n-1 || report.Failed != 1 {
			t.Errorf("expected %d delivered and 1 failed, got %+v", n-1, report)
		}
		for i, ch := range channels {
			got := len(ch.Received())
			if i == 2 && got != 0 {
				t.Errorf("failing subscriber received %d messages", got)
			}
			if i != 2 && got != 1 {
				t.Errorf("subscriber %d received %d messages, want 1", i, got)
			}
		}
		if registry.Len() != n-1 {
			t.Errorf("expected %d registered subscribers, got %d", n-1, registry.Len())
		}
		for _, ch := range registry.Snapshot() {
			if ch == Channel(channels[2]) {
				t.Error("failing subscriber is still registered")
			}
		}
	})

	t.Run("Hung subscriber cannot stall the broadcast", func(t *testing.T) {
		registry := NewRegistry(logger, nil)
		healthy := newFakeChannel("healthy")
		hung := newFakeChannel("hung")
		hung.hang = true
		defer close(hung.release)
		registry.Register(hung)
		registry.Register(healthy)

		d := NewDistributor(&mocks.MockEventStore{}, registry, logger, DistributorOptions{SendTimeout: 20 * time.Millisecond})

		start := time.Now()
		report := d.Broadcast(context.Background(), event)
		elapsed := time.Since(start)

		if elapsed > 2*time.Second {
			t.Errorf("broadcast took %s, expected it to be bounded", elapsed)
		}
		if report.Delivered != 1 || report.TimedOut != 1 {
			t.Errorf("expected 1 delivered and 1 timed out, got %+v", report)
		}
		if len(healthy.Received()) != 1 {
			t.Error("expected healthy subscriber to receive the event")
		}
		if registry.Len() != 1 {
			t.Errorf("expected hung subscriber to be pruned, %d remain", registry.Len())
		}
	})

	t.Run("Context deadline counts as timeout", func(t *testing.T) {
		registry := NewRegistry(logger, nil)
		slow := &ctxBoundChannel{id: "slow"}
		registry.Register(slow)
		d := NewDistributor(&mocks.MockEventStore{}, registry, logger, DistributorOptions{SendTimeout: 10 * time.Millisecond})

		report := d.Broadcast(context.Background(), event)
		if report.TimedOut != 1 {
			t.Errorf("expected 1 timeout, got %+v", report)
		}
		if registry.Len() != 0 {
			t.Error("expected slow subscriber to be pruned")
		}
	})

	t.Run("No subscribers", func(t *testing.T) {
		d := NewDistributor(&mocks.MockEventStore{}, NewRegistry(logger, nil), logger, DistributorOptions{})
		report := d.Broadcast(context.Background(), event)
		if report != (BroadcastReport{}) {
			t.Errorf("expected empty report, got %+v", report)
		}
	})

	t.Run("Metrics record outcomes", func(t *testing.T) {
		m := metrics.NewFeedMetrics(prometheus.NewRegistry())
		registry := NewRegistry(logger, m)
		ok := newFakeChannel("ok")
		bad := newFakeChannel("bad")
		bad.err = errors.New("broken pipe")
		registry.Register(ok)
		registry.Register(bad)

		d := NewDistributor(&mocks.MockEventStore{}, registry, logger, DistributorOptions{Metrics: m})
		d.Broadcast(context.Background(), event)

		if got := testutil.ToFloat64(m.Deliveries.WithLabelValues("delivered")); got != 1 {
			t.Errorf("expected 1 delivered, got %v", got)
		}
		if got := testutil.ToFloat64(m.Deliveries.WithLabelValues("failed")); got != 1 {
			t.Errorf("expected 1 failed, got %v", got)
		}
		if got := testutil.ToFloat64(m.Subscribers); got != 1 {
			t.Errorf("expected subscriber gauge 1, got %v", got)
		}
	})
}

func TestDistributor_ConcurrentSubmissions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &mocks.MockEventStore{}
	registry := NewRegistry(logger, nil)
	subs := []*fakeChannel{newFakeChannel("a"), newFakeChannel("b"), newFakeChannel("c")}
	for _, s := range subs {
		registry.Register(s)
	}
	d := NewDistributor(store, registry, logger, DistributorOptions{})

	const m = 50
	var wg sync.WaitGroup
	errs := make(chan error, m)
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Submit(context.Background(), sampleEvent())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected submission error: %v", err)
		}
	}

	stored := store.Stored()
	if len(stored) != m {
		t.Fatalf("expected %d persisted events, got %d", m, len(stored))
	}
	ids := make(map[string]struct{}, m)
	for _, e := range stored {
		ids[e.ID] = struct{}{}
	}
	if len(ids) != m {
		t.Errorf("expected %d distinct ids, got %d", m, len(ids))
	}

	for _, s := range subs {
		received := s.Received()
		if len(received) != m {
			t.Errorf("subscriber %s received %d messages, want %d", s.ID(), len(received), m)
		}
		seen := make(map[string]struct{}, m)
		for _, payload := range received {
			var e domain.Event
			if err := json.Unmarshal(payload, &e); err != nil {
				t.Fatalf("bad payload: %v", err)
			}
			seen[e.ID] = struct{}{}
		}
		if len(seen) != m {
			t.Errorf("subscriber %s saw %d distinct events, want %d", s.ID(), len(seen), m)
		}
	}
}

func TestDistributor_Recent(t *testing.T) {
	logger := discardLogger()
	store := &mocks.MockEventStore{}
	d := NewDistributor(store, NewRegistry(logger, nil), logger, DistributorOptions{})
	for i := 0; i < 5; i++ {
		if _, err := d.Submit(context.Background(), sampleEvent()); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	t.Run("Newest first with limit", func(t *testing.T) {
		events, err := d.Recent(context.Background(), 3)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}
		if events[0].ID != "evt-5" || events[2].ID != "evt-3" {
			t.Errorf("unexpected order: %s..%s", events[0].ID, events[2].ID)
		}
	})

	t.Run("Default limit", func(t *testing.T) {
		events, err := d.Recent(context.Background(), 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(events) != 5 {
			t.Errorf("expected all 5 events, got %d", len(events))
		}
	})

	t.Run("Store error", func(t *testing.T) {
		failing := &mocks.MockEventStore{RecentErr: errors.New("timeout")}
		d := NewDistributor(failing, NewRegistry(logger, nil), logger, DistributorOptions{})
		if _, err := d.Recent(context.Background(), 10); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})
}

type emptyIDStore struct{}

func (emptyIDStore) Append(ctx context.Context, event domain.Event) (string, error) { return "", nil }
func (emptyIDStore) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	return nil, nil
}

// cancelAfterAppendStore cancels the submitter's context right after persisting.
type cancelAfterAppendStore struct {
	mocks.MockEventStore
	cancel context.CancelFunc
}

func (s *cancelAfterAppendStore) Append(ctx context.Context, event domain.Event) (string, error) {
	id, err := s.MockEventStore.Append(ctx, event)
	s.cancel()
	return id, err
}

// ctxBoundChannel blocks until its context expires.
type ctxBoundChannel struct{ id string }

func (c *ctxBoundChannel) ID() string { return c.id }

func (c *ctxBoundChannel) Send(ctx context.Context, payload []byte) error {
	<-ctx.Done()
	return ctx.Err()
}
