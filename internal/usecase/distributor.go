package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/alert-feed/internal/adapter/metrics"
	"github.com/V4T54L/alert-feed/internal/adapter/pii"
	"github.com/V4T54L/alert-feed/internal/domain"
)

const (
	// DefaultRecentLimit is used when Recent is called without a positive limit.
	DefaultRecentLimit = 100
	// MaxRecentLimit caps the number of events a single Recent call returns.
	MaxRecentLimit = 1000

	defaultSendTimeout  = 2 * time.Second
	defaultStoreTimeout = 5 * time.Second
	// collectGrace is how long past the send timeout a broadcast waits for a
	// channel that ignores its context before counting it as timed out.
	collectGrace = 250 * time.Millisecond
)

// ErrSubmissionFailed wraps any error that prevented an event from being persisted.
var ErrSubmissionFailed = errors.New("event submission failed")

// Relay mirrors persisted events to a downstream bus.
type Relay interface {
	Publish(ctx context.Context, event domain.Event, payload []byte) error
}

// DeliveryOutcome is the typed result of one per-channel send.
type DeliveryOutcome int

const (
	Delivered DeliveryOutcome = iota
	DeliveryFailed
	DeliveryTimedOut
)

func (o DeliveryOutcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case DeliveryFailed:
		return "failed"
	case DeliveryTimedOut:
		return "timeout"
	default:
		return "unknown"
	}
}

type deliveryResult struct {
	channel Channel
	outcome DeliveryOutcome
	err     error
}

// BroadcastReport summarises one broadcast.
type BroadcastReport struct {
	Attempted int
	Delivered int
	Failed    int
	TimedOut  int
}

// DistributorOptions tunes a Distributor. Zero values select defaults.
type DistributorOptions struct {
	SendTimeout  time.Duration
	StoreTimeout time.Duration
	Redactor     *pii.Redactor
	Relay        Relay
	Metrics      *metrics.FeedMetrics
	// Now overrides the ingestion clock in tests.
	Now func() time.Time
}

// Distributor turns raw submissions into persisted events and fans them out
// to every live subscriber.
type Distributor struct {
	store        domain.EventStore
	registry     *Registry
	logger       *slog.Logger
	redactor     *pii.Redactor
	relay        Relay
	metrics      *metrics.FeedMetrics
	sendTimeout  time.Duration
	storeTimeout time.Duration
	now          func() time.Time
}

// NewDistributor creates a new Distributor.
func NewDistributor(store domain.EventStore, registry *Registry, logger *slog.Logger, opts DistributorOptions) *Distributor {
	d := &Distributor{
		store:        store,
		registry:     registry,
		logger:       logger.With("component", "distributor"),
		redactor:     opts.Redactor,
		relay:        opts.Relay,
		metrics:      opts.Metrics,
		sendTimeout:  opts.SendTimeout,
		storeTimeout: opts.StoreTimeout,
		now:          opts.Now,
	}
	if d.sendTimeout <= 0 {
		d.sendTimeout = defaultSendTimeout
	}
	if d.storeTimeout <= 0 {
		d.storeTimeout = defaultStoreTimeout
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Submit stamps, persists and broadcasts a raw event, returning the persisted copy.
// Nothing is broadcast unless the store append succeeded.
func (d *Distributor) Submit(ctx context.Context, raw domain.NewEvent) (domain.Event, error) {
	// 1. Enrich with server-side data
	event := domain.Event{
		Type:        raw.Type,
		SourceIP:    raw.SourceIP,
		ActionTaken: raw.ActionTaken,
		Details:     domain.CloneDetails(raw.Details),
		Timestamp:   d.now().UTC().Truncate(time.Millisecond),
	}

	// 2. Redact sensitive details
	if details, redacted := d.redactor.Redact(event.Details); redacted {
		event.Details = details
	}

	// 3. Persist
	id, err := d.append(ctx, event)
	if err != nil {
		d.countSubmission("store_error")
		d.logger.Error("failed to persist event", "error", err, "type", event.Type)
		return domain.Event{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	event.ID = id
	d.countSubmission("accepted")

	// 4. Fan out. A caller that gives up after the append must not stop delivery
	// of an event that is already durable.
	bctx := context.WithoutCancel(ctx)
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("failed to encode persisted event, not broadcasting", "error", err, "event_id", event.ID)
		return event, nil
	}
	d.broadcastPayload(bctx, event.ID, payload)
	d.mirror(bctx, event, payload)

	return event, nil
}

// Broadcast delivers event to every channel in the current registry snapshot.
func (d *Distributor) Broadcast(ctx context.Context, event domain.Event) BroadcastReport {
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("failed to encode event for broadcast", "error", err, "event_id", event.ID)
		return BroadcastReport{}
	}
	return d.broadcastPayload(ctx, event.ID, payload)
}

// Recent returns the newest persisted events. limit <= 0 selects the default
// and values above MaxRecentLimit are clamped.
func (d *Distributor) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	ctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()

	events, err := d.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	for i := range events {
		if events[i].Details == nil {
			events[i].Details = map[string]any{}
		}
	}
	return events, nil
}

func (d *Distributor) append(ctx context.Context, event domain.Event) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()

	start := time.Now()
	id, err := d.store.Append(ctx, event)
	if d.metrics != nil {
		d.metrics.StoreAppendDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", domain.ErrEmptyID
	}
	return id, nil
}

// broadcastPayload sends to every snapshot member concurrently. Each send is
// bounded by sendTimeout; the collector stops waiting shortly after that, so
// one dead subscriber cannot hold up the rest.
func (d *Distributor) broadcastPayload(ctx context.Context, eventID string, payload []byte) BroadcastReport {
	channels := d.registry.Snapshot()
	report := BroadcastReport{Attempted: len(channels)}
	if len(channels) == 0 {
		return report
	}

	results := make(chan deliveryResult, len(channels))
	for _, ch := range channels {
		go func(ch Channel) {
			sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
			defer cancel()
			results <- d.deliver(sendCtx, ch, payload)
		}(ch)
	}

	pending := make(map[Channel]struct{}, len(channels))
	for _, ch := range channels {
		pending[ch] = struct{}{}
	}

	deadline := time.NewTimer(d.sendTimeout + collectGrace)
	defer deadline.Stop()

collect:
	for len(pending) > 0 {
		select {
		case res := <-results:
			delete(pending, res.channel)
			d.settle(eventID, res, &report)
		case <-deadline.C:
			break collect
		}
	}

	for ch := range pending {
		d.settle(eventID, deliveryResult{
			channel: ch,
			outcome: DeliveryTimedOut,
			err:     fmt.Errorf("%w: no result within %s", ErrBackpressure, d.sendTimeout),
		}, &report)
	}

	d.logger.Debug("broadcast complete",
		"event_id", eventID,
		"attempted", report.Attempted,
		"delivered", report.Delivered,
		"failed", report.Failed,
		"timed_out", report.TimedOut,
	)
	return report
}

func (d *Distributor) deliver(ctx context.Context, ch Channel, payload []byte) deliveryResult {
	err := ch.Send(ctx, payload)
	switch {
	case err == nil:
		return deliveryResult{channel: ch, outcome: Delivered}
	case errors.Is(err, context.DeadlineExceeded):
		return deliveryResult{channel: ch, outcome: DeliveryTimedOut, err: err}
	default:
		return deliveryResult{channel: ch, outcome: DeliveryFailed, err: err}
	}
}

func (d *Distributor) settle(eventID string, res deliveryResult, report *BroadcastReport) {
	if d.metrics != nil {
		d.metrics.Deliveries.WithLabelValues(res.outcome.String()).Inc()
	}
	switch res.outcome {
	case Delivered:
		report.Delivered++
		return
	case DeliveryTimedOut:
		report.TimedOut++
	default:
		report.Failed++
	}

	d.logger.Warn("dropping subscriber after failed delivery",
		"subscriber_id", res.channel.ID(),
		"event_id", eventID,
		"outcome", res.outcome.String(),
		"error", res.err,
	)
	d.registry.Unregister(res.channel)
}

func (d *Distributor) mirror(ctx context.Context, event domain.Event, payload []byte) {
	if d.relay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	status := "published"
	if err := d.relay.Publish(ctx, event, payload); err != nil {
		status = "error"
		d.logger.Warn("failed to relay event", "error", err, "event_id", event.ID)
	}
	if d.metrics != nil {
		d.metrics.RelayPublished.WithLabelValues(status).Inc()
	}
}

func (d *Distributor) countSubmission(status string) {
	if d.metrics != nil {
		d.metrics.EventsSubmitted.WithLabelValues(status).Inc()
	}
}
