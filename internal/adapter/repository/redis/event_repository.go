package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/alert-feed/internal/domain"
)

const (
	DefaultStreamKey = "alert_events"
	payloadField     = "payload"
)

// ErrRedisNotAvailable is returned when the initial connectivity check fails.
var ErrRedisNotAvailable = errors.New("redis is not available")

// EventRepository implements domain.EventStore on a Redis Stream. The stream
// entry ID doubles as the event ID.
type EventRepository struct {
	client    *redis.Client
	logger    *slog.Logger
	streamKey string
	maxLen    int64
}

// NewEventRepository creates a new Redis-backed EventRepository.
// maxLen caps the stream approximately; 0 keeps every entry.
func NewEventRepository(ctx context.Context, client *redis.Client, logger *slog.Logger, streamKey string, maxLen int64) (*EventRepository, error) {
	if streamKey == "" {
		streamKey = DefaultStreamKey
	}
	repo := &EventRepository{
		client:    client,
		logger:    logger.With("component", "redis_repository"),
		streamKey: streamKey,
		maxLen:    maxLen,
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return repo, fmt.Errorf("%w: %w", ErrRedisNotAvailable, err)
	}
	return repo, nil
}

// Append XADDs the event; the ID stamped in the payload is left empty because
// Redis assigns it.
func (r *EventRepository) Append(ctx context.Context, event domain.Event) (string, error) {
	event.ID = ""
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.streamKey,
		Values: map[string]interface{}{payloadField: payload},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	id, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to XADD to redis stream: %w", err)
	}
	return id, nil
}

// Recent reads the newest entries with XREVRANGE.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	messages, err := r.client.XRevRangeN(ctx, r.streamKey, "+", "-", int64(limit)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []domain.Event{}, nil
		}
		return nil, fmt.Errorf("failed to XREVRANGE redis stream: %w", err)
	}

	events := make([]domain.Event, 0, len(messages))
	for _, msg := range messages {
		payload, ok := msg.Values[payloadField].(string)
		if !ok {
			r.logger.Warn("Invalid message format in stream, skipping", "message_id", msg.ID)
			continue
		}

		var event domain.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			r.logger.Warn("Failed to unmarshal event from stream, skipping", "message_id", msg.ID, "error", err)
			continue
		}
		event.ID = msg.ID
		event.Timestamp = event.Timestamp.UTC()
		if event.Details == nil {
			event.Details = map[string]any{}
		}
		events = append(events, event)
	}

	return events, nil
}

// Ping checks the Redis connection.
func (r *EventRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
