package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/V4T54L/alert-feed/internal/domain"
)

// eventDocument is the stored shape of an alert. The timestamp is kept as a
// native BSON date.
type eventDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Type        string             `bson:"type"`
	SourceIP    string             `bson:"source_ip"`
	ActionTaken string             `bson:"action_taken"`
	Details     bson.M             `bson:"details"`
	Timestamp   time.Time          `bson:"timestamp"`
}

// EventRepository implements domain.EventStore on a MongoDB collection.
type EventRepository struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// NewEventRepository creates a MongoDB-backed event repository.
func NewEventRepository(coll *mongo.Collection, logger *slog.Logger) *EventRepository {
	return &EventRepository{
		coll:   coll,
		logger: logger.With("component", "mongo_repository"),
	}
}

// EnsureIndexes creates the descending timestamp index used by Recent.
func (r *EventRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create timestamp index: %w", err)
	}
	return nil
}

// Append inserts the event and returns the hex form of its ObjectID.
func (r *EventRepository) Append(ctx context.Context, event domain.Event) (string, error) {
	doc := eventDocument{
		ID:          primitive.NewObjectID(),
		Type:        event.Type,
		SourceIP:    event.SourceIP,
		ActionTaken: event.ActionTaken,
		Details:     bson.M(domain.CloneDetails(event.Details)),
		Timestamp:   event.Timestamp,
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// Recent returns up to limit events sorted by timestamp, newest first.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	findOptions := options.Find()
	findOptions.SetSort(bson.D{{Key: "timestamp", Value: -1}})
	findOptions.SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	events := make([]domain.Event, 0, limit)
	for cursor.Next(ctx) {
		var doc eventDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return events, nil
}

// Ping checks connectivity to the primary.
func (r *EventRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, nil)
}

func (d eventDocument) toDomain() domain.Event {
	details := make(map[string]any, len(d.Details))
	for k, v := range d.Details {
		details[k] = v
	}
	return domain.Event{
		ID:          d.ID.Hex(),
		Type:        d.Type,
		SourceIP:    d.SourceIP,
		ActionTaken: d.ActionTaken,
		Details:     details,
		Timestamp:   d.Timestamp.UTC(),
	}
}
