package domain

import "context"

// EventStore defines the persistence contract for alerts.
// This abstracts away the specific backends (MongoDB, PostgreSQL, Redis Streams, local segments).
type EventStore interface {
	// Append durably stores the event and returns the identifier assigned to it.
	// The ID field of the argument is ignored.
	Append(ctx context.Context, event Event) (string, error)

	// Recent returns up to limit persisted events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Pinger is implemented by stores that can report their own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
