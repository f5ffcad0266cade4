package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/V4T54L/alert-feed/internal/domain"
)

const DefaultTableName = "alert_events"

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// ErrSchemaMissing is returned when the events table has not been created.
var ErrSchemaMissing = errors.New("events table does not exist")

// EventRepository implements domain.EventStore for PostgreSQL.
type EventRepository struct {
	db     *sql.DB
	table  string // quoted identifier
	logger *slog.Logger
}

// NewEventRepository creates a new PostgreSQL event repository writing to table.
func NewEventRepository(db *sql.DB, table string, logger *slog.Logger) *EventRepository {
	if table == "" {
		table = DefaultTableName
	}
	return &EventRepository{
		db:     db,
		table:  pq.QuoteIdentifier(table),
		logger: logger.With("component", "postgres_repository"),
	}
}

// EnsureSchema creates the events table and its timestamp index if missing.
func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + r.table + ` (
			id           UUID PRIMARY KEY,
			type         TEXT NOT NULL,
			source_ip    TEXT NOT NULL,
			action_taken TEXT NOT NULL,
			details      JSONB NOT NULL DEFAULT '{}'::jsonb,
			timestamp    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier(indexName(r.table)) + ` ON ` + r.table + ` (timestamp DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Append inserts a single event and returns its newly assigned UUID.
func (r *EventRepository) Append(ctx context.Context, event domain.Event) (string, error) {
	details, err := json.Marshal(domain.CloneDetails(event.Details))
	if err != nil {
		return "", fmt.Errorf("marshal details: %w", err)
	}

	id := uuid.New()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO `+r.table+` (id, type, source_ip, action_taken, details, timestamp) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, event.Type, event.SourceIP, event.ActionTaken, details, event.Timestamp,
	)
	if err != nil {
		return "", fmt.Errorf("insert event: %w", classify(err))
	}
	return id.String(), nil
}

// Recent retrieves the newest events ordered by timestamp descending.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, source_ip, action_taken, details, timestamp FROM `+r.table+` ORDER BY timestamp DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", classify(err))
	}
	defer rows.Close()

	events := make([]domain.Event, 0, limit)
	for rows.Next() {
		var (
			event   domain.Event
			details []byte
			ts      time.Time
		)
		if err := rows.Scan(&event.ID, &event.Type, &event.SourceIP, &event.ActionTaken, &details, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Details = map[string]any{}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("decode details for %s: %w", event.ID, err)
			}
		}
		event.Timestamp = ts.UTC()
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Ping verifies the database is reachable.
func (r *EventRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("%w: %w", ErrSchemaMissing, err)
	}
	return err
}

func indexName(quotedTable string) string {
	// strip the quotes pq.QuoteIdentifier added
	name := quotedTable
	if len(name) >= 2 && name[0] == '"' && name[len(name)-1] == '"' {
		name = name[1 : len(name)-1]
	}
	return name + "_timestamp_idx"
}
