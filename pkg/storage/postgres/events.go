package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/pulse/pkg/storage"
)

// EventStore implements storage.EventStore on PostgreSQL
type EventStore struct {
	db *sql.DB
}

// NewEventStore creates an event store backed by the given connection pool
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// InsertBatch inserts the given events in a single statement, skipping rows
// whose event_id already exists. The skip is part of the statement itself so
// concurrent identical batches never double-insert. Returns the event ids
// that were actually written.
func (s *EventStore) InsertBatch(ctx context.Context, events []storage.Event) ([]uuid.UUID, error) {
	if len(events) == 0 {
		return nil, nil
	}

	placeholders := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*5)
	for i, ev := range events {
		props, err := json.Marshal(ev.Properties)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal properties for event %s: %w", ev.EventID, err)
		}
		base := i * 5
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5))
		args = append(args, ev.EventID, ev.OccurredAt, ev.UserID, ev.EventType, props)
	}

	query := fmt.Sprintf(`
		INSERT INTO events (event_id, occurred_at, user_id, event_type, properties)
		VALUES %s
		ON CONFLICT (event_id) DO NOTHING
		RETURNING event_id
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert events: %w", err)
	}
	defer rows.Close()

	inserted := make([]uuid.UUID, 0, len(events))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan inserted event id: %w", err)
		}
		inserted = append(inserted, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read inserted event ids: %w", err)
	}

	return inserted, nil
}

// CountEvents returns the total number of stored events
func (s *EventStore) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}
