package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/pulse/pkg/storage"
)

func newMockEventStore(t *testing.T) (*EventStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewEventStore(db), mock
}

func testEvent(id uuid.UUID) storage.Event {
	return storage.Event{
		EventID:    id,
		OccurredAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		UserID:     7,
		EventType:  "page_view",
		Properties: map[string]interface{}{"path": "/"},
	}
}

func TestInsertBatchReturnsInsertedIDs(t *testing.T) {
	store, mock := newMockEventStore(t)
	idOne := uuid.New()
	idTwo := uuid.New()

	// Only the first id comes back from RETURNING: the second conflicted.
	mock.ExpectQuery(`INSERT INTO events .* ON CONFLICT \(event_id\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow(idOne))

	inserted, err := store.InsertBatch(context.Background(), []storage.Event{
		testEvent(idOne),
		testEvent(idTwo),
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{idOne}, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchEmpty(t *testing.T) {
	store, _ := newMockEventStore(t)

	inserted, err := store.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, inserted)
}

func TestInsertBatchPlaceholders(t *testing.T) {
	store, mock := newMockEventStore(t)
	id := uuid.New()

	mock.ExpectQuery(`VALUES \(\$1, \$2, \$3, \$4, \$5\)`).
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow(id))

	inserted, err := store.InsertBatch(context.Background(), []storage.Event{testEvent(id)})
	require.NoError(t, err)
	assert.Len(t, inserted, 1)
}

func TestCountEvents(t *testing.T) {
	store, mock := newMockEventStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))

	count, err := store.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(41), count)
}
