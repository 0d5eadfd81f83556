//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/pulse/pkg/storage"
)

// setupTestDB starts a PostgreSQL container and applies the schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("pulse_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "001_init.sql"))
	require.NoError(t, err, "Failed to read schema")
	_, err = db.Exec(string(schema))
	require.NoError(t, err, "Failed to apply schema")

	return db
}

func TestEventStoreConflictSkip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	users := NewUserStore(db)
	events := NewEventStore(db)

	user, err := users.CreateUser(ctx, "events@example.com", "hashed")
	require.NoError(t, err)

	first := uuid.New()
	second := uuid.New()
	batch := []storage.Event{
		{EventID: first, OccurredAt: time.Now().UTC(), UserID: user.ID, EventType: "page_view", Properties: map[string]interface{}{"path": "/"}},
		{EventID: second, OccurredAt: time.Now().UTC(), UserID: user.ID, EventType: "click", Properties: map[string]interface{}{}},
	}

	inserted, err := events.InsertBatch(ctx, batch)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{first, second}, inserted)

	// Replaying the same batch plus one new event inserts only the new one.
	third := uuid.New()
	batch = append(batch, storage.Event{
		EventID: third, OccurredAt: time.Now().UTC(), UserID: user.ID, EventType: "signup", Properties: map[string]interface{}{},
	})
	inserted, err = events.InsertBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{third}, inserted)

	count, err := events.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestUserStoreLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	users := NewUserStore(db)

	user, err := users.CreateUser(ctx, "lifecycle@example.com", "hash-one")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)

	_, err = users.CreateUser(ctx, "lifecycle@example.com", "hash-two")
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	fetched, err := users.GetUserByEmail(ctx, "lifecycle@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, fetched.ID)
	assert.Nil(t, fetched.LastActivityAt)

	require.NoError(t, users.UpdatePassword(ctx, user.ID, "hash-three"))
	fetched, err = users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-three", fetched.HashedPassword)

	require.NoError(t, users.TouchActivity(ctx, user.ID))
	fetched, err = users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, fetched.LastActivityAt)

	count, err := users.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
