package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common storage errors. Backends translate driver-specific failures into
// these so callers never branch on driver error types.
var (
	// ErrNotFound indicates the requested row does not exist
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate indicates a uniqueness constraint was violated
	ErrDuplicate = errors.New("storage: duplicate key")
)

// User is an application account. Exactly one live row exists per email;
// the unique index on email is the sole registration gate.
type User struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	HashedPassword string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
}

// Event is an immutable domain fact. EventID is caller-supplied and
// authoritative for deduplication: two submissions with the same id are the
// same event regardless of the other fields.
type Event struct {
	EventID    uuid.UUID              `json:"event_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	UserID     int64                  `json:"user_id"`
	EventType  string                 `json:"event_type"`
	Properties map[string]interface{} `json:"properties"`
}

// UserStore persists user accounts
type UserStore interface {
	// CreateUser inserts a new user; returns ErrDuplicate when the email is taken
	CreateUser(ctx context.Context, email, hashedPassword string) (*User, error)
	// GetUserByEmail returns ErrNotFound when no user has that email
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetUserByID returns ErrNotFound when the id does not exist
	GetUserByID(ctx context.Context, id int64) (*User, error)
	// UpdatePassword replaces the stored password hash
	UpdatePassword(ctx context.Context, id int64, hashedPassword string) error
	// TouchActivity sets last_activity_at to now
	TouchActivity(ctx context.Context, id int64) error
	// CountUsers returns the total number of registered users
	CountUsers(ctx context.Context) (int64, error)
}

// EventStore persists events with conflict-skip deduplication
type EventStore interface {
	// InsertBatch inserts the non-conflicting subset of events in one
	// statement and returns the ids actually inserted. Duplicate event ids
	// are silently skipped, never an error.
	InsertBatch(ctx context.Context, events []Event) ([]uuid.UUID, error)
	// CountEvents returns the total number of stored events
	CountEvents(ctx context.Context) (int64, error)
}

// Config for the storage backends
type Config struct {
	// PostgreSQL config
	PostgresURL         string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration
	PostgresMaxLifetime time.Duration
	PostgresMaxIdleTime time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Token cache config
	TokenCachePrefix string

	// S3 config (bulk import sources)
	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns:    20,
		PostgresMinConns:    2,
		PostgresTimeout:     10 * time.Second,
		PostgresMaxLifetime: 30 * time.Minute,
		PostgresMaxIdleTime: 5 * time.Minute,
		RedisURL:            "redis://localhost:6379/0",
		RedisDB:             -1,
		RedisMaxRetries:     3,
		RedisPoolSize:       10,
		TokenCachePrefix:    "pulse-tokens",
		S3Region:            "us-east-1",
	}
}
