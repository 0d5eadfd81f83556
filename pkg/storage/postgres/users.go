package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/platinummonkey/pulse/pkg/storage"
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures
const uniqueViolation = "23505"

// UserStore implements storage.UserStore on PostgreSQL
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store backed by the given connection pool
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// CreateUser inserts a new user row. A unique violation on email, whether
// from a pre-check race or a direct duplicate, is reported as
// storage.ErrDuplicate rather than a raw driver error.
func (s *UserStore) CreateUser(ctx context.Context, email, hashedPassword string) (*storage.User, error) {
	user := &storage.User{Email: email, HashedPassword: hashedPassword}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, hashed_password, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, email, hashedPassword).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, storage.ErrDuplicate
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// GetUserByEmail fetches a user by exact email match
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, hashed_password, created_at, updated_at, last_activity_at
		FROM users WHERE email = $1
	`, email))
}

// GetUserByID fetches a user by primary key
func (s *UserStore) GetUserByID(ctx context.Context, id int64) (*storage.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, hashed_password, created_at, updated_at, last_activity_at
		FROM users WHERE id = $1
	`, id))
}

func (s *UserStore) scanUser(row *sql.Row) (*storage.User, error) {
	user := &storage.User{}
	var lastActivity sql.NullTime
	err := row.Scan(&user.ID, &user.Email, &user.HashedPassword,
		&user.CreatedAt, &user.UpdatedAt, &lastActivity)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if lastActivity.Valid {
		user.LastActivityAt = &lastActivity.Time
	}
	return user, nil
}

// UpdatePassword replaces the stored password hash
func (s *UserStore) UpdatePassword(ctx context.Context, id int64, hashedPassword string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET hashed_password = $1, updated_at = NOW()
		WHERE id = $2
	`, hashedPassword, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// TouchActivity records that the user was active just now
func (s *UserStore) TouchActivity(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_activity_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to touch activity: %w", err)
	}
	return nil
}

// CountUsers returns the total number of registered users
func (s *UserStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
