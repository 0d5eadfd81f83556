package tokencache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Payload is the opaque value stored alongside a token id. At minimum it
// carries the subject the token was issued to.
type Payload struct {
	Sub int64 `json:"sub"`
}

// Cache maps token identifiers (jti) to payload and revocation state.
//
// Key families, all under a fixed prefix:
//
//	access:{jti}        token payload, expires with the token
//	refresh:{jti}       token payload, expires with the token
//	revoked:{jti}       revocation marker, mirrors the remaining token TTL
//	user_sessions:{id}  set of active refresh jtis for a user (no TTL; stale
//	                    members are tolerated and cleaned during revoke-all)
type Cache struct {
	client *redis.Client
	prefix string
}

// New creates a token cache over the given Redis client
func New(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) keyAccess(jti string) string {
	return fmt.Sprintf("%s:access:%s", c.prefix, jti)
}

func (c *Cache) keyRefresh(jti string) string {
	return fmt.Sprintf("%s:refresh:%s", c.prefix, jti)
}

func (c *Cache) keyRevoked(jti string) string {
	return fmt.Sprintf("%s:revoked:%s", c.prefix, jti)
}

func (c *Cache) keyUserSessions(userID int64) string {
	return fmt.Sprintf("%s:user_sessions:%d", c.prefix, userID)
}

// ttlUntil converts an absolute expiry to a remaining TTL, clamped at zero
func ttlUntil(exp time.Time) time.Duration {
	ttl := time.Until(exp)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// RegisterRefresh stores a refresh token payload until its expiry and links
// the jti to the user's session set. An already-expired token is never
// stored.
func (c *Cache) RegisterRefresh(ctx context.Context, userID int64, jti string, payload Payload, exp time.Time) error {
	ttl := ttlUntil(exp)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := c.client.Set(ctx, c.keyRefresh(jti), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	if err := c.client.SAdd(ctx, c.keyUserSessions(userID), jti).Err(); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

// TTLOfRefresh returns the remaining lifetime of a refresh token, zero when
// the token is absent or already expired.
func (c *Cache) TTLOfRefresh(ctx context.Context, jti string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, c.keyRefresh(jti)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read refresh TTL: %w", err)
	}
	if ttl < 0 {
		// -2 key missing, -1 no expiry; neither counts as live here
		return 0, nil
	}
	return ttl, nil
}

// RevokeRefresh marks a live refresh token as revoked and deletes it.
// The revocation marker inherits the token's remaining TTL so it can never
// outlive what it guards. Returns false when there was nothing to revoke.
func (c *Cache) RevokeRefresh(ctx context.Context, jti string) (bool, error) {
	ttl, err := c.TTLOfRefresh(ctx, jti)
	if err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, nil
	}
	if err := c.client.Set(ctx, c.keyRevoked(jti), "1", ttl).Err(); err != nil {
		return false, fmt.Errorf("failed to set revocation marker: %w", err)
	}
	if err := c.client.Del(ctx, c.keyRefresh(jti)).Err(); err != nil {
		return false, fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return true, nil
}

// RevokeAllUserRefresh revokes every refresh token in the user's session set
// and returns how many were actually revoked. Members are removed from the
// set regardless of revoke outcome, which self-heals stale entries left by
// natural expiry.
func (c *Cache) RevokeAllUserRefresh(ctx context.Context, userID int64) (int, error) {
	key := c.keyUserSessions(userID)
	jtis, err := c.client.SMembers(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	revoked := 0
	for _, jti := range jtis {
		ok, err := c.RevokeRefresh(ctx, jti)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked++
		}
		if err := c.client.SRem(ctx, key, jti).Err(); err != nil {
			return revoked, fmt.Errorf("failed to remove session member: %w", err)
		}
	}
	return revoked, nil
}

// StoreAccess stores an access token payload until its expiry
func (c *Cache) StoreAccess(ctx context.Context, jti string, payload Payload, exp time.Time) error {
	return c.store(ctx, c.keyAccess(jti), payload, exp)
}

// StoreRefresh stores a refresh token payload until its expiry without
// touching the session index
func (c *Cache) StoreRefresh(ctx context.Context, jti string, payload Payload, exp time.Time) error {
	return c.store(ctx, c.keyRefresh(jti), payload, exp)
}

func (c *Cache) store(ctx context.Context, key string, payload Payload, exp time.Time) error {
	ttl := ttlUntil(exp)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// GetAccess returns the stored access payload, or nil on a miss
func (c *Cache) GetAccess(ctx context.Context, jti string) (*Payload, error) {
	return c.get(ctx, c.keyAccess(jti))
}

// GetRefresh returns the stored refresh payload, or nil on a miss
func (c *Cache) GetRefresh(ctx context.Context, jti string) (*Payload, error) {
	return c.get(ctx, c.keyRefresh(jti))
}

func (c *Cache) get(ctx context.Context, key string) (*Payload, error) {
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	var payload Payload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &payload, nil
}

// Revoke writes a stand-alone revocation marker from decoded claims. Used
// when the cache entry may already be gone but the expiry is known from the
// token itself; the marker still mirrors the remaining lifetime.
func (c *Cache) Revoke(ctx context.Context, jti string, exp time.Time) error {
	ttl := ttlUntil(exp)
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.keyRevoked(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to set revocation marker: %w", err)
	}
	return nil
}

// IsRevoked reports whether a revocation marker exists for the jti
func (c *Cache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.client.Exists(ctx, c.keyRevoked(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// DeleteAccess removes an access token entry
func (c *Cache) DeleteAccess(ctx context.Context, jti string) error {
	if err := c.client.Del(ctx, c.keyAccess(jti)).Err(); err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}
	return nil
}

// DeleteRefresh removes a refresh token entry
func (c *Cache) DeleteRefresh(ctx context.Context, jti string) error {
	if err := c.client.Del(ctx, c.keyRefresh(jti)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

// SessionCount returns the size of the user's session set, stale members
// included. Exposed for metrics.
func (c *Cache) SessionCount(ctx context.Context, userID int64) (int64, error) {
	n, err := c.client.SCard(ctx, c.keyUserSessions(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}
