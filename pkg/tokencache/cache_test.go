package tokencache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "test-tokens"), mr
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, cache.StoreAccess(ctx, "jti-a", Payload{Sub: 42}, exp))
	require.NoError(t, cache.StoreRefresh(ctx, "jti-r", Payload{Sub: 42}, exp))

	payload, err := cache.GetAccess(ctx, "jti-a")
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, int64(42), payload.Sub)

	payload, err = cache.GetRefresh(ctx, "jti-r")
	require.NoError(t, err)
	require.NotNil(t, payload)

	// Access and refresh namespaces do not overlap.
	payload, err = cache.GetAccess(ctx, "jti-r")
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestGetMissReturnsNil(t *testing.T) {
	cache, _ := newTestCache(t)

	payload, err := cache.GetRefresh(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestExpiredTokenIsNeverStored(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.StoreAccess(ctx, "stale", Payload{Sub: 1}, time.Now().Add(-time.Minute)))

	payload, err := cache.GetAccess(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestTokenExpiresWithTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.StoreAccess(ctx, "short", Payload{Sub: 1}, time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	payload, err := cache.GetAccess(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestRegisterRefreshIndexesSession(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, cache.RegisterRefresh(ctx, 42, "jti-1", Payload{Sub: 42}, exp))
	require.NoError(t, cache.RegisterRefresh(ctx, 42, "jti-2", Payload{Sub: 42}, exp))

	sessions, err := cache.SessionCount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sessions)
}

func TestRevokeRefreshMirrorsTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.RegisterRefresh(ctx, 42, "jti-1", Payload{Sub: 42}, time.Now().Add(time.Hour)))

	ok, err := cache.RevokeRefresh(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	revoked, err := cache.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// The token entry itself is gone.
	payload, err := cache.GetRefresh(ctx, "jti-1")
	require.NoError(t, err)
	assert.Nil(t, payload)

	// The marker dies with what it guards.
	mr.FastForward(2 * time.Hour)
	revoked, err = cache.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevokeRefreshAbsentToken(t *testing.T) {
	cache, _ := newTestCache(t)

	ok, err := cache.RevokeRefresh(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeFromClaims(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	// No cache entry exists; the expiry comes from the decoded token.
	require.NoError(t, cache.Revoke(ctx, "jti-x", time.Now().Add(time.Hour)))

	revoked, err := cache.IsRevoked(ctx, "jti-x")
	require.NoError(t, err)
	assert.True(t, revoked)

	// An already-expired token needs no marker.
	require.NoError(t, cache.Revoke(ctx, "jti-old", time.Now().Add(-time.Minute)))
	revoked, err = cache.IsRevoked(ctx, "jti-old")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevokeAllUserRefresh(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, cache.RegisterRefresh(ctx, 42, "jti-1", Payload{Sub: 42}, exp))
	require.NoError(t, cache.RegisterRefresh(ctx, 42, "jti-2", Payload{Sub: 42}, exp))
	require.NoError(t, cache.RegisterRefresh(ctx, 42, "jti-3", Payload{Sub: 42}, exp))
	require.NoError(t, cache.RegisterRefresh(ctx, 7, "jti-other", Payload{Sub: 7}, exp))

	// One session lapses naturally before the sweep.
	mr.Del("test-tokens:refresh:jti-2")

	revoked, err := cache.RevokeAllUserRefresh(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, revoked)

	// The set self-heals: every member is cleared, live or stale.
	sessions, err := cache.SessionCount(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, sessions)

	// Other users are untouched.
	payload, err := cache.GetRefresh(ctx, "jti-other")
	require.NoError(t, err)
	assert.NotNil(t, payload)
}

func TestDeleteTokens(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, cache.StoreAccess(ctx, "jti-a", Payload{Sub: 1}, exp))
	require.NoError(t, cache.StoreRefresh(ctx, "jti-r", Payload{Sub: 1}, exp))

	require.NoError(t, cache.DeleteAccess(ctx, "jti-a"))
	require.NoError(t, cache.DeleteRefresh(ctx, "jti-r"))

	payload, err := cache.GetAccess(ctx, "jti-a")
	require.NoError(t, err)
	assert.Nil(t, payload)
	payload, err = cache.GetRefresh(ctx, "jti-r")
	require.NoError(t, err)
	assert.Nil(t, payload)

	// Deleting absent keys is not an error.
	assert.NoError(t, cache.DeleteRefresh(ctx, "absent"))
}

func TestTTLOfRefresh(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.RegisterRefresh(ctx, 42, "jti-1", Payload{Sub: 42}, time.Now().Add(time.Hour)))

	ttl, err := cache.TTLOfRefresh(ctx, "jti-1")
	require.NoError(t, err)
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)

	ttl, err = cache.TTLOfRefresh(ctx, "absent")
	require.NoError(t, err)
	assert.Zero(t, ttl)
}
