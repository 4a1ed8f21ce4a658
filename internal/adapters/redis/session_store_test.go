package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/ports"
	"github.com/kaamsathi/kaamsathi-api/internal/testutil"
)

func workerSession(id string, ttl time.Duration) domainauth.Session {
	return domainauth.Session{
		ID:         id,
		UserID:     "0b8f6a2e-4c1d-4e0a-9a51-7d3c2b1a0f01",
		ExternalID: "idp|ravi",
		FirstName:  "Ravi",
		Email:      "ravi@example.com",
		Role:       domainauth.RoleWorker,
		ExpiresAt:  time.Now().Add(ttl),
	}
}

func TestSessionStore_SaveGetDelete(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	sess := workerSession("sess-1", 30*time.Minute)
	require.NoError(t, store.Save(ctx, sess))
	assert.Equal(t, int64(1), client.Exists(ctx, DefaultSessionPrefix+"sess-1").Val())

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, got.UserID)
	assert.Equal(t, sess.ExternalID, got.ExternalID)
	assert.Equal(t, domainauth.RoleWorker, got.Role)
	assert.WithinDuration(t, sess.ExpiresAt, got.ExpiresAt, time.Second)

	ttl := client.TTL(ctx, DefaultSessionPrefix+"sess-1").Val()
	assert.InDelta(t, (30 * time.Minute).Seconds(), ttl.Seconds(), 5)

	require.NoError(t, store.Delete(ctx, "sess-1"))
	_, err = store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
}

func TestSessionStore_Expiry(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewSessionStoreWithPrefix(client, "test-sessions:")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, workerSession("short", time.Minute)))

	// The stored expiry wins even while the key is still present.
	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err := store.Get(ctx, "short")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
	assert.Equal(t, int64(0), client.Exists(ctx, "test-sessions:short").Val())

	err = store.Save(ctx, workerSession("stale", -time.Hour))
	require.ErrorContains(t, err, "session is expired")
}

func TestSessionStore_InvalidInput(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.ErrorContains(t, store.Save(ctx, workerSession("", time.Minute)), "session ID cannot be empty")

	_, err := store.Get(ctx, "")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)

	require.NoError(t, store.Delete(ctx, ""))
}
