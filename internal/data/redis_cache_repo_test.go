package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/testutil"
)

func TestRedisCacheRepo_Set_Get_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	repo := NewRedisCacheRepo(client)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		key := core.UnreadCountKey("user-1")
		ttl := 5 * time.Minute

		require.NoError(t, repo.Set(ctx, key, []byte("3"), ttl))

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("3"), result)

		// keys are stored under the prefix
		actualTTL := client.TTL(ctx, DefaultCachePrefix+key).Val()
		assert.True(t, actualTTL > 0 && actualTTL <= ttl)
	})

	t.Run("get non-existent key", func(t *testing.T) {
		result, err := repo.Get(ctx, "non:existent:key")
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("delete existing key", func(t *testing.T) {
		key := core.JobKey("job-1")
		require.NoError(t, repo.Set(ctx, key, []byte(`{"id":"job-1"}`), time.Minute))

		deleted, err := repo.Delete(ctx, key)
		require.NoError(t, err)
		assert.True(t, deleted)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("delete non-existent key", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, "non:existent:key")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("empty key", func(t *testing.T) {
		require.Error(t, repo.Set(ctx, "", []byte("x"), time.Minute))
		_, err := repo.Get(ctx, "")
		require.Error(t, err)
		_, err = repo.Delete(ctx, "")
		require.Error(t, err)
	})
}

func TestRedisCacheRepo_SetIfNotExists(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	repo := NewRedisCacheRepoWithPrefix(client, "test:")
	ctx := context.Background()
	key := core.JobViewKey("job-1", "viewer-1")

	set, err := repo.SetIfNotExists(ctx, key, []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, set)

	set, err = repo.SetIfNotExists(ctx, key, []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.False(t, set)

	set, err = repo.SetIfNotExists(ctx, "zero-ttl", []byte("1"), 0)
	require.NoError(t, err)
	assert.True(t, set)
	assert.Positive(t, client.TTL(ctx, "test:zero-ttl").Val())
}

func TestRedisCacheRepo_Health(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	repo := NewRedisCacheRepo(testutil.SetupTestRedis(t))
	require.NoError(t, repo.Health(context.Background()))
}

func TestRedisCacheRepo_ScanAndPurge(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	repo := NewRedisCacheRepoWithPrefix(client, "scan:")
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, core.JobKey("j1"), []byte("{}"), time.Minute))
	require.NoError(t, repo.Set(ctx, core.JobKey("j2"), []byte("{}"), 0))
	_, err := repo.SetIfNotExists(ctx, core.JobViewKey("j1", "v1"), []byte("1"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.Set(ctx, core.UnreadCountKey("u1"), []byte("2"), time.Minute))

	seen := map[string]time.Duration{}
	n, err := repo.Scan(ctx, "jobs:*", func(k CachedKey) error {
		seen[k.Key] = k.TTL
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, seen, "jobs:j1")
	assert.Contains(t, seen, "jobs:viewed:j1:v1")
	assert.Equal(t, time.Duration(-1), seen["jobs:j2"])

	dry, err := repo.Purge(ctx, "jobs:*", true)
	require.NoError(t, err)
	assert.Equal(t, PurgeResult{Matched: 3, Deleted: 3}, dry)
	assert.Equal(t, int64(3), client.Exists(ctx, "scan:jobs:j1", "scan:jobs:j2", "scan:jobs:viewed:j1:v1").Val())

	res, err := repo.Purge(ctx, "jobs:*", false)
	require.NoError(t, err)
	assert.Equal(t, PurgeResult{Matched: 3, Deleted: 3}, res)

	raw, err := repo.Get(ctx, core.UnreadCountKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), raw, "purge must stay inside the pattern")
}
