package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCachePrefix namespaces every key the API writes to Redis.
const DefaultCachePrefix = "kaamsathi:"

const (
	scanCount      = 100
	purgeBatchSize = 1000
)

var errEmptyCacheKey = errors.New("cache key is empty")

// RedisCacheRepo is the Redis-backed core.CacheRepository. Every key is
// stored under a fixed prefix so the API can share a Redis database.
type RedisCacheRepo struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCacheRepo creates a RedisCacheRepo using DefaultCachePrefix.
func NewRedisCacheRepo(client redis.UniversalClient) *RedisCacheRepo {
	return NewRedisCacheRepoWithPrefix(client, DefaultCachePrefix)
}

// NewRedisCacheRepoWithPrefix creates a RedisCacheRepo whose keys start with prefix.
func NewRedisCacheRepoWithPrefix(client redis.UniversalClient, prefix string) *RedisCacheRepo {
	return &RedisCacheRepo{client: client, prefix: prefix}
}

func (r *RedisCacheRepo) full(key string) (string, error) {
	if key == "" {
		return "", errEmptyCacheKey
	}
	return r.prefix + key, nil
}

// Set stores value under key. A zero ttl keeps the key forever.
func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k, err := r.full(key)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, k, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Get returns the stored value, or nil when the key is absent.
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := r.full(key)
	if err != nil {
		return nil, err
	}
	b, err := r.client.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return b, nil
}

// Delete removes key and reports whether it existed.
func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	k, err := r.full(key)
	if err != nil {
		return false, err
	}
	n, err := r.client.Del(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("cache delete %s: %w", key, err)
	}
	return n > 0, nil
}

// SetIfNotExists stores value only when key is absent, using SET NX with the
// TTL in one command. A non-positive ttl is raised to one second.
func (r *RedisCacheRepo) SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	k, err := r.full(key)
	if err != nil {
		return false, err
	}
	ttl = max(ttl, time.Second)
	err = r.client.SetArgs(ctx, k, value, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("cache set-nx %s: %w", key, err)
	}
	return true, nil
}

// Health pings Redis.
func (r *RedisCacheRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// CachedKey is one entry found by Scan. Key is reported without the prefix.
// TTL follows Redis: -1 means no expiry and -2 means the key vanished mid-scan.
type CachedKey struct {
	Key string
	TTL time.Duration
}

// Scan walks keys matching pattern, given relative to the prefix, and calls
// fn for each. It returns the number of keys visited.
func (r *RedisCacheRepo) Scan(ctx context.Context, pattern string, fn func(CachedKey) error) (int, error) {
	iter := r.client.Scan(ctx, 0, r.prefix+pattern, scanCount).Iterator()
	n := 0
	for iter.Next(ctx) {
		n++
		full := iter.Val()
		ttl, err := r.client.TTL(ctx, full).Result()
		if err != nil {
			return n, fmt.Errorf("cache ttl %s: %w", full, err)
		}
		if err := fn(CachedKey{Key: strings.TrimPrefix(full, r.prefix), TTL: ttl}); err != nil {
			return n, err
		}
	}
	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("cache scan %s: %w", pattern, err)
	}
	return n, nil
}

// PurgeResult summarises a Purge call.
type PurgeResult struct {
	Matched       int
	Deleted       int64
	FailedBatches int
}

// Purge deletes keys matching pattern in batches. With dryRun set it only
// counts them. A failed DEL batch is recorded and the scan continues.
func (r *RedisCacheRepo) Purge(ctx context.Context, pattern string, dryRun bool) (PurgeResult, error) {
	var res PurgeResult
	batch := make([]string, 0, purgeBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if dryRun {
			res.Deleted += int64(len(batch))
		} else if n, err := r.client.Del(ctx, batch...).Result(); err != nil {
			res.FailedBatches++
		} else {
			res.Deleted += n
		}
		batch = batch[:0]
	}

	iter := r.client.Scan(ctx, 0, r.prefix+pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		res.Matched++
		batch = append(batch, iter.Val())
		if len(batch) == purgeBatchSize {
			flush()
		}
	}
	if err := iter.Err(); err != nil {
		return res, fmt.Errorf("cache scan %s: %w", pattern, err)
	}
	flush()
	return res, nil
}
