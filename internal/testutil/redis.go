package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCandidates are tried in order when neither TEST_REDIS_ADDR nor REDIS_ADDR is set.
var redisCandidates = []string{"localhost:56379", "redis:6379", "localhost:6379"}

// SetupTestRedis returns a client on an otherwise unused logical DB, flushed
// before use. The test is skipped when no Redis is reachable.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, err := findRedis()
	if err != nil {
		unavailable(t, "REDIS", err)
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: reserveRedisDB(t, addr)})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err = client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		unavailable(t, "REDIS", err)
	}
	if tc, ok := t.(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(func() { _ = client.Close() })
	}
	return client
}

func findRedis() (string, error) {
	candidates := redisCandidates
	if addr := env("TEST_REDIS_ADDR", os.Getenv("REDIS_ADDR")); addr != "" {
		candidates = []string{addr}
	}
	var errs []error
	for _, addr := range candidates {
		if err := pingRedis(addr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		return addr, nil
	}
	return "", errors.Join(errs...)
}

func pingRedis(addr string) error {
	c := redis.NewClient(&redis.Options{Addr: addr})
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.Ping(ctx).Err()
}

// reserveRedisDB picks a logical DB for this test so parallel packages don't
// flush each other. TEST_REDIS_DB pins it; otherwise a lease key in DB 0 claims
// one of 1..15 until the test ends.
func reserveRedisDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
		t.Logf("ignoring invalid TEST_REDIS_DB=%q", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())

	for db := 1; db <= 15; db++ {
		key := "kaamsathi:testutil:db_lease:" + strconv.Itoa(db)
		ok, err := meta.SetNX(ctx, key, owner, 30*time.Minute).Result()
		if err != nil || !ok {
			continue
		}
		if tc, isCleanup := t.(interface{ Cleanup(func()) }); isCleanup {
			tc.Cleanup(func() {
				defer meta.Close()
				releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer releaseCancel()
				if delErr := meta.Del(releaseCtx, key).Err(); delErr != nil {
					t.Logf("release redis lease %s: %v", key, delErr)
				}
			})
		} else {
			_ = meta.Close()
		}
		return db
	}
	_ = meta.Close()
	t.Logf("no free redis db lease at %s, using DB 1", addr)
	return 1
}
