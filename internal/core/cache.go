// Package core defines the ports the marketplace services depend on.
package core

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically stores value only when key is absent and
	// reports whether it did. A non-positive TTL is raised to one second.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// Cache key builders shared by services that read and invalidate the same entries.

// UnreadCountKey is the cache key holding a user's unread notification count.
func UnreadCountKey(userID string) string { return "notifications:unread:" + userID }

// JobKey is the cache key holding a serialized public job.
func JobKey(jobID string) string { return "jobs:" + jobID }

// JobViewKey marks that viewer has been counted as a view of jobID.
func JobViewKey(jobID, viewer string) string { return "jobs:viewed:" + jobID + ":" + viewer }
