// Package cache provides an advisory TTL cache for provider detail
// records. A cache failure is never fatal: callers fall back to the
// provider and repopulate on the way out.
package cache

import (
	"context"
	"time"
)

// Cache stores serialized records keyed by provider and natural ID.
type Cache interface {
	// Get returns the cached value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// GetMany returns the present subset of keys. Missing keys are simply
	// absent from the result map.
	GetMany(ctx context.Context, keys []string) (map[string]string, error)

	// SetMany stores all entries for ttl.
	SetMany(ctx context.Context, entries map[string]string, ttl time.Duration) error
}

// Key builds the cache key for a provider record.
func Key(provider, id string) string {
	return "litsift:ref:" + provider + ":" + id
}
