// Package cache provides the read-through accelerator in front of the
// store. It is never a source of truth: a cache that is down or errors
// behaves like a cache that always misses.
package cache

import (
	"context"
	"time"
)

// Recommended TTLs for the three entry families.
const (
	ActiveListTTL = 300 * time.Second
	DetailTTL     = 300 * time.Second
	AssignmentTTL = 300 * time.Second
)

// Cache is a best-effort key/value accelerator. Implementations must not
// surface infrastructure failures; they log and degrade to a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, keys ...string)
	// InvalidatePrefix drops every key that starts with prefix. Used when an
	// experiment is deleted and its per-user assignment entries must go too.
	InvalidatePrefix(ctx context.Context, prefix string)
}

func ActiveListKey() string {
	return "experiments:active"
}

func DetailKey(experimentID string) string {
	return "experiment:" + experimentID
}

func AssignmentKey(experimentID, userID string) string {
	return AssignmentPrefix(experimentID) + userID
}

func AssignmentPrefix(experimentID string) string {
	return "assignment:" + experimentID + ":"
}

// Noop is the cache used when no backend is configured; every read misses.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, bool)            { return nil, false }
func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {}
func (Noop) Invalidate(ctx context.Context, keys ...string)                {}
func (Noop) InvalidatePrefix(ctx context.Context, prefix string)           {}
