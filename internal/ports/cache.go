package ports

import (
	"context"
	"time"
)

// Cache is a read-through optimization in front of the store's cooldown
// check. It is never the source of truth for a send; a cold cache only costs
// a database lookup.
type Cache interface {
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	// Get returns ok=false on a miss or any cache error.
	Get(ctx context.Context, key string) (val string, ok bool)
}
