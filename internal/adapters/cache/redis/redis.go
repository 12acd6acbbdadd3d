// Package redis provides the optional cooldown cache. Losing it only costs
// database lookups; it never holds the authoritative record of a send.
package redis

import (
	"context"
	"fmt"
	"time"

	"whatsapp-broadcast/internal/ports"

	"github.com/go-redis/redis/v8"
)

// Cache implements ports.Cache on a redis instance.
type Cache struct {
	client *redis.Client
}

// New connects to redis and verifies it with a ping, retrying briefly so a
// container that is still starting does not fail the worker.
func New(ctx context.Context, addr string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	retryTicker := time.NewTicker(2 * time.Second)
	defer retryTicker.Stop()

	var pingErr error
	for i := 0; i < 5; i++ {
		if pingErr = client.Ping(ctx).Err(); pingErr == nil {
			break
		}
		<-retryTicker.C
	}
	if pingErr != nil {
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	return &Cache{client: client}, nil
}

func (c *Cache) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	return c.client.Set(ctx, key, val, ttl).Err()
}

// Get treats every error, including redis.Nil, as a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *Cache) Close() error {
	return c.client.Close()
}

var _ ports.Cache = (*Cache)(nil)
