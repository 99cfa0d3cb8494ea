// Package clientcache is a Redis-backed read-through cache of client
// credit limits. It exists only to answer "does this client exist" fast;
// the store remains the source of truth and the cached limit is never
// used for the credit check.
package clientcache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	log *slog.Logger
	rdb *redis.Client
	ttl time.Duration
}

func New(log *slog.Logger, rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		log: log,
		rdb: rdb,
		ttl: ttl,
	}
}

// Limit returns the cached credit limit for clientID. Any Redis failure
// is reported as a miss so the caller falls through to the store.
func (c *Cache) Limit(ctx context.Context, clientID int) (int64, bool) {
	limit, err := c.rdb.Get(ctx, key(clientID)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("limit cache read", "ERROR", err)
		}
		return 0, false
	}

	return limit, true
}

// Store caches the credit limit for clientID. Best effort.
func (c *Cache) Store(ctx context.Context, clientID int, limit int64) {
	if err := c.rdb.Set(ctx, key(clientID), limit, c.ttl).Err(); err != nil {
		c.log.Warn("limit cache write", "ERROR", err)
	}
}

func key(clientID int) string {
	return "ledger:limit:" + strconv.Itoa(clientID)
}
