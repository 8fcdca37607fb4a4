// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package catalog — Redis-backed [MemoryCache].

Size-pressure eviction (the "approximate LRU" half of §4.2's contract) is
delegated to Redis itself: the deployment sets `maxmemory-policy
allkeys-lru` and `maxmemory` to [config.Config.CacheMaxItems] worth of
average entry size, so Redis evicts the least-recently-used key under
pressure without Yomira reimplementing LRU bookkeeping by hand. TTL
expiry is native Redis EXPIRE, set per-Put.
*/
package catalog

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/yomira/internal/platform/dberr"
)

const redisKeyPrefix = "yomira:cache:"

// redisCache implements [MemoryCache] on top of a shared [*redis.Client].
type redisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a [MemoryCache] backed by client.
func NewRedisCache(client *redis.Client) MemoryCache {
	return &redisCache{client: client}
}

// Get implements [MemoryCache].
func (c *redisCache) Get(ctx context.Context, key Fingerprint) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, dberr.Wrap(err, "cache get "+key)
	}
	return value, true, nil
}

// Put implements [MemoryCache].
func (c *redisCache) Put(ctx context.Context, key Fingerprint, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		return dberr.Wrap(err, "cache put "+key)
	}
	return nil
}

// Invalidate implements [MemoryCache] via SCAN+UNLINK rather than KEYS, so a
// large cache does not block Redis's single-threaded command loop.
func (c *redisCache) Invalidate(ctx context.Context, prefix string) error {
	pattern := redisKeyPrefix + prefix + "*"
	iter := c.client.Scan(ctx, 0, pattern, 200).Iterator()

	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 500 {
			if err := c.client.Unlink(ctx, batch...).Err(); err != nil {
				return dberr.Wrap(err, "cache invalidate "+prefix)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return dberr.Wrap(err, "cache invalidate scan "+prefix)
	}
	if len(batch) > 0 {
		if err := c.client.Unlink(ctx, batch...).Err(); err != nil {
			return dberr.Wrap(err, "cache invalidate "+prefix)
		}
	}
	return nil
}

// Size reports Redis's DBSIZE. This is a whole-database count rather than a
// prefix-scoped one — cheap enough to call on every /health request, and
// accurate as long as the cache has its own Redis logical database.
func (c *redisCache) Size(ctx context.Context) (int64, error) {
	count, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return 0, dberr.Wrap(err, "cache size")
	}
	return count, nil
}

// Clear drops every key in the cache's logical database via FLUSHDB. Safe
// only because the deployment dedicates a Redis logical database to the
// cache tier (see [config.Config.RedisURL]'s /N suffix convention).
func (c *redisCache) Clear(ctx context.Context) error {
	return dberr.Wrap(c.client.FlushDB(ctx).Err(), "cache clear")
}
