package distance

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "courierdesk:distance:"

// RedisCache keeps resolved distances for ttl. Redis errors are treated as misses.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func cacheKey(origin, destination string) string {
	sum := sha1.Sum([]byte(strings.ToLower(origin) + "|" + strings.ToLower(destination)))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, origin, destination string) (float64, bool) {
	v, err := c.rdb.Get(ctx, cacheKey(origin, destination)).Result()
	if err != nil {
		return 0, false
	}
	m, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return m, true
}

func (c *RedisCache) Set(ctx context.Context, origin, destination string, meters float64) {
	c.rdb.Set(ctx, cacheKey(origin, destination), strconv.FormatFloat(meters, 'f', -1, 64), c.ttl)
}
