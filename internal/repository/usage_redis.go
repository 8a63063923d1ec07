package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
)

// Windowed keys outlive their day so a late read still sees the final count.
const windowedKeyTTL = 48 * time.Hour

var incrementScript = redis.NewScript(`
    local key = KEYS[1]
    local limit = tonumber(ARGV[1])
    local ttl_seconds = tonumber(ARGV[2])

    local current = tonumber(redis.call('GET', key) or '0')
    if current >= limit then
        return { 0, current }
    end

    current = redis.call('INCR', key)
    if ttl_seconds > 0 and current == 1 then
        redis.call('EXPIRE', key, ttl_seconds)
    end
    return { 1, current }
`)

var decrementScript = redis.NewScript(`
    local key = KEYS[1]
    local current = tonumber(redis.call('GET', key) or '0')
    if current <= 0 then
        return 0
    end
    return redis.call('DECR', key)
`)

type redisUsageRepository struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedisUsageRepository stores counters in Redis; every read-modify-write
// runs as a single Lua script.
func NewRedisUsageRepository(rdb redis.Cmdable, prefix string) UsageRepository {
	if prefix == "" {
		prefix = "quota"
	}
	return &redisUsageRepository{rdb: rdb, prefix: prefix}
}

func (r *redisUsageRepository) Increment(ctx context.Context, key domain.CounterKey, limit int64) (int64, bool, error) {
	ttl := int64(0)
	if key.WindowKey != domain.ActiveWindow {
		ttl = int64(windowedKeyTTL / time.Second)
	}
	vals, err := incrementScript.Run(ctx, r.rdb, []string{r.key(key)}, limit, ttl).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("quota increment script: %w", err)
	}
	if len(vals) != 2 {
		return 0, false, fmt.Errorf("quota increment script: unexpected result %v", vals)
	}
	return vals[1], vals[0] == 1, nil
}

func (r *redisUsageRepository) Decrement(ctx context.Context, key domain.CounterKey) (int64, error) {
	count, err := decrementScript.Run(ctx, r.rdb, []string{r.key(key)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("quota decrement script: %w", err)
	}
	return count, nil
}

func (r *redisUsageRepository) Get(ctx context.Context, key domain.CounterKey) (int64, error) {
	count, err := r.rdb.Get(ctx, r.key(key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *redisUsageRepository) key(key domain.CounterKey) string {
	return strings.Join([]string{
		r.prefix,
		key.PrincipalID,
		string(key.Resource),
		strconv.FormatInt(key.WindowKey, 10),
	}, ":")
}
