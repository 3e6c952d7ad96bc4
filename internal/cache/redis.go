package cache

import (
	"context"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisTimeout = 5 * time.Second

// RedisCache keeps dirty paths in a Redis set shared by every platform node.
type RedisCache struct {
	rdb *goredis.Client
	key string
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(addr, key string) (*RedisCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: redisTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, key: key}, nil
}

func (r *RedisCache) MarkDirty(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := r.rdb.SAdd(ctx, r.key, path).Err(); err != nil {
		return fmt.Errorf("marking %s dirty: %w", path, err)
	}
	return nil
}

func (r *RedisCache) Dirty() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	paths, err := r.rdb.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading dirty contexts: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (r *RedisCache) Clear(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := r.rdb.SRem(ctx, r.key, path).Err(); err != nil {
		return fmt.Errorf("clearing %s: %w", path, err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.rdb.Close()
}
