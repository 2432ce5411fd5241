// Package redisstore wraps the Redis operations behind the shared metadata cache.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/hazard-impact/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDB(db int) Option {
	return func(o *redis.Options) { o.DB = db }
}

// WithOpTimeout sets both read and write timeouts.
func WithOpTimeout(d time.Duration) Option {
	return func(o *redis.Options) {
		o.ReadTimeout = d
		o.WriteTimeout = d
	}
}

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Get returns the value of key; ok is false when the key is missing.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCacheOp("get", nil, time.Since(start).Seconds())
		observability.IncCacheMiss("redis")
		return nil, false, nil
	}
	observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return nil, false, fmt.Errorf("redis GET %q: %w", key, err)
	}
	observability.IncCacheHit("redis")
	return b, true, nil
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, val, ttl).Err()
	observability.ObserveCacheOp("set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	observability.ObserveCacheOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

// DelPattern removes every key matching a glob pattern and returns how many
// were deleted. Keys are found with SCAN so the server is never blocked.
func (c *Client) DelPattern(ctx context.Context, pattern string) (int, error) {
	start := time.Now()
	var (
		cursor  uint64
		deleted int
	)
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			observability.ObserveCacheOp("scan", err, time.Since(start).Seconds())
			return deleted, fmt.Errorf("redis SCAN %q: %w", pattern, err)
		}
		if len(batch) > 0 {
			n, err := c.rdb.Del(ctx, batch...).Result()
			if err != nil {
				observability.ObserveCacheOp("scan", err, time.Since(start).Seconds())
				return deleted, fmt.Errorf("redis DEL %d keys: %w", len(batch), err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	observability.ObserveCacheOp("scan", nil, time.Since(start).Seconds())
	return deleted, nil
}

const scanCount = 256

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
