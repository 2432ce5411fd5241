// Package cache keeps layer metadata in an in-process expirable LRU in front of
// an optional shared store such as Redis. The shared tier is best effort:
// its failures are logged and read as misses.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"path"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/hazard-impact/internal/cache/keys"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/core/observability"
)

// Remote is the shared tier, implemented by redisstore.Client.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelPattern(ctx context.Context, pattern string) (int, error)
}

type Config struct {
	Size      int
	TTL       time.Duration
	OpTimeout time.Duration
}

type Metadata struct {
	l1     *expirable.LRU[string, model.Metadata]
	l2     Remote
	cfg    Config
	logger *slog.Logger
}

// New builds the cache. remote may be nil.
func New(cfg Config, remote Remote, logger *slog.Logger) *Metadata {
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Metadata{
		l1:     expirable.NewLRU[string, model.Metadata](cfg.Size, nil, cfg.TTL),
		l2:     remote,
		cfg:    cfg,
		logger: logger,
	}
}

func (c *Metadata) Get(ctx context.Context, server, layer string) (model.Metadata, bool) {
	key := keys.Metadata(server, layer)
	if m, ok := c.l1.Get(key); ok {
		observability.IncCacheHit("lru")
		return m, true
	}
	observability.IncCacheMiss("lru")
	if c.l2 == nil {
		return model.Metadata{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	b, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "metadata cache read failed", "key", key, "err", err)
		return model.Metadata{}, false
	}
	if !ok {
		return model.Metadata{}, false
	}
	var m model.Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		c.logger.WarnContext(ctx, "dropping undecodable metadata", "key", key, "err", err)
		_ = c.l2.Del(ctx, key)
		return model.Metadata{}, false
	}
	c.l1.Add(key, m)
	return m, true
}

func (c *Metadata) Put(ctx context.Context, server, layer string, m model.Metadata) {
	key := keys.Metadata(server, layer)
	c.l1.Add(key, m)
	if c.l2 == nil {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		c.logger.WarnContext(ctx, "metadata not cacheable", "key", key, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	if err := c.l2.Set(ctx, key, b, c.cfg.TTL); err != nil {
		c.logger.WarnContext(ctx, "metadata cache write failed", "key", key, "err", err)
	}
}

// Invalidate drops layer's metadata. An empty server drops it for every server.
// It returns the number of entries removed from the local tier.
func (c *Metadata) Invalidate(ctx context.Context, server, layer string) (int, error) {
	if server != "" {
		key := keys.Metadata(server, layer)
		n := 0
		if c.l1.Remove(key) {
			n = 1
		}
		if c.l2 != nil {
			if err := c.l2.Del(ctx, key); err != nil {
				return n, err
			}
		}
		return n, nil
	}

	pattern := keys.LayerPattern(layer)
	n := 0
	for _, k := range c.l1.Keys() {
		if ok, _ := path.Match(pattern, k); ok && c.l1.Remove(k) {
			n++
		}
	}
	if c.l2 != nil {
		if _, err := c.l2.DelPattern(ctx, pattern); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *Metadata) Len() int { return c.l1.Len() }
