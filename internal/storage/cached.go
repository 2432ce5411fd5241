package storage

import (
	"context"

	"github.com/mohammed-shakir/hazard-impact/internal/cache"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

// Fetcher is a Store that can also download with known metadata.
type Fetcher interface {
	Store
	DownloadLayer(ctx context.Context, server string, m model.Metadata, bbox model.BBox, res *model.Resolution) (model.Layer, error)
}

// Cached serves metadata from a cache and only asks the server on a miss.
type Cached struct {
	inner Fetcher
	cache *cache.Metadata
}

func NewCached(inner Fetcher, c *cache.Metadata) *Cached {
	return &Cached{inner: inner, cache: c}
}

func (c *Cached) GetMetadata(ctx context.Context, server, name string) (model.Metadata, error) {
	if m, ok := c.cache.Get(ctx, server, name); ok {
		return m, nil
	}
	m, err := c.inner.GetMetadata(ctx, server, name)
	if err != nil {
		return model.Metadata{}, err
	}
	c.cache.Put(ctx, server, name, m)
	return m, nil
}

func (c *Cached) Download(ctx context.Context, server, name string, bbox model.BBox, res *model.Resolution) (model.Layer, error) {
	if err := checkDownload(name, bbox, res); err != nil {
		return nil, err
	}
	m, err := c.GetMetadata(ctx, server, name)
	if err != nil {
		return nil, err
	}
	return c.inner.DownloadLayer(ctx, server, m, bbox, res)
}

// Invalidate implements invalidation.Evictor.
func (c *Cached) Invalidate(ctx context.Context, server, name string) (int, error) {
	return c.cache.Invalidate(ctx, server, name)
}
