package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/hazard-impact/internal/cache/keys"
	"github.com/mohammed-shakir/hazard-impact/internal/cache/redisstore"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

const server = "http://localhost:8080/geoserver"

func newRedis(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func meta(name string) model.Metadata {
	gt := model.Geotransform{96, 0.01, 0, 3, 0, -0.01}
	return model.NewRasterMetadata(name, "Shakemap", model.BBox{West: 96, South: -5, East: 105, North: 3}, gt,
		model.KeywordsFrom("category", "hazard", "subcategory", "earthquake"))
}

func TestLocalOnly(t *testing.T) {
	c := New(Config{Size: 2}, nil, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, server, "geonode:a")
	assert.False(t, ok)

	c.Put(ctx, server, "geonode:a", meta("geonode:a"))
	got, ok := c.Get(ctx, server, "geonode:a")
	require.True(t, ok)
	assert.Equal(t, "geonode:a", got.ID)

	// LRU bound
	c.Put(ctx, server, "geonode:b", meta("geonode:b"))
	c.Put(ctx, server, "geonode:c", meta("geonode:c"))
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get(ctx, server, "geonode:a")
	assert.False(t, ok)
}

func TestSharedTierFillsLocal(t *testing.T) {
	rc, mr := newRedis(t)
	ctx := context.Background()

	writer := New(Config{TTL: time.Minute}, rc, nil)
	writer.Put(ctx, server, "geonode:shakemap", meta("geonode:shakemap"))
	assert.True(t, mr.Exists(keys.Metadata(server, "geonode:shakemap")))

	reader := New(Config{TTL: time.Minute}, rc, nil)
	got, ok := reader.Get(ctx, server, "geonode:shakemap")
	require.True(t, ok)
	assert.Equal(t, model.LayerRaster, got.LayerType)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, 0.01, got.Resolution.X)
	v, _ := got.Keywords.Get("subcategory")
	assert.Equal(t, "earthquake", v)
	assert.Equal(t, 1, reader.Len())
}

func TestCorruptEntryIsDropped(t *testing.T) {
	rc, mr := newRedis(t)
	key := keys.Metadata(server, "geonode:x")
	require.NoError(t, mr.Set(key, "{not json"))

	c := New(Config{}, rc, nil)
	_, ok := c.Get(context.Background(), server, "geonode:x")
	assert.False(t, ok)
	assert.False(t, mr.Exists(key))
}

func TestInvalidate(t *testing.T) {
	rc, mr := newRedis(t)
	ctx := context.Background()
	c := New(Config{}, rc, nil)

	c.Put(ctx, server, "geonode:x", meta("geonode:x"))
	c.Put(ctx, "http://other/geoserver", "geonode:x", meta("geonode:x"))
	c.Put(ctx, server, "geonode:y", meta("geonode:y"))

	n, err := c.Invalidate(ctx, server, "geonode:y")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists(keys.Metadata(server, "geonode:y")))

	n, err = c.Invalidate(ctx, "", "geonode:x")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, mr.Keys())
	assert.Equal(t, 0, c.Len())
}

func TestRemoteFailureIsAMiss(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	c := New(Config{OpTimeout: 50 * time.Millisecond}, rc, nil)
	mr.Close()

	_, ok := c.Get(context.Background(), server, "geonode:x")
	assert.False(t, ok)
	c.Put(context.Background(), server, "geonode:x", meta("geonode:x"))
	_, ok = c.Get(context.Background(), server, "geonode:x")
	assert.True(t, ok, "local tier still serves")
}
