package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/hazard-impact/internal/cache"
	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

const describeShakemap = `<?xml version="1.0"?>
<CoverageDescription version="1.0.0" xmlns="http://www.opengis.net/wcs" xmlns:gml="http://www.opengis.net/gml">
  <CoverageOffering>
    <name>geonode:shakemap</name>
    <label>Shakemap</label>
    <keywords><keyword>category:hazard,subcategory:earthquake,unit:MMI</keyword></keywords>
    <lonLatEnvelope><gml:pos>100 -2</gml:pos><gml:pos>101 -1</gml:pos></lonLatEnvelope>
    <domainSet><spatialDomain><gml:RectifiedGrid dimension="2">
      <gml:limits><gml:GridEnvelope><gml:low>0 0</gml:low><gml:high>1 1</gml:high></gml:GridEnvelope></gml:limits>
    </gml:RectifiedGrid></spatialDomain></domainSet>
  </CoverageOffering>
</CoverageDescription>`

const noSuchCoverage = `<?xml version="1.0"?>
<ServiceExceptionReport version="1.2.0"><ServiceException code="CoverageNotDefined">nope</ServiceException></ServiceExceptionReport>`

const wfsCaps = `<?xml version="1.0"?>
<WFS_Capabilities version="1.0.0"><FeatureTypeList><FeatureType>
  <Name>geonode:buildings</Name><Title>Buildings</Title>
  <Keywords>category:exposure, subcategory:building</Keywords>
  <LatLongBoundingBox minx="100.2" miny="-1.8" maxx="100.8" maxy="-1.2"/>
</FeatureType></FeatureTypeList></WFS_Capabilities>`

const grid = `ncols 2
nrows 2
xllcorner 100
yllcorner -2
cellsize 0.5
NODATA_value -9999
7 8
6 -9999
`

const buildings = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Point","coordinates":[100.25,-1.25]},"properties":{"NAME":"school"}}]}`

type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests map[string]int
	last     map[string]string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{requests: map[string]int{}, last: map[string]string{}}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/geoserver/ows" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		req := q.Get("request")
		f.mu.Lock()
		f.requests[req]++
		f.last[req] = r.URL.RawQuery
		f.mu.Unlock()
		switch req {
		case "DescribeCoverage":
			if q.Get("coverage") == "geonode:shakemap" {
				_, _ = io.WriteString(w, describeShakemap)
				return
			}
			_, _ = io.WriteString(w, noSuchCoverage)
		case "GetCapabilities":
			_, _ = io.WriteString(w, wfsCaps)
		case "GetCoverage":
			_, _ = io.WriteString(w, grid)
		case "GetFeature":
			_, _ = io.WriteString(w, buildings)
		default:
			http.Error(w, "bad request", http.StatusBadRequest)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) base() string { return f.URL + "/geoserver" }

func (f *fakeServer) count(req string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[req]
}

func (f *fakeServer) lastQuery(req string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last[req]
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

var viewport = model.BBox{West: 99, South: -3, East: 102, North: 0}

func TestGetMetadata(t *testing.T) {
	srv := newFakeServer(t)
	o := NewOWS(discard(), srv.Client())
	ctx := context.Background()

	m, err := o.GetMetadata(ctx, srv.base(), "geonode:shakemap")
	require.NoError(t, err)
	assert.Equal(t, model.LayerRaster, m.LayerType)
	assert.Equal(t, &model.Resolution{X: 0.5, Y: 0.5}, m.Resolution)

	m, err = o.GetMetadata(ctx, srv.base(), "geonode:buildings")
	require.NoError(t, err)
	assert.Equal(t, model.LayerVector, m.LayerType)
	assert.Equal(t, "Buildings", m.Title)

	_, err = o.GetMetadata(ctx, srv.base(), "geonode:missing")
	assert.True(t, apperr.Is(err, apperr.KindIO), "got %v", err)
}

func TestDownloadRaster(t *testing.T) {
	srv := newFakeServer(t)
	o := NewOWS(discard(), srv.Client())

	l, err := o.Download(context.Background(), srv.base(), "geonode:shakemap", viewport, &model.Resolution{X: 0.5, Y: 0.5})
	require.NoError(t, err)
	r, ok := l.(*model.Raster)
	require.True(t, ok)
	assert.Equal(t, 2, r.Rows())
	assert.Equal(t, 7.0, r.At(0, 0))
	v, _ := r.Keywords().Get("subcategory")
	assert.Equal(t, "earthquake", v)
	assert.Contains(t, srv.lastQuery("GetCoverage"), "resx=0.5")
}

func TestDownloadRasterDefaultsToNativeResolution(t *testing.T) {
	srv := newFakeServer(t)
	o := NewOWS(discard(), srv.Client())
	_, err := o.Download(context.Background(), srv.base(), "geonode:shakemap", viewport, nil)
	require.NoError(t, err)
	assert.Contains(t, srv.lastQuery("GetCoverage"), "resx=0.5")
}

func TestDownloadVector(t *testing.T) {
	srv := newFakeServer(t)
	o := NewOWS(discard(), srv.Client())
	ctx := context.Background()

	l, err := o.Download(ctx, srv.base(), "geonode:buildings", viewport, nil)
	require.NoError(t, err)
	v, ok := l.(*model.Vector)
	require.True(t, ok)
	assert.Equal(t, 1, v.Len())
	title, _ := v.Keywords().Get("title")
	assert.Equal(t, "Buildings", title)

	_, err = o.Download(ctx, srv.base(), "geonode:buildings", viewport, &model.Resolution{X: 1, Y: 1})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
}

func TestDownloadValidatesInput(t *testing.T) {
	srv := newFakeServer(t)
	o := NewOWS(discard(), srv.Client())
	ctx := context.Background()

	_, err := o.Download(ctx, srv.base(), "shakemap", viewport, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = o.Download(ctx, srv.base(), "geonode:shakemap", model.BBox{West: 190, South: 0, East: 200, North: 1}, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Zero(t, srv.count("DescribeCoverage"))
}

func TestUpstreamErrorIsIO(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	o := NewOWS(discard(), srv.Client())
	_, err := o.GetMetadata(context.Background(), srv.URL, "geonode:x")
	require.Error(t, err)
	assert.Equal(t, apperr.KindIO, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "502")
}

func TestCachedStoreAsksServerOnce(t *testing.T) {
	srv := newFakeServer(t)
	c := NewCached(NewOWS(discard(), srv.Client()), cache.New(cache.Config{}, nil, nil))
	ctx := context.Background()

	for range 3 {
		_, err := c.GetMetadata(ctx, srv.base(), "geonode:shakemap")
		require.NoError(t, err)
	}
	_, err := c.Download(ctx, srv.base(), "geonode:shakemap", viewport, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.count("DescribeCoverage"))

	n, err := c.Invalidate(ctx, srv.base(), "geonode:shakemap")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = c.GetMetadata(ctx, srv.base(), "geonode:shakemap")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.count("DescribeCoverage"))
}

type flakyStore struct {
	Store
	failures int32
	calls    atomic.Int32
}

func (f *flakyStore) GetMetadata(context.Context, string, string) (model.Metadata, error) {
	if f.calls.Add(1) <= f.failures {
		return model.Metadata{}, apperr.IO("not yet", errors.New("layer not found"))
	}
	return model.NewVectorMetadata("geonode:x", "x", viewport, nil), nil
}

func runPoll(t *testing.T, p *Poller, fc *clockwork.FakeClock, advances int) (model.Metadata, error) {
	t.Helper()
	type result struct {
		m   model.Metadata
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := p.PollMetadata(context.Background(), "http://x/geoserver", "geonode:x")
		done <- result{m, err}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for range advances {
		require.NoError(t, fc.BlockUntilContext(ctx, 1))
		fc.Advance(DefaultPollBackoff)
	}
	select {
	case r := <-done:
		return r.m, r.err
	case <-ctx.Done():
		t.Fatal("poll did not finish")
		return model.Metadata{}, nil
	}
}

func TestPollMetadataRetries(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := &flakyStore{failures: 2}
	p := NewPoller(s, discard())
	p.Clock = fc

	m, err := runPoll(t, p, fc, 2)
	require.NoError(t, err)
	assert.Equal(t, "geonode:x", m.ID)
	assert.Equal(t, int32(3), s.calls.Load())
}

func TestPollMetadataGivesUp(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := &flakyStore{failures: 100}
	p := NewPoller(s, discard())
	p.Clock = fc

	_, err := runPoll(t, p, fc, DefaultPollAttempts-1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindIO, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Equal(t, int32(DefaultPollAttempts), s.calls.Load())
}

func TestPollerWrapsOWS(t *testing.T) {
	srv := newFakeServer(t)
	p := NewPoller(NewOWS(discard(), srv.Client()), discard())
	c := NewCached(p, cache.New(cache.Config{}, nil, nil))

	l, err := c.Download(context.Background(), srv.base(), "geonode:buildings", viewport, nil)
	require.NoError(t, err)
	assert.Equal(t, model.LayerVector, l.Type())
	assert.Equal(t, 1, srv.count("GetFeature"))
}
