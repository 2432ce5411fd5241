// Package storage is the map server collaborator: it reads layer metadata and
// downloads clipped layers over OGC web services.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/core/observability"
	"github.com/mohammed-shakir/hazard-impact/internal/core/ogc"
	"github.com/mohammed-shakir/hazard-impact/internal/geom"
	"github.com/mohammed-shakir/hazard-impact/internal/layerio"
)

// Store is the remote layer collaborator used by the calculation service.
type Store interface {
	GetMetadata(ctx context.Context, server, name string) (model.Metadata, error)
	Download(ctx context.Context, server, name string, bbox model.BBox, res *model.Resolution) (model.Layer, error)
}

// OWS talks to a GeoServer style /ows endpoint.
type OWS struct {
	logger   *slog.Logger
	client   *http.Client
	maxBody  int64
	startNow func() time.Time // for tests
}

func NewOWS(logger *slog.Logger, client *http.Client) *OWS {
	if client == nil {
		client = http.DefaultClient
	}
	return &OWS{
		logger:   logger,
		client:   client,
		maxBody:  512 << 20,
		startNow: time.Now,
	}
}

// GetMetadata looks the layer up as a coverage first and as a feature type
// second. Failures are io errors.
func (o *OWS) GetMetadata(ctx context.Context, server, name string) (model.Metadata, error) {
	body, err := o.fetch(ctx, server, ogc.ReqDescribeCoverage, ogc.BuildDescribeCoverageParams(name))
	if err != nil {
		return model.Metadata{}, apperr.IO(fmt.Sprintf("describe coverage %q", name), err)
	}
	m, err := ogc.ParseDescribeCoverage(body, name)
	if err == nil {
		return m, nil
	}
	var se *ogc.ServiceException
	if !errors.As(err, &se) && !errors.Is(err, ogc.ErrNotFound) {
		return model.Metadata{}, apperr.IO(fmt.Sprintf("describe coverage %q", name), err)
	}
	o.logger.DebugContext(ctx, "not a coverage, trying WFS", "layer", name, "reason", err)

	body, err = o.fetch(ctx, server, ogc.ReqGetCapabilities, ogc.BuildWFSCapabilitiesParams())
	if err != nil {
		return model.Metadata{}, apperr.IO(fmt.Sprintf("WFS capabilities for %q", name), err)
	}
	m, err = ogc.ParseWFSCapabilities(body, name)
	if err != nil {
		return model.Metadata{}, apperr.IO(fmt.Sprintf("layer %q on %s", name, server), err)
	}
	return m, nil
}

// Download fetches the layer's metadata and then the layer itself.
func (o *OWS) Download(ctx context.Context, server, name string, bbox model.BBox, res *model.Resolution) (model.Layer, error) {
	if err := checkDownload(name, bbox, res); err != nil {
		return nil, err
	}
	m, err := o.GetMetadata(ctx, server, name)
	if err != nil {
		return nil, err
	}
	return o.DownloadLayer(ctx, server, m, bbox, res)
}

// DownloadLayer downloads a layer whose metadata is already known. Rasters
// default to their native resolution; vectors must not be given one.
func (o *OWS) DownloadLayer(ctx context.Context, server string, m model.Metadata, bbox model.BBox, res *model.Resolution) (model.Layer, error) {
	if err := checkDownload(m.ID, bbox, res); err != nil {
		return nil, err
	}
	kw := m.Keywords.Clone()
	if kw == nil {
		kw = model.NewKeywords()
	}
	if m.Title != "" && !kw.Has("title") {
		kw.Set("title", m.Title)
	}

	switch m.LayerType {
	case model.LayerVector:
		if res != nil {
			return nil, apperr.Validation("resolution was requested for vector layer %q; only rasters can be resampled", m.ID)
		}
		body, err := o.fetch(ctx, server, ogc.ReqGetFeature, ogc.BuildGetFeatureParams(m.ID, &bbox))
		if err != nil {
			return nil, apperr.IO(fmt.Sprintf("download %q", m.ID), err)
		}
		v, err := layerio.DecodeVector(body, m.ID, kw)
		if err != nil {
			return nil, apperr.IO(fmt.Sprintf("decode %q", m.ID), err)
		}
		return v, nil
	case model.LayerRaster:
		if res == nil {
			res = m.Resolution
		}
		body, err := o.fetch(ctx, server, ogc.ReqGetCoverage, ogc.BuildGetCoverageParams(m.ID, bbox, res))
		if err != nil {
			return nil, apperr.IO(fmt.Sprintf("download %q", m.ID), err)
		}
		r, err := layerio.ReadASCIIGrid(bytes.NewReader(body), m.ID, model.WGS84, kw)
		if err != nil {
			return nil, apperr.IO(fmt.Sprintf("decode %q", m.ID), err)
		}
		return r, nil
	default:
		return nil, apperr.Validation("layer %q has unknown type %q", m.ID, m.LayerType)
	}
}

func checkDownload(name string, bbox model.BBox, res *model.Resolution) error {
	if !ogc.ValidateLayerName(name) {
		return apperr.Validation("layer name must have the form workspace:name, got %q", name)
	}
	if err := geom.CheckGeographic(bbox); err != nil {
		return err
	}
	if res != nil && (res.X <= 0 || res.Y <= 0) {
		return apperr.Validation("resolution must be positive, got %+v", *res)
	}
	return nil
}

func (o *OWS) fetch(ctx context.Context, server, request string, params url.Values) ([]byte, error) {
	owsURL, err := url.Parse(ogc.OWSEndpoint(server))
	if err != nil {
		return nil, fmt.Errorf("parse ows url: %w", err)
	}
	u := *owsURL
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := o.startNow()
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency("geoserver", request, dur.Seconds())
	o.logger.DebugContext(ctx, "ows request done",
		"request", request,
		"status", resp.StatusCode,
		"duration", dur.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, o.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	// GeoServer reports errors with a 200 and an exception document
	if request != ogc.ReqDescribeCoverage {
		if err := ogc.CheckException(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}
