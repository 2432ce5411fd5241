package ogc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

// ErrNotFound is returned when a capability document does not list the layer.
var ErrNotFound = errors.New("layer not found")

// ServiceException is an OGC exception report returned instead of data.
type ServiceException struct {
	Code    string
	Message string
}

func (e *ServiceException) Error() string {
	if e.Code == "" {
		return "service exception: " + e.Message
	}
	return fmt.Sprintf("service exception %s: %s", e.Code, e.Message)
}

type exceptionReport struct {
	Exceptions []struct {
		Code string `xml:"code,attr"`
		Text string `xml:",chardata"`
	} `xml:"ServiceException"`
	// OWS 1.1 style
	OWSExceptions []struct {
		Code string   `xml:"exceptionCode,attr"`
		Text []string `xml:"ExceptionText"`
	} `xml:"Exception"`
}

// CheckException returns a *ServiceException when body is an exception report.
func CheckException(body []byte) error {
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("<")) {
		return nil
	}
	if !bytes.Contains(body, []byte("ServiceException")) && !bytes.Contains(body, []byte("ExceptionReport")) {
		return nil
	}
	var rep exceptionReport
	if err := xml.Unmarshal(body, &rep); err != nil {
		return &ServiceException{Message: strings.TrimSpace(string(body))}
	}
	if len(rep.Exceptions) > 0 {
		e := rep.Exceptions[0]
		return &ServiceException{Code: e.Code, Message: strings.TrimSpace(e.Text)}
	}
	if len(rep.OWSExceptions) > 0 {
		e := rep.OWSExceptions[0]
		return &ServiceException{Code: e.Code, Message: strings.TrimSpace(strings.Join(e.Text, " "))}
	}
	return nil
}

type coverageDescription struct {
	Offerings []coverageOffering `xml:"CoverageOffering"`
}

type coverageOffering struct {
	Name     string   `xml:"name"`
	Label    string   `xml:"label"`
	Keywords []string `xml:"keywords>keyword"`
	LonLat   struct {
		Pos []string `xml:"pos"`
	} `xml:"lonLatEnvelope"`
	Grid struct {
		High string `xml:"limits>GridEnvelope>high"`
		Low  string `xml:"limits>GridEnvelope>low"`
	} `xml:"domainSet>spatialDomain>RectifiedGrid"`
}

// ParseDescribeCoverage extracts raster metadata for layer from a WCS 1.0.0
// DescribeCoverage response. The geotransform is derived from the WGS84
// envelope and the grid limits.
func ParseDescribeCoverage(body []byte, layer string) (model.Metadata, error) {
	if err := CheckException(body); err != nil {
		return model.Metadata{}, err
	}
	var doc coverageDescription
	if err := xml.Unmarshal(body, &doc); err != nil {
		return model.Metadata{}, fmt.Errorf("decode DescribeCoverage: %w", err)
	}
	for _, c := range doc.Offerings {
		if c.Name != layer {
			continue
		}
		return c.metadata()
	}
	return model.Metadata{}, fmt.Errorf("coverage %q: %w", layer, ErrNotFound)
}

func (c coverageOffering) metadata() (model.Metadata, error) {
	if len(c.LonLat.Pos) != 2 {
		return model.Metadata{}, fmt.Errorf("coverage %q: lonLatEnvelope needs 2 positions, got %d", c.Name, len(c.LonLat.Pos))
	}
	lo, err := floats(c.LonLat.Pos[0], 2)
	if err != nil {
		return model.Metadata{}, fmt.Errorf("coverage %q: envelope: %w", c.Name, err)
	}
	hi, err := floats(c.LonLat.Pos[1], 2)
	if err != nil {
		return model.Metadata{}, fmt.Errorf("coverage %q: envelope: %w", c.Name, err)
	}
	bb := model.BBox{West: lo[0], South: lo[1], East: hi[0], North: hi[1]}

	low := []float64{0, 0}
	if strings.TrimSpace(c.Grid.Low) != "" {
		if low, err = floats(c.Grid.Low, 2); err != nil {
			return model.Metadata{}, fmt.Errorf("coverage %q: grid low: %w", c.Name, err)
		}
	}
	high, err := floats(c.Grid.High, 2)
	if err != nil {
		return model.Metadata{}, fmt.Errorf("coverage %q: grid high: %w", c.Name, err)
	}
	cols := high[0] - low[0] + 1
	rows := high[1] - low[1] + 1
	if cols <= 0 || rows <= 0 {
		return model.Metadata{}, fmt.Errorf("coverage %q: empty grid", c.Name)
	}
	gt := model.Geotransform{bb.West, bb.Width() / cols, 0, bb.North, 0, -bb.Height() / rows}
	if err := gt.Validate(); err != nil {
		return model.Metadata{}, fmt.Errorf("coverage %q: %w", c.Name, err)
	}

	kw, err := keywords(c.Keywords)
	if err != nil {
		return model.Metadata{}, fmt.Errorf("coverage %q: %w", c.Name, err)
	}
	if !kw.Has("resolution") {
		kw.Set("resolution", strconv.FormatFloat(round(gt.PixelWidth(), 5), 'f', -1, 64))
	}
	kw.Set("layertype", string(model.LayerRaster))
	m := model.NewRasterMetadata(c.Name, title(c.Label, c.Name, kw), bb, gt, kw)
	return m, nil
}

type wfsCapabilities struct {
	FeatureTypes []featureType `xml:"FeatureTypeList>FeatureType"`
}

type featureType struct {
	Name     string `xml:"Name"`
	Title    string `xml:"Title"`
	Keywords string `xml:"Keywords"`
	LatLong  struct {
		MinX float64 `xml:"minx,attr"`
		MinY float64 `xml:"miny,attr"`
		MaxX float64 `xml:"maxx,attr"`
		MaxY float64 `xml:"maxy,attr"`
	} `xml:"LatLongBoundingBox"`
}

// ParseWFSCapabilities extracts vector metadata for layer from a WFS 1.0.0
// capabilities document.
func ParseWFSCapabilities(body []byte, layer string) (model.Metadata, error) {
	if err := CheckException(body); err != nil {
		return model.Metadata{}, err
	}
	var doc wfsCapabilities
	if err := xml.Unmarshal(body, &doc); err != nil {
		return model.Metadata{}, fmt.Errorf("decode WFS capabilities: %w", err)
	}
	for _, ft := range doc.FeatureTypes {
		if ft.Name != layer {
			continue
		}
		kw, err := keywords([]string{ft.Keywords})
		if err != nil {
			return model.Metadata{}, fmt.Errorf("feature type %q: %w", ft.Name, err)
		}
		kw.Set("layertype", string(model.LayerVector))
		bb := model.BBox{West: ft.LatLong.MinX, South: ft.LatLong.MinY, East: ft.LatLong.MaxX, North: ft.LatLong.MaxY}
		return model.NewVectorMetadata(ft.Name, title(ft.Title, ft.Name, kw), bb, kw), nil
	}
	return model.Metadata{}, fmt.Errorf("feature type %q: %w", layer, ErrNotFound)
}

// keywords merges "k:v,k2" lists as published by GeoServer.
func keywords(lists []string) (*model.Keywords, error) {
	kw := model.NewKeywords()
	for _, l := range lists {
		if strings.TrimSpace(l) == "" {
			continue
		}
		parsed, err := model.ParseKeywordList(l)
		if err != nil {
			return nil, err
		}
		kw.Merge(parsed)
	}
	return kw, nil
}

// a "title" keyword overrides the published title
func title(published, name string, kw *model.Keywords) string {
	if t, ok := kw.Get("title"); ok && t != "" {
		return t
	}
	if published != "" {
		return published
	}
	return name
}

func floats(s string, n int) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, fmt.Errorf("want %d numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}
