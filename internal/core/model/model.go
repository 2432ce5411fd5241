// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"slices"
	"strings"
)

// WGS84 is the default expected projection of every layer.
const WGS84 = "EPSG:4326"

type LayerType string

const (
	LayerRaster LayerType = "raster"
	LayerVector LayerType = "vector"
)

func ParseLayerType(s string) (LayerType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raster", "coverage":
		return LayerRaster, nil
	case "vector", "feature":
		return LayerVector, nil
	default:
		return "", fmt.Errorf("unknown layer type %q", s)
	}
}

// BBox is a [west, south, east, north] box in the layer's projection.
type BBox struct {
	West, South float64
	East, North float64
}

// String representation matching the wcs/wfs bbox format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.West, b.South, b.East, b.North)
}

func (b BBox) Width() float64  { return b.East - b.West }
func (b BBox) Height() float64 { return b.North - b.South }

func (b BBox) Slice() []float64 { return []float64{b.West, b.South, b.East, b.North} }

// Valid reports whether west < east and south < north.
func (b BBox) Valid() bool {
	return b.West < b.East && b.South < b.North
}

func (b BBox) Contains(o BBox) bool {
	return o.West >= b.West && o.East <= b.East && o.South >= b.South && o.North <= b.North
}

// Resolution is the pixel size along x and y, both positive.
type Resolution struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Geotransform is the 6-element affine mapping from pixel to projected coordinates:
// origin x, pixel width, row rotation, origin y, column rotation, pixel height.
// North-up rasters have a zero rotation and a negative pixel height.
type Geotransform [6]float64

func (g Geotransform) OriginX() float64     { return g[0] }
func (g Geotransform) PixelWidth() float64  { return g[1] }
func (g Geotransform) OriginY() float64     { return g[3] }
func (g Geotransform) PixelHeight() float64 { return g[5] }

func (g Geotransform) Resolution() Resolution {
	return Resolution{X: g[1], Y: -g[5]}
}

// Validate rejects geotransforms whose orientation is not north-up.
func (g Geotransform) Validate() error {
	if !(g[1] > 0) {
		return fmt.Errorf("geotransform pixel width must be positive, got %v", g[1])
	}
	if !(g[5] < 0) {
		return fmt.Errorf("geotransform pixel height must be negative, got %v", g[5])
	}
	return nil
}

var wgs84Aliases = []string{
	"EPSG:4326",
	"WGS84",
	"WGS 84",
	"CRS:84",
	"URN:OGC:DEF:CRS:EPSG::4326",
	"URN:OGC:DEF:CRS:OGC:1.3:CRS84",
	"HTTP://WWW.OPENGIS.NET/GML/SRS/EPSG.XML#4326",
}

// NormalizeProjection maps known spellings of geographic WGS84 onto WGS84 and
// returns any other projection string trimmed but otherwise untouched.
func NormalizeProjection(p string) string {
	s := strings.TrimSpace(p)
	u := strings.ToUpper(s)
	if slices.Contains(wgs84Aliases, u) {
		return WGS84
	}
	if strings.HasPrefix(u, "+PROJ=LONGLAT") && strings.Contains(u, "WGS84") {
		return WGS84
	}
	if strings.HasPrefix(u, "GEOGCS[\"WGS 84\"") || strings.HasPrefix(u, "GEOGCS[\"GCS_WGS_1984\"") {
		return WGS84
	}
	return s
}

func SameProjection(a, b string) bool {
	return NormalizeProjection(a) == NormalizeProjection(b)
}
