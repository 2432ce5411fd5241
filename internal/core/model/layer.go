package model

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Layer is the behaviour shared by raster and vector layers.
type Layer interface {
	Name() string
	Projection() string
	Keywords() *Keywords
	Type() LayerType
	BoundingBox() BBox
}

type layerHeader struct {
	name       string
	projection string
	keywords   *Keywords
}

func (h layerHeader) Name() string       { return h.name }
func (h layerHeader) Projection() string { return h.projection }

// Keywords returns the mutable keyword set of the layer.
func (h layerHeader) Keywords() *Keywords { return h.keywords }

// Raster is a single-band grid with an affine geotransform. NaN marks nodata.
type Raster struct {
	layerHeader
	data []float64
	rows int
	cols int
	gt   Geotransform
}

// NewRaster validates data and geotransform and copies data into the layer.
func NewRaster(name, projection string, data [][]float64, gt Geotransform, kw *Keywords) (*Raster, error) {
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, fmt.Errorf("raster %q: data must have at least one row and one column", name)
	}
	if err := gt.Validate(); err != nil {
		return nil, fmt.Errorf("raster %q: %w", name, err)
	}
	rows, cols := len(data), len(data[0])
	flat := make([]float64, 0, rows*cols)
	for i, row := range data {
		if len(row) != cols {
			return nil, fmt.Errorf("raster %q: row %d has %d columns, want %d", name, i, len(row), cols)
		}
		flat = append(flat, row...)
	}
	if kw == nil {
		kw = NewKeywords()
	}
	return &Raster{
		layerHeader: layerHeader{name: name, projection: projection, keywords: kw},
		data:        flat,
		rows:        rows,
		cols:        cols,
		gt:          gt,
	}, nil
}

func (r *Raster) Type() LayerType            { return LayerRaster }
func (r *Raster) Rows() int                  { return r.rows }
func (r *Raster) Columns() int               { return r.cols }
func (r *Raster) Geotransform() Geotransform { return r.gt }
func (r *Raster) Resolution() Resolution     { return r.gt.Resolution() }

// At returns the value at row, col. Callers must stay within the grid.
func (r *Raster) At(row, col int) float64 { return r.data[row*r.cols+col] }

// Data returns a copy of the grid as rows.
func (r *Raster) Data() [][]float64 {
	out := make([][]float64, r.rows)
	for i := range out {
		out[i] = slices.Clone(r.data[i*r.cols : (i+1)*r.cols])
	}
	return out
}

func (r *Raster) BoundingBox() BBox {
	return BBox{
		West:  r.gt[0],
		North: r.gt[3],
		East:  r.gt[0] + float64(r.cols)*r.gt[1],
		South: r.gt[3] + float64(r.rows)*r.gt[5],
	}
}

// Scaled returns a copy of the raster with every value multiplied by sigma.
func (r *Raster) Scaled(sigma float64) *Raster {
	cp := *r
	cp.keywords = r.keywords.Clone()
	cp.data = make([]float64, len(r.data))
	for i, v := range r.data {
		cp.data[i] = v * sigma
	}
	return &cp
}

type GeometryKind string

const (
	GeometryPoint   GeometryKind = "point"
	GeometryPolygon GeometryKind = "polygon"
)

// Attributes is one feature's attribute mapping. Values are nil, string, int64 or float64.
type Attributes map[string]any

// Vector is a collection of point or polygon features sharing one attribute schema.
type Vector struct {
	layerHeader
	kind     GeometryKind
	points   []orb.Point
	polygons []orb.Ring
	fields   []string
	attrs    []Attributes
}

// NewPointVector builds a point layer. fields fixes the attribute order; attributes
// missing from a row are stored as nil.
func NewPointVector(name, projection string, points []orb.Point, fields []string, attrs []Attributes, kw *Keywords) (*Vector, error) {
	v := &Vector{kind: GeometryPoint, points: slices.Clone(points)}
	if err := v.init(name, projection, len(points), fields, attrs, kw); err != nil {
		return nil, err
	}
	return v, nil
}

// NewPolygonVector builds a polygon layer from exterior rings.
func NewPolygonVector(name, projection string, rings []orb.Ring, fields []string, attrs []Attributes, kw *Keywords) (*Vector, error) {
	cp := make([]orb.Ring, len(rings))
	for i, r := range rings {
		if len(r) < 4 {
			return nil, fmt.Errorf("vector %q: polygon %d has %d vertices, need at least 4", name, i, len(r))
		}
		if !r.Closed() {
			return nil, fmt.Errorf("vector %q: polygon %d is not closed", name, i)
		}
		cp[i] = slices.Clone(r)
	}
	v := &Vector{kind: GeometryPolygon, polygons: cp}
	if err := v.init(name, projection, len(rings), fields, attrs, kw); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vector) init(name, projection string, n int, fields []string, attrs []Attributes, kw *Keywords) error {
	if attrs == nil {
		attrs = make([]Attributes, n)
	}
	if len(attrs) != n {
		return fmt.Errorf("vector %q: %d geometries but %d attribute rows", name, n, len(attrs))
	}
	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := known[f]; dup {
			return fmt.Errorf("vector %q: duplicate field %q", name, f)
		}
		known[f] = struct{}{}
	}
	rows := make([]Attributes, n)
	for i, a := range attrs {
		row := make(Attributes, len(fields))
		for k, val := range a {
			if _, ok := known[k]; !ok {
				return fmt.Errorf("vector %q: row %d has undeclared field %q", name, i, k)
			}
			norm, err := normalizeValue(val)
			if err != nil {
				return fmt.Errorf("vector %q: row %d field %q: %w", name, i, k, err)
			}
			row[k] = norm
		}
		for _, f := range fields {
			if _, ok := row[f]; !ok {
				row[f] = nil
			}
		}
		rows[i] = row
	}
	if kw == nil {
		kw = NewKeywords()
	}
	v.layerHeader = layerHeader{name: name, projection: projection, keywords: kw}
	v.fields = slices.Clone(fields)
	v.attrs = rows
	return nil
}

func normalizeValue(val any) (any, error) {
	switch x := val.(type) {
	case nil, string, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", val)
	}
}

func (v *Vector) Type() LayerType            { return LayerVector }
func (v *Vector) GeometryKind() GeometryKind { return v.kind }

func (v *Vector) Len() int {
	if v.kind == GeometryPolygon {
		return len(v.polygons)
	}
	return len(v.points)
}

func (v *Vector) IsPolygon() bool  { return v.kind == GeometryPolygon }
func (v *Vector) Fields() []string { return slices.Clone(v.fields) }

// Points returns a copy of the point geometry. It is empty for polygon layers.
func (v *Vector) Points() []orb.Point { return slices.Clone(v.points) }

// Polygons returns a copy of the polygon rings. It is empty for point layers.
func (v *Vector) Polygons() []orb.Ring {
	out := make([]orb.Ring, len(v.polygons))
	for i, r := range v.polygons {
		out[i] = slices.Clone(r)
	}
	return out
}

// Geometry returns feature i as an orb geometry.
func (v *Vector) Geometry(i int) orb.Geometry {
	if v.kind == GeometryPolygon {
		return orb.Polygon{slices.Clone(v.polygons[i])}
	}
	return v.points[i]
}

// Attributes returns a copy of the attribute row of feature i.
func (v *Vector) Attributes(i int) Attributes {
	out := make(Attributes, len(v.attrs[i]))
	for k, val := range v.attrs[i] {
		out[k] = val
	}
	return out
}

// AllAttributes returns a copy of every attribute row.
func (v *Vector) AllAttributes() []Attributes {
	out := make([]Attributes, len(v.attrs))
	for i := range v.attrs {
		out[i] = v.Attributes(i)
	}
	return out
}

// Value returns field of feature i, or nil when absent.
func (v *Vector) Value(i int, field string) any { return v.attrs[i][field] }

func (v *Vector) HasField(field string) bool { return slices.Contains(v.fields, field) }

func (v *Vector) BoundingBox() BBox {
	var b orb.Bound
	first := true
	extend := func(p orb.Point) {
		if first {
			b = orb.Bound{Min: p, Max: p}
			first = false
			return
		}
		b = b.Extend(p)
	}
	for _, p := range v.points {
		extend(p)
	}
	for _, r := range v.polygons {
		for _, p := range r {
			extend(p)
		}
	}
	return BBox{West: b.Min[0], South: b.Min[1], East: b.Max[0], North: b.Max[1]}
}

// WithAttributes returns a layer with the same geometry and the given schema and rows.
func (v *Vector) WithAttributes(name string, fields []string, attrs []Attributes, kw *Keywords) (*Vector, error) {
	if v.kind == GeometryPolygon {
		return NewPolygonVector(name, v.projection, v.polygons, fields, attrs, kw)
	}
	return NewPointVector(name, v.projection, v.points, fields, attrs, kw)
}

// NumericValue converts an attribute value to float64. ok is false for nil or
// strings that do not parse.
func NumericValue(val any) (float64, bool) {
	switch x := val.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
