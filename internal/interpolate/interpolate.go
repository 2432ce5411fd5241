// Package interpolate drapes raster values onto vector point features.
//
// Two methods are available. Nearest takes the value of the pixel containing
// the point; points on the east or south edge of the grid belong to the last
// column or row. Bilinear weights the four surrounding pixel centres and
// clamps at the border, so a point between the outermost centre and the grid
// edge takes the edge value. If any of the four neighbours is nodata, bilinear
// falls back to nearest.
//
// A point outside the raster extent, or one that lands on nodata, gets a nil
// value. Neither is an error.
package interpolate

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

type Method string

const (
	Nearest  Method = "nearest"
	Bilinear Method = "bilinear"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Bilinear, nil
	case Nearest, Bilinear:
		return m, nil
	default:
		return "", fmt.Errorf("unknown interpolation method %q", s)
	}
}

// Interpolate returns a layer with the geometry and attributes of points plus
// attribute, holding the raster value at each point. An empty attribute name
// uses the raster's name.
func Interpolate(r *model.Raster, points *model.Vector, attribute string, m Method) (*model.Vector, error) {
	if points.IsPolygon() {
		return nil, apperr.Validation("interpolation of %q onto %q needs point geometry, got polygons", r.Name(), points.Name())
	}
	if attribute == "" {
		attribute = r.Name()
	}
	if points.HasField(attribute) {
		return nil, apperr.Validation("layer %q already has an attribute %q", points.Name(), attribute)
	}
	var sample func(orb.Point) (float64, bool)
	switch m {
	case Nearest:
		sample = func(p orb.Point) (float64, bool) { return nearest(r, p) }
	case Bilinear:
		sample = func(p orb.Point) (float64, bool) { return bilinear(r, p) }
	default:
		return nil, apperr.Validation("unknown interpolation method %q", m)
	}

	pts := points.Points()
	attrs := points.AllAttributes()
	for i, p := range pts {
		if v, ok := sample(p); ok {
			attrs[i][attribute] = v
		} else {
			attrs[i][attribute] = nil
		}
	}
	fields := append(points.Fields(), attribute)
	kw := points.Keywords().Clone()
	kw.Set("interpolation", string(m))
	return model.NewPointVector(points.Name(), points.Projection(), pts, fields, attrs, kw)
}

// cell returns fractional column and row of p, and whether p is inside the grid.
func cell(r *model.Raster, p orb.Point) (fx, fy float64, inside bool) {
	gt := r.Geotransform()
	fx = (p[0] - gt[0]) / gt[1]
	fy = (p[1] - gt[3]) / gt[5]
	cols, rows := float64(r.Columns()), float64(r.Rows())
	inside = fx >= 0 && fx <= cols && fy >= 0 && fy <= rows
	return fx, fy, inside
}

func nearest(r *model.Raster, p orb.Point) (float64, bool) {
	fx, fy, inside := cell(r, p)
	if !inside {
		return 0, false
	}
	col := min(int(math.Floor(fx)), r.Columns()-1)
	row := min(int(math.Floor(fy)), r.Rows()-1)
	v := r.At(row, col)
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func bilinear(r *model.Raster, p orb.Point) (float64, bool) {
	fx, fy, inside := cell(r, p)
	if !inside {
		return 0, false
	}
	// pixel centres sit at half-integer offsets
	x, y := fx-0.5, fy-0.5
	c0, tx := span(x, r.Columns())
	r0, ty := span(y, r.Rows())
	c1, r1 := min(c0+1, r.Columns()-1), min(r0+1, r.Rows()-1)

	v00, v01 := r.At(r0, c0), r.At(r0, c1)
	v10, v11 := r.At(r1, c0), r.At(r1, c1)
	if math.IsNaN(v00) || math.IsNaN(v01) || math.IsNaN(v10) || math.IsNaN(v11) {
		return nearest(r, p)
	}
	top := v00*(1-tx) + v01*tx
	bottom := v10*(1-tx) + v11*tx
	return top*(1-ty) + bottom*ty, true
}

// span returns the lower index and the weight of the upper neighbour for a
// centre-relative coordinate, clamped to [0, n-1].
func span(x float64, n int) (int, float64) {
	if x <= 0 {
		return 0, 0
	}
	if x >= float64(n-1) {
		return n - 1, 0
	}
	i := int(math.Floor(x))
	return i, x - float64(i)
}
