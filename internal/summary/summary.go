// Package summary aggregates an impact layer into per-class counts and per H3
// cell statistics. Vector features are placed by their point or polygon
// centroid; raster pixels by their centre.
package summary

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/geom"
)

// DefaultResolution is coarse enough for a city sized viewport.
const DefaultResolution = 7

// Unclassified is the class of features without a value.
const Unclassified = "none"

type ClassCount struct {
	Class string `json:"class"`
	Count int    `json:"count"`
}

type Cell struct {
	Cell  string `json:"cell"`
	Count int    `json:"count"`
	// Valued counts the features or pixels with a numeric value; Max and
	// Mean are over those.
	Valued int     `json:"valued"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	// Classes counts features per class within the cell. Empty for rasters.
	Classes map[string]int `json:"classes,omitempty"`
}

type Summary struct {
	Layer      string       `json:"layer"`
	Field      string       `json:"field,omitempty"`
	Resolution int          `json:"h3_resolution"`
	Total      int          `json:"total"`
	Valued     int          `json:"valued"`
	Classes    []ClassCount `json:"classes,omitempty"`
	Cells      []Cell       `json:"cells"`
	// CellsInBBox and OccupiedCells are set by Cover.
	CellsInBBox   int `json:"cells_in_bbox,omitempty"`
	OccupiedCells int `json:"occupied_cells,omitempty"`
}

type acc struct {
	count   int
	valued  int
	sum     float64
	max     float64
	classes map[string]int
}

func (a *acc) add(v float64) {
	if a.valued == 0 || v > a.max {
		a.max = v
	}
	a.valued++
	a.sum += v
}

// Of summarises l at H3 resolution res. For vectors field names the attribute
// to count; the empty field falls back to the layer's target_field keyword.
func Of(l model.Layer, field string, res int) (Summary, error) {
	if err := validateRes(res); err != nil {
		return Summary{}, err
	}
	switch x := l.(type) {
	case *model.Vector:
		if field == "" {
			field, _ = x.Keywords().Get("target_field")
		}
		return ofVector(x, field, res)
	case *model.Raster:
		return ofRaster(x, res)
	default:
		return Summary{}, fmt.Errorf("summary: unsupported layer %T", l)
	}
}

func ofVector(v *model.Vector, field string, res int) (Summary, error) {
	if field != "" && !v.HasField(field) {
		return Summary{}, fmt.Errorf("summary: layer %q has no field %q", v.Name(), field)
	}
	pts := v.Points()
	if v.IsPolygon() {
		pts = make([]orb.Point, v.Len())
		for i, r := range v.Polygons() {
			c, err := geom.PolygonCentroid(r)
			if err != nil {
				return Summary{}, fmt.Errorf("summary: feature %d: %w", i, err)
			}
			pts[i] = c
		}
	}

	s := Summary{Layer: v.Name(), Field: field, Resolution: res, Total: v.Len()}
	classes := map[string]int{}
	cells := map[string]*acc{}
	for i, p := range pts {
		cell, err := CellOf(p, res)
		if err != nil {
			return Summary{}, err
		}
		a := cells[cell]
		if a == nil {
			a = &acc{classes: map[string]int{}}
			cells[cell] = a
		}
		a.count++
		if field == "" {
			continue
		}
		val := v.Value(i, field)
		class := classOf(val)
		classes[class]++
		a.classes[class]++
		if f, ok := model.NumericValue(val); ok {
			s.Valued++
			a.add(f)
		}
	}
	s.Classes = sortedClasses(classes)
	s.Cells = sortedCells(cells)
	return s, nil
}

func ofRaster(r *model.Raster, res int) (Summary, error) {
	s := Summary{Layer: r.Name(), Resolution: res, Total: r.Rows() * r.Columns()}
	gt := r.Geotransform()
	cells := map[string]*acc{}
	for row := range r.Rows() {
		for col := range r.Columns() {
			v := r.At(row, col)
			if math.IsNaN(v) {
				continue
			}
			p := orb.Point{
				gt[0] + (float64(col)+0.5)*gt[1],
				gt[3] + (float64(row)+0.5)*gt[5],
			}
			cell, err := CellOf(p, res)
			if err != nil {
				return Summary{}, err
			}
			a := cells[cell]
			if a == nil {
				a = &acc{}
				cells[cell] = a
			}
			a.count++
			a.add(v)
			s.Valued++
		}
	}
	s.Cells = sortedCells(cells)
	return s, nil
}

func classOf(v any) string {
	switch x := v.(type) {
	case nil:
		return Unclassified
	case string:
		if x == "" {
			return Unclassified
		}
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) {
			return Unclassified
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func sortedClasses(m map[string]int) []ClassCount {
	out := make([]ClassCount, 0, len(m))
	for k, n := range m {
		out = append(out, ClassCount{Class: k, Count: n})
	}
	slices.SortFunc(out, func(a, b ClassCount) int { return cmp.Compare(a.Class, b.Class) })
	return out
}

func sortedCells(m map[string]*acc) []Cell {
	out := make([]Cell, 0, len(m))
	for id, a := range m {
		c := Cell{Cell: id, Count: a.count, Valued: a.valued, Max: a.max, Classes: a.classes}
		if a.valued > 0 {
			c.Mean = a.sum / float64(a.valued)
		}
		if len(c.Classes) == 0 {
			c.Classes = nil
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Cell) int { return cmp.Compare(a.Cell, b.Cell) })
	return out
}

// Rollup merges cells into their parents at res.
func (s Summary) Rollup(res int) (Summary, error) {
	if res > s.Resolution {
		return Summary{}, fmt.Errorf("rollup resolution %d is finer than %d", res, s.Resolution)
	}
	out := s
	out.Resolution = res
	merged := map[string]*Cell{}
	for _, c := range s.Cells {
		p, err := Parent(c.Cell, res)
		if err != nil {
			return Summary{}, err
		}
		m := merged[p]
		if m == nil {
			m = &Cell{Cell: p}
			merged[p] = m
		}
		m.Count += c.Count
		if c.Valued > 0 {
			if m.Valued == 0 || c.Max > m.Max {
				m.Max = c.Max
			}
			sum := m.Mean*float64(m.Valued) + c.Mean*float64(c.Valued)
			m.Valued += c.Valued
			m.Mean = sum / float64(m.Valued)
		}
		for k, n := range c.Classes {
			if m.Classes == nil {
				m.Classes = map[string]int{}
			}
			m.Classes[k] += n
		}
	}
	out.Cells = make([]Cell, 0, len(merged))
	for _, c := range merged {
		out.Cells = append(out.Cells, *c)
	}
	slices.SortFunc(out.Cells, func(a, b Cell) int { return cmp.Compare(a.Cell, b.Cell) })
	return out, nil
}

// maxCoverCells bounds the polyfill done by Cover.
const maxCoverCells = 200_000

// Cover counts the cells at the summary resolution whose centres lie in bb and
// how many of them hold a summarised feature or pixel. Boxes that would need
// more than maxCoverCells cells are left uncounted.
func (s *Summary) Cover(bb model.BBox) error {
	s.CellsInBBox, s.OccupiedCells = 0, 0
	if !bb.Valid() || estimateCells(bb, s.Resolution) > maxCoverCells {
		return nil
	}
	cells, err := CellsForBBox(bb, s.Resolution)
	if err != nil {
		return err
	}
	s.CellsInBBox = len(cells)
	for _, c := range s.Cells {
		if _, ok := slices.BinarySearch(cells, c.Cell); ok {
			s.OccupiedCells++
		}
	}
	return nil
}

// estimateCells scales the 122 base cells by the share of the lon/lat plane
// covered by bb. Each finer level has seven children.
func estimateCells(bb model.BBox, res int) float64 {
	share := bb.Width() * bb.Height() / (360 * 180)
	return share * 122 * math.Pow(7, float64(res))
}
