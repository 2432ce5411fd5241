// Package geom implements the bounding box and polygon algebra used to reconcile
// hazard and exposure layers.
package geom

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

// DefaultEpsilon is the tolerance used when snapping boxes to a pixel grid.
const DefaultEpsilon = 1e-6

// GeotransformToBBox returns the extent of a cols x rows grid.
func GeotransformToBBox(gt model.Geotransform, cols, rows int) model.BBox {
	return model.BBox{
		West:  gt[0],
		North: gt[3],
		East:  gt[0] + float64(cols)*gt[1],
		South: gt[3] + float64(rows)*gt[5],
	}
}

// BBoxToGrid is the inverse of GeotransformToBBox for a north-up grid at res.
// Counts are rounded to the nearest whole pixel.
func BBoxToGrid(bb model.BBox, res model.Resolution) (model.Geotransform, int, int, error) {
	if res.X <= 0 || res.Y <= 0 {
		return model.Geotransform{}, 0, 0, apperr.Validation("resolution must be positive, got %v", res)
	}
	if err := ValidateBBox(bb); err != nil {
		return model.Geotransform{}, 0, 0, err
	}
	cols := int(math.Round(bb.Width() / res.X))
	rows := int(math.Round(bb.Height() / res.Y))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	gt := model.Geotransform{bb.West, res.X, 0, bb.North, 0, -res.Y}
	return gt, cols, rows, nil
}

// ValidateBBox rejects degenerate, inverted and non-finite boxes.
func ValidateBBox(bb model.BBox) error {
	for _, v := range bb.Slice() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return apperr.Validation("bounding box %v has a non-finite coordinate", bb.Slice())
		}
	}
	if !(bb.West < bb.East) {
		return apperr.Validation("western border %v must be less than eastern border %v", bb.West, bb.East)
	}
	if !(bb.South < bb.North) {
		return apperr.Validation("southern border %v must be less than northern border %v", bb.South, bb.North)
	}
	return nil
}

// Intersection returns the common area of two or more boxes. ok is false when
// the boxes do not overlap; an invalid input box is an error.
func Intersection(boxes ...model.BBox) (model.BBox, bool, error) {
	if len(boxes) < 2 {
		return model.BBox{}, false, apperr.Validation("intersection needs at least two bounding boxes, got %d", len(boxes))
	}
	out := boxes[0]
	for i, bb := range boxes {
		if err := ValidateBBox(bb); err != nil {
			return model.BBox{}, false, fmt.Errorf("bounding box %d: %w", i, err)
		}
		out.West = math.Max(out.West, bb.West)
		out.South = math.Max(out.South, bb.South)
		out.East = math.Min(out.East, bb.East)
		out.North = math.Min(out.North, bb.North)
	}
	if !out.Valid() {
		return model.BBox{}, false, nil
	}
	return out, true, nil
}

// MinimalBoundingBox grows each side of bb narrower than minRes by
// (minRes-extent)/2 + eps at both ends, keeping its centre. Sides already
// spanning minRes are returned unchanged.
func MinimalBoundingBox(bb model.BBox, minRes, eps float64) (model.BBox, error) {
	if minRes <= 0 {
		return model.BBox{}, apperr.Validation("minimal resolution must be positive, got %v", minRes)
	}
	if bb.West > bb.East || bb.South > bb.North {
		return model.BBox{}, apperr.Validation("bounding box %v is inverted", bb.Slice())
	}
	if w := bb.Width(); w < minRes {
		grow := (minRes-w)/2 + eps
		bb.West -= grow
		bb.East += grow
	}
	if h := bb.Height(); h < minRes {
		grow := (minRes-h)/2 + eps
		bb.South -= grow
		bb.North += grow
	}
	return bb, nil
}

// BufferedBoundingBox grows bb by one pixel of res on every side.
func BufferedBoundingBox(bb model.BBox, res model.Resolution) model.BBox {
	return model.BBox{
		West:  bb.West - res.X,
		South: bb.South - res.Y,
		East:  bb.East + res.X,
		North: bb.North + res.Y,
	}
}

// ParseBBox parses "W,S,E,N" in geographic coordinates.
func ParseBBox(s string) (model.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return model.BBox{}, apperr.Validation("bounding box %q must have 4 comma-separated values: W,S,E,N", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.BBox{}, apperr.Validation("bounding box %q: value %d: %v", s, i+1, errors.Unwrap(err))
		}
		v[i] = f
	}
	bb := model.BBox{West: v[0], South: v[1], East: v[2], North: v[3]}
	if err := CheckGeographic(bb); err != nil {
		return model.BBox{}, err
	}
	return bb, nil
}

// CheckGeographic validates bb as a longitude/latitude box.
func CheckGeographic(bb model.BBox) error {
	if !(bb.West >= -180 && bb.West <= 180 && bb.East >= -180 && bb.East <= 180) {
		return apperr.Validation("longitude must be in [-180,180], got %v", bb.Slice())
	}
	if !(bb.South >= -90 && bb.South <= 90 && bb.North >= -90 && bb.North <= 90) {
		return apperr.Validation("latitude must be in [-90,90], got %v", bb.Slice())
	}
	return ValidateBBox(bb)
}

// FormatBBox renders bb as "W,S,E,N" with the given number of decimals.
func FormatBBox(bb model.BBox, decimals int) string {
	if decimals < 0 {
		decimals = 6
	}
	f := func(x float64) string { return strconv.FormatFloat(x, 'f', decimals, 64) }
	return f(bb.West) + "," + f(bb.South) + "," + f(bb.East) + "," + f(bb.North)
}
