package summary

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// CellOf returns the H3 cell containing p (lon, lat).
func CellOf(p orb.Point, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat(), Lng: p.Lon()}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell of %v: %w", p, err)
	}
	return c.String(), nil
}

// CellsForBBox returns the sorted cells whose centres fall inside bb.
func CellsForBBox(bb model.BBox, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	// v4 wants degrees
	outer := h3.GeoLoop{
		{Lat: bb.South, Lng: bb.West},
		{Lat: bb.South, Lng: bb.East},
		{Lat: bb.North, Lng: bb.East},
		{Lat: bb.North, Lng: bb.West},
	}
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	out := make([]string, 0, len(cells))
	seen := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		s := c.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// Parent coarsens cell to parentRes.
func Parent(cell string, parentRes int) (string, error) {
	if err := validateRes(parentRes); err != nil {
		return "", err
	}
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return "", fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return "", fmt.Errorf("invalid h3 cell %q", cell)
	}
	cur := c.Resolution()
	if parentRes > cur {
		return "", fmt.Errorf("parentRes %d must be <= cell resolution %d", parentRes, cur)
	}
	if parentRes == cur {
		return cell, nil
	}
	p, err := c.Parent(parentRes)
	if err != nil {
		return "", fmt.Errorf("h3 parent: %w", err)
	}
	return p.String(), nil
}
