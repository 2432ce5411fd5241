package geom

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

// PolygonArea returns the shoelace area of ring. Counter-clockwise rings are
// positive when signed is true.
func PolygonArea(ring orb.Ring, signed bool) float64 {
	a := shoelace(ring)
	if signed {
		return a
	}
	return math.Abs(a)
}

func shoelace(ring orb.Ring) float64 {
	n := len(ring)
	var sum float64
	for i := range n {
		j := (i + 1) % n
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum / 2
}

// PolygonCentroid returns the area centroid of ring. The ring is moved to the
// origin by its minimum corner before the sums are taken, then moved back;
// the products overflow precision for geographic coordinates otherwise.
func PolygonCentroid(ring orb.Ring) (orb.Point, error) {
	if len(ring) < 3 {
		return orb.Point{}, apperr.Validation("polygon needs at least 3 vertices, got %d", len(ring))
	}
	b := ring.Bound()
	x0, y0 := b.Min[0], b.Min[1]

	n := len(ring)
	var a, cx, cy float64
	for i := range n {
		j := (i + 1) % n
		xi, yi := ring[i][0]-x0, ring[i][1]-y0
		xj, yj := ring[j][0]-x0, ring[j][1]-y0
		cross := xi*yj - xj*yi
		a += cross
		cx += (xi + xj) * cross
		cy += (yi + yj) * cross
	}
	a /= 2
	if a == 0 {
		return orb.Point{}, apperr.Validation("polygon has zero area, centroid is undefined")
	}
	return orb.Point{cx/(6*a) + x0, cy/(6*a) + y0}, nil
}

// Centroids reduces a polygon layer to a point layer at each polygon's
// centroid, keeping every attribute. Point layers are rejected.
func Centroids(v *model.Vector) (*model.Vector, error) {
	if !v.IsPolygon() {
		return nil, apperr.Validation("expected polygon geometry in %q, got %s", v.Name(), v.GeometryKind())
	}
	rings := v.Polygons()
	pts := make([]orb.Point, len(rings))
	for i, r := range rings {
		c, err := PolygonCentroid(r)
		if err != nil {
			// fall back to the vertex mean for slivers
			c = vertexMean(r)
		}
		pts[i] = c
	}
	return model.NewPointVector(v.Name(), v.Projection(), pts, v.Fields(), v.AllAttributes(), v.Keywords().Clone())
}

func vertexMean(r orb.Ring) orb.Point {
	n := len(r)
	if n > 1 && r.Closed() {
		n--
	}
	var x, y float64
	for _, p := range r[:n] {
		x += p[0]
		y += p[1]
	}
	return orb.Point{x / float64(n), y / float64(n)}
}
