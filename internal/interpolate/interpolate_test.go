package interpolate

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

// 3x3 grid over [0,3]x[0,3] with values 5..9 rising to the south-east.
func ramp(t *testing.T) *model.Raster {
	t.Helper()
	data := [][]float64{
		{5, 6, 7},
		{6, 7, 8},
		{7, 8, 9},
	}
	r, err := model.NewRaster("MMI", model.WGS84, data, model.Geotransform{0, 1, 0, 3, 0, -1}, nil)
	if err != nil {
		t.Fatalf("new raster: %v", err)
	}
	return r
}

func pts(t *testing.T, p ...orb.Point) *model.Vector {
	t.Helper()
	attrs := make([]model.Attributes, len(p))
	for i := range attrs {
		attrs[i] = model.Attributes{"ID": int64(i)}
	}
	v, err := model.NewPointVector("buildings", model.WGS84, p, []string{"ID"}, attrs, nil)
	if err != nil {
		t.Fatalf("new vector: %v", err)
	}
	return v
}

func TestNearest(t *testing.T) {
	out, err := Interpolate(ramp(t), pts(t, orb.Point{1.5, 1.5}, orb.Point{0.2, 2.9}, orb.Point{3, 0}), "MMI", Nearest)
	if err != nil {
		t.Fatalf("interpolate: %v", err)
	}
	want := []float64{7, 5, 9}
	for i, w := range want {
		if got := out.Value(i, "MMI"); got != w {
			t.Fatalf("point %d: got %v want %v", i, got, w)
		}
		if out.Value(i, "ID") != int64(i) {
			t.Fatalf("point %d lost attribute ID", i)
		}
	}
	if kw, _ := out.Keywords().Get("interpolation"); kw != "nearest" {
		t.Fatalf("interpolation keyword=%q", kw)
	}
}

func TestOutsideExtentIsNil(t *testing.T) {
	out, err := Interpolate(ramp(t), pts(t, orb.Point{-0.1, 1}, orb.Point{1, 3.5}), "MMI", Bilinear)
	if err != nil {
		t.Fatalf("interpolate: %v", err)
	}
	for i := range 2 {
		if out.Value(i, "MMI") != nil {
			t.Fatalf("point %d: want nil, got %v", i, out.Value(i, "MMI"))
		}
	}
}

func TestBilinear(t *testing.T) {
	// halfway between the centres of (row 0, col 0) and (row 1, col 1)
	out, err := Interpolate(ramp(t), pts(t, orb.Point{1, 2}, orb.Point{0.5, 2.5}, orb.Point{0.1, 2.9}), "MMI", Bilinear)
	if err != nil {
		t.Fatalf("interpolate: %v", err)
	}
	checks := []float64{6, 5, 5}
	for i, w := range checks {
		got, _ := out.Value(i, "MMI").(float64)
		if math.Abs(got-w) > 1e-12 {
			t.Fatalf("point %d: got %v want %v", i, got, w)
		}
	}
}

func TestBilinearNodataFallsBackToNearest(t *testing.T) {
	r, err := model.NewRaster("MMI", model.WGS84, [][]float64{{5, math.NaN()}, {7, 8}}, model.Geotransform{0, 1, 0, 2, 0, -1}, nil)
	if err != nil {
		t.Fatalf("new raster: %v", err)
	}
	out, err := Interpolate(r, pts(t, orb.Point{0.9, 1.1}, orb.Point{1.5, 1.5}), "MMI", Bilinear)
	if err != nil {
		t.Fatalf("interpolate: %v", err)
	}
	if out.Value(0, "MMI") != 5.0 {
		t.Fatalf("got %v want 5", out.Value(0, "MMI"))
	}
	if out.Value(1, "MMI") != nil {
		t.Fatalf("nodata pixel must give nil, got %v", out.Value(1, "MMI"))
	}
}

func TestPolygonsRejected(t *testing.T) {
	sq := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	v, err := model.NewPolygonVector("b", model.WGS84, []orb.Ring{sq}, nil, nil, nil)
	if err != nil {
		t.Fatalf("new vector: %v", err)
	}
	if _, err := Interpolate(ramp(t), v, "MMI", Nearest); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestParseMethod(t *testing.T) {
	if m, err := ParseMethod(""); err != nil || m != Bilinear {
		t.Fatalf("default method = %v, %v", m, err)
	}
	if _, err := ParseMethod("cubic"); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}
