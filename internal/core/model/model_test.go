package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestKeywordsKeepInsertionOrder(t *testing.T) {
	kw := NewKeywords()
	kw.Set("category", "hazard")
	kw.SetBare("earthquake")
	kw.Set("subcategory", "earthquake")
	kw.Set("category", "exposure")

	got := kw.Keys()
	want := []string{"category", "earthquake", "subcategory"}
	if len(got) != len(want) {
		t.Fatalf("keys=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys=%v want %v", got, want)
		}
	}
	if v, _ := kw.Get("category"); v != "exposure" {
		t.Fatalf("category=%q", v)
	}
	if _, ok := kw.Get("earthquake"); ok || !kw.Has("earthquake") {
		t.Fatalf("bare keyword must be present without a value")
	}
}

func TestKeywordsJSONRoundTrip(t *testing.T) {
	kw := KeywordsFrom("b", "2", "a", "1")
	kw.SetBare("c")
	raw, err := json.Marshal(kw)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Keywords
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if k := back.Keys(); len(k) != 3 || k[0] != "b" || k[2] != "c" {
		t.Fatalf("order lost: %v", k)
	}
}

func TestParseKeywordList(t *testing.T) {
	kw, err := ParseKeywordList("category:hazard, subcategory:earthquake ,unit:MMI,datatype")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v, _ := kw.Get("subcategory"); v != "earthquake" {
		t.Fatalf("subcategory=%q", v)
	}
	if !kw.Has("datatype") {
		t.Fatalf("bare keyword dropped")
	}
	if _, err := ParseKeywordList(":x"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestNewRasterRejectsBadGeotransform(t *testing.T) {
	data := [][]float64{{1, 2}, {3, 4}}
	if _, err := NewRaster("r", WGS84, data, Geotransform{0, -1, 0, 0, 0, -1}, nil); err == nil {
		t.Fatalf("negative pixel width must be rejected")
	}
	if _, err := NewRaster("r", WGS84, data, Geotransform{0, 1, 0, 0, 0, 1}, nil); err == nil {
		t.Fatalf("positive pixel height must be rejected")
	}
	if _, err := NewRaster("r", WGS84, [][]float64{{1, 2}, {3}}, Geotransform{0, 1, 0, 0, 0, -1}, nil); err == nil {
		t.Fatalf("ragged rows must be rejected")
	}
}

func TestRasterBoundingBoxAndCopies(t *testing.T) {
	data := [][]float64{{1, 2, 3}, {4, 5, 6}}
	r, err := NewRaster("r", WGS84, data, Geotransform{100, 0.5, 0, -5, 0, -0.25}, nil)
	if err != nil {
		t.Fatalf("new raster: %v", err)
	}
	bb := r.BoundingBox()
	want := BBox{West: 100, South: -5.5, East: 101.5, North: -5}
	if bb != want {
		t.Fatalf("bbox=%+v want %+v", bb, want)
	}
	d := r.Data()
	d[0][0] = 99
	if r.At(0, 0) != 1 {
		t.Fatalf("Data must return a copy")
	}
	data[1][2] = 42
	if r.At(1, 2) != 6 {
		t.Fatalf("constructor must copy its input")
	}
}

func TestVectorConstruction(t *testing.T) {
	pts := []orb.Point{{1, 1}, {2, 2}}
	if _, err := NewPointVector("v", WGS84, pts, []string{"A"}, []Attributes{{"A": 1}}, nil); err == nil {
		t.Fatalf("mismatched geometry/attribute lengths must fail")
	}
	if _, err := NewPointVector("v", WGS84, pts, []string{"A"}, []Attributes{{"B": 1}, {}}, nil); err == nil {
		t.Fatalf("undeclared field must fail")
	}
	v, err := NewPointVector("v", WGS84, pts, []string{"A", "B"}, []Attributes{{"A": 1}, {"A": 2.5, "B": "x"}}, nil)
	if err != nil {
		t.Fatalf("new vector: %v", err)
	}
	if v.Value(0, "A") != int64(1) || v.Value(0, "B") != nil {
		t.Fatalf("row 0 = %v", v.Attributes(0))
	}

	open := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	if _, err := NewPolygonVector("p", WGS84, []orb.Ring{open}, nil, nil, nil); err == nil {
		t.Fatalf("open ring must fail")
	}
}

func TestTristate(t *testing.T) {
	cases := map[string]Tristate{
		"true": Yes, "Yes": Yes, "1": Yes,
		"False": No, "no": No, "0": No,
		"": Unspecified, "maybe": Unspecified,
	}
	for in, want := range cases {
		if got := ParseTristate(in); got != want {
			t.Fatalf("ParseTristate(%q)=%v want %v", in, got, want)
		}
	}
}

func TestScaleDensity(t *testing.T) {
	kw := KeywordsFrom("density", "Yes", "resolution", "0.01")
	r, err := NewRaster("pop", WGS84, [][]float64{{4, math.NaN()}}, Geotransform{0, 0.02, 0, 1, 0, -0.02}, kw)
	if err != nil {
		t.Fatalf("new raster: %v", err)
	}
	s, err := ScaleDensity(r, ScalingAuto)
	if err != nil {
		t.Fatalf("scale: %v", err)
	}
	if got := s.At(0, 0); math.Abs(got-16) > 1e-12 {
		t.Fatalf("scaled=%v want 16", got)
	}
	if !math.IsNaN(s.At(0, 1)) {
		t.Fatalf("nodata must stay nodata")
	}

	kw.Set("density", "no")
	s, err = ScaleDensity(r, ScalingAuto)
	if err != nil || s.At(0, 0) != 4 {
		t.Fatalf("density=no must leave values alone (got %v, %v)", s.At(0, 0), err)
	}

	if _, err := ScaleDensity(r, ScalingMode("sometimes")); err == nil {
		t.Fatalf("unknown mode must fail")
	}
}

func TestNormalizeProjection(t *testing.T) {
	for _, p := range []string{"EPSG:4326", "epsg:4326", "WGS84", "urn:ogc:def:crs:EPSG::4326", "+proj=longlat +datum=WGS84 +no_defs"} {
		if NormalizeProjection(p) != WGS84 {
			t.Fatalf("%q not recognized as WGS84", p)
		}
	}
	if SameProjection("EPSG:4326", "EPSG:32748") {
		t.Fatalf("different projections compared equal")
	}
}
