package plugin

import (
	"testing"

	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

type stubFunction struct {
	name string
	reqs []Requirement
}

func (s stubFunction) Name() string                { return s.name }
func (s stubFunction) Requirements() []Requirement { return s.reqs }
func (s stubFunction) Run([]model.Layer) (model.Layer, error) {
	return nil, nil
}
func (s stubFunction) GenerateStyle(model.Layer) (string, error) { return "", nil }

var (
	quakeRaster = Descriptor{
		Name:      "shakemap",
		LayerType: model.LayerRaster,
		Keywords:  model.KeywordsFrom("category", "Hazard", "subcategory", "earthquake", "unit", "MMI"),
	}
	buildings = Descriptor{
		Name:      "osm_buildings",
		LayerType: model.LayerVector,
		Keywords:  model.KeywordsFrom("category", "exposure", "subcategory", "building"),
	}
	floodRaster = Descriptor{
		Name:      "flood",
		LayerType: model.LayerRaster,
		Keywords:  model.KeywordsFrom("category", "hazard", "subcategory", "flood"),
	}
)

var quakeReqs = []Requirement{
	{Category: "hazard", Subcategory: "earthquake", LayerType: model.LayerRaster},
	{Category: "exposure", Subcategory: "building", LayerType: model.LayerVector},
}

func TestRequirementMatches(t *testing.T) {
	if !quakeReqs[0].Matches(quakeRaster) {
		t.Fatalf("hazard requirement should match shakemap")
	}
	if quakeReqs[0].Matches(floodRaster) {
		t.Fatalf("earthquake requirement matched flood")
	}
	vec := quakeRaster
	vec.LayerType = model.LayerVector
	if quakeReqs[0].Matches(vec) {
		t.Fatalf("layer type must be honoured")
	}
	r := Requirement{Category: "exposure", Subcategory: "build"}
	if !r.Matches(buildings) {
		t.Fatalf("subcategory is a prefix match")
	}
	if (Requirement{Category: "exposure"}).Matches(Descriptor{Keywords: model.NewKeywords()}) {
		t.Fatalf("missing category keyword must not match")
	}
}

func TestSatisfied(t *testing.T) {
	if !Satisfied(quakeReqs, []Descriptor{quakeRaster, buildings}) {
		t.Fatalf("expected requirements to be met")
	}
	if Satisfied(quakeReqs, []Descriptor{floodRaster, buildings}) {
		t.Fatalf("flood hazard should not satisfy earthquake function")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Add(stubFunction{name: "Quake", reqs: quakeReqs}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.Add(stubFunction{name: "Flood", reqs: []Requirement{{Category: "hazard", Subcategory: "flood"}}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.Add(stubFunction{name: "Quake"}); err == nil {
		t.Fatalf("duplicate registration must fail")
	}
	if names := reg.Names(); len(names) != 2 || names[0] != "Flood" {
		t.Fatalf("names=%v", names)
	}
	got := reg.Admissible(quakeRaster, buildings)
	if len(got) != 1 || got[0].Name() != "Quake" {
		t.Fatalf("admissible=%v", got)
	}
	if _, err := reg.Lookup("nope"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}
