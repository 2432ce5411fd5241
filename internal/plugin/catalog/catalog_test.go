package catalog

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin"
)

func TestLoadTestdata(t *testing.T) {
	fns, err := Load("testdata/flood.hcl")
	require.NoError(t, err)
	require.Len(t, fns, 2)

	assert.Equal(t, "Flood Building Inundation", fns[0].Name())
	assert.Equal(t, "INUNDATED", fns[0].TargetField())
	reqs := fns[0].Requirements()
	require.Len(t, reqs, 2)
	assert.Equal(t, model.LayerRaster, reqs[0].LayerType)
	assert.Equal(t, "flood", reqs[0].Subcategory)

	assert.Equal(t, "Tsunami Building Damage", fns[1].Name())
	assert.Equal(t, model.LayerType(""), fns[1].Requirements()[0].LayerType)
}

func TestCatalogFunctionRuns(t *testing.T) {
	fns, err := Load("testdata/flood.hcl")
	require.NoError(t, err)

	depth, err := model.NewRaster("depth", model.WGS84, [][]float64{{0.05, 2}}, model.Geotransform{0, 1, 0, 1, 0, -1},
		model.KeywordsFrom("category", "hazard", "subcategory", "flood"))
	require.NoError(t, err)
	bldg, err := model.NewPointVector("b", model.WGS84, []orb.Point{{0.5, 0.5}, {1.5, 0.5}}, nil, nil,
		model.KeywordsFrom("category", "exposure", "subcategory", "building"))
	require.NoError(t, err)

	out, err := fns[0].Run([]model.Layer{depth, bldg})
	require.NoError(t, err)
	v := out.(*model.Vector)
	assert.Equal(t, "Inundated buildings", v.Name())
	assert.Equal(t, int64(1), v.Value(0, "INUNDATED"))
	assert.Equal(t, int64(3), v.Value(1, "INUNDATED"))
}

func TestRegister(t *testing.T) {
	fns, err := Load("testdata/flood.hcl")
	require.NoError(t, err)
	reg := plugin.NewRegistry()
	require.NoError(t, Register(reg, fns))
	assert.Equal(t, []string{"Flood Building Inundation", "Tsunami Building Damage"}, reg.Names())
	assert.Error(t, Register(reg, fns), "duplicates must be rejected")
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"syntax": `function "x" {`,
		"missing field": `function "x" {
  target_field = "T"
  labels = ["a", "b"]
  colours = ["#000000", "#000000"]
  default = [1]
}`,
		"bad layer type": `function "x" {
  hazard_field = "H"
  target_field = "T"
  labels = ["a", "b"]
  colours = ["#000000", "#000000"]
  default = [1]
  requires {
    category = "hazard"
    layer_type = "mesh"
  }
}`,
		"duplicate class": `function "x" {
  hazard_field = "H"
  target_field = "T"
  class_field = "C"
  labels = ["a", "b"]
  colours = ["#000000", "#000000"]
  breakpoints "A" { values = [1] }
  breakpoints "A" { values = [2] }
}`,
	}
	for name, src := range cases {
		_, err := Parse([]byte(src), name+".hcl")
		assert.Error(t, err, name)
	}
}

func TestShippedCatalogLoads(t *testing.T) {
	fns, err := Load("../../../configs/impact_functions.hcl")
	require.NoError(t, err)
	require.NotEmpty(t, fns)
	require.NoError(t, Register(plugin.NewRegistry(), fns))
}
