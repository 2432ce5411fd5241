// Package earthquake provides the built-in earthquake building damage functions.
package earthquake

import (
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin/mapping"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin/threshold"
)

// Requirements shared by the earthquake building functions.
var buildingRequirements = []plugin.Requirement{
	{Category: "hazard", Subcategory: "earthquake", LayerType: model.LayerRaster},
	{Category: "exposure", Subcategory: "building", LayerType: model.LayerVector},
}

const BNPBName = "Earthquake Building Damage (BNPB guidelines)"

// BNPB classifies buildings into three damage levels from shaking intensity
// (MMI), following the Indonesian disaster management agency guidelines.
var BNPB = threshold.MustNew(threshold.Config{
	Name:         BNPBName,
	Requirements: buildingRequirements,
	OutputName:   "Estimated damage level",
	HazardField:  "MMI",
	TargetField:  "DMGLEVEL",
	ClassField:   "VCLASS",
	Breakpoints: map[string][]float64{
		mapping.ClassURM: {6, 7},
		mapping.ClassRM:  {6, 8},
	},
	// unclassified buildings are treated as the more vulnerable class
	Default:         []float64{6, 7},
	Labels:          []string{"Low", "Medium", "High"},
	Colours:         []string{"#1EFC7C", "#FD8D3C", "#F31A1C"},
	Mapping:         mapping.OSMToBNPB.Name,
	RequirePolygons: true,
})

func init() {
	plugin.Register(BNPB)
	plugin.Register(Padang)
}
