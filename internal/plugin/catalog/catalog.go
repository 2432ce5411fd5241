// Package catalog loads threshold impact functions declared in HCL files.
//
// A catalog file holds any number of function blocks:
//
//	function "Flood Building Inundation" {
//	  output_name  = "Inundated buildings"
//	  hazard_field = "DEPTH"
//	  target_field = "INUNDATED"
//	  default      = [0.1, 1.0]
//	  labels       = ["Dry", "Wet", "Flooded"]
//	  colours      = ["#1EFC7C", "#FD8D3C", "#F31A1C"]
//
//	  requires {
//	    category    = "hazard"
//	    subcategory = "flood"
//	    layer_type  = "raster"
//	  }
//	  requires {
//	    category    = "exposure"
//	    subcategory = "building"
//	    layer_type  = "vector"
//	  }
//	}
//
// Per-class breakpoints are given as labelled blocks, with the class read
// from class_field:
//
//	breakpoints "URM" { values = [6, 7] }
package catalog

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/interpolate"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin/threshold"
)

type hclFile struct {
	Functions []*hclFunction `hcl:"function,block"`
}

type hclFunction struct {
	Name            string            `hcl:"name,label"`
	OutputName      string            `hcl:"output_name,optional"`
	HazardField     string            `hcl:"hazard_field"`
	TargetField     string            `hcl:"target_field"`
	ClassField      string            `hcl:"class_field,optional"`
	Default         []float64         `hcl:"default,optional"`
	Labels          []string          `hcl:"labels"`
	Colours         []string          `hcl:"colours"`
	Mapping         string            `hcl:"mapping,optional"`
	RequirePolygons bool              `hcl:"require_polygons,optional"`
	Interpolation   string            `hcl:"interpolation,optional"`
	Requires        []*hclRequirement `hcl:"requires,block"`
	Breakpoints     []*hclBreakpoints `hcl:"breakpoints,block"`
}

type hclRequirement struct {
	Category    string `hcl:"category"`
	Subcategory string `hcl:"subcategory,optional"`
	LayerType   string `hcl:"layer_type,optional"`
}

type hclBreakpoints struct {
	Class  string    `hcl:"class,label"`
	Values []float64 `hcl:"values"`
}

// Load parses the catalog file at path.
func Load(path string) ([]*threshold.Function, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse catalog %s: %w", path, diags)
	}
	return decode(path, f.Body)
}

// Parse decodes catalog source held in memory. filename is used in diagnostics.
func Parse(src []byte, filename string) ([]*threshold.Function, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse catalog %s: %w", filename, diags)
	}
	return decode(filename, f.Body)
}

func decode(name string, body hcl.Body) ([]*threshold.Function, error) {
	var root hclFile
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("decode catalog %s: %w", name, diags)
	}
	out := make([]*threshold.Function, 0, len(root.Functions))
	for _, hf := range root.Functions {
		fn, err := hf.build()
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", name, err)
		}
		out = append(out, fn)
	}
	return out, nil
}

func (hf *hclFunction) build() (*threshold.Function, error) {
	reqs := make([]plugin.Requirement, 0, len(hf.Requires))
	for _, r := range hf.Requires {
		req := plugin.Requirement{Category: r.Category, Subcategory: r.Subcategory}
		if r.LayerType != "" {
			lt, err := model.ParseLayerType(r.LayerType)
			if err != nil {
				return nil, fmt.Errorf("function %q: %w", hf.Name, err)
			}
			req.LayerType = lt
		}
		reqs = append(reqs, req)
	}
	method, err := interpolate.ParseMethod(hf.Interpolation)
	if err != nil {
		return nil, fmt.Errorf("function %q: %w", hf.Name, err)
	}
	var bps map[string][]float64
	if len(hf.Breakpoints) > 0 {
		bps = make(map[string][]float64, len(hf.Breakpoints))
		for _, b := range hf.Breakpoints {
			if _, dup := bps[b.Class]; dup {
				return nil, fmt.Errorf("function %q: duplicate breakpoints for class %q", hf.Name, b.Class)
			}
			bps[b.Class] = b.Values
		}
	}
	return threshold.New(threshold.Config{
		Name:            hf.Name,
		Requirements:    reqs,
		OutputName:      hf.OutputName,
		HazardField:     hf.HazardField,
		TargetField:     hf.TargetField,
		ClassField:      hf.ClassField,
		Breakpoints:     bps,
		Default:         hf.Default,
		Labels:          hf.Labels,
		Colours:         hf.Colours,
		Mapping:         hf.Mapping,
		RequirePolygons: hf.RequirePolygons,
		Interpolation:   method,
	})
}

// Register adds every function to reg.
func Register(reg *plugin.Registry, fns []*threshold.Function) error {
	for _, f := range fns {
		if err := reg.Add(f); err != nil {
			return err
		}
	}
	return nil
}
