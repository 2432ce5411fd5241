// Package plugin defines the impact function contract and the registry through
// which functions are discovered.
//
// An impact function declares the layers it can work with as a list of
// structured requirements on layer keywords and layer type. The matcher is a
// pure function of those requirements and a layer description, so the set of
// admissible functions for a hazard/exposure pair can be computed from metadata
// alone, before any data is downloaded.
package plugin

import (
	"strings"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

// Function is an impact function. Run receives the hazard layer followed by the
// exposure layer and returns the derived impact layer. GenerateStyle renders a
// style document for that layer.
type Function interface {
	Name() string
	Requirements() []Requirement
	Run(layers []model.Layer) (model.Layer, error)
	GenerateStyle(out model.Layer) (string, error)
}

// Requirement constrains one input layer.
type Requirement struct {
	// Category must equal the layer's "category" keyword, ignoring case.
	Category string `json:"category"`
	// Subcategory must prefix the layer's "subcategory" keyword, ignoring case.
	Subcategory string `json:"subcategory,omitempty"`
	// LayerType restricts the layer kind; empty accepts either.
	LayerType model.LayerType `json:"layer_type,omitempty"`
}

// Descriptor is what the matcher knows about a layer.
type Descriptor struct {
	Name      string
	LayerType model.LayerType
	Keywords  *model.Keywords
}

func DescriptorOf(l model.Layer) Descriptor {
	return Descriptor{Name: l.Name(), LayerType: l.Type(), Keywords: l.Keywords()}
}

func DescriptorFromMetadata(m model.Metadata) Descriptor {
	return Descriptor{Name: m.ID, LayerType: m.LayerType, Keywords: m.Keywords}
}

func (r Requirement) Matches(d Descriptor) bool {
	if r.LayerType != "" && r.LayerType != d.LayerType {
		return false
	}
	if r.Category != "" {
		c, ok := d.Keywords.Get("category")
		if !ok || !strings.EqualFold(strings.TrimSpace(c), r.Category) {
			return false
		}
	}
	if r.Subcategory != "" {
		s, ok := d.Keywords.Get("subcategory")
		if !ok || !hasPrefixFold(strings.TrimSpace(s), r.Subcategory) {
			return false
		}
	}
	return true
}

// Satisfied reports whether every requirement is met by at least one layer.
func Satisfied(reqs []Requirement, layers []Descriptor) bool {
	for _, r := range reqs {
		met := false
		for _, d := range layers {
			if r.Matches(d) {
				met = true
				break
			}
		}
		if !met {
			return false
		}
	}
	return true
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
