// Package mapping translates building attributes from external taxonomies into
// the vulnerability classes expected by impact functions.
//
// A mapping is looked up by name ("osm2bnpb", "osm2padang") and applies only to
// layers recognised as coming from its source taxonomy: the layer name or its
// "datatype" keyword must start with one of the mapping's prefixes, ignoring
// case. Every original attribute is kept; the class is written to a target
// field.
package mapping

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

type Mapping struct {
	Name     string
	Prefixes []string
	Target   string
	classify func(model.Attributes) string
}

var registry = map[string]Mapping{}

func register(m Mapping) { registry[m.Name] = m }

// Lookup returns the named mapping.
func Lookup(name string) (Mapping, error) {
	m, ok := registry[name]
	if !ok {
		return Mapping{}, fmt.Errorf("unknown attribute mapping %q", name)
	}
	return m, nil
}

func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Recognizes reports whether l comes from the mapping's source taxonomy.
func (m Mapping) Recognizes(l model.Layer) bool {
	dt, _ := l.Keywords().Get("datatype")
	for _, p := range m.Prefixes {
		if hasPrefixFold(l.Name(), p) || hasPrefixFold(strings.TrimSpace(dt), p) {
			return true
		}
	}
	return false
}

// Apply writes the mapped class of every feature into the target field.
func (m Mapping) Apply(v *model.Vector) (*model.Vector, error) {
	attrs := v.AllAttributes()
	for i, a := range attrs {
		a[m.Target] = m.classify(a)
		attrs[i] = a
	}
	fields := v.Fields()
	if !slices.Contains(fields, m.Target) {
		fields = append(fields, m.Target)
	}
	out, err := v.WithAttributes(v.Name(), fields, attrs, v.Keywords().Clone())
	if err != nil {
		return nil, fmt.Errorf("apply mapping %s: %w", m.Name, err)
	}
	return out, nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

var (
	structureFields = []string{"building:structure", "building_s", "structure", "building:material", "building_m"}
	levelFields     = []string{"building:levels", "building_l", "levels"}
)

// structure returns the lower-cased OSM structure or material tag.
func structure(a model.Attributes) string {
	for _, f := range structureFields {
		if s, ok := a[f].(string); ok && strings.TrimSpace(s) != "" {
			return strings.ToLower(strings.TrimSpace(s))
		}
	}
	return ""
}

// levels returns the number of storeys, or 0 when unknown.
func levels(a model.Attributes) int {
	for _, f := range levelFields {
		switch x := a[f].(type) {
		case int64:
			return int(x)
		case float64:
			if !math.IsNaN(x) {
				return int(x)
			}
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return int(n)
			}
		}
	}
	return 0
}

const (
	ClassURM = "URM"
	ClassRM  = "RM"
)

// OSMToBNPB maps OSM building tags to the two BNPB vulnerability classes:
// reinforced (RM) and unreinforced masonry (URM).
var OSMToBNPB = Mapping{
	Name:     "osm2bnpb",
	Prefixes: []string{"osm"},
	Target:   "VCLASS",
	classify: func(a model.Attributes) string {
		switch structure(a) {
		case "reinforced_masonry", "reinforced_concrete", "concrete", "steel", "confined_masonry":
			return ClassRM
		case "unreinforced_masonry", "masonry", "brick", "stone", "adobe", "wood", "timber", "bamboo":
			return ClassURM
		}
		if levels(a) >= 4 {
			return ClassRM
		}
		return ClassURM
	},
}

// OSMToPadang maps OSM building tags to the nine Padang vulnerability classes,
// ordered roughly from most to least vulnerable.
var OSMToPadang = Mapping{
	Name:     "osm2padang",
	Prefixes: []string{"osm"},
	Target:   "VCLASS",
	classify: func(a model.Attributes) string {
		lv := levels(a)
		switch structure(a) {
		case "adobe", "stone", "earth", "mud":
			return "1"
		case "unreinforced_masonry", "masonry", "brick":
			if lv > 1 {
				return "3"
			}
			return "2"
		case "confined_masonry":
			return "4"
		case "reinforced_masonry":
			return "5"
		case "wood", "timber", "bamboo":
			return "7"
		case "reinforced_concrete", "concrete":
			switch {
			case lv > 7:
				return "9"
			case lv > 3:
				return "8"
			default:
				return "6"
			}
		case "steel":
			return "9"
		}
		if lv >= 4 {
			return "8"
		}
		return "2"
	},
}

func init() {
	register(OSMToBNPB)
	register(OSMToPadang)
}
