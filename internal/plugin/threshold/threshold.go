// Package threshold implements impact functions that drape a hazard raster over
// exposure features and classify each feature by piecewise thresholds.
package threshold

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/damage"
	"github.com/mohammed-shakir/hazard-impact/internal/geom"
	"github.com/mohammed-shakir/hazard-impact/internal/interpolate"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin/mapping"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin/sld"
)

type Config struct {
	Name         string
	Requirements []plugin.Requirement
	// OutputName names the impact layer.
	OutputName string
	// HazardField receives the hazard value sampled at each feature.
	HazardField string
	// TargetField receives the 1-based class.
	TargetField string
	// ClassField selects per-class breakpoints. Empty uses Default for all features.
	ClassField  string
	Breakpoints map[string][]float64
	// Default applies to features whose class is missing or unknown. Nil leaves
	// those features unclassified.
	Default []float64
	Labels  []string
	Colours []string
	// Mapping names an attribute mapping applied to exposure layers it recognises.
	Mapping string
	// RequirePolygons rejects point exposure. Polygons are always sampled at
	// their centroids and returned with their original geometry.
	RequirePolygons bool
	Interpolation   interpolate.Method
}

type Function struct {
	cfg     Config
	mapping *mapping.Mapping
	classes int
}

func New(cfg Config) (*Function, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("threshold function has no name")
	}
	if cfg.HazardField == "" || cfg.TargetField == "" {
		return nil, fmt.Errorf("%s: hazard and target fields are required", cfg.Name)
	}
	if cfg.OutputName == "" {
		cfg.OutputName = cfg.Name
	}
	if cfg.Interpolation == "" {
		cfg.Interpolation = interpolate.Bilinear
	}
	if cfg.Default == nil && len(cfg.Breakpoints) == 0 {
		return nil, fmt.Errorf("%s: no breakpoints configured", cfg.Name)
	}
	classes := -1
	check := func(name string, b []float64) error {
		if err := damage.ValidateBreakpoints(b); err != nil {
			return fmt.Errorf("%s: breakpoints for %s: %w", cfg.Name, name, err)
		}
		if classes >= 0 && len(b)+1 != classes {
			return fmt.Errorf("%s: breakpoints for %s give %d classes, others give %d", cfg.Name, name, len(b)+1, classes)
		}
		classes = len(b) + 1
		return nil
	}
	if cfg.Default != nil {
		if err := check("default", cfg.Default); err != nil {
			return nil, err
		}
	}
	for k, b := range cfg.Breakpoints {
		if err := check(k, b); err != nil {
			return nil, err
		}
	}
	if len(cfg.Labels) != classes || len(cfg.Colours) != classes {
		return nil, fmt.Errorf("%s: %d classes need %d labels and colours, got %d and %d",
			cfg.Name, classes, classes, len(cfg.Labels), len(cfg.Colours))
	}
	f := &Function{cfg: cfg, classes: classes}
	if cfg.Mapping != "" {
		m, err := mapping.Lookup(cfg.Mapping)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.Name, err)
		}
		f.mapping = &m
	}
	return f, nil
}

// MustNew is New for package-level registration of built-in functions.
func MustNew(cfg Config) *Function {
	f, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Function) Name() string                       { return f.cfg.Name }
func (f *Function) Requirements() []plugin.Requirement { return f.cfg.Requirements }

// Label returns the title of a 1-based class.
func (f *Function) Label(class int) string {
	if class < 1 || class > len(f.cfg.Labels) {
		return ""
	}
	return f.cfg.Labels[class-1]
}

func (f *Function) TargetField() string { return f.cfg.TargetField }

func (f *Function) Run(layers []model.Layer) (model.Layer, error) {
	hazard, exposure, err := Inputs(layers)
	if err != nil {
		return nil, err
	}
	if f.cfg.RequirePolygons && !exposure.IsPolygon() {
		return nil, apperr.Validation("expected polygon building footprints in exposure data %q", exposure.Name())
	}
	if f.mapping != nil && f.mapping.Recognizes(exposure) {
		if exposure, err = f.mapping.Apply(exposure); err != nil {
			return nil, err
		}
	}
	sampled, err := Sample(hazard, exposure, f.cfg.HazardField, f.cfg.Interpolation)
	if err != nil {
		return nil, err
	}

	counts := make([]int, f.classes)
	attrs := exposure.AllAttributes()
	for i := range attrs {
		attrs[i][f.cfg.HazardField] = sampled.Value(i, f.cfg.HazardField)
		attrs[i][f.cfg.TargetField] = nil
		h, ok := model.NumericValue(sampled.Value(i, f.cfg.HazardField))
		if !ok {
			continue
		}
		b := f.breakpointsFor(attrs[i])
		if b == nil {
			continue
		}
		class, err := damage.Classify(h, b)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		attrs[i][f.cfg.TargetField] = int64(class)
		counts[class-1]++
	}

	fields := appendMissing(exposure.Fields(), f.cfg.HazardField, f.cfg.TargetField)
	kw := OutputKeywords(hazard, exposure)
	kw.Set("target_field", f.cfg.TargetField)
	kw.Set("caption", f.caption(counts, exposure.Len()))
	kw.Set("impact_summary", f.summary(counts))
	return exposure.WithAttributes(f.cfg.OutputName, fields, attrs, kw)
}

func (f *Function) breakpointsFor(a model.Attributes) []float64 {
	if f.cfg.ClassField != "" {
		if c, ok := a[f.cfg.ClassField]; ok && c != nil {
			if b, ok := f.cfg.Breakpoints[strings.TrimSpace(fmt.Sprint(c))]; ok {
				return b
			}
		}
	}
	return f.cfg.Default
}

func (f *Function) summary(counts []int) string {
	parts := make([]string, len(counts))
	for i, n := range counts {
		parts[i] = fmt.Sprintf("%s=%d", f.cfg.Labels[i], n)
	}
	return strings.Join(parts, "; ")
}

func (f *Function) caption(counts []int, total int) string {
	return fmt.Sprintf("%s. %d features, %s", f.cfg.OutputName, total, f.summary(counts))
}

func (f *Function) GenerateStyle(out model.Layer) (string, error) {
	v, ok := out.(*model.Vector)
	if !ok {
		return "", fmt.Errorf("%s: expected a vector impact layer, got %s", f.cfg.Name, out.Type())
	}
	edges := make([]float64, f.classes-1)
	for i := range edges {
		edges[i] = float64(i+1) + 0.5
	}
	rules, err := sld.Classes(edges, f.cfg.Labels, f.cfg.Colours)
	if err != nil {
		return "", err
	}
	return sld.Style{Name: v.Name(), Field: f.cfg.TargetField, Geometry: v.GeometryKind(), Rules: rules}.Render()
}

// Inputs checks that layers are a hazard raster followed by an exposure vector.
func Inputs(layers []model.Layer) (*model.Raster, *model.Vector, error) {
	if len(layers) != 2 {
		return nil, nil, apperr.Validation("expected hazard and exposure layers, got %d layers", len(layers))
	}
	hazard, ok := layers[0].(*model.Raster)
	if !ok {
		return nil, nil, apperr.Validation("hazard layer %q must be a raster", layers[0].Name())
	}
	exposure, ok := layers[1].(*model.Vector)
	if !ok {
		return nil, nil, apperr.Validation("exposure layer %q must be a vector", layers[1].Name())
	}
	return hazard, exposure, nil
}

// Sample interpolates hazard at each exposure feature, using centroids for polygons.
func Sample(hazard *model.Raster, exposure *model.Vector, field string, m interpolate.Method) (*model.Vector, error) {
	pts := exposure
	if exposure.IsPolygon() {
		c, err := geom.Centroids(exposure)
		if err != nil {
			return nil, err
		}
		pts = c
	}
	// sample onto bare geometry so that an existing attribute of the same
	// name does not collide
	bare, err := model.NewPointVector(pts.Name(), pts.Projection(), pts.Points(), nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return interpolate.Interpolate(hazard, bare, field, m)
}

// OutputKeywords are the keywords every impact layer carries.
func OutputKeywords(hazard, exposure model.Layer) *model.Keywords {
	kw := model.NewKeywords()
	kw.Set("category", "impact")
	if s, ok := exposure.Keywords().Get("subcategory"); ok {
		kw.Set("subcategory", s)
	}
	kw.Set("hazard_title", title(hazard))
	kw.Set("exposure_title", title(exposure))
	return kw
}

// title falls back to the layer name without its workspace prefix. Keyword
// values cannot hold colons.
func title(l model.Layer) string {
	if t, ok := l.Keywords().Get("title"); ok && t != "" {
		return strings.ReplaceAll(t, ":", " -")
	}
	name := l.Name()
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func appendMissing(fields []string, extra ...string) []string {
	for _, e := range extra {
		if !slices.Contains(fields, e) {
			fields = append(fields, e)
		}
	}
	return fields
}
