package earthquake

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/damage"
	"github.com/mohammed-shakir/hazard-impact/internal/interpolate"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin/mapping"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin/sld"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin/threshold"
)

const PadangName = "Padang Earthquake Building Damage"

// Fragility curves per Padang building class, from the 2009 Padang post-event survey.
var padangCurves = map[string]damage.Curve{
	"1": {Median: 7.5, Beta: 0.11},
	"2": {Median: 8.3, Beta: 0.1},
	"3": {Median: 8.8, Beta: 0.11},
	"4": {Median: 8.4, Beta: 0.05},
	"5": {Median: 9.2, Beta: 0.11},
	"6": {Median: 9.7, Beta: 0.15},
	"7": {Median: 9.0, Beta: 0.08},
	"8": {Median: 8.9, Beta: 0.07},
	"9": {Median: 10.5, Beta: 0.15},
}

// damage percentage bins reported in the caption
var padangBins = []struct {
	label  string
	lo, hi float64
}{
	{"10-25%", 10, 25},
	{"25-50%", 25, 50},
	{">50%", 50, 101},
}

type padang struct {
	classField string
	mapping    mapping.Mapping
	method     interpolate.Method
}

// Padang estimates percentage damage per building with lognormal fragility
// curves. Surveyed layers carry their class in TestBLDGCl; OSM layers are
// mapped into VCLASS first.
var Padang plugin.Function = &padang{
	classField: "TestBLDGCl",
	mapping:    mapping.OSMToPadang,
	method:     interpolate.Bilinear,
}

func (p *padang) Name() string                       { return PadangName }
func (p *padang) Requirements() []plugin.Requirement { return buildingRequirements }

func (p *padang) Run(layers []model.Layer) (model.Layer, error) {
	hazard, exposure, err := threshold.Inputs(layers)
	if err != nil {
		return nil, err
	}
	classField := p.classField
	if p.mapping.Recognizes(exposure) {
		if exposure, err = p.mapping.Apply(exposure); err != nil {
			return nil, err
		}
		classField = p.mapping.Target
	}
	sampled, err := threshold.Sample(hazard, exposure, "MMI", p.method)
	if err != nil {
		return nil, err
	}

	counts := make([]int, len(padangBins))
	attrs := exposure.AllAttributes()
	for i := range attrs {
		mmi := sampled.Value(i, "MMI")
		attrs[i]["MMI"] = mmi
		attrs[i]["DAMAGE"] = nil
		h, ok := model.NumericValue(mmi)
		if !ok {
			continue
		}
		curve, ok := padangCurves[classKey(attrs[i][classField])]
		if !ok {
			continue
		}
		pct := curve.Percent(h)
		attrs[i]["DAMAGE"] = pct
		for b, bin := range padangBins {
			if pct >= bin.lo && pct < bin.hi {
				counts[b]++
			}
		}
	}

	fields := exposure.Fields()
	for _, f := range []string{"MMI", "DAMAGE"} {
		if !exposure.HasField(f) {
			fields = append(fields, f)
		}
	}
	kw := threshold.OutputKeywords(hazard, exposure)
	kw.Set("target_field", "DAMAGE")
	summary := make([]string, len(padangBins))
	for b, bin := range padangBins {
		summary[b] = fmt.Sprintf("%s=%d", bin.label, counts[b])
	}
	kw.Set("impact_summary", strings.Join(summary, "; "))
	kw.Set("caption", fmt.Sprintf("Estimated building damage. %d buildings, %s", exposure.Len(), strings.Join(summary, "; ")))
	return exposure.WithAttributes("Estimated building damage", fields, attrs, kw)
}

// classKey normalises class values such as 3, 3.7, "3" or "3.0" to "3".
// Fractional classes are truncated toward zero.
func classKey(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return truncKey(x)
	case string:
		x = strings.TrimSpace(x)
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return truncKey(f)
		}
		return x
	}
	return fmt.Sprint(v)
}

func truncKey(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatInt(int64(math.Trunc(f)), 10)
}

func (p *padang) GenerateStyle(out model.Layer) (string, error) {
	v, ok := out.(*model.Vector)
	if !ok {
		return "", fmt.Errorf("%s: expected a vector impact layer, got %s", PadangName, out.Type())
	}
	rules, err := sld.Classes(
		[]float64{10, 25, 50},
		[]string{"0-10%", "10-25%", "25-50%", "50-100%"},
		[]string{"#cccccc", "#fecc5c", "#fd8d3c", "#e31a1c"},
	)
	if err != nil {
		return "", err
	}
	return sld.Style{Name: v.Name(), Field: "DAMAGE", Geometry: v.GeometryKind(), Rules: rules}.Render()
}
