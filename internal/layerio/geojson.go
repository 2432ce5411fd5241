package layerio

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

// Foreign members carried on the feature collection so that the attribute
// order and types survive a round trip.
const (
	memberName       = "name"
	memberProjection = "projection"
	memberSchema     = "schema"
)

type fieldSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

const (
	typeString  = "string"
	typeInteger = "integer"
	typeReal    = "real"
)

// EncodeVector renders v as a GeoJSON feature collection.
func EncodeVector(v *model.Vector) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	fields := v.Fields()
	for i := range v.Len() {
		f := geojson.NewFeature(v.Geometry(i))
		for k, val := range v.Attributes(i) {
			if x, ok := val.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
				val = nil
			}
			f.Properties[k] = val
		}
		fc.Append(f)
	}
	schema := make([]fieldSpec, len(fields))
	for i, name := range fields {
		schema[i] = fieldSpec{Name: name, Type: fieldType(v, name)}
	}
	fc.ExtraMembers = geojson.Properties{
		memberName:       v.Name(),
		memberProjection: v.Projection(),
		memberSchema:     schema,
	}
	b, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", v.Name(), err)
	}
	return b, nil
}

func fieldType(v *model.Vector, field string) string {
	t := ""
	for i := range v.Len() {
		switch v.Value(i, field).(type) {
		case string:
			return typeString
		case float64:
			t = typeReal
		case int64:
			if t == "" {
				t = typeInteger
			}
		}
	}
	if t == "" {
		return typeString
	}
	return t
}

// DecodeVector parses a GeoJSON feature collection of points or polygons.
// Polygon holes are dropped. name is used when the document carries none.
func DecodeVector(data []byte, name string, kw *model.Keywords) (*model.Vector, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	if s, ok := fc.ExtraMembers[memberName].(string); ok && s != "" {
		name = s
	}
	proj := model.WGS84
	if s, ok := fc.ExtraMembers[memberProjection].(string); ok && s != "" {
		proj = s
	}
	schema, err := decodeSchema(fc.ExtraMembers[memberSchema])
	if err != nil {
		return nil, err
	}

	var (
		points []orb.Point
		rings  []orb.Ring
		attrs  = make([]model.Attributes, 0, len(fc.Features))
		seen   = map[string]struct{}{}
		fields []string
	)
	for _, s := range schema {
		seen[s.Name] = struct{}{}
		fields = append(fields, s.Name)
	}
	types := make(map[string]string, len(schema))
	for _, s := range schema {
		types[s.Name] = s.Type
	}

	for i, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Point:
			points = append(points, g)
		case orb.Polygon:
			if len(g) == 0 {
				return nil, fmt.Errorf("feature %d: empty polygon", i)
			}
			rings = append(rings, g[0])
		case orb.MultiPolygon:
			if len(g) != 1 || len(g[0]) == 0 {
				return nil, fmt.Errorf("feature %d: multipolygons with %d parts are not supported", i, len(g))
			}
			rings = append(rings, g[0][0])
		default:
			return nil, fmt.Errorf("feature %d: unsupported geometry %T", i, f.Geometry)
		}
		row := make(model.Attributes, len(f.Properties))
		// fields not in the schema are appended in feature order, sorted by
		// name within each feature
		for _, k := range slices.Sorted(maps.Keys(f.Properties)) {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				fields = append(fields, k)
			}
			row[k] = convert(f.Properties[k], types[k])
		}
		attrs = append(attrs, row)
	}
	if len(points) > 0 && len(rings) > 0 {
		return nil, fmt.Errorf("mixed point and polygon features are not supported")
	}
	if len(rings) > 0 {
		return model.NewPolygonVector(name, proj, rings, fields, attrs, kw)
	}
	return model.NewPointVector(name, proj, points, fields, attrs, kw)
}

func decodeSchema(raw any) ([]fieldSpec, error) {
	if raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	var out []fieldSpec
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return out, nil
}

func convert(val any, typ string) any {
	switch x := val.(type) {
	case float64:
		if typ == typeInteger && x == math.Trunc(x) {
			return int64(x)
		}
		return x
	case string, nil:
		return x
	case bool:
		return x
	default:
		// nested values are kept as their JSON text
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
