package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata describes a layer held by a map server.
type Metadata struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	LayerType    LayerType     `json:"layer_type"`
	BoundingBox  BBox          `json:"bounding_box"`
	Resolution   *Resolution   `json:"resolution,omitempty"`
	Geotransform *Geotransform `json:"geotransform,omitempty"`
	Keywords     *Keywords     `json:"keywords"`
}

// NewRasterMetadata builds metadata for a coverage. The resolution is derived from gt.
func NewRasterMetadata(id, title string, bbox BBox, gt Geotransform, kw *Keywords) Metadata {
	res := gt.Resolution()
	g := gt
	if kw == nil {
		kw = NewKeywords()
	}
	return Metadata{
		ID:           id,
		Title:        title,
		LayerType:    LayerRaster,
		BoundingBox:  bbox,
		Resolution:   &res,
		Geotransform: &g,
		Keywords:     kw,
	}
}

func NewVectorMetadata(id, title string, bbox BBox, kw *Keywords) Metadata {
	if kw == nil {
		kw = NewKeywords()
	}
	return Metadata{ID: id, Title: title, LayerType: LayerVector, BoundingBox: bbox, Keywords: kw}
}

func (m Metadata) Validate() error {
	switch m.LayerType {
	case LayerRaster:
		if m.Resolution == nil {
			return fmt.Errorf("raster metadata %q has no resolution", m.ID)
		}
	case LayerVector:
	default:
		return fmt.Errorf("metadata %q has unknown layer type %q", m.ID, m.LayerType)
	}
	return nil
}

// Tristate holds a keyword value that may be yes, no or not specified.
type Tristate int

const (
	Unspecified Tristate = iota
	Yes
	No
)

func (t Tristate) String() string {
	switch t {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unspecified"
	}
}

// ParseTristate recognizes true/yes/y/1/on and false/no/n/0/off, case-insensitively.
// Anything else is Unspecified.
func ParseTristate(s string) Tristate {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "on":
		return Yes
	case "false", "no", "n", "0", "off":
		return No
	default:
		return Unspecified
	}
}

// Density reports whether the layer's "density" keyword marks its values as
// densities, which must be rescaled when the layer is resampled.
func Density(kw *Keywords) Tristate {
	v, ok := kw.Get("density")
	if !ok {
		return Unspecified
	}
	return ParseTristate(v)
}

// NativeResolution reads the "resolution" keyword, either "r" or "rx,ry" or "(rx, ry)".
func NativeResolution(kw *Keywords) (Resolution, bool) {
	v, ok := kw.Get("resolution")
	if !ok {
		return Resolution{}, false
	}
	v = strings.Trim(strings.TrimSpace(v), "()[]")
	parts := strings.Split(v, ",")
	switch len(parts) {
	case 1:
		r, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil || r <= 0 {
			return Resolution{}, false
		}
		return Resolution{X: r, Y: r}, true
	case 2:
		rx, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		ry, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil || rx <= 0 || ry <= 0 {
			return Resolution{}, false
		}
		return Resolution{X: rx, Y: ry}, true
	default:
		return Resolution{}, false
	}
}

type ScalingMode string

const (
	ScalingAuto ScalingMode = "auto"
	ScalingOn   ScalingMode = "on"
	ScalingOff  ScalingMode = "off"
)

func ParseScalingMode(s string) (ScalingMode, error) {
	switch m := ScalingMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ScalingAuto, nil
	case ScalingAuto, ScalingOn, ScalingOff:
		return m, nil
	default:
		return "", fmt.Errorf("unknown scaling mode %q", s)
	}
}

// ScaleDensity rescales a density raster resampled from its native resolution.
// In auto mode the raster is scaled only when its density keyword is yes. The
// factor is (res.X / native.X)^2, so the total over an area is preserved.
func ScaleDensity(r *Raster, mode ScalingMode) (*Raster, error) {
	switch mode {
	case ScalingOff:
		return r, nil
	case ScalingAuto:
		if Density(r.Keywords()) != Yes {
			return r, nil
		}
	case ScalingOn:
	default:
		return nil, fmt.Errorf("unknown scaling mode %q", mode)
	}
	native, ok := NativeResolution(r.Keywords())
	if !ok {
		return nil, fmt.Errorf("raster %q: density scaling needs a resolution keyword", r.Name())
	}
	ratio := r.Resolution().X / native.X
	return r.Scaled(ratio * ratio), nil
}
