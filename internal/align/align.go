// Package align checks that hazard and exposure layers describe the same grid
// before an impact function runs.
package align

import (
	"fmt"
	"math"

	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

// DefaultGeotransformRTol is the relative tolerance between raster geotransforms.
// It is loose enough to accept grids resampled by different map servers.
// TODO: tighten once downloads are requested on an explicit target grid.
const DefaultGeotransformRTol = 0.1

// absolute tolerance added to every component comparison so that zero
// rotation terms compare equal
const geotransformATol = 1e-8

// NothingToInterpolate is reported for an empty vector layer.
const NothingToInterpolate = "There are no data points to interpolate to. " +
	"Perhaps zoom out or pan to the study area and try again"

type Options struct {
	// Projection every layer must use. Empty means the first layer's projection.
	Projection       string
	GeotransformRTol float64
}

func DefaultOptions() Options {
	return Options{Projection: model.WGS84, GeotransformRTol: DefaultGeotransformRTol}
}

// Check verifies projections, raster geotransforms, vector geometry and raster
// dimensions of layers. The first raster and the first vector serve as
// references for their kind.
func Check(layers []model.Layer, opts Options) error {
	if len(layers) == 0 {
		return apperr.Validation("no layers to check")
	}
	if opts.GeotransformRTol <= 0 {
		opts.GeotransformRTol = DefaultGeotransformRTol
	}
	refProj := opts.Projection
	if refProj == "" {
		refProj = layers[0].Projection()
	}

	var (
		refGT     *model.Geotransform
		refGTName string
		refVec    *model.Vector
	)
	for _, l := range layers {
		if !model.SameProjection(l.Projection(), refProj) {
			return apperr.Validation("projection of layer %q is %q, expected %q", l.Name(), l.Projection(), refProj)
		}
		switch x := l.(type) {
		case *model.Raster:
			gt := x.Geotransform()
			if refGT == nil {
				refGT, refGTName = &gt, x.Name()
				continue
			}
			if !allClose(gt, *refGT, opts.GeotransformRTol) {
				return apperr.Alignment("geotransform of layer %q %v differs from %q %v beyond relative tolerance %v",
					x.Name(), gt, refGTName, *refGT, opts.GeotransformRTol)
			}
		case *model.Vector:
			if x.Len() == 0 {
				return apperr.Validation("%s (layer %q is empty)", NothingToInterpolate, x.Name())
			}
			if refVec == nil {
				refVec = x
				continue
			}
			if err := sameGeometry(refVec, x); err != nil {
				return err
			}
		default:
			return apperr.Validation("layer %q has unsupported type %T", l.Name(), l)
		}
	}
	return checkDimensions(layers)
}

// allClose compares component-wise with |a-b| <= atol + rtol*|b|.
func allClose(a, b model.Geotransform, rtol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > geotransformATol+rtol*math.Abs(b[i]) {
			return false
		}
	}
	return true
}

func sameGeometry(ref, v *model.Vector) error {
	if ref.GeometryKind() != v.GeometryKind() || ref.Len() != v.Len() {
		return apperr.Validation("geometry of layer %q (%d %s) differs from %q (%d %s)",
			v.Name(), v.Len(), v.GeometryKind(), ref.Name(), ref.Len(), ref.GeometryKind())
	}
	if !ref.IsPolygon() {
		a, b := ref.Points(), v.Points()
		for i := range a {
			if a[i] != b[i] {
				return apperr.Validation("coordinates of layer %q differ from %q at feature %d", v.Name(), ref.Name(), i)
			}
		}
		return nil
	}
	a, b := ref.Polygons(), v.Polygons()
	for i := range a {
		if !a[i].Equal(b[i]) {
			return apperr.Validation("coordinates of layer %q differ from %q at feature %d", v.Name(), ref.Name(), i)
		}
	}
	return nil
}

// checkDimensions requires every raster to have the minimal row and column
// counts found among the rasters.
func checkDimensions(layers []model.Layer) error {
	var rasters []*model.Raster
	for _, l := range layers {
		if r, ok := l.(*model.Raster); ok {
			rasters = append(rasters, r)
		}
	}
	if len(rasters) < 2 {
		return nil
	}
	minRows, minCols := rasters[0].Rows(), rasters[0].Columns()
	for _, r := range rasters[1:] {
		minRows = min(minRows, r.Rows())
		minCols = min(minCols, r.Columns())
	}
	for _, r := range rasters {
		if r.Rows() != minRows || r.Columns() != minCols {
			return apperr.Alignment("rasters are not aligned: layer %q has %dx%d (rows x columns), expected %dx%d",
				r.Name(), r.Rows(), r.Columns(), minRows, minCols)
		}
	}
	return nil
}

// Describe renders a short summary of layer dimensions for logs.
func Describe(l model.Layer) string {
	switch x := l.(type) {
	case *model.Raster:
		return fmt.Sprintf("raster %q %dx%d", x.Name(), x.Rows(), x.Columns())
	case *model.Vector:
		return fmt.Sprintf("vector %q %d %s", x.Name(), x.Len(), x.GeometryKind())
	default:
		return fmt.Sprintf("layer %q", l.Name())
	}
}
