// Package resolution picks the common grid and extent on which hazard and
// exposure layers are requested from the map server.
package resolution

import (
	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/geom"
)

// Reconcile returns the finest of the two raster resolutions, element-wise.
// It returns nil when either layer is a vector.
func Reconcile(hazard, exposure model.Metadata) (*model.Resolution, error) {
	if hazard.LayerType != model.LayerRaster || exposure.LayerType != model.LayerRaster {
		return nil, nil
	}
	for _, m := range []model.Metadata{hazard, exposure} {
		if m.Resolution == nil {
			return nil, apperr.Validation("raster layer %q has no resolution in its metadata", m.ID)
		}
		if m.Resolution.X <= 0 || m.Resolution.Y <= 0 {
			return nil, apperr.Validation("raster layer %q has non-positive resolution %v", m.ID, *m.Resolution)
		}
	}
	return &model.Resolution{
		X: min(hazard.Resolution.X, exposure.Resolution.X),
		Y: min(hazard.Resolution.Y, exposure.Resolution.Y),
	}, nil
}

// Boxes are the extents used to download each layer and to clip the result.
type Boxes struct {
	Hazard   model.BBox
	Exposure model.BBox
	Impact   model.BBox
}

// BoundingBoxes intersects the viewport with both layer extents. When a raster
// hazard is draped over vector exposure, the hazard extent is grown by one
// hazard pixel so that features on the border still find a value.
func BoundingBoxes(hazard, exposure model.Metadata, viewport model.BBox) (Boxes, error) {
	common, ok, err := geom.Intersection(viewport, hazard.BoundingBox, exposure.BoundingBox)
	if err != nil {
		return Boxes{}, err
	}
	if !ok {
		return Boxes{}, apperr.Validation(
			"bounding boxes of hazard %q [%s], exposure %q [%s] and viewport [%s] do not overlap",
			hazard.ID, geom.FormatBBox(hazard.BoundingBox, 3),
			exposure.ID, geom.FormatBBox(exposure.BoundingBox, 3),
			geom.FormatBBox(viewport, 3))
	}
	out := Boxes{Hazard: common, Exposure: common, Impact: common}

	if hazard.LayerType == model.LayerRaster && exposure.LayerType == model.LayerVector {
		if hazard.Resolution == nil {
			return Boxes{}, apperr.Validation("raster layer %q has no resolution in its metadata", hazard.ID)
		}
		out.Hazard = geom.BufferedBoundingBox(common, *hazard.Resolution)
	}
	res, err := Reconcile(hazard, exposure)
	if err != nil {
		return Boxes{}, err
	}
	if res != nil {
		m := min(res.X, res.Y)
		for _, b := range []*model.BBox{&out.Hazard, &out.Exposure, &out.Impact} {
			grown, err := geom.MinimalBoundingBox(*b, m, geom.DefaultEpsilon)
			if err != nil {
				return Boxes{}, err
			}
			*b = grown
		}
	}
	return out, nil
}
