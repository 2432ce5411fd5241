// Package ogc builds OGC web service requests against a GeoServer style /ows
// endpoint and parses the capability documents it returns.
package ogc

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

// Request names, also used as metric labels.
const (
	ReqGetFeature       = "GetFeature"
	ReqGetCapabilities  = "GetCapabilities"
	ReqGetCoverage      = "GetCoverage"
	ReqDescribeCoverage = "DescribeCoverage"
)

// CoverageFormat is the WCS output format requested for rasters. It is
// decoded by layerio.ReadASCIIGrid.
const CoverageFormat = "ArcGrid"

func OWSEndpoint(geoServerBase string) string {
	base := strings.TrimRight(geoServerBase, "/")
	if strings.HasSuffix(base, "/ows") {
		return base
	}
	return base + "/ows"
}

// ValidateLayerName requires the workspace:name form.
func ValidateLayerName(name string) bool {
	ws, n, ok := strings.Cut(name, ":")
	return ok && ws != "" && n != "" && !strings.Contains(n, ":")
}

func BuildGetFeatureParams(layer string, bbox *model.BBox) url.Values {
	return BuildGetFeatureParamsFormat(layer, bbox, "application/json")
}

func BuildGetFeatureParamsFormat(layer string, bbox *model.BBox, outputFormat string) url.Values {
	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", "1.0.0")
	params.Set("request", ReqGetFeature)
	params.Set("typeName", layer)
	if bbox != nil {
		params.Set("bbox", formatBBox(*bbox))
	}
	if strings.TrimSpace(outputFormat) == "" {
		outputFormat = "application/json"
	}
	params.Set("outputFormat", outputFormat)
	return params
}

func BuildWFSCapabilitiesParams() url.Values {
	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", "1.0.0")
	params.Set("request", ReqGetCapabilities)
	return params
}

// BuildGetCoverageParams requests layer clipped to bbox. A nil res keeps the
// native resolution.
func BuildGetCoverageParams(layer string, bbox model.BBox, res *model.Resolution) url.Values {
	params := url.Values{}
	params.Set("service", "WCS")
	params.Set("version", "1.0.0")
	params.Set("request", ReqGetCoverage)
	params.Set("coverage", layer)
	params.Set("crs", model.WGS84)
	params.Set("bbox", formatBBox(bbox))
	params.Set("format", CoverageFormat)
	params.Set("store", "false")
	if res != nil {
		params.Set("resx", ftoa(res.X))
		params.Set("resy", ftoa(res.Y))
	}
	return params
}

func BuildDescribeCoverageParams(layer string) url.Values {
	params := url.Values{}
	params.Set("service", "WCS")
	params.Set("version", "1.0.0")
	params.Set("request", ReqDescribeCoverage)
	params.Set("coverage", layer)
	return params
}

// no spaces: GeoServer rejects them inside bbox
func formatBBox(bb model.BBox) string {
	return ftoa(bb.West) + "," + ftoa(bb.South) + "," + ftoa(bb.East) + "," + ftoa(bb.North)
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
