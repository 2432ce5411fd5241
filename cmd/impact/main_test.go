package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/hazard-impact/internal/plugin/earthquake"
)

const shakemap = `ncols 3
nrows 3
xllcorner 100
yllcorner -1
cellsize 0.01
NODATA_value -9999
7 7 7
7 8 8
8 8 9
`

const buildings = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"osm_id":1,"building":"residential"},
  "geometry":{"type":"Polygon","coordinates":[[[100.011,-0.989],[100.019,-0.989],[100.019,-0.981],[100.011,-0.981],[100.011,-0.989]]]}}]}`

func writeInputs(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	h := filepath.Join(dir, "shakemap.asc")
	e := filepath.Join(dir, "buildings.geojson")
	require.NoError(t, os.WriteFile(h, []byte(shakemap), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shakemap.keywords"),
		[]byte("category: hazard\nsubcategory: earthquake\nunit: MMI\n"), 0o644))
	require.NoError(t, os.WriteFile(e, []byte(buildings), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "buildings.keywords"),
		[]byte("category: exposure\nsubcategory: building\n"), 0o644))
	return h, e
}

func TestRunBNPB(t *testing.T) {
	h, e := writeInputs(t)
	out := t.TempDir()
	var stdout, stderr bytes.Buffer

	code := run([]string{"-function", earthquake.BNPBName, "-hazard", h, "-exposure", e, "-out", out}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var resp struct {
		Path          string `json:"path"`
		ImpactSummary string `json:"impact_summary"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, out, filepath.Dir(resp.Path))
	assert.FileExists(t, resp.Path)
	assert.NotEmpty(t, resp.ImpactSummary)
}

func TestRunList(t *testing.T) {
	h, e := writeInputs(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"-list", "-hazard", h, "-exposure", e}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), earthquake.BNPBName)
}

func TestRunErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"-function", "x"}, &stdout, &stderr))

	stderr.Reset()
	h, e := writeInputs(t)
	code := run([]string{"-function", "nope", "-hazard", h, "-exposure", e, "-out", t.TempDir()}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.True(t, strings.Contains(stderr.String(), `"kind":"validation"`), stderr.String())

	stderr.Reset()
	code = run([]string{"-function", "nope", "-hazard", "missing.asc", "-exposure", e}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), `"kind":"io"`)
}

func TestRunSummaryRollup(t *testing.T) {
	h, e := writeInputs(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"-function", earthquake.BNPBName, "-hazard", h, "-exposure", e,
		"-out", t.TempDir(), "-summary-res", "4"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var resp struct {
		Summary struct {
			Resolution int `json:"h3_resolution"`
			Total      int `json:"total"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, 4, resp.Summary.Resolution)
	assert.Equal(t, 1, resp.Summary.Total)

	stdout.Reset()
	stderr.Reset()
	code = run([]string{"-function", earthquake.BNPBName, "-hazard", h, "-exposure", e,
		"-out", t.TempDir(), "-summary-res", "9"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "summary_resolution")
}
