package layerio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

// Nodata is written for NaN cells unless the grid holds that value, in which
// case nodataFor picks a free one.
const Nodata = -9999

// WriteASCIIGrid writes r as an ESRI ASCII grid. Non-square pixels use the
// dx/dy header extension.
func WriteASCIIGrid(w io.Writer, r *model.Raster) error {
	bw := bufio.NewWriter(w)
	gt := r.Geotransform()
	if gt[2] != 0 || gt[4] != 0 {
		return fmt.Errorf("raster %q: rotated geotransforms cannot be written as an ascii grid", r.Name())
	}
	bb := r.BoundingBox()
	res := r.Resolution()
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", r.Columns(), r.Rows())
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", ftoa(bb.West), ftoa(bb.South))
	if res.X == res.Y {
		fmt.Fprintf(bw, "cellsize %s\n", ftoa(res.X))
	} else {
		fmt.Fprintf(bw, "dx %s\ndy %s\n", ftoa(res.X), ftoa(res.Y))
	}
	nodata := ftoa(nodataFor(r))
	fmt.Fprintf(bw, "NODATA_value %s\n", nodata)
	for row := range r.Rows() {
		for col := range r.Columns() {
			if col > 0 {
				_ = bw.WriteByte(' ')
			}
			v := r.At(row, col)
			if math.IsNaN(v) {
				_, _ = bw.WriteString(nodata)
				continue
			}
			_, _ = bw.WriteString(ftoa(v))
		}
		_ = bw.WriteByte('\n')
	}
	return bw.Flush()
}

func nodataFor(r *model.Raster) float64 {
	used := map[float64]struct{}{}
	for row := range r.Rows() {
		for col := range r.Columns() {
			used[r.At(row, col)] = struct{}{}
		}
	}
	v := float64(Nodata)
	for {
		if _, ok := used[v]; !ok {
			return v
		}
		v--
	}
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// ReadASCIIGrid parses an ESRI ASCII grid.
func ReadASCIIGrid(rd io.Reader, name, projection string, kw *model.Keywords) (*model.Raster, error) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	header := map[string]float64{}
	var first []string
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if _, err := strconv.ParseFloat(fields[0], 64); err == nil {
			first = fields
			break
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("ascii grid %q: bad header line %q", name, sc.Text())
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("ascii grid %q: header %s: %w", name, fields[0], err)
		}
		header[strings.ToLower(fields[0])] = v
	}

	cols, rows := int(header["ncols"]), int(header["nrows"])
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("ascii grid %q: ncols and nrows must be positive", name)
	}
	dx, dy := header["dx"], header["dy"]
	if cs, ok := header["cellsize"]; ok {
		dx, dy = cs, cs
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("ascii grid %q: missing cell size", name)
	}
	west, south := header["xllcorner"], header["yllcorner"]
	if x, ok := header["xllcenter"]; ok {
		west = x - dx/2
	}
	if y, ok := header["yllcenter"]; ok {
		south = y - dy/2
	}
	nodata, hasNodata := header["nodata_value"]

	values := make([]float64, 0, rows*cols)
	add := func(tokens []string) error {
		for _, tok := range tokens {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return fmt.Errorf("ascii grid %q: value %d: %w", name, len(values), err)
			}
			if hasNodata && v == nodata {
				v = math.NaN()
			}
			values = append(values, v)
		}
		return nil
	}
	if err := add(first); err != nil {
		return nil, err
	}
	for sc.Scan() {
		if err := add(strings.Fields(sc.Text())); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ascii grid %q: %w", name, err)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("ascii grid %q: %d values, want %d", name, len(values), rows*cols)
	}
	data := make([][]float64, rows)
	for i := range data {
		data[i] = values[i*cols : (i+1)*cols]
	}
	north := south + float64(rows)*dy
	gt := model.Geotransform{west, dx, 0, north, 0, -dy}
	return model.NewRaster(name, projection, data, gt, kw)
}
