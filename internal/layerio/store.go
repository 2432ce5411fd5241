// Package layerio reads and writes layers on the local filesystem.
//
// Vector layers are stored as GeoJSON, rasters as ESRI ASCII grids with the
// projection in a sibling .prj file. Keywords live in a sibling .keywords
// file and styles in a sibling .sld file.
package layerio

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

const (
	ExtVector   = ".geojson"
	ExtRaster   = ".asc"
	ExtKeywords = ".keywords"
	ExtStyle    = ".sld"
	ExtProj     = ".prj"
)

// Extension returns the output file extension for a layer type.
func Extension(t model.LayerType) string {
	if t == model.LayerRaster {
		return ExtRaster
	}
	return ExtVector
}

// Sibling replaces the extension of path with ext.
func Sibling(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// FileStore is the filesystem layer collaborator.
type FileStore struct{}

func (FileStore) ReadLayer(path string) (model.Layer, error) {
	kw, err := readKeywordsFile(Sibling(path, ExtKeywords))
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtVector, ".json":
		return DecodeVector(data, name, kw)
	case ExtRaster:
		proj := model.WGS84
		if b, err := os.ReadFile(Sibling(path, ExtProj)); err == nil {
			if p := strings.TrimSpace(string(b)); p != "" {
				proj = p
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read projection of %s: %w", path, err)
		}
		return ReadASCIIGrid(bytes.NewReader(data), name, proj, kw)
	default:
		return nil, fmt.Errorf("unsupported layer file %s", path)
	}
}

// WriteLayer writes l to path and its keywords to the sibling .keywords file.
func (FileStore) WriteLayer(l model.Layer, path string) error {
	var buf bytes.Buffer
	switch x := l.(type) {
	case *model.Vector:
		b, err := EncodeVector(x)
		if err != nil {
			return err
		}
		buf.Write(b)
	case *model.Raster:
		if err := WriteASCIIGrid(&buf, x); err != nil {
			return err
		}
		if err := os.WriteFile(Sibling(path, ExtProj), []byte(x.Projection()+"\n"), 0o644); err != nil {
			return fmt.Errorf("write projection: %w", err)
		}
	default:
		return fmt.Errorf("unsupported layer type %T", l)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return writeKeywordsFile(Sibling(path, ExtKeywords), l.Keywords())
}

func (FileStore) WriteStyle(style, path string) error {
	if err := os.WriteFile(path, []byte(style), 0o644); err != nil {
		return fmt.Errorf("write style %s: %w", path, err)
	}
	return nil
}
