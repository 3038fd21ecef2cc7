package vector

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geom/encoding/wkt"
	"github.com/twpayne/go-geom/xy"
)

// Encoding file suffixes keyed by asset key.
var encodingSuffixes = map[string]string{
	"wkt":     ".wkt",
	"wkb":     ".wkb",
	"geojson": ".geojson",
}

// ConvexHull returns the convex hull of g.
func ConvexHull(g geom.T) geom.T {
	return xy.ConvexHull(g)
}

// EncodeWKT renders g as well-known text.
func EncodeWKT(g geom.T) (string, error) {
	s, err := wkt.Marshal(g)
	if err != nil {
		return "", eris.Wrap(err, "vector: encode wkt")
	}
	return s, nil
}

// EncodeWKB renders g as little-endian well-known binary.
func EncodeWKB(g geom.T) ([]byte, error) {
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "vector: encode wkb")
	}
	return data, nil
}

// EncodeGeoJSON renders g as a GeoJSON geometry object.
func EncodeGeoJSON(g geom.T) ([]byte, error) {
	data, err := geojson.Marshal(g)
	if err != nil {
		return nil, eris.Wrap(err, "vector: encode geojson")
	}
	return data, nil
}

// WriteEncodings writes <dir>/<base>.wkt, .wkb and .geojson and returns the
// written file names keyed by encoding.
func WriteEncodings(dir, base string, g geom.T) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "vector: create %s", dir)
	}

	text, err := EncodeWKT(g)
	if err != nil {
		return nil, err
	}
	bin, err := EncodeWKB(g)
	if err != nil {
		return nil, err
	}
	js, err := EncodeGeoJSON(g)
	if err != nil {
		return nil, err
	}

	contents := map[string][]byte{
		"wkt":     []byte(text),
		"wkb":     bin,
		"geojson": js,
	}
	out := make(map[string]string, len(contents))
	for key, data := range contents {
		name := base + encodingSuffixes[key]
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return nil, eris.Wrapf(err, "vector: write %s", name)
		}
		out[key] = name
	}
	return out, nil
}
