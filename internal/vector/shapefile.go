// Package vector reads shapefile features and writes their geometries as
// WKT, WKB and GeoJSON.
package vector

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Feature is one shapefile record. ID is the zero-based record index.
type Feature struct {
	ID         string
	Geometry   geom.T
	Attributes map[string]string
}

// Attr returns the named attribute, matching names case-insensitively.
func (f Feature) Attr(name string) string {
	if v, ok := f.Attributes[name]; ok {
		return v
	}
	for k, v := range f.Attributes {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// ReadShapefile reads every record with a supported geometry.
func ReadShapefile(shpPath string) ([]Feature, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var features []Feature
	var skipped int
	for reader.Next() {
		idx, shape := reader.Shape()
		g := ShapeGeometry(shape)
		if g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimRight(reader.Attribute(i), "\x00")
			attrs[name] = strings.TrimSpace(val)
		}
		features = append(features, Feature{
			ID:         strconv.Itoa(idx),
			Geometry:   g,
			Attributes: attrs,
		})
	}
	if err := reader.Err(); err != nil {
		return features, eris.Wrapf(err, "vector: read shapefile %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Debug("vector: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return features, nil
}

// ShapeGeometry converts a go-shp shape to a go-geom geometry. Polygon rings
// are grouped into polygons by winding: clockwise rings start a new shell and
// counter-clockwise rings are holes of the preceding shell. Returns nil for
// unsupported or empty shapes.
func ShapeGeometry(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.PolyLine:
		return polyLineToMultiLineString(s)
	case *shp.Polygon:
		return polygonGeometry(s)
	default:
		return nil
	}
}

func parts(numParts int32, starts []int32, points []shp.Point) [][]shp.Point {
	out := make([][]shp.Point, 0, numParts)
	for i := int32(0); i < numParts; i++ {
		start := starts[i]
		end := int32(len(points))
		if i+1 < numParts {
			end = starts[i+1]
		}
		out = append(out, points[start:end])
	}
	return out
}

func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)
	for i, part := range parts(pl.NumParts, pl.Parts, pl.Points) {
		ls := geom.NewLineStringFlat(geom.XY, flatCoords(part))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("vector: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func polygonGeometry(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var polys []*geom.Polygon
	for i, ring := range parts(p.NumParts, p.Parts, p.Points) {
		if len(ring) < 4 {
			zap.L().Debug("vector: skipping degenerate ring", zap.Int("part", i))
			continue
		}
		lr := geom.NewLinearRingFlat(geom.XY, flatCoords(ring))
		if signedArea(ring) <= 0 || len(polys) == 0 {
			poly := geom.NewPolygon(geom.XY).SetSRID(4326)
			if err := poly.Push(lr); err != nil {
				zap.L().Debug("vector: skipping malformed shell", zap.Int("part", i), zap.Error(err))
				continue
			}
			polys = append(polys, poly)
			continue
		}
		if err := polys[len(polys)-1].Push(lr); err != nil {
			zap.L().Debug("vector: skipping malformed hole", zap.Int("part", i), zap.Error(err))
		}
	}

	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	}
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i, poly := range polys {
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("vector: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
		}
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []shp.Point) float64 {
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return sum / 2
}

func flatCoords(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, pt := range points {
		flat = append(flat, pt.X, pt.Y)
	}
	return flat
}
