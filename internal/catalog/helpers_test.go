package catalog

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

// memStorage lists a fixed set of URIs and fetches from a local file map.
type memStorage struct {
	uris  []string
	files map[string]string
	lists int
}

func (m *memStorage) List(_ context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		m.lists++
		for _, u := range m.uris {
			if strings.HasPrefix(u, prefix) && !yield(u, nil) {
				return
			}
		}
	}
}

func (m *memStorage) Fetch(_ context.Context, uri, localPath string) error {
	data, err := os.ReadFile(m.files[uri])
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}

// fakeBounds returns a 1 degree box per location and counts reads.
type fakeBounds struct {
	origins map[string][2]float64
	reads   map[string]int
	err     error
}

func newFakeBounds() *fakeBounds {
	return &fakeBounds{
		origins: map[string][2]float64{
			"Bolivia": {-66, -15},
			"Ghana":   {-1, 9},
			"Mekong":  {105, 11},
		},
		reads: map[string]int{},
	}
}

func (f *fakeBounds) Bounds(_ context.Context, uri string) ([4]float64, error) {
	f.reads[uri]++
	if f.err != nil {
		return [4]float64{}, f.err
	}
	name, err := ParseChipName(uri)
	if err != nil {
		return [4]float64{}, err
	}
	o := f.origins[name.Location]
	return [4]float64{o[0], o[1], o[0] + 1, o[1] + 1}, nil
}

func (f *fakeBounds) total() int {
	n := 0
	for _, c := range f.reads {
		n += c
	}
	return n
}

const chipMetadata = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": null, "properties": {"location": "Bolivia", "s1_date": "2018/02/15", "s2_date": "2018/02/14"}},
    {"type": "Feature", "geometry": null, "properties": {"location": "Cambodia", "s1_date": "2018/08/05", "s2_date": "2018/08/04"}},
    {"type": "Feature", "geometry": null, "properties": {"location": "Bolivia", "s1_date": "1999/01/01", "s2_date": "1999/01/01"}}
  ]
}`

func testChipDates(t *testing.T) *ChipDates {
	t.Helper()
	d, err := ParseChipDates([]byte(chipMetadata))
	require.NoError(t, err)
	return d
}

type shapeRecord struct {
	rings [][]shp.Point
	attrs []string
}

// writeShapefile writes polygon records with string attributes.
func writeShapefile(t *testing.T, path string, fields []string, records []shapeRecord) {
	t.Helper()
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	shpFields := make([]shp.Field, len(fields))
	for i, f := range fields {
		shpFields[i] = shp.StringField(f, 32)
	}
	require.NoError(t, w.SetFields(shpFields))

	for row, rec := range records {
		var points []shp.Point
		var parts []int32
		for _, r := range rec.rings {
			parts = append(parts, int32(len(points)))
			points = append(points, r...)
		}
		w.Write(&shp.Polygon{
			Box:       shp.BBoxFromPoints(points),
			NumParts:  int32(len(parts)),
			NumPoints: int32(len(points)),
			Parts:     parts,
			Points:    points,
		})
		for col, v := range rec.attrs {
			require.NoError(t, w.WriteAttribute(row, col, v))
		}
	}
	w.Close()
}

// cwBox is a clockwise ring around the box.
func cwBox(minX, minY, maxX, maxY float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY},
		{X: minX, Y: maxY},
		{X: maxX, Y: maxY},
		{X: maxX, Y: minY},
		{X: minX, Y: minY},
	}
}
