package stac

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestNewItem_BBoxIsEnvelope(t *testing.T) {
	item := NewItem("square", BoxPolygon(0, 0, 1, 1), nil, nil)
	assert.Equal(t, []float64{0, 0, 1, 1}, item.BBox)
	assert.NotNil(t, item.Properties)
	assert.NotNil(t, item.Assets)
}

func TestNewItem_IrregularPolygon(t *testing.T) {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{-92.5, 30}, {-90, 29}, {-89, 31.5}, {-91, 33}, {-92.5, 30},
	}})
	item := NewItem("flood", poly, nil, nil)
	assert.Equal(t, []float64{-92.5, 29, -89, 33}, item.BBox)
}

func TestNewItem_NilGeometry(t *testing.T) {
	item := NewItem("no-geom", nil, nil, nil)
	assert.Nil(t, item.BBox)
}

func TestItem_LinksByRelAndRemove(t *testing.T) {
	item := NewItem("label", BoxPolygon(0, 0, 1, 1), nil, nil)
	item.AddLink(SourceLink("s1", ""))
	item.AddLink(SourceLink("s2", "labels"))
	item.AddLink(Link{Rel: "license", Href: "https://example.com/license"})

	sources := item.LinksByRel(RelSource)
	require.Len(t, sources, 2)
	assert.Equal(t, "s1", sources[0].TargetID)
	assert.Equal(t, "labels", sources[0].Properties["label:assets"])

	item.RemoveLinks(RelSource)
	assert.Empty(t, item.LinksByRel(RelSource))
	assert.Len(t, item.Links, 1)
}

func TestItem_CloneIsDeep(t *testing.T) {
	item := NewItem("a", BoxPolygon(0, 0, 1, 1), date(2020, 6, 1), map[string]any{"country": "Bolivia"})
	item.AddAsset("image", Asset{Href: "s3://b/a.tif", MediaType: MediaTypeGeoTIFF, Roles: []string{"data"}})
	item.AddLink(SourceLink("s1", "labels"))

	cp := item.Clone()
	cp.Properties["country"] = "Ghana"
	cp.Assets["image"].Href = "s3://b/other.tif"
	cp.Assets["image"].Roles[0] = "overview"
	cp.Links[0].Properties["label:assets"] = "mask"
	*cp.Datetime = time.Time{}
	cp.BBox[0] = 99

	assert.Equal(t, "Bolivia", item.Properties["country"])
	assert.Equal(t, "s3://b/a.tif", item.Assets["image"].Href)
	assert.Equal(t, "data", item.Assets["image"].Roles[0])
	assert.Equal(t, "labels", item.Links[0].Properties["label:assets"])
	assert.Equal(t, 2020, item.Datetime.Year())
	assert.Equal(t, 0.0, item.BBox[0])
	assert.Equal(t, item.Geometry.FlatCoords(), cp.Geometry.FlatCoords())
}

func TestItem_MarshalJSON(t *testing.T) {
	item := NewItem("a", BoxPolygon(0, 0, 1, 1), date(2020, 6, 1), nil)
	item.AddAsset("image", Asset{Href: "s3://b/a.tif", MediaType: MediaTypeGeoTIFF})
	item.AddLink(SourceLink("s1", "labels"))

	data, err := json.Marshal(item)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Feature", doc["type"])
	assert.Equal(t, "1.0.0", doc["stac_version"])
	assert.Equal(t, "2020-06-01T00:00:00Z", doc["properties"].(map[string]any)["datetime"])
	geometry := doc["geometry"].(map[string]any)
	assert.Equal(t, "Polygon", geometry["type"])

	links := doc["links"].([]any)
	require.Len(t, links, 1)
	link := links[0].(map[string]any)
	assert.Equal(t, "source", link["rel"])
	assert.Equal(t, "s1", link["href"])
	assert.Equal(t, "labels", link["label:assets"])
}

func TestApplyLabel(t *testing.T) {
	item := NewItem("l", BoxPolygon(0, 0, 1, 1), nil, nil)
	ApplyLabel(item, LabelProps{
		Description: "0: Not Water. 1: Water.",
		Type:        LabelTypeRaster,
		Tasks:       []string{"classification"},
		Classes:     []LabelClasses{{Classes: []any{0, 1}}},
	})
	ApplyLabel(item, LabelProps{Description: "again", Type: LabelTypeRaster})

	assert.Equal(t, []string{LabelExtension}, item.Extensions)
	assert.Equal(t, "again", item.Properties["label:description"])
	assert.Equal(t, []LabelClasses{}, item.Properties["label:classes"])
	assert.Nil(t, item.Properties["label:properties"])
}
