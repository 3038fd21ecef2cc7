package catalog

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodcat/internal/stac"
	"github.com/sells-group/floodcat/internal/storage"
)

// zipDir packs every file of dir into a flat zip archive.
func zipDir(t *testing.T, dir, zipPath string) {
	t.Helper()
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(out)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		w, err := zw.Create(e.Name())
		require.NoError(t, err)
		f, err := os.Open(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		_, err = io.Copy(w, f)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
}

func TestHAND_Build(t *testing.T) {
	src := t.TempDir()
	writeShapefile(t, filepath.Join(src, "hand_021.shp"), []string{"HUC6"}, []shapeRecord{
		{rings: [][]shp.Point{cwBox(-91, 30, -90, 31)}, attrs: []string{"080902"}},
		{rings: [][]shp.Point{cwBox(-100, 40, -98, 41)}, attrs: []string{"102001"}},
		{rings: [][]shp.Point{cwBox(0, 0, 1, 1)}, attrs: []string{""}},
	})
	zipPath := filepath.Join(t.TempDir(), "hand_021.zip")
	zipDir(t, src, zipPath)

	b := &HAND{
		Storage:  storage.NewFileStorage(),
		RootURI:  "s3://hand-data/20200601",
		IndexURL: zipPath,
		WorkDir:  t.TempDir(),
	}
	col, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "hand_021", col.ID)
	assert.Equal(t, "CC-BY-4.0", col.License)
	assert.Equal(t, []string{"080902", "102001"}, itemIDs(col))

	item, _ := col.GetItem("080902", false)
	assert.Len(t, item.Assets, len(handAssets))
	assert.Equal(t, "s3://hand-data/20200601/080902/080902hand.tif", item.Assets["hand"].Href)
	assert.Equal(t, "s3://hand-data/20200601/080902/080902-wbd.geojson", item.Assets["wbd"].Href)
	assert.Equal(t, "s3://hand-data/20200601/080902/080902_comid.txt", item.Assets["comid"].Href)
	assert.Equal(t, stac.MediaTypeText, item.Assets["comid"].MediaType)
	assert.Equal(t, "s3://hand-data/20200601/080902/hydrogeo-fulltable-080902.csv", item.Assets["hydrogeo"].Href)
	assert.Equal(t, stac.MediaTypeCSV, item.Assets["hydrogeo"].MediaType)
	assert.Equal(t, []float64{-91, 30, -90, 31}, item.BBox)
	assert.True(t, item.Datetime.Equal(HANDVersion))

	assert.Equal(t, []float64{-100, 30, -90, 41}, col.Extent.Spatial)
	require.Len(t, col.Extent.Temporal, 1)
	assert.True(t, col.Extent.Temporal[0][0].Equal(HANDVersion))
	assert.Nil(t, col.Extent.Temporal[0][1])
}

func TestHAND_RequiresRoot(t *testing.T) {
	_, err := (&HAND{Storage: storage.NewFileStorage()}).Build(context.Background())
	assert.Error(t, err)
}

func TestHAND_MissingShapefile(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "readme.txt"), []byte("x"), 0o644))
	zipPath := filepath.Join(t.TempDir(), "hand_021.zip")
	zipDir(t, src, zipPath)

	_, err := (&HAND{Storage: storage.NewFileStorage(), RootURI: "s3://h", IndexURL: zipPath, WorkDir: t.TempDir()}).Build(context.Background())
	assert.Error(t, err)
}

func TestUSFIMR_Build(t *testing.T) {
	shpPath := filepath.Join(t.TempDir(), "usfimr.shp")
	writeShapefile(t, shpPath, []string{"Flood_Date", "Start_Time", "End_Time", "Sensor"}, []shapeRecord{
		{rings: [][]shp.Point{cwBox(-91, 30, -90, 31)}, attrs: []string{"2019-05-22", "10:30:00", "18:00:00", "Sentinel-1"}},
		{rings: [][]shp.Point{cwBox(-95, 35, -94, 36)}, attrs: []string{"2017-08-30", "", "", "Landsat"}},
	})
	out := t.TempDir()

	col, err := (&USFIMR{OutDir: out}).Build(shpPath)
	require.NoError(t, err)
	assert.Equal(t, "USFIMR", col.ID)
	assert.Equal(t, []string{"0", "1"}, itemIDs(col))

	first, _ := col.GetItem("0", false)
	assert.Equal(t, time.Date(2019, 5, 22, 10, 30, 0, 0, time.UTC), *first.Datetime)
	assert.Equal(t, "Sentinel-1", first.Properties["Sensor"])
	assert.Equal(t, []float64{-91, 30, -90, 31}, first.BBox)
	for _, key := range []string{"wkt", "wkb", "geojson"} {
		require.Contains(t, first.Assets, key)
		assert.FileExists(t, first.Assets[key].Href)
	}
	assert.Equal(t, filepath.Join(out, "0", "0-usfimr.wkt"), first.Assets["wkt"].Href)
	assert.Equal(t, stac.MediaTypeWKB, first.Assets["wkb"].MediaType)

	second, _ := col.GetItem("1", false)
	assert.Equal(t, time.Date(2017, 8, 30, 0, 0, 0, 0, time.UTC), *second.Datetime)

	require.Len(t, col.Extent.Temporal, 1)
	assert.Equal(t, time.Date(2017, 8, 30, 0, 0, 0, 0, time.UTC), *col.Extent.Temporal[0][0])
	assert.Equal(t, time.Date(2019, 5, 22, 18, 0, 0, 0, time.UTC), *col.Extent.Temporal[0][1])
	assert.Equal(t, []float64{-95, 30, -90, 36}, col.Extent.Spatial)

	require.NoError(t, col.NormalizeAndSave(out, stac.SelfContained))
	doc, err := os.ReadFile(filepath.Join(out, "0", "0.json"))
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"./0-usfimr.wkt"`)
}

func TestUSFIMR_BadDate(t *testing.T) {
	shpPath := filepath.Join(t.TempDir(), "usfimr.shp")
	writeShapefile(t, shpPath, []string{"Flood_Date"}, []shapeRecord{
		{rings: [][]shp.Point{cwBox(0, 0, 1, 1)}, attrs: []string{"May 22"}},
	})
	_, err := (&USFIMR{OutDir: t.TempDir()}).Build(shpPath)
	assert.Error(t, err)
}

func TestCombineTime(t *testing.T) {
	day := time.Date(2019, 5, 22, 0, 0, 0, 0, time.UTC)
	got, err := combineTime(day, "07:15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 5, 22, 7, 15, 0, 0, time.UTC), got)

	got, err = combineTime(day, "")
	require.NoError(t, err)
	assert.Equal(t, day, got)

	_, err = combineTime(day, "noon")
	assert.Error(t, err)
}

func TestFloodWindow(t *testing.T) {
	item := stac.NewItem("3", nil, nil, map[string]any{
		"Flood_Date": "2019-05-22",
		"Start_Time": "07:15",
		"End_Time":   "16:40:30",
	})
	start, end, err := FloodWindow(item)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 5, 22, 7, 15, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2019, 5, 22, 16, 40, 30, 0, time.UTC), end)

	_, _, err = FloodWindow(stac.NewItem("4", nil, nil, nil))
	assert.Error(t, err)
}

func TestJRCMonthly_Build(t *testing.T) {
	st := &memStorage{uris: []string{
		"s3://jrc/monthly/mississippi_1984_03.tif",
		"s3://jrc/monthly/mississippi_2019_12.tif",
		"s3://jrc/monthly/mississippi_2019_12.tif.ovr",
	}}
	col, err := (&JRCMonthly{Storage: st, Root: "s3://jrc/monthly/"}).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "jrc-monthly-water-mississippi-river", col.ID)
	assert.Equal(t, []string{"mississippi_1984_03", "mississippi_2019_12"}, itemIDs(col))

	item, _ := col.GetItem("mississippi_2019_12", false)
	assert.Equal(t, time.Date(2019, 12, 1, 0, 0, 0, 0, time.UTC), *item.Datetime)
	assert.Equal(t, "s3://jrc/monthly/mississippi_2019_12.tif", item.Assets["labels"].Href)
	assert.InDelta(t, -92.728, item.BBox[0], 1e-3)
	assert.InDelta(t, 42.555, item.BBox[3], 1e-3)

	assert.Equal(t, jrcBounds[:], col.Extent.Spatial)
	assert.Equal(t, jrcStart, *col.Extent.Temporal[0][0])
	assert.Equal(t, jrcEnd, *col.Extent.Temporal[0][1])
}

func TestParseMonth(t *testing.T) {
	got, err := ParseMonth("water_2001_07")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2001, 7, 1, 0, 0, 0, 0, time.UTC), got)

	for _, id := range []string{"2001_07", "water_2001_13", "water_year_07", "water_2001_xx"} {
		_, err := ParseMonth(id)
		assert.Error(t, err, id)
	}
}
