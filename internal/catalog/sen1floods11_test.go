package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodcat/internal/stac"
)

var sen1floods11Objects = []string{
	"s3://sen1floods11-data/S1/Bolivia_103757_S1.tif",
	"s3://sen1floods11-data/S1/Bolivia_103757_S1.tif.aux.xml",
	"s3://sen1floods11-data/S1_NoQC/Ghana_5079_S1.tif",
	"s3://sen1floods11-data/S2/Bolivia_103757_S2.tif",
	"s3://sen1floods11-data/S1Flood_NoQC/Ghana_5079_S1Flood.tif",
	"s3://sen1floods11-data/NoQC/Ghana_5079_NoQC.tif",
	"s3://sen1floods11-data/QC_v2/Bolivia_103757_QC.tif",
	"s3://sen1floods11-data/Perm/Bolivia_103757_JRCPerm.tif",
	"s3://sen1floods11-data/S1Flood/Bolivia_103757_S1Flood.tif",
	"s3://sen1floods11-data/S1Flood/Mekong_1111068_S1Flood.tif",
}

func newSen1Floods11(t *testing.T, fb *fakeBounds, debug bool) *Sen1Floods11 {
	t.Helper()
	d, err := Sen1Floods11Descriptor()
	require.NoError(t, err)
	return &Sen1Floods11{
		Storage:    &memStorage{uris: sen1floods11Objects},
		Chips:      &ChipBuilder{Bounds: NewBoundsCache(fb), Dates: testChipDates(t), Debug: debug},
		Descriptor: d,
	}
}

func itemIDs(c *stac.Catalog) []string {
	var ids []string
	for _, item := range c.Items() {
		ids = append(ids, item.ID)
	}
	return ids
}

func TestSen1Floods11Descriptor(t *testing.T) {
	d, err := Sen1Floods11Descriptor()
	require.NoError(t, err)

	assert.Equal(t, "sen1floods11", d.ID)
	require.Len(t, d.Imagery, 2)
	assert.Equal(t, []string{"S1/", "S1_NoQC/"}, d.Imagery[0].Prefixes)
	assert.Equal(t, Sentinel2, d.Imagery[1].Sensor)

	var ids []string
	for _, l := range d.Labels {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"S1Flood_NoQC", "NoQC", "QC_v2", "Perm", "S1Flood"}, ids)

	qc := d.Labels[2].Spec()
	assert.Equal(t, DualSource, qc.Strategy)
	assert.Equal(t, []string{"classification"}, qc.Label.Tasks)
	assert.Equal(t, []any{-1, 0, 1}, qc.Label.Classes[0].Classes)
	assert.Equal(t, NoSource, d.Labels[3].Strategy)
}

func TestSen1Floods11_Build(t *testing.T) {
	fb := newFakeBounds()
	root, err := newSen1Floods11(t, fb, false).Build(context.Background())
	require.NoError(t, err)

	var children []string
	for _, c := range root.Children() {
		children = append(children, c.ID)
	}
	assert.Equal(t, []string{"S1", "S2", "S1Flood_NoQC", "NoQC", "QC_v2", "Perm", "S1Flood"}, children)

	s1, _ := root.GetChild("S1", false)
	assert.Equal(t, []string{"Bolivia_103757_S1", "Ghana_5079_S1"}, itemIDs(s1))
	img, _ := s1.GetItem("Bolivia_103757_S1", false)
	assert.Equal(t, []float64{-66, -15, -65, -14}, img.BBox)
	assert.Equal(t, "Bolivia", img.Properties["country"])
	assert.Equal(t, "103757", img.Properties["event_id"])
	assert.Equal(t, "s3://sen1floods11-data/S1/Bolivia_103757_S1.tif", img.Assets["image"].Href)
	assert.Equal(t, "2018-02-15", img.Datetime.Format("2006-01-02"))

	s2Item, _ := root.GetItem("Bolivia_103757_S2", true)
	require.NotNil(t, s2Item)
	assert.Equal(t, "2018-02-14", s2Item.Datetime.Format("2006-01-02"))

	qc, _ := root.GetItem("Bolivia_103757_QC", true)
	require.NotNil(t, qc)
	var targets []string
	for _, l := range qc.LinksByRel(stac.RelSource) {
		targets = append(targets, l.TargetID)
		assert.Equal(t, "labels", l.Properties["label:assets"])
	}
	assert.Equal(t, []string{"Bolivia_103757_S1", "Bolivia_103757_S2"}, targets)
	assert.Equal(t, "QC_v2", qc.Collection)
	assert.Contains(t, qc.Extensions, stac.LabelExtension)
	assert.Equal(t, "raster", qc.Properties["label:type"])

	perm, _ := root.GetItem("Bolivia_103757_JRCPerm", true)
	assert.Empty(t, perm.Links)

	s1weak, _ := root.GetItem("Ghana_5079_S1Flood", true)
	require.Len(t, s1weak.LinksByRel(stac.RelSource), 1)
	assert.Equal(t, "Ghana_5079_S1", s1weak.Links[0].TargetID)

	noqc, _ := root.GetItem("Ghana_5079_NoQC", true)
	assert.Empty(t, noqc.LinksByRel(stac.RelSource), "no S2 chip for Ghana")

	mekong, _ := root.GetItem("Mekong_1111068_S1Flood", true)
	assert.Empty(t, mekong.Links)
	assert.Equal(t, "2018-08-05", mekong.Datetime.Format("2006-01-02"))

	// One header read per location and event.
	assert.Equal(t, 3, fb.total())

	labels, _ := root.GetChild("QC_v2", false)
	assert.Equal(t, []float64{-66, -15, -65, -14}, labels.Extent.Spatial)
}

func TestSen1Floods11_BuildAndSave(t *testing.T) {
	root, err := newSen1Floods11(t, newFakeBounds(), false).Build(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, root.NormalizeAndSave(dir, stac.SelfContained))

	loaded, err := stac.Load(filepath.Join(dir, "catalog.json"))
	require.NoError(t, err)
	assert.Len(t, loaded.AllItems(), len(root.AllItems()))

	qc, ok := loaded.GetItem("Bolivia_103757_QC", true)
	require.True(t, ok)
	for _, l := range qc.LinksByRel(stac.RelSource) {
		_, err := loaded.ResolveLink(l)
		assert.NoError(t, err)
	}
}

func TestSen1Floods11_Debug(t *testing.T) {
	objects := []string{}
	for i := 0; i < 25; i++ {
		objects = append(objects, "s3://sen1floods11-data/S1/Bolivia_"+string(rune('a'+i))+"_S1.tif")
	}
	b := newSen1Floods11(t, newFakeBounds(), true)
	b.Storage = &memStorage{uris: objects}

	root, err := b.Build(context.Background())
	require.NoError(t, err)
	s1, _ := root.GetChild("S1", false)
	assert.Len(t, s1.Items(), DebugLimit)
}

func TestSen1Floods11_BoundsErrorAborts(t *testing.T) {
	fb := newFakeBounds()
	fb.err = errors.New("rasterio: not a tiff")
	_, err := newSen1Floods11(t, fb, false).Build(context.Background())
	assert.Error(t, err)
}

func TestAddLabelChips_RequiresIndex(t *testing.T) {
	b := &ChipBuilder{Bounds: NewBoundsCache(newFakeBounds())}
	col := stac.NewCollection("QC_v2", "", "", nil, "")
	err := b.AddLabelChips(context.Background(), col, (&memStorage{}).List(context.Background(), ""), nil, LabelSpec{})
	assert.Error(t, err)
}

func TestAddImageryChips_InvalidName(t *testing.T) {
	b := &ChipBuilder{Bounds: NewBoundsCache(newFakeBounds())}
	col := stac.NewCollection("S1", "", "", nil, "")
	uris := (&memStorage{uris: []string{"s3://b/S1/nounderscore.tif"}}).List(context.Background(), "")
	err := b.AddImageryChips(context.Background(), col, Sentinel1, uris, NewImageryIndex())
	assert.True(t, errors.Is(err, ErrInvalidChipName))
}
