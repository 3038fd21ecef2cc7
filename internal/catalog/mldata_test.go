package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodcat/internal/stac"
)

// mlSource builds a sen1floods11-shaped tree with n hand-labelled chips,
// each derived from one S1 and one S2 chip.
func mlSource(n int) *stac.Catalog {
	root := stac.NewCatalog("sen1floods11", "", "")
	s1 := stac.NewCollection("S1", "", "", nil, "")
	s2 := stac.NewCollection("S2", "", "", nil, "")
	qc := stac.NewCollection("QC_v2", "", "", nil, "")
	dt := time.Date(2018, 2, 15, 0, 0, 0, 0, time.UTC)

	for i := range n {
		fp := stac.BoxPolygon(float64(i), 0, float64(i+1), 1)
		a := stac.NewItem(fmt.Sprintf("Bolivia_%d_S1", i), fp, &dt, nil)
		a.AddAsset("image", stac.Asset{Href: fmt.Sprintf("s3://b/S1/Bolivia_%d_S1.tif", i), MediaType: stac.MediaTypeGeoTIFF})
		b := stac.NewItem(fmt.Sprintf("Bolivia_%d_S2", i), fp, &dt, nil)
		s1.AddItem(a)
		s2.AddItem(b)

		l := stac.NewItem(fmt.Sprintf("Bolivia_%d_QC", i), fp, &dt, nil)
		l.AddAsset("labels", stac.Asset{Href: fmt.Sprintf("s3://b/QC_v2/Bolivia_%d_QC.tif", i), MediaType: stac.MediaTypeGeoTIFF})
		l.AddLink(stac.SourceLink(a.ID, "labels"))
		l.AddLink(stac.SourceLink(b.ID, "labels"))
		qc.AddItem(l)
	}
	for _, c := range []*stac.Catalog{s1, s2, qc} {
		stac.UpdateExtents(c)
		root.AddChild(c)
	}
	return root
}

func childItems(t *testing.T, c *stac.Catalog, id string) []*stac.Item {
	t.Helper()
	child, ok := c.GetChild(id, false)
	require.True(t, ok, id)
	return child.Items()
}

func TestSplitOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultSplitOptions().Validate())

	bad := DefaultSplitOptions()
	bad.Train = 0.7
	assert.True(t, errors.Is(bad.Validate(), ErrSplitProportions))

	bad = DefaultSplitOptions()
	bad.Sample = 1.5
	assert.Error(t, bad.Validate())

	thirds := SplitOptions{Sample: 1, Train: 0.7, Test: 0.1, Validation: 0.2}
	assert.NoError(t, thirds.Validate())
}

func TestBuildMLData(t *testing.T) {
	src := mlSource(10)
	opts := DefaultSplitOptions()
	opts.Seed = 42

	out, err := BuildMLData(src, "hand", opts)
	require.NoError(t, err)
	assert.Equal(t, "hand_mldata", out.ID)

	var children []string
	for _, c := range out.Children() {
		children = append(children, c.ID)
	}
	assert.Equal(t, []string{"train", "test", "validation", "labels"}, children)

	labels := childItems(t, out, "labels")
	require.Len(t, labels, 10)
	for _, l := range labels {
		assert.Empty(t, l.LinksByRel(stac.RelSource))
	}

	train := childItems(t, out, "train")
	test := childItems(t, out, "test")
	val := childItems(t, out, "validation")
	assert.Len(t, train, 12)
	assert.Len(t, test, 4)
	assert.Len(t, val, 4)

	for _, scene := range append(append(train, test...), val...) {
		require.Len(t, scene.Links, 1)
		assert.Equal(t, stac.RelLabels, scene.Links[0].Rel)
		assert.Equal(t, stac.MediaTypeGeoTIFF, scene.Links[0].MediaType)
		target, err := out.ResolveLink(scene.Links[0])
		require.NoError(t, err)
		assert.Equal(t, "labels", target.Collection)
	}

	// The source catalog is untouched.
	orig, _ := src.GetItem("Bolivia_0_QC", true)
	assert.Len(t, orig.LinksByRel(stac.RelSource), 2)
	s1, _ := src.GetItem("Bolivia_0_S1", true)
	assert.Empty(t, s1.Links)

	qc, _ := src.GetChild("QC_v2", false)
	trainCol, _ := out.GetChild("train", false)
	assert.Equal(t, qc.Extent.Spatial, trainCol.Extent.Spatial)

	require.NoError(t, out.NormalizeAndSave(filepath.Join(t.TempDir(), "mldata_hand"), stac.SelfContained))
}

func TestBuildMLData_SeedIsDeterministic(t *testing.T) {
	opts := DefaultSplitOptions()
	opts.Seed = 7
	a, err := BuildMLData(mlSource(20), "hand", opts)
	require.NoError(t, err)
	b, err := BuildMLData(mlSource(20), "hand", opts)
	require.NoError(t, err)

	for _, id := range []string{"train", "test", "validation"} {
		ac, _ := a.GetChild(id, false)
		bc, _ := b.GetChild(id, false)
		assert.Equal(t, itemIDs(ac), itemIDs(bc), id)
	}
}

func TestBuildMLData_Sample(t *testing.T) {
	opts := DefaultSplitOptions()
	opts.Sample = 0
	out, err := BuildMLData(mlSource(5), "hand", opts)
	require.NoError(t, err)
	assert.Empty(t, childItems(t, out, "train"))
	assert.Len(t, childItems(t, out, "labels"), 5)
}

func TestBuildMLData_Errors(t *testing.T) {
	_, err := BuildMLData(mlSource(1), "s3weak", DefaultSplitOptions())
	assert.True(t, errors.Is(err, ErrUnknownExperiment))

	bad := DefaultSplitOptions()
	bad.Validation = 0.5
	_, err = BuildMLData(mlSource(1), "hand", bad)
	assert.True(t, errors.Is(err, ErrSplitProportions))

	_, err = BuildMLData(mlSource(1), "s2weak", DefaultSplitOptions())
	assert.True(t, errors.Is(err, stac.ErrNotFound))
}

func TestInvertSourceLinks_Unresolved(t *testing.T) {
	src := mlSource(1)
	label := stac.NewItem("orphan_1_QC", nil, nil, nil)
	label.AddLink(stac.SourceLink("missing_1_S1", "labels"))

	scenes := InvertSourceLinks(src, label)
	assert.Empty(t, scenes)
	assert.Empty(t, label.Links)
}
