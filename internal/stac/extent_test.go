package stac

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateExtents_SpatialContainsAllItems(t *testing.T) {
	root := sampleTree()
	a, _ := root.GetChild("A", false)

	UpdateExtents(a)
	// A holds a-item directly and deep (5..6) through A1.
	assert.Equal(t, []float64{0, 0, 6, 6}, a.Extent.Spatial)

	for _, item := range a.AllItems() {
		assert.LessOrEqual(t, a.Extent.Spatial[0], item.BBox[0])
		assert.LessOrEqual(t, a.Extent.Spatial[1], item.BBox[1])
		assert.GreaterOrEqual(t, a.Extent.Spatial[2], item.BBox[2])
		assert.GreaterOrEqual(t, a.Extent.Spatial[3], item.BBox[3])
	}
}

func TestUpdateExtents_SingleTimestamp(t *testing.T) {
	c := NewCollection("c", "", "", nil, "")
	c.AddItem(NewItem("a", BoxPolygon(0, 0, 1, 1), date(2019, 5, 1), nil))
	c.AddItem(NewItem("b", BoxPolygon(1, 1, 2, 2), date(2019, 5, 1), nil))
	c.AddItem(NewItem("c", BoxPolygon(1, 1, 2, 2), nil, nil))

	UpdateExtents(c)
	require.Len(t, c.Extent.Temporal, 1)
	assert.True(t, c.Extent.Temporal[0][0].Equal(*date(2019, 5, 1)))
	assert.Nil(t, c.Extent.Temporal[0][1])
}

func TestUpdateExtents_MinMax(t *testing.T) {
	c := NewCollection("c", "", "", nil, "")
	c.AddItem(NewItem("a", BoxPolygon(0, 0, 1, 1), date(2019, 5, 1), nil))
	c.AddItem(NewItem("b", BoxPolygon(0, 0, 1, 1), date(2018, 1, 2), nil))
	c.AddItem(NewItem("c", BoxPolygon(0, 0, 1, 1), date(2020, 12, 31), nil))

	UpdateExtents(c)
	require.Len(t, c.Extent.Temporal, 1)
	assert.True(t, c.Extent.Temporal[0][0].Equal(*date(2018, 1, 2)))
	assert.True(t, c.Extent.Temporal[0][1].Equal(*date(2020, 12, 31)))
}

func TestUpdateExtents_NoTimestampsUsesEpoch(t *testing.T) {
	c := NewCollection("c", "", "", nil, "")
	c.AddItem(NewItem("a", BoxPolygon(0, 0, 1, 1), nil, nil))

	UpdateExtents(c)
	require.Len(t, c.Extent.Temporal, 1)
	assert.True(t, c.Extent.Temporal[0][0].Equal(UnknownEpoch))
	assert.Nil(t, c.Extent.Temporal[0][1])
}

func TestUpdateExtents_EmptyCollection(t *testing.T) {
	c := NewCollection("c", "", "", nil, "")
	UpdateExtents(c)
	assert.Nil(t, c.Extent.Spatial)
	assert.True(t, c.Extent.Temporal[0][0].Equal(UnknownEpoch))

	// A spatial extent from before the items lost their footprints is dropped.
	stale := NewCollection("stale", "", "", &Extent{Spatial: []float64{-92, 29, -88, 42}}, "")
	stale.AddItem(NewItem("no-footprint", nil, nil, nil))
	UpdateExtents(stale)
	assert.Nil(t, stale.Extent.Spatial)
}

func TestExtent_JSONRoundTrip(t *testing.T) {
	start := time.Date(1984, 3, 1, 0, 0, 0, 0, time.UTC)
	e := Extent{Spatial: []float64{-92.7, 29.0, -88.0, 42.5}, Temporal: [][2]*time.Time{{&start, nil}}}

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"spatial":{"bbox":[[-92.7,29.0,-88.0,42.5]]},"temporal":{"interval":[["1984-03-01T00:00:00Z",null]]}}`, string(data))

	var back Extent
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, e.Spatial, back.Spatial)
	assert.True(t, back.Temporal[0][0].Equal(start))
	assert.Nil(t, back.Temporal[0][1])
}

func TestExtent_EmptyJSON(t *testing.T) {
	data, err := json.Marshal(Extent{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"spatial":{"bbox":[]},"temporal":{"interval":[[null,null]]}}`, string(data))
}
