package stac

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// UnknownEpoch is the temporal extent start used when no item has a datetime.
var UnknownEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Extent is a collection's spatial and temporal coverage.
type Extent struct {
	// Spatial is [minx, miny, maxx, maxy], nil when unknown.
	Spatial []float64
	// Temporal holds [start, end] intervals; nil ends are open.
	Temporal [][2]*time.Time
}

// Clone deep-copies e.
func (e *Extent) Clone() *Extent {
	out := &Extent{Spatial: slices.Clone(e.Spatial)}
	for _, iv := range e.Temporal {
		var cp [2]*time.Time
		for i, t := range iv {
			if t != nil {
				v := *t
				cp[i] = &v
			}
		}
		out.Temporal = append(out.Temporal, cp)
	}
	return out
}

type extentJSON struct {
	Spatial struct {
		BBox [][]float64 `json:"bbox"`
	} `json:"spatial"`
	Temporal struct {
		Interval [][2]*time.Time `json:"interval"`
	} `json:"temporal"`
}

// MarshalJSON writes the STAC extent object.
func (e Extent) MarshalJSON() ([]byte, error) {
	var doc extentJSON
	doc.Spatial.BBox = [][]float64{}
	if e.Spatial != nil {
		doc.Spatial.BBox = [][]float64{e.Spatial}
	}
	doc.Temporal.Interval = e.Temporal
	if doc.Temporal.Interval == nil {
		doc.Temporal.Interval = [][2]*time.Time{{nil, nil}}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads the STAC extent object.
func (e *Extent) UnmarshalJSON(data []byte) error {
	var doc extentJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return eris.Wrap(err, "stac: decode extent")
	}
	e.Spatial = nil
	if len(doc.Spatial.BBox) > 0 && len(doc.Spatial.BBox[0]) >= 4 {
		e.Spatial = doc.Spatial.BBox[0][:4]
	}
	e.Temporal = doc.Temporal.Interval
	return nil
}

// UpdateExtents recomputes c's extent from every item beneath it. The
// spatial extent is the envelope of the union of item geometries. The
// temporal extent collapses to [t, open] when all items share one
// datetime and falls back to [UnknownEpoch, open] when none has one.
func UpdateExtents(c *Catalog) {
	if c.Extent == nil {
		c.Extent = &Extent{}
	}
	items := c.AllItems()

	bounds := geom.NewBounds(geom.XY)
	for _, item := range items {
		if item.Geometry != nil {
			bounds.Extend(item.Geometry)
		} else if len(item.BBox) == 4 {
			bounds.Extend(geom.NewPointFlat(geom.XY, item.BBox[:2]))
			bounds.Extend(geom.NewPointFlat(geom.XY, item.BBox[2:]))
		}
	}
	if !bounds.IsEmpty() {
		c.Extent.Spatial = []float64{bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)}
	} else {
		zap.L().Warn("stac: collection has no spatial extent", zap.String("collection", c.ID))
		c.Extent.Spatial = nil
	}

	seen := make(map[int64]time.Time)
	for _, item := range items {
		if item.Datetime != nil {
			seen[item.Datetime.UnixNano()] = item.Datetime.UTC()
		}
	}
	switch len(seen) {
	case 0:
		zap.L().Warn("stac: collection has no temporal extent", zap.String("collection", c.ID))
		start := UnknownEpoch
		c.Extent.Temporal = [][2]*time.Time{{&start, nil}}
	case 1:
		for _, t := range seen {
			c.Extent.Temporal = [][2]*time.Time{{&t, nil}}
		}
	default:
		var lo, hi time.Time
		first := true
		for _, t := range seen {
			if first || t.Before(lo) {
				lo = t
			}
			if first || t.After(hi) {
				hi = t
			}
			first = false
		}
		c.Extent.Temporal = [][2]*time.Time{{&lo, &hi}}
	}
}
