package catalog

import "github.com/sells-group/floodcat/internal/stac"

// Sensor names an imagery source.
type Sensor string

// Sensors with chip collections in Sen1Floods11.
const (
	Sentinel1 Sensor = "S1"
	Sentinel2 Sensor = "S2"
)

// ImageryIndex maps chip keys to the imagery items built for each sensor.
// It is filled by the imagery pass and read by the label pass.
type ImageryIndex struct {
	items map[Sensor]map[ChipKey]*stac.Item
}

// NewImageryIndex returns an empty index.
func NewImageryIndex() *ImageryIndex {
	return &ImageryIndex{items: make(map[Sensor]map[ChipKey]*stac.Item)}
}

// Put records item for sensor and key. A later chip with the same key
// replaces the earlier one.
func (x *ImageryIndex) Put(sensor Sensor, key ChipKey, item *stac.Item) {
	m, ok := x.items[sensor]
	if !ok {
		m = make(map[ChipKey]*stac.Item)
		x.items[sensor] = m
	}
	m[key] = item
}

// Get looks up the imagery item for sensor and key.
func (x *ImageryIndex) Get(sensor Sensor, key ChipKey) (*stac.Item, bool) {
	item, ok := x.items[sensor][key]
	return item, ok
}

// Len returns the number of keys indexed for sensor.
func (x *ImageryIndex) Len(sensor Sensor) int {
	return len(x.items[sensor])
}
