package catalog

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

const chipDateLayout = "2006/01/02"

// locationAliases maps chip file name locations to the location names used
// in the chip metadata.
var locationAliases = map[string]string{
	"Mekong": "Cambodia",
}

// ChipDates holds acquisition dates per location read from
// chips_metadata.geojson.
type ChipDates struct {
	props map[string]map[string]any
}

// LoadChipDates reads a chips metadata GeoJSON file.
func LoadChipDates(path string) (*ChipDates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read chip metadata %s", path)
	}
	return ParseChipDates(data)
}

// ParseChipDates decodes a chips metadata feature collection. The first
// feature for a location wins.
func ParseChipDates(data []byte) (*ChipDates, error) {
	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(data); err != nil {
		return nil, eris.Wrap(err, "catalog: decode chip metadata")
	}
	d := &ChipDates{props: make(map[string]map[string]any)}
	for _, f := range fc.Features {
		loc, _ := f.Properties["location"].(string)
		if loc == "" {
			continue
		}
		if _, ok := d.props[loc]; !ok {
			d.props[loc] = f.Properties
		}
	}
	return d, nil
}

// Date returns the acquisition date of sensor ("s1" or "s2") imagery for a
// location, or nil with a warning when the metadata has none.
func (d *ChipDates) Date(sensor Sensor, location string) *time.Time {
	if d == nil {
		return nil
	}
	if alias, ok := locationAliases[location]; ok {
		location = alias
	}
	field := strings.ToLower(string(sensor)) + "_date"

	props, ok := d.props[location]
	if !ok {
		zap.L().Warn("catalog: no image date", zap.String("sensor", string(sensor)), zap.String("location", location))
		return nil
	}
	raw, _ := props[field].(string)
	t, err := time.Parse(chipDateLayout, raw)
	if err != nil {
		zap.L().Warn("catalog: unparseable image date",
			zap.String("sensor", string(sensor)),
			zap.String("location", location),
			zap.String("value", raw),
		)
		return nil
	}
	return &t
}
