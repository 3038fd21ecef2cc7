package catalog

import (
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/stac"
	"github.com/sells-group/floodcat/internal/vector"
)

const (
	usfimrCollectionID = "USFIMR"
	usfimrTitle        = "U.S. Flood Inundation Mapping Repository"
	usfimrDescription  = "GloFIMR is an extension of the USFIMR project that commenced in August 2016 with " +
		"funding from NOAA. The project's main goal is to provide high-resolution inundation extent maps of " +
		"flood events to be used by scientists and practitioners for model calibration and flood " +
		"susceptibility evaluation. The maps are based on analysis of Remote Sensing imagery from a number " +
		"of Satellite sensors (e.g. Landsat, Sentinel-1, Sentinel-2)."
)

var usfimrEncodings = []struct {
	key, description, mediaType string
}{
	{"wkt", "well known text representation", stac.MediaTypeWKT},
	{"wkb", "well known binary representation", stac.MediaTypeWKB},
	{"geojson", "geojson representation", stac.MediaTypeGeoJSON},
}

// Date layouts seen in the Flood_Date and time attributes.
var (
	floodDateLayouts = []string{"2006-01-02", "20060102", "2006/01/02"}
	floodTimeLayouts = []string{"15:04:05", "15:04"}
)

// USFIMR builds one item per flood polygon. The polygon itself is written
// next to the item as WKT, WKB and GeoJSON; the item footprint is its
// convex hull.
type USFIMR struct {
	// OutDir is the catalog root the flood files are written under.
	OutDir string
}

// Build reads shpPath and assembles the collection.
func (b *USFIMR) Build(shpPath string) (*stac.Catalog, error) {
	features, err := vector.ReadShapefile(shpPath)
	if err != nil {
		return nil, err
	}
	zap.L().Info("catalog: read usfimr floods", zap.String("path", shpPath), zap.Int("features", len(features)))

	col := stac.NewCollection(usfimrCollectionID, usfimrDescription, usfimrTitle, nil, "")
	var start, end *time.Time
	for _, f := range features {
		item, itemEnd, err := b.item(f)
		if err != nil {
			return nil, err
		}
		col.AddItem(item)

		if start == nil || item.Datetime.Before(*start) {
			start = item.Datetime
		}
		if end == nil || itemEnd.After(*end) {
			end = &itemEnd
		}
	}

	stac.UpdateExtents(col)
	if start != nil {
		col.Extent.Temporal = [][2]*time.Time{{start, end}}
	}
	return col, nil
}

func (b *USFIMR) item(f vector.Feature) (*stac.Item, time.Time, error) {
	startDT, endDT, err := floodWindow(f.Attr)
	if err != nil {
		return nil, time.Time{}, eris.Wrapf(err, "catalog: flood %s", f.ID)
	}

	props := make(map[string]any, len(f.Attributes))
	for k, v := range f.Attributes {
		props[k] = v
	}
	item := stac.NewItem(f.ID, vector.ConvexHull(f.Geometry), &startDT, props)

	dir := filepath.Join(b.OutDir, f.ID)
	names, err := vector.WriteEncodings(dir, f.ID+"-usfimr", f.Geometry)
	if err != nil {
		return nil, time.Time{}, err
	}
	for _, enc := range usfimrEncodings {
		item.AddAsset(enc.key, stac.Asset{
			Href:        filepath.Join(dir, names[enc.key]),
			Description: enc.description,
			MediaType:   enc.mediaType,
		})
	}
	return item, endDT, nil
}

// FloodWindow returns the observation window of a USFIMR flood item from its
// Flood_Date, Start_Time and End_Time properties.
func FloodWindow(item *stac.Item) (start, end time.Time, err error) {
	return floodWindow(func(name string) string {
		v, _ := item.Properties[name].(string)
		return v
	})
}

func floodWindow(attr func(string) string) (start, end time.Time, err error) {
	day, err := parseFirst(floodDateLayouts, attr("Flood_Date"))
	if err != nil {
		return start, end, eris.Wrap(err, "date")
	}
	if start, err = combineTime(day, attr("Start_Time")); err != nil {
		return start, end, eris.Wrap(err, "start time")
	}
	if end, err = combineTime(day, attr("End_Time")); err != nil {
		return start, end, eris.Wrap(err, "end time")
	}
	return start, end, nil
}

// combineTime adds a clock time to day; an empty clock means midnight.
func combineTime(day time.Time, clock string) (time.Time, error) {
	if clock == "" {
		return day, nil
	}
	t, err := parseFirst(floodTimeLayouts, clock)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second), nil
}

func parseFirst(layouts []string, value string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("catalog: unrecognised date or time %q", value)
}
