package catalog

import (
	"context"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/stac"
	"github.com/sells-group/floodcat/internal/storage"
)

const (
	jrcCollectionID = "jrc-monthly-water-mississippi-river"
	jrcTitle        = "Global Monthly Water: Mississippi river system"
	jrcDescription  = "JRC Global Monthly Water around the Mississippi river system"
)

// Footprint of the Mississippi river system subset.
var jrcBounds = [4]float64{-92.72807246278022, 29.038948834106055, -88.02592402528022, 42.55475543734189}

// The JRC monthly record runs from March 1984 to December 2019.
var (
	jrcStart = time.Date(1984, 3, 1, 0, 0, 0, 0, time.UTC)
	jrcEnd   = time.Date(2019, 12, 1, 0, 0, 0, 0, time.UTC)
)

// JRCMonthly builds a collection of monthly surface water label rasters
// named *_YYYY_MM.tif.
type JRCMonthly struct {
	Storage storage.Storage
	// Root is the prefix holding the monthly rasters.
	Root string
}

// Build lists Root and adds one item per raster.
func (b *JRCMonthly) Build(ctx context.Context) (*stac.Catalog, error) {
	extent := &stac.Extent{
		Spatial:  jrcBounds[:],
		Temporal: [][2]*time.Time{{&jrcStart, &jrcEnd}},
	}
	col := stac.NewCollection(jrcCollectionID, jrcDescription, jrcTitle, extent, "")

	for uri, err := range b.Storage.List(ctx, b.Root) {
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: list %s", b.Root)
		}
		if !IsGeoTIFF(uri) {
			continue
		}
		id, _, _ := strings.Cut(path.Base(uri), ".")
		month, err := ParseMonth(id)
		if err != nil {
			return nil, err
		}

		item := stac.NewItem(id, stac.BoxPolygon(jrcBounds[0], jrcBounds[1], jrcBounds[2], jrcBounds[3]), &month, nil)
		item.AddAsset("labels", stac.Asset{Href: uri, MediaType: stac.MediaTypeGeoTIFF})
		col.AddItem(item)
	}
	zap.L().Info("catalog: built jrc collection", zap.Int("items", len(col.Items())))
	return col, nil
}

// ParseMonth reads the first day of the month from an id ending in _YYYY_MM.
func ParseMonth(id string) (time.Time, error) {
	fields := strings.Split(id, "_")
	if len(fields) < 3 {
		return time.Time{}, eris.Errorf("catalog: %q does not end in _YYYY_MM", id)
	}
	year, err := strconv.Atoi(fields[len(fields)-2])
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "catalog: year of %q", id)
	}
	month, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, eris.Errorf("catalog: month of %q", id)
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}
