package catalog

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/stac"
	"github.com/sells-group/floodcat/internal/storage"
	"github.com/sells-group/floodcat/pkg/sentinelhub"
)

const (
	glofimrSARCatalogID   = "glofimr-sar"
	glofimrSARTitle       = "GLOFIMR SAR Imagery"
	glofimrSARDescription = "Sentinel-1 imagery corresponding to flood events catalogued within GLOFIMR"
)

// GloFIMRSAR catalogs Sentinel Hub batch output laid out as
// <root>/<flood id>/<request id>/<tile>/<band>.tif(f). Each tile becomes one
// item with an asset per band, each flood one collection dated by the
// request document stored beside its tiles.
type GloFIMRSAR struct {
	Storage storage.Storage
	// Bounds reads tile footprints in longitude and latitude.
	Bounds BoundsReader
	// Root is the batch output prefix.
	Root string
	// WorkDir receives the fetched request documents.
	WorkDir string
}

type floodTiles struct {
	request string
	tiles   map[string][]string
}

// Build lists Root and assembles one collection per flood.
func (b *GloFIMRSAR) Build(ctx context.Context) (*stac.Catalog, error) {
	root := strings.TrimSuffix(b.Root, "/") + "/"
	floods := make(map[string]*floodTiles)
	for uri, err := range b.Storage.List(ctx, root) {
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: list %s", root)
		}
		parts := strings.Split(strings.TrimPrefix(uri, root), "/")
		if len(parts) < 2 {
			continue
		}
		f, ok := floods[parts[0]]
		if !ok {
			f = &floodTiles{tiles: make(map[string][]string)}
			floods[parts[0]] = f
		}
		switch {
		case strings.EqualFold(path.Ext(uri), ".json"):
			f.request = uri
		case IsGeoTIFF(uri) && len(parts) >= 3:
			tile := parts[len(parts)-2]
			f.tiles[tile] = append(f.tiles[tile], uri)
		}
	}

	cat := stac.NewCatalog(glofimrSARCatalogID, glofimrSARDescription, glofimrSARTitle)
	ids := make([]string, 0, len(floods))
	for id := range floods {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		col, err := b.flood(ctx, id, floods[id])
		if err != nil {
			return nil, err
		}
		if col != nil {
			cat.AddChild(col)
		}
	}
	zap.L().Info("catalog: built glofimr sar catalog",
		zap.Int("floods", len(cat.Children())),
		zap.Int("items", len(cat.AllItems())),
	)
	return cat, nil
}

func (b *GloFIMRSAR) flood(ctx context.Context, id string, f *floodTiles) (*stac.Catalog, error) {
	if len(f.tiles) == 0 {
		zap.L().Warn("catalog: flood has no tiles", zap.String("flood", id))
		return nil, nil
	}
	if f.request == "" {
		return nil, eris.Errorf("catalog: flood %s has no batch request document", id)
	}
	start, end, err := b.requestWindow(ctx, id, f.request)
	if err != nil {
		return nil, err
	}

	extent := &stac.Extent{Temporal: [][2]*time.Time{{&start, &end}}}
	col := stac.NewCollection(id, "Imagery coextensive with GLOFIMR flood "+id, "", extent, "")
	agg := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}

	tiles := make([]string, 0, len(f.tiles))
	for tile := range f.tiles {
		tiles = append(tiles, tile)
	}
	slices.Sort(tiles)
	for _, tile := range tiles {
		uris := f.tiles[tile]
		slices.Sort(uris)
		// Every band of a tile shares one footprint.
		bounds, err := b.Bounds.Bounds(ctx, uris[0])
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: read bounds of %s", uris[0])
		}
		agg = [4]float64{
			min(agg[0], bounds[0]), min(agg[1], bounds[1]),
			max(agg[2], bounds[2]), max(agg[3], bounds[3]),
		}

		item := stac.NewItem(tile, stac.BoxPolygon(bounds[0], bounds[1], bounds[2], bounds[3]), &start, nil)
		for _, uri := range uris {
			band, _, _ := strings.Cut(path.Base(uri), ".")
			item.AddAsset(band, stac.Asset{Href: uri, MediaType: stac.MediaTypeGeoTIFF})
		}
		col.AddItem(item)
	}
	col.Extent.Spatial = agg[:]

	zap.L().Debug("catalog: cataloged flood tiles",
		zap.String("flood", id),
		zap.Int("tiles", len(tiles)),
		zap.Time("start", start),
	)
	return col, nil
}

func (b *GloFIMRSAR) requestWindow(ctx context.Context, id, uri string) (time.Time, time.Time, error) {
	local := filepath.Join(b.WorkDir, id, path.Base(uri))
	if err := b.Storage.Fetch(ctx, uri, local); err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "catalog: fetch %s", uri)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "catalog: read %s", local)
	}
	var req sentinelhub.BatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "catalog: decode %s", uri)
	}
	start, end, err := req.TimeWindow()
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "catalog: flood %s", id)
	}
	return start, end, nil
}
