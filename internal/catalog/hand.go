package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/stac"
	"github.com/sells-group/floodcat/internal/storage"
	"github.com/sells-group/floodcat/internal/vector"
)

// HAND index defaults.
const (
	DefaultHANDIndexURL = "https://cfim.ornl.gov/data/HAND/handmeta/hand_021.zip"
	handIndexShapefile  = "hand_021.shp"
	handCollectionID    = "hand_021"
	handTitle           = "HAND and the Hydraulic Property Table version 0.2.1"
	handLicense         = "CC-BY-4.0"
	handDescription     = "The continental flood inundation mapping (CFIM) framework is a high-performance " +
		"computing (HPC)-based computational framework for the Height Above Nearest Drainage (HAND)-based " +
		"inundation mapping methodology. A hydrological terrain raster called HAND is computed for HUC6 " +
		"units in the conterminous U.S. from the USGS 3DEP 10m DEM and the NHDPlus hydrography dataset, " +
		"together with a hydraulic property table giving water depth for a stream flow value between 0m " +
		"and 25m at 1-foot intervals for every NHDPlus river reach."
)

// HANDVersion is the datetime of every HAND item.
var HANDVersion = time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)

type handAsset struct {
	key         string
	name        string
	description string
	mediaType   string
}

// handAssets name the per-HUC6 files; %s is the HUC6 code.
var handAssets = []handAsset{
	{"hand", "%shand.tif", "HAND raster, buffer removed, final result", stac.MediaTypeGeoTIFF},
	{"wbd", "%s-wbd.geojson", "HUC unit boundary, extracted from USGS wbd", stac.MediaTypeGeoJSON},
	{"flows", "%s-flows.geojson", "Flowline geometry, extracted from NHDPlus V21", stac.MediaTypeGeoJSON},
	{"inlets", "%s-inlets.geojson", "Inlets point geometries in the HUC unit", stac.MediaTypeGeoJSON},
	{"weights", "%s-weights.tif", "Weight grid of the rasterized inlet points", stac.MediaTypeGeoTIFF},
	{"dem", "%s.tif", "Clipped HUC unit DEM from USGS 3DEP 10m elevation dataset (buffered)", stac.MediaTypeGeoTIFF},
	{"fel", "%sfel.tif", "Pit-removed DEM; output of TauDEM pitremove", stac.MediaTypeGeoTIFF},
	{"p", "%sp.tif", "D8 flow direction raster; output of TauDEM d8flowdir", stac.MediaTypeGeoTIFF},
	{"sd8", "%ssd8.tif", "D8 slope raster; output of TauDEM d8flowdir", stac.MediaTypeGeoTIFF},
	{"ang", "%sang.tif", "Dinfinity flow direction raster; output of TauDEM dinfflowdir", stac.MediaTypeGeoTIFF},
	{"slp", "%sslp.tif", "Dinfinity slope raster; output of TauDEM dinfflowdir", stac.MediaTypeGeoTIFF},
	{"ssa", "%sssa.tif", "Contributing area raster; output of TauDEM aread8", stac.MediaTypeGeoTIFF},
	{"src", "%ssrc.tif", "Stream grid; output of TauDEM threshold (threshold=1)", stac.MediaTypeGeoTIFF},
	{"dd", "%sdd.tif", "Buffered HAND raster; output of TauDEM dinfdistdown", stac.MediaTypeGeoTIFF},
	{"comid", "%s_comid.txt", "Catchment ID list for a HUC6 unit (COMID, slope, flowline length, and areasqkm)", stac.MediaTypeText},
	{"catchmask", "%scatchmask.tif", "Rasterized catchments with cell value to be the COMID of the corresponding river reach (buffered)", stac.MediaTypeGeoTIFF},
	{"catchhuc", "%scatchhuc.tif", "Rasterized catchments in HAND extent", stac.MediaTypeGeoTIFF},
	{"hydrogeo", "hydrogeo-fulltable-%s.csv", "Hydraulic property table with the following fields: CatchId, Stage, Number of Cells, " +
		"SurfaceArea (m2), BedArea (m2), Volume (m3), SLOPE, LENGTHKM, AREASQKM, Roughness, TopWidth (m), " +
		"WettedPerimeter (m), WetArea (m2), HydraulicRadius (m), Discharge (m3s-1)", stac.MediaTypeCSV},
}

// HAND builds one collection item per HUC6 unit of the HAND index.
type HAND struct {
	Storage storage.Storage
	// RootURI is where the per-HUC6 directories are published.
	RootURI string
	// IndexURL points at the zipped HUC6 index shapefile.
	IndexURL string
	// WorkDir receives the downloaded and extracted index.
	WorkDir string
}

// Build downloads the index and builds the collection.
func (b *HAND) Build(ctx context.Context) (*stac.Catalog, error) {
	if b.RootURI == "" {
		return nil, eris.New("catalog: hand root uri is required")
	}
	indexURL := b.IndexURL
	if indexURL == "" {
		indexURL = DefaultHANDIndexURL
	}

	zipPath := filepath.Join(b.WorkDir, "hand_021.zip")
	if err := b.Storage.Fetch(ctx, indexURL, zipPath); err != nil {
		return nil, eris.Wrap(err, "catalog: fetch hand index")
	}
	shpPath, err := storage.ExtractShapefile(zipPath, filepath.Join(b.WorkDir, "hand_021"), handIndexShapefile)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: hand index %s", indexURL)
	}

	features, err := vector.ReadShapefile(shpPath)
	if err != nil {
		return nil, err
	}
	return b.collection(features), nil
}

func (b *HAND) collection(features []vector.Feature) *stac.Catalog {
	col := stac.NewCollection(handCollectionID, handDescription, handTitle, nil, handLicense)
	for _, f := range features {
		huc6 := f.Attr("HUC6")
		if huc6 == "" {
			zap.L().Warn("catalog: hand feature without HUC6", zap.String("fid", f.ID))
			continue
		}
		dt := HANDVersion
		item := stac.NewItem(huc6, f.Geometry, &dt, nil)
		for _, a := range handAssets {
			item.AddAsset(a.key, stac.Asset{
				Href:        storage.JoinURI(b.RootURI, huc6, fmt.Sprintf(a.name, huc6)),
				Description: a.description,
				MediaType:   a.mediaType,
			})
		}
		col.AddItem(item)
	}
	stac.UpdateExtents(col)
	zap.L().Info("catalog: built hand collection", zap.Int("items", len(col.Items())))
	return col
}
