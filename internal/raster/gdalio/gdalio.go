// Package gdalio reads and warps rasters with GDAL through godal. S3
// objects are opened through /vsis3/ and HTTP(S) URLs through /vsicurl/.
package gdalio

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/raster"
)

var registerOnce sync.Once

// Register loads every GDAL driver once per process.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

// VSIPath maps a URI onto a GDAL virtual file system path.
func VSIPath(uri string) string {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		return "/vsis3/" + strings.TrimPrefix(uri, "s3://")
	case strings.HasPrefix(uri, "https://"), strings.HasPrefix(uri, "http://"):
		return "/vsicurl/" + uri
	case strings.HasPrefix(uri, "file://"):
		return strings.TrimPrefix(uri, "file://")
	default:
		return uri
	}
}

// IO implements raster.Reader, raster.Warper and the catalog bounds reader.
type IO struct {
	// ConfigOptions are KEY=VALUE GDAL options applied to every open, such
	// as AWS_REGION or AWS_S3_ENDPOINT.
	ConfigOptions []string
}

// New registers the GDAL drivers and returns an IO.
func New(configOptions ...string) *IO {
	Register()
	return &IO{ConfigOptions: configOptions}
}

func (g *IO) open(uri string) (*godal.Dataset, error) {
	var opts []godal.OpenOption
	if len(g.ConfigOptions) > 0 {
		opts = append(opts, godal.ConfigOption(g.ConfigOptions...))
	}
	ds, err := godal.Open(VSIPath(uri), opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "gdalio: open %s", uri)
	}
	return ds, nil
}

func spec(ds *godal.Dataset) (raster.Spec, error) {
	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return raster.Spec{}, eris.Wrap(err, "gdalio: read geotransform")
	}
	return raster.Spec{
		Width:     st.SizeX,
		Height:    st.SizeY,
		Transform: raster.GeoTransform(gt),
		CRS:       ds.Projection(),
	}, nil
}

// ReadSpec reads the grid of uri without reading pixels.
func (g *IO) ReadSpec(_ context.Context, uri string) (raster.Spec, error) {
	ds, err := g.open(uri)
	if err != nil {
		return raster.Spec{}, err
	}
	defer ds.Close() //nolint:errcheck
	return spec(ds)
}

// Bounds returns the [minx, miny, maxx, maxy] footprint of uri in its own CRS.
func (g *IO) Bounds(ctx context.Context, uri string) ([4]float64, error) {
	s, err := g.ReadSpec(ctx, uri)
	if err != nil {
		return [4]float64{}, err
	}
	return s.Bounds(), nil
}

// LonLatBounds returns the footprint of uri in EPSG:4326 longitude and
// latitude. Rasters without a projection are returned as is.
func (g *IO) LonLatBounds(_ context.Context, uri string) ([4]float64, error) {
	ds, err := g.open(uri)
	if err != nil {
		return [4]float64{}, err
	}
	defer ds.Close() //nolint:errcheck

	s, err := spec(ds)
	if err != nil {
		return [4]float64{}, err
	}
	b := s.Bounds()
	if s.CRS == "" {
		return b, nil
	}

	from, err := godal.NewSpatialRefFromWKT(s.CRS)
	if err != nil {
		return [4]float64{}, eris.Wrapf(err, "gdalio: parse crs of %s", uri)
	}
	defer from.Close()
	to, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return [4]float64{}, eris.Wrap(err, "gdalio: epsg:4326")
	}
	defer to.Close()
	tr, err := godal.NewTransform(from, to)
	if err != nil {
		return [4]float64{}, eris.Wrapf(err, "gdalio: transform %s to lon/lat", uri)
	}
	defer tr.Close()

	xs := []float64{b[0], b[2], b[2], b[0]}
	ys := []float64{b[1], b[1], b[3], b[3]}
	ok := make([]bool, len(xs))
	if err := tr.TransformEx(xs, ys, make([]float64, len(xs)), ok); err != nil {
		return [4]float64{}, eris.Wrapf(err, "gdalio: transform corners of %s", uri)
	}
	return [4]float64{slices.Min(xs), slices.Min(ys), slices.Max(xs), slices.Max(ys)}, nil
}

// LonLat adapts IO to the catalog bounds reader with EPSG:4326 footprints.
type LonLat struct {
	*IO
}

// Bounds returns the lon/lat footprint of uri.
func (l LonLat) Bounds(ctx context.Context, uri string) ([4]float64, error) {
	return l.LonLatBounds(ctx, uri)
}

// Read reads band 1 of uri.
func (g *IO) Read(_ context.Context, uri string) (*raster.Grid, error) {
	ds, err := g.open(uri)
	if err != nil {
		return nil, err
	}
	defer ds.Close() //nolint:errcheck

	grid, err := readBand(ds)
	if err != nil {
		return nil, eris.Wrapf(err, "gdalio: read %s", uri)
	}
	zap.L().Debug("gdalio: read raster",
		zap.String("uri", uri),
		zap.Int("width", grid.Width),
		zap.Int("height", grid.Height),
		zap.String("dtype", grid.DataType.String()),
	)
	return grid, nil
}

func readBand(ds *godal.Dataset) (*raster.Grid, error) {
	s, err := spec(ds)
	if err != nil {
		return nil, err
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, eris.New("gdalio: dataset has no bands")
	}
	band := bands[0]

	grid := &raster.Grid{
		Spec:     s,
		DataType: fromGDAL(band.Structure().DataType),
		Data:     make([]float64, s.Width*s.Height),
	}
	if nd, ok := band.NoData(); ok {
		grid.NoData = raster.Float(nd)
	}
	if err := band.Read(0, 0, grid.Data, s.Width, s.Height); err != nil {
		return nil, eris.Wrap(err, "gdalio: read band 1")
	}
	return grid, nil
}

// Warp runs gdalwarp from sourceURIs onto target and writes a GeoTIFF to
// out. GDAL reads only the source blocks that cover the target.
func (g *IO) Warp(ctx context.Context, sourceURIs []string, target raster.Spec, r raster.Resampling, out string, opts raster.WriteOptions) error {
	var creation []string
	if opts.Tiled {
		creation = append(creation, "TILED=YES")
	}
	if opts.Compress != "" {
		creation = append(creation, "COMPRESS="+opts.Compress)
	}
	ds, err := g.warp(ctx, sourceURIs, target, r, out, godal.GTiff, godal.CreationOption(creation...))
	if err != nil {
		return err
	}
	if err := ds.Close(); err != nil {
		return eris.Wrapf(err, "gdalio: close %s", out)
	}
	return nil
}

// WarpGrid runs gdalwarp into an in-memory dataset of the target size and
// reads it back.
func (g *IO) WarpGrid(ctx context.Context, sourceURIs []string, target raster.Spec, r raster.Resampling) (*raster.Grid, error) {
	ds, err := g.warp(ctx, sourceURIs, target, r, "", godal.Memory)
	if err != nil {
		return nil, err
	}
	defer ds.Close() //nolint:errcheck
	return readBand(ds)
}

func (g *IO) warp(ctx context.Context, sourceURIs []string, target raster.Spec, r raster.Resampling, out string, opts ...godal.DatasetWarpOption) (*godal.Dataset, error) {
	if len(sourceURIs) == 0 {
		return nil, eris.New("gdalio: no source rasters")
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	sources := make([]*godal.Dataset, 0, len(sourceURIs))
	defer func() {
		for _, ds := range sources {
			ds.Close() //nolint:errcheck
		}
	}()
	for _, uri := range sourceURIs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ds, err := g.open(uri)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ds)
	}
	// gdalwarp paints later sources over earlier ones; reverse so the
	// first source wins.
	ordered := slices.Clone(sources)
	slices.Reverse(ordered)

	if len(g.ConfigOptions) > 0 {
		opts = append(opts, godal.ConfigOption(g.ConfigOptions...))
	}
	ds, err := godal.Warp(out, ordered, warpSwitches(target, r), opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "gdalio: warp %d sources", len(sourceURIs))
	}
	zap.L().Debug("gdalio: warped",
		zap.Strings("sources", sourceURIs),
		zap.String("out", out),
		zap.Int("width", target.Width),
		zap.Int("height", target.Height),
		zap.String("resampling", r.GDALName()),
	)
	return ds, nil
}

// warpSwitches pins the output to exactly the target grid: its CRS, its
// extent and its pixel size.
func warpSwitches(target raster.Spec, r raster.Resampling) []string {
	b := target.Bounds()
	var sw []string
	if target.CRS != "" {
		sw = append(sw, "-t_srs", target.CRS)
	}
	return append(sw,
		"-te", formatFloat(b[0]), formatFloat(b[1]), formatFloat(b[2]), formatFloat(b[3]),
		"-ts", strconv.Itoa(target.Width), strconv.Itoa(target.Height),
		"-r", r.GDALName(),
	)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var (
	toGDALTypes = map[raster.DataType]godal.DataType{
		raster.Byte:    godal.Byte,
		raster.Int16:   godal.Int16,
		raster.UInt16:  godal.UInt16,
		raster.Int32:   godal.Int32,
		raster.UInt32:  godal.UInt32,
		raster.Float32: godal.Float32,
		raster.Float64: godal.Float64,
	}
	fromGDALTypes = func() map[godal.DataType]raster.DataType {
		m := make(map[godal.DataType]raster.DataType, len(toGDALTypes))
		for k, v := range toGDALTypes {
			m[v] = k
		}
		return m
	}()
)

func toGDAL(dt raster.DataType) godal.DataType {
	if v, ok := toGDALTypes[dt]; ok {
		return v
	}
	return godal.Float64
}

func fromGDAL(dt godal.DataType) raster.DataType {
	if v, ok := fromGDALTypes[dt]; ok {
		return v
	}
	return raster.Float64
}
