package scoring

import (
	"context"
	"iter"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodcat/internal/raster"
)

var chipSpec = raster.Spec{
	Width:     3,
	Height:    3,
	Transform: raster.GeoTransform{-90, 1, 0, 30, 0, -1},
	CRS:       "EPSG:4326",
}

type memRasters map[string][]float64

func (m memRasters) ReadSpec(_ context.Context, uri string) (raster.Spec, error) {
	if _, ok := m[uri]; !ok {
		return raster.Spec{}, os.ErrNotExist
	}
	return chipSpec, nil
}

func (m memRasters) Read(_ context.Context, uri string) (*raster.Grid, error) {
	data, ok := m[uri]
	if !ok {
		return nil, os.ErrNotExist
	}
	g := raster.NewGrid(chipSpec, raster.Byte, nil, 0)
	copy(g.Data, data)
	return g, nil
}

// maskWarper serves a land cover grid already on the chip grid and records
// the targets it was asked for.
type maskWarper struct {
	rasters memRasters
	targets []raster.Spec
}

func (w *maskWarper) Warp(context.Context, []string, raster.Spec, raster.Resampling, string, raster.WriteOptions) error {
	return os.ErrInvalid
}

func (w *maskWarper) WarpGrid(ctx context.Context, sources []string, target raster.Spec, r raster.Resampling) (*raster.Grid, error) {
	if r != raster.Nearest {
		return nil, os.ErrInvalid
	}
	w.targets = append(w.targets, target)
	return w.rasters.Read(ctx, sources[0])
}

type listing []string

func (l listing) List(_ context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, uri := range l {
			if strings.HasPrefix(uri, prefix) && !yield(uri, nil) {
				return
			}
		}
	}
}

func (l listing) Fetch(context.Context, string, string) error { return nil }

func TestDefaultExperiments(t *testing.T) {
	exps := DefaultExperiments("")
	require.Len(t, exps, 8)
	assert.Equal(t, "SEN1FLOODS11_HAND", exps[0].ID)
	assert.Empty(t, exps[0].TruthDir)
	assert.Equal(t, "s3://noaafloodmap-data-us-east-1/jmcclain/October_13_1307/USFIMR_TT/predict", exps[5].PredictionPrefix())
	assert.Equal(t, USFIMRTruthDir, exps[5].TruthDir)
}

func TestRunner_Run(t *testing.T) {
	exp := Experiment{ID: "USFIMR_TT", Dir: "s3://preds/USFIMR_TT/", TruthDir: "s3://truth/"}
	rasters := memRasters{
		"s3://preds/USFIMR_TT/predict/chip_1.tif": {0, 0, 1, 0, 1, 1, 1, 1, 1},
		"s3://truth/chip_1.tif":                   {0, 0, 1, 0, 0, 1, 1, 1, 1},
		"s3://preds/USFIMR_TT/predict/chip_2.tif": {1, 1, 1, 0, 0, 0, 0, 0, 0},
		"s3://truth/chip_2.tif":                   {1, 1, 1, 0, 0, 0, 0, 0, 0},
		"s3://nlcd.tif":                           {21, 21, 21, 90, 90, 90, 90, 90, 90},
	}
	warper := &maskWarper{rasters: rasters}
	r := &Runner{
		Storage: listing{
			"s3://preds/USFIMR_TT/predict/chip_1.tif",
			"s3://preds/USFIMR_TT/predict/chip_1.tif.aux.xml",
			"s3://preds/USFIMR_TT/predict/chip_2.tif",
		},
		Rasters: rasters,
		Engine:  raster.NewEngine(rasters, warper),
		MaskURI: "s3://nlcd.tif",
		Urban:   DefaultUrbanRange,
		Labels:  []float64{1},
	}

	rows, err := r.Run(context.Background(), exp)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// The mask is warped onto each prediction grid, never read whole.
	assert.Equal(t, []raster.Spec{chipSpec, chipSpec}, warper.targets)

	assert.Equal(t, "chip_1.tif", rows[0].ChipID)
	assert.Equal(t, "USFIMR_TT", rows[0].Experiment)
	assert.InDelta(t, 10.0/11.0, rows[0].F1All, 1e-12)
	assert.InDelta(t, 5.0/6.0, rows[0].IoUAll, 1e-12)
	assert.Equal(t, 1.0, rows[0].F1Urban)
	assert.InDelta(t, 4.0/5.0, rows[0].IoUNotUrban, 1e-12)
	assert.InDelta(t, 8.0/9.0, rows[0].F1NotUrban, 1e-12)

	assert.Equal(t, ChipScore{
		Experiment: "USFIMR_TT", ChipID: "chip_2.tif",
		F1All: 1, F1Urban: 1, F1NotUrban: 1, IoUAll: 1, IoUUrban: 1, IoUNotUrban: 1,
	}, rows[1])
}

func TestRunner_TruthFallbackAndSkip(t *testing.T) {
	exp := Experiment{ID: "SEN1FLOODS11_HAND", Dir: "s3://preds/H/"}
	rasters := memRasters{
		"s3://preds/H/predict/Bolivia_1_S1.tif": {1, 1, 1, 1, 1, 1, 1, 1, 1},
		"s3://hand/Bolivia_1_S1.tif":            {1, 1, 1, 1, 1, 1, 1, 1, 1},
	}
	r := &Runner{
		Storage: listing{"s3://preds/H/predict/Bolivia_1_S1.tif"},
		Rasters: rasters,
		Urban:   DefaultUrbanRange,
	}

	rows, err := r.Run(context.Background(), exp)
	require.NoError(t, err)
	assert.Empty(t, rows)

	r.TruthDir = "s3://hand/"
	rows, err = r.Run(context.Background(), exp)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.0, rows[0].F1All)
}

func TestRunner_MissingTruthFails(t *testing.T) {
	exp := Experiment{ID: "USFIMR_FF", Dir: "s3://preds/FF/", TruthDir: "s3://truth/"}
	r := &Runner{
		Storage: listing{"s3://preds/FF/predict/chip.tif"},
		Rasters: memRasters{"s3://preds/FF/predict/chip.tif": make([]float64, 9)},
		Urban:   DefaultUrbanRange,
	}
	_, err := r.Run(context.Background(), exp)
	assert.ErrorContains(t, err, "read truth")
}
