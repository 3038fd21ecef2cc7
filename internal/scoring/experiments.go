package scoring

import (
	"context"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/raster"
	"github.com/sells-group/floodcat/internal/storage"
)

// Published experiment locations.
const (
	DefaultExperimentRoot = "s3://noaafloodmap-data-us-east-1/jmcclain/October_13_1307/"
	USFIMRTruthDir        = "s3://jrc-fimr-rasterized-labels/version2/"
	DefaultMaskURI        = "s3://geotrellis-test/courage-services/nlcd/NLCD_2016_Land_Cover_L48_20190424.tif"
	DefaultReportPath     = "results/iou-f1-stats.csv"
)

// Experiment is one trained model whose predictions are scored. An empty
// TruthDir means the caller supplies the ground truth location.
type Experiment struct {
	ID       string
	Dir      string
	TruthDir string
}

// PredictionPrefix is the listing prefix of the experiment's predictions.
func (e Experiment) PredictionPrefix() string {
	return storage.JoinURI(e.Dir, "predict")
}

// DefaultExperiments lists the published experiments under root.
func DefaultExperiments(root string) []Experiment {
	if root == "" {
		root = DefaultExperimentRoot
	}
	exp := func(id, truth string) Experiment {
		return Experiment{ID: id, Dir: storage.JoinURI(root, id) + "/", TruthDir: truth}
	}
	return []Experiment{
		exp("SEN1FLOODS11_HAND", ""),
		exp("SEN1FLOODS11_S2WEAK", ""),
		exp("USFIMR_FF", USFIMRTruthDir),
		exp("USFIMR_TF", USFIMRTruthDir),
		exp("USFIMR_FT", USFIMRTruthDir),
		exp("USFIMR_TT", USFIMRTruthDir),
		exp("USFIMR_TF_analyzed", USFIMRTruthDir),
		exp("USFIMR_TT_analyzed", USFIMRTruthDir),
	}
}

// Runner scores every prediction chip of an experiment against its ground
// truth chip of the same name.
type Runner struct {
	Storage storage.Storage
	Rasters raster.Reader
	// Engine warps the land cover mask onto each prediction grid.
	Engine  *raster.Engine
	MaskURI string
	Urban   UrbanRange
	Labels  []float64
	// TruthDir is used for experiments without their own.
	TruthDir string
}

// Run scores exp. Chips are scored in listing order; the first failure
// aborts the experiment.
func (r *Runner) Run(ctx context.Context, exp Experiment) ([]ChipScore, error) {
	truthDir := exp.TruthDir
	if truthDir == "" {
		truthDir = r.TruthDir
	}
	if truthDir == "" {
		zap.L().Warn("scoring: no ground truth location, skipping experiment", zap.String("experiment", exp.ID))
		return nil, nil
	}

	var rows []ChipScore
	for uri, err := range r.Storage.List(ctx, exp.PredictionPrefix()) {
		if err != nil {
			return rows, eris.Wrapf(err, "scoring: list %s", exp.PredictionPrefix())
		}
		if !strings.HasSuffix(strings.ToLower(uri), ".tif") {
			continue
		}
		chipID := path.Base(uri)
		row, err := r.scoreChip(ctx, exp.ID, chipID, uri, storage.JoinURI(truthDir, chipID))
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		zap.L().Warn("scoring: no predictions", zap.String("experiment", exp.ID))
	}
	return rows, nil
}

func (r *Runner) scoreChip(ctx context.Context, experiment, chipID, predURI, truthURI string) (ChipScore, error) {
	pred, err := r.Rasters.Read(ctx, predURI)
	if err != nil {
		return ChipScore{}, eris.Wrapf(err, "scoring: read prediction %s", predURI)
	}
	truth, err := r.Rasters.Read(ctx, truthURI)
	if err != nil {
		return ChipScore{}, eris.Wrapf(err, "scoring: read truth %s", truthURI)
	}

	var mask []float64
	if r.MaskURI != "" {
		m, err := r.Engine.WarpTo(ctx, r.MaskURI, pred.Spec, raster.Nearest)
		if err != nil {
			return ChipScore{}, eris.Wrapf(err, "scoring: align mask to %s", chipID)
		}
		mask = m.Data
	}

	s, err := Score(pred.Data, truth.Data, mask, r.Urban, r.Labels)
	if err != nil {
		return ChipScore{}, eris.Wrapf(err, "scoring: chip %s", chipID)
	}
	row := NewChipScore(experiment, chipID, s)
	zap.L().Debug("scoring: chip scored",
		zap.String("experiment", experiment),
		zap.String("chip_id", chipID),
		zap.Float64("f1_all", row.F1All),
		zap.Float64("iou_all", row.IoUAll),
	)
	return row, nil
}
