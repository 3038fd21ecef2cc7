package main

import (
	"context"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/scoring"
	"github.com/sells-group/floodcat/internal/store"
)

var (
	scoreExperimentRoot string
	scoreExperiments    []string
	scoreTruthDir       string
	scoreMask           string
	scoreUrbanMin       float64
	scoreUrbanMax       float64
	scoreOutputCSV      string
	scoreXLSX           string
	scoreNoRecord       bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute F1 and IoU of experiment predictions against ground truth",
	Long: "Scores every prediction chip of each experiment against the ground truth chip of the " +
		"same name, split into all, urban and not-urban pixels by the land cover mask.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cmd.Flags().Changed("urban-min") {
			cfg.Scoring.UrbanMin = scoreUrbanMin
		}
		if cmd.Flags().Changed("urban-max") {
			cfg.Scoring.UrbanMax = scoreUrbanMax
		}
		if err := cfg.Validate("score"); err != nil {
			return err
		}

		mask := scoreMask
		if mask == "" {
			mask = cfg.Scoring.MaskURI
		}
		if mask == "" {
			mask = scoring.DefaultMaskURI
		}

		experiments, err := selectExperiments(scoring.DefaultExperiments(scoreExperimentRoot), scoreExperiments)
		if err != nil {
			return err
		}

		rasters := initRasterIO()
		runner := &scoring.Runner{
			Storage:  initStorage(),
			Rasters:  rasters,
			Engine:   initEngine(),
			MaskURI:  mask,
			Urban:    scoring.UrbanRange{Min: cfg.Scoring.UrbanMin, Max: cfg.Scoring.UrbanMax},
			Labels:   cfg.Scoring.Labels,
			TruthDir: scoreTruthDir,
		}

		var rows []scoring.ChipScore
		for _, exp := range experiments {
			zap.L().Info("scoring experiment", zap.String("experiment", exp.ID), zap.String("dir", exp.Dir))
			scores, err := runner.Run(ctx, exp)
			if err != nil {
				return eris.Wrapf(err, "score %s", exp.ID)
			}
			rows = append(rows, scores...)
		}

		if err := scoring.WriteCSVFile(scoreOutputCSV, rows); err != nil {
			return err
		}
		zap.L().Info("wrote score report", zap.String("path", scoreOutputCSV), zap.Int("rows", len(rows)))

		if scoreXLSX != "" {
			if err := scoring.WriteXLSX(scoreXLSX, rows); err != nil {
				return err
			}
			zap.L().Info("wrote score workbook", zap.String("path", scoreXLSX))
		}

		if scoreNoRecord || len(rows) == 0 {
			return nil
		}
		return recordScores(ctx, rows)
	},
}

func recordScores(ctx context.Context, rows []scoring.ChipScore) error {
	st, err := initStore(ctx)
	if err != nil {
		return eris.Wrap(err, "open store")
	}
	defer st.Close() //nolint:errcheck

	runID := store.NewRunID()
	if err := st.InsertScores(ctx, runID, rows); err != nil {
		return eris.Wrap(err, "record scores")
	}
	zap.L().Info("recorded scoring run", zap.String("run_id", runID), zap.Int("rows", len(rows)))
	return nil
}

// selectExperiments keeps the experiments named in ids, matched
// case-insensitively. No ids selects everything.
func selectExperiments(all []scoring.Experiment, ids []string) ([]scoring.Experiment, error) {
	if len(ids) == 0 {
		return all, nil
	}
	var out []scoring.Experiment
	for _, id := range ids {
		i := slices.IndexFunc(all, func(e scoring.Experiment) bool { return strings.EqualFold(e.ID, id) })
		if i < 0 {
			return nil, eris.Errorf("unknown experiment %q", id)
		}
		out = append(out, all[i])
	}
	return out, nil
}

func init() {
	f := scoreCmd.Flags()
	f.StringVar(&scoreExperimentRoot, "experiment-root", scoring.DefaultExperimentRoot, "prefix holding one directory per experiment")
	f.StringSliceVar(&scoreExperiments, "experiments", nil, "experiment ids to score (default all)")
	f.StringVar(&scoreTruthDir, "truth-dir", "", "ground truth prefix for experiments without their own")
	f.StringVar(&scoreMask, "mask", "", "land cover raster (default scoring.mask_uri)")
	f.Float64Var(&scoreUrbanMin, "urban-min", scoring.DefaultUrbanRange.Min, "lowest land cover code counted as urban")
	f.Float64Var(&scoreUrbanMax, "urban-max", scoring.DefaultUrbanRange.Max, "highest land cover code counted as urban")
	f.StringVarP(&scoreOutputCSV, "output-csv", "o", scoring.DefaultReportPath, "CSV report path")
	f.StringVar(&scoreXLSX, "xlsx", "", "also write an XLSX workbook with one sheet per experiment")
	f.BoolVar(&scoreNoRecord, "no-record", false, "do not record the run in the store")

	rootCmd.AddCommand(scoreCmd)
}
