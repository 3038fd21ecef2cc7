package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/catalog"
)

var (
	mldataCatalog string
	mldataOut     string
	mldataOpts    = catalog.DefaultSplitOptions()

	floodSARCatalog string
	floodUSFIMR     string
	floodOut        string
	floodSplit      = catalog.DefaultFloodSplit()
)

var mldataCmd = &cobra.Command{
	Use:   "mldata",
	Short: "Derive train/test/validation catalogs from a built catalog",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("mldata")
	},
}

var mldataSen1Floods11Cmd = &cobra.Command{
	Use:       "sen1floods11 <experiment>",
	Short:     "Split a Sen1Floods11 experiment (s2weak, s1weak or hand)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"s2weak", "s1weak", "hand"},
	RunE: func(cmd *cobra.Command, args []string) error {
		experiment := args[0]
		if err := mldataOpts.Validate(); err != nil {
			return err
		}

		src, err := loadCatalog(cmd.Context(), mldataCatalog)
		if err != nil {
			return eris.Wrapf(err, "load catalog %s", mldataCatalog)
		}
		out, err := catalog.BuildMLData(src, experiment, mldataOpts)
		if err != nil {
			return err
		}

		zap.L().Info("mldata split",
			zap.String("experiment", experiment),
			zap.Float64("sample", mldataOpts.Sample),
			zap.Uint64("seed", mldataOpts.Seed),
		)
		return saveCatalog(out, mldataOut)
	},
}

var mldataUSFIMRS1Cmd = &cobra.Command{
	Use:   "usfimr-s1",
	Short: "Split GLOFIMR SAR tiles by flood with USFIMR polygons as labels",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := floodSplit.Validate(); err != nil {
			return err
		}
		sar, err := loadCatalog(cmd.Context(), floodSARCatalog)
		if err != nil {
			return eris.Wrapf(err, "load catalog %s", floodSARCatalog)
		}
		usfimr, err := loadCatalog(cmd.Context(), floodUSFIMR)
		if err != nil {
			return eris.Wrapf(err, "load collection %s", floodUSFIMR)
		}
		out, err := catalog.BuildFloodMLData(sar, usfimr, floodSplit)
		if err != nil {
			return err
		}
		return saveCatalog(out, floodOut)
	},
}

func init() {
	f := mldataSen1Floods11Cmd.Flags()
	f.StringVar(&mldataCatalog, "catalog", "./data/catalog/catalog.json", "root document of the Sen1Floods11 catalog")
	f.StringVar(&mldataOut, "out", "./data/mldata", "directory the split catalog is written to")
	f.Float64Var(&mldataOpts.Sample, "sample", mldataOpts.Sample, "fraction of scenes to keep before splitting")
	f.Float64Var(&mldataOpts.Train, "train-size", mldataOpts.Train, "fraction of sampled scenes for training")
	f.Float64Var(&mldataOpts.Test, "test-size", mldataOpts.Test, "fraction of sampled scenes for testing")
	f.Float64Var(&mldataOpts.Validation, "val-size", mldataOpts.Validation, "fraction of sampled scenes for validation")
	f.Uint64Var(&mldataOpts.Seed, "random-seed", 0, "seed for sampling and shuffling")

	uf := mldataUSFIMRS1Cmd.Flags()
	uf.StringVar(&floodSARCatalog, "sar-catalog", "", "root document of the glofimr-sar catalog")
	uf.StringVar(&floodUSFIMR, "usfimr-collection", "s3://usfimr-data/collection.json", "USFIMR flood collection")
	uf.StringVar(&floodOut, "out", "./data/mldata-catalog", "directory the split catalog is written to")
	uf.StringSliceVar(&floodSplit.Test, "test", floodSplit.Test, "flood ids in the test set")
	uf.StringSliceVar(&floodSplit.Training, "training", floodSplit.Training, "flood ids in the training set")
	uf.StringSliceVar(&floodSplit.Validation, "validation", floodSplit.Validation, "flood ids in the validation set")
	_ = mldataUSFIMRS1Cmd.MarkFlagRequired("sar-catalog")

	mldataCmd.AddCommand(mldataSen1Floods11Cmd, mldataUSFIMRS1Cmd)
	rootCmd.AddCommand(mldataCmd)
}
