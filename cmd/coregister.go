package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/floodcat/internal/catalog"
	"github.com/sells-group/floodcat/internal/raster"
	"github.com/sells-group/floodcat/internal/storage"
)

// Name of the co-registered HAND raster published next to each SAR chip.
const handChipName = "HAND.tif"

var (
	coregSources     []string
	coregTarget      string
	coregOut         string
	coregResampling  string
	coregPublish     bool
	pairsSARCatalog  string
	pairsHANDCatalog string
	pairsSARAsset    string
	pairsHANDAsset   string
	pairsOut         string
	batchJobs        string
	batchConcurrency int
	batchWorkDir     string
)

var coregisterCmd = &cobra.Command{
	Use:   "coregister",
	Short: "Warp one or more source rasters onto a target raster grid",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("build"); err != nil {
			return err
		}
		method, err := resamplingFlag(coregResampling)
		if err != nil {
			return err
		}

		target, err := initEngine().AlignMany(cmd.Context(), coregSources, coregTarget, coregOut, method)
		if err != nil {
			return err
		}
		zap.L().Info("coregistered",
			zap.Strings("sources", coregSources),
			zap.String("target", coregTarget),
			zap.String("out", coregOut),
			zap.Int("width", target.Width),
			zap.Int("height", target.Height),
		)

		if !coregPublish {
			return nil
		}
		dst := siblingURI(coregTarget, handChipName)
		if err := initStorage().Put(cmd.Context(), coregOut, dst, "image/tiff"); err != nil {
			return eris.Wrapf(err, "publish %s", dst)
		}
		zap.L().Info("published", zap.String("uri", dst))
		return nil
	},
}

var coregisterPairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "Pair SAR chips with intersecting HAND tiles and write a jobs CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		sar, err := loadCatalog(ctx, pairsSARCatalog)
		if err != nil {
			return eris.Wrapf(err, "load sar catalog %s", pairsSARCatalog)
		}
		hand, err := loadCatalog(ctx, pairsHANDCatalog)
		if err != nil {
			return eris.Wrapf(err, "load hand catalog %s", pairsHANDCatalog)
		}

		jobs, err := catalog.PairChips(sar, hand, pairsSARAsset, pairsHANDAsset)
		if err != nil {
			return err
		}

		f, err := os.Create(pairsOut)
		if err != nil {
			return eris.Wrapf(err, "create %s", pairsOut)
		}
		defer f.Close() //nolint:errcheck
		if err := catalog.WriteJobsCSV(f, jobs); err != nil {
			return err
		}
		zap.L().Info("wrote coregistration jobs", zap.String("path", pairsOut), zap.Int("jobs", len(jobs)))
		return nil
	},
}

var coregisterBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Co-register every job in a jobs CSV concurrently",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("build"); err != nil {
			return err
		}
		method, err := resamplingFlag(coregResampling)
		if err != nil {
			return err
		}

		f, err := os.Open(batchJobs)
		if err != nil {
			return eris.Wrapf(err, "open %s", batchJobs)
		}
		jobs, err := catalog.ReadJobsCSV(f)
		_ = f.Close()
		if err != nil {
			return err
		}

		workDir := batchWorkDir
		if workDir == "" {
			workDir = filepath.Join(cfg.Storage.CacheDir, "coregister")
		}
		var uploader storage.Uploader
		if coregPublish {
			uploader = initStorage()
		}
		return runCoregisterJobs(cmd.Context(), initEngine(), uploader, jobs, workDir, method, batchConcurrency)
	},
}

// runCoregisterJobs aligns each job's HAND tiles onto its SAR chip. Failed
// jobs are logged and counted without stopping the batch.
func runCoregisterJobs(ctx context.Context, engine *raster.Engine, uploader storage.Uploader, jobs []catalog.CoregisterJob, workDir string, method raster.Resampling, concurrency int) error {
	if len(jobs) == 0 {
		zap.L().Info("no coregistration jobs")
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing coregistration batch",
		zap.Int("jobs", len(jobs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, job := range jobs {
		g.Go(func() error {
			log := zap.L().With(zap.String("sar_id", job.SARID))

			out := filepath.Join(workDir, job.SARID, handChipName)
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return eris.Wrapf(err, "create %s", filepath.Dir(out))
			}
			if _, err := engine.AlignMany(gctx, job.HANDURIs, job.SARURI, out, method); err != nil {
				failed.Add(1)
				log.Error("coregistration failed", zap.Error(err))
				return nil
			}

			if uploader != nil {
				dst := siblingURI(job.SARURI, handChipName)
				if err := uploader.Put(gctx, out, dst, "image/tiff"); err != nil {
					failed.Add(1)
					log.Error("publish failed", zap.String("uri", dst), zap.Error(err))
					return nil
				}
			}

			succeeded.Add(1)
			log.Info("coregistration complete", zap.Int("hand_tiles", len(job.HANDURIs)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "coregistration batch")
	}

	zap.L().Info("coregistration batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

// siblingURI replaces the last path element of uri with name. Remote URIs
// are cut at their final slash so the scheme separator survives.
func siblingURI(uri, name string) string {
	if storage.Scheme(uri) == "file" {
		return filepath.Join(filepath.Dir(uri), name)
	}
	i := strings.LastIndex(uri, "/")
	if i < len(storage.Scheme(uri))+3 {
		return storage.JoinURI(uri, name)
	}
	return uri[:i+1] + name
}

func init() {
	coregisterCmd.PersistentFlags().StringVar(&coregResampling, "resampling", "", "bilinear, nearest or cubic (default raster.resampling)")
	coregisterCmd.PersistentFlags().BoolVar(&coregPublish, "publish", false, "upload "+handChipName+" next to the target chip")

	coregisterCmd.Flags().StringSliceVar(&coregSources, "source", nil, "source raster URI (repeatable, first wins where they overlap)")
	coregisterCmd.Flags().StringVar(&coregTarget, "target", "", "raster whose grid the sources are warped onto")
	coregisterCmd.Flags().StringVar(&coregOut, "out", handChipName, "local output GeoTIFF")
	_ = coregisterCmd.MarkFlagRequired("source")
	_ = coregisterCmd.MarkFlagRequired("target")

	coregisterPairsCmd.Flags().StringVar(&pairsSARCatalog, "sar-catalog", "", "catalog holding the SAR chips")
	coregisterPairsCmd.Flags().StringVar(&pairsHANDCatalog, "hand-catalog", "", "catalog holding the HAND tiles")
	coregisterPairsCmd.Flags().StringVar(&pairsSARAsset, "sar-asset", catalog.DefaultSARAsset, "SAR item asset key")
	coregisterPairsCmd.Flags().StringVar(&pairsHANDAsset, "hand-asset", catalog.DefaultHANDAsset, "HAND item asset key")
	coregisterPairsCmd.Flags().StringVarP(&pairsOut, "output", "o", "chips.csv", "jobs CSV path")
	_ = coregisterPairsCmd.MarkFlagRequired("sar-catalog")
	_ = coregisterPairsCmd.MarkFlagRequired("hand-catalog")

	coregisterBatchCmd.Flags().StringVar(&batchJobs, "jobs", "chips.csv", "jobs CSV written by coregister pairs")
	coregisterBatchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "number of chips aligned in parallel")
	coregisterBatchCmd.Flags().StringVar(&batchWorkDir, "work-dir", "", "local output root (default <cache_dir>/coregister)")

	coregisterCmd.AddCommand(coregisterPairsCmd, coregisterBatchCmd)
	rootCmd.AddCommand(coregisterCmd)
}
