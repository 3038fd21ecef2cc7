package main

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/catalog"
	"github.com/sells-group/floodcat/internal/raster/gdalio"
	"github.com/sells-group/floodcat/internal/stac"
	"github.com/sells-group/floodcat/internal/storage"
)

var (
	buildOut          string
	buildAbsolute     bool
	s1f11Root         string
	s1f11ChipMetadata string
	s1f11Debug        bool
	handRootURI       string
	handIndexURL      string
	handWorkDir       string
	usfimrShapefile   string
	jrcMonthlyRoot    string
	glofimrRoot       string
	emsrFeedURL       string
	emsrSince         string
	emsrUntil         string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a STAC catalog for a flood dataset",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("build")
	},
}

var buildSen1Floods11Cmd = &cobra.Command{
	Use:   "sen1floods11",
	Short: "Catalog the Sen1Floods11 chips with imagery and label collections",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		descriptor, err := catalog.Sen1Floods11Descriptor()
		if err != nil {
			return err
		}
		dates, err := catalog.LoadChipDates(s1f11ChipMetadata)
		if err != nil {
			return err
		}

		b := &catalog.Sen1Floods11{
			Storage: initStorage(),
			Chips: &catalog.ChipBuilder{
				Bounds: catalog.NewBoundsCache(initRasterIO()),
				Dates:  dates,
				Debug:  s1f11Debug,
			},
			Root:       s1f11Root,
			Descriptor: descriptor,
		}
		root, err := b.Build(ctx)
		if err != nil {
			return eris.Wrap(err, "build sen1floods11")
		}
		zap.L().Info("bounds reads", zap.Int("reads", b.Chips.Bounds.Reads()))
		return saveCatalog(root, buildOut)
	},
}

var buildHANDCmd = &cobra.Command{
	Use:   "hand",
	Short: "Catalog the HAND 0.2.1 HUC6 rasters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		workDir := handWorkDir
		if workDir == "" {
			workDir = filepath.Join(cfg.Storage.CacheDir, "hand")
		}
		b := &catalog.HAND{
			Storage:  initStorage(),
			RootURI:  handRootURI,
			IndexURL: handIndexURL,
			WorkDir:  workDir,
		}
		col, err := b.Build(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "build hand")
		}
		return saveCatalog(col, buildOut)
	},
}

var buildUSFIMRCmd = &cobra.Command{
	Use:   "usfimr",
	Short: "Catalog the USFIMR flood polygons with WKT, WKB and GeoJSON assets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		shp, err := localShapefile(cmd.Context(), usfimrShapefile)
		if err != nil {
			return err
		}
		b := &catalog.USFIMR{OutDir: buildOut}
		col, err := b.Build(shp)
		if err != nil {
			return eris.Wrap(err, "build usfimr")
		}
		return saveCatalog(col, buildOut)
	},
}

var buildJRCMonthlyCmd = &cobra.Command{
	Use:   "jrc-monthly",
	Short: "Catalog the JRC monthly surface water rasters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b := &catalog.JRCMonthly{Storage: initStorage(), Root: jrcMonthlyRoot}
		col, err := b.Build(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "build jrc-monthly")
		}
		return saveCatalog(col, buildOut)
	},
}

var buildGloFIMRSARCmd = &cobra.Command{
	Use:   "glofimr-sar",
	Short: "Catalog the Sentinel-1 batch tiles ordered for GLOFIMR floods",
	RunE: func(cmd *cobra.Command, _ []string) error {
		root := glofimrRoot
		if root == "" {
			if cfg.SentinelHub.BatchBucket == "" {
				return eris.New("build glofimr-sar: set --root or sentinelhub.batch_bucket")
			}
			root = storage.JoinURI("s3://"+cfg.SentinelHub.BatchBucket, cfg.SentinelHub.BatchPrefix)
		}
		b := &catalog.GloFIMRSAR{
			Storage: initStorage(),
			Bounds:  gdalio.LonLat{IO: initRasterIO()},
			Root:    root,
			WorkDir: filepath.Join(cfg.Storage.CacheDir, "glofimr-sar"),
		}
		cat, err := b.Build(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "build glofimr-sar")
		}
		return saveCatalog(cat, buildOut)
	},
}

var buildEMSRCmd = &cobra.Command{
	Use:   "emsr",
	Short: "Catalog Copernicus EMS rapid mapping flood products with matching Sentinel-2 scenes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("search"); err != nil {
			return err
		}
		since, err := parseDateFlag("since", emsrSince)
		if err != nil {
			return err
		}
		until, err := parseDateFlag("until", emsrUntil)
		if err != nil {
			return err
		}
		if until.Before(since) {
			return eris.Errorf("build emsr: --until %s is before --since %s", emsrUntil, emsrSince)
		}
		client, err := initSentinelHub()
		if err != nil {
			return err
		}
		b := &catalog.EMSR{
			Storage: initStorage(),
			Search:  client,
			FeedURL: emsrFeedURL,
			WorkDir: filepath.Join(cfg.Storage.CacheDir, "emsr"),
			Since:   since,
			Until:   until,
		}
		cat, err := b.Build(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "build emsr")
		}
		return saveCatalog(cat, buildOut)
	},
}

// parseDateFlag accepts a date or an RFC 3339 timestamp, in UTC.
func parseDateFlag(name, value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("--%s %q is neither a date nor an RFC 3339 time", name, value)
}

func saveCatalog(root *stac.Catalog, dir string) error {
	layout := stac.SelfContained
	if buildAbsolute {
		layout = stac.AbsolutePublished
	}
	if err := root.NormalizeAndSave(dir, layout); err != nil {
		return eris.Wrapf(err, "save catalog %s", root.ID)
	}
	zap.L().Info("catalog saved",
		zap.String("catalog", root.ID),
		zap.String("path", filepath.Join(dir, stac.DocumentName(root))),
		zap.Int("items", len(root.AllItems())),
	)
	return nil
}

// localShapefile fetches a remote shapefile and its sidecar files into the
// cache directory. Local paths are returned unchanged.
func localShapefile(ctx context.Context, uri string) (string, error) {
	if storage.Scheme(uri) == "file" {
		return uri, nil
	}

	st := initStorage()
	dir := filepath.Join(cfg.Storage.CacheDir, "shapefiles")
	base := strings.TrimSuffix(uri, path.Ext(uri))
	for _, ext := range []string{".shx", ".dbf", ".prj", ".shp"} {
		dst := filepath.Join(dir, path.Base(base)+ext)
		if err := st.Fetch(ctx, base+ext, dst); err != nil {
			if ext == ".prj" {
				zap.L().Debug("no projection sidecar", zap.String("uri", base+ext))
				continue
			}
			return "", eris.Wrapf(err, "fetch %s", base+ext)
		}
	}
	return filepath.Join(dir, path.Base(base)+".shp"), nil
}

func init() {
	buildCmd.PersistentFlags().StringVar(&buildOut, "out", "./data/catalog", "directory the catalog is written to")
	buildCmd.PersistentFlags().BoolVar(&buildAbsolute, "absolute", false, "write absolute self links for publishing")

	buildSen1Floods11Cmd.Flags().StringVar(&s1f11Root, "bucket", catalog.DefaultSen1Floods11Root, "root URI of the Sen1Floods11 chips")
	buildSen1Floods11Cmd.Flags().StringVar(&s1f11ChipMetadata, "chip-metadata", "chips_metadata.geojson", "GeoJSON with per-location S1/S2 acquisition dates")
	buildSen1Floods11Cmd.Flags().BoolVar(&s1f11Debug, "debug", false, "list at most 10 chips per prefix")

	buildHANDCmd.Flags().StringVar(&handRootURI, "root-uri", "", "URI the HUC6 directories are published under")
	buildHANDCmd.Flags().StringVar(&handIndexURL, "index-url", catalog.DefaultHANDIndexURL, "zipped HUC6 index shapefile")
	buildHANDCmd.Flags().StringVar(&handWorkDir, "work-dir", "", "download directory (default <cache_dir>/hand)")
	_ = buildHANDCmd.MarkFlagRequired("root-uri")

	buildUSFIMRCmd.Flags().StringVar(&usfimrShapefile, "shapefile", "", "USFIMR flood polygon shapefile (local or remote)")
	_ = buildUSFIMRCmd.MarkFlagRequired("shapefile")

	buildJRCMonthlyCmd.Flags().StringVar(&jrcMonthlyRoot, "jrc-monthly-root", "", "prefix holding *_YYYY_MM.tif rasters")
	_ = buildJRCMonthlyCmd.MarkFlagRequired("jrc-monthly-root")

	buildGloFIMRSARCmd.Flags().StringVar(&glofimrRoot, "root", "", "batch output prefix (default s3://<batch_bucket>/<batch_prefix>)")

	buildEMSRCmd.Flags().StringVar(&emsrFeedURL, "feed-url", catalog.DefaultEMSRFeedURL, "rapid mapping activations feed")
	buildEMSRCmd.Flags().StringVar(&emsrSince, "since", "2019-01-01", "earliest event time (date or RFC 3339)")
	buildEMSRCmd.Flags().StringVar(&emsrUntil, "until", "2020-12-31T23:59:59Z", "latest event time (date or RFC 3339)")

	buildCmd.AddCommand(buildSen1Floods11Cmd, buildHANDCmd, buildUSFIMRCmd, buildJRCMonthlyCmd, buildGloFIMRSARCmd, buildEMSRCmd)
	rootCmd.AddCommand(buildCmd)
}
