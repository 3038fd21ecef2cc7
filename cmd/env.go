package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/floodcat/internal/raster"
	"github.com/sells-group/floodcat/internal/raster/gdalio"
	"github.com/sells-group/floodcat/internal/stac"
	"github.com/sells-group/floodcat/internal/storage"
	"github.com/sells-group/floodcat/internal/store"
	"github.com/sells-group/floodcat/pkg/sentinelhub"
)

func initStorage() *storage.Router {
	return storage.NewRouter(storage.Options{
		S3: storage.S3Options{
			Region:   cfg.Storage.S3Region,
			Endpoint: cfg.Storage.S3Endpoint,
		},
		HTTPRate: cfg.Storage.HTTPRate,
	})
}

// initRasterIO returns the GDAL backend configured with raster.gdal_config
// plus the S3 region and endpoint.
func initRasterIO() *gdalio.IO {
	opts := map[string]string{}
	if cfg.Storage.S3Region != "" {
		opts["AWS_REGION"] = cfg.Storage.S3Region
	}
	if cfg.Storage.S3Endpoint != "" {
		opts["AWS_S3_ENDPOINT"] = strings.TrimPrefix(strings.TrimPrefix(cfg.Storage.S3Endpoint, "https://"), "http://")
	}
	for k, v := range cfg.Raster.GDALConfig {
		opts[strings.ToUpper(k)] = v
	}
	return gdalio.New(gdalOptions(opts)...)
}

func gdalOptions(opts map[string]string) []string {
	out := make([]string, 0, len(opts))
	for k, v := range opts {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

func initEngine() *raster.Engine {
	io := initRasterIO()
	return raster.NewEngine(io, io)
}

func initSentinelHub() (sentinelhub.Client, error) {
	var opts []sentinelhub.Option
	if cfg.SentinelHub.BaseURL != "" {
		opts = append(opts, sentinelhub.WithBaseURL(cfg.SentinelHub.BaseURL))
	}
	return sentinelhub.NewClient(cfg.SentinelHub.OAuthID, cfg.SentinelHub.OAuthSecret, opts...)
}

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}

func resamplingFlag(value string) (raster.Resampling, error) {
	if value == "" {
		value = cfg.Raster.Resampling
	}
	return raster.ParseResampling(value)
}

// loadCatalog reads a saved catalog tree from a local path or any URI the
// storage router serves.
func loadCatalog(ctx context.Context, uri string) (*stac.Catalog, error) {
	if storage.Scheme(uri) == "file" {
		return stac.Load(uri)
	}

	st := initStorage()
	if err := os.MkdirAll(cfg.Storage.CacheDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "create cache dir")
	}
	tmp, err := os.MkdirTemp(cfg.Storage.CacheDir, "catalog-")
	if err != nil {
		return nil, eris.Wrap(err, "create catalog scratch dir")
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	var n int
	return stac.LoadWith(uri, func(doc string) ([]byte, error) {
		n++
		dst := filepath.Join(tmp, fmt.Sprintf("%d.json", n))
		if err := st.Fetch(ctx, doc, dst); err != nil {
			return nil, err
		}
		return os.ReadFile(dst)
	})
}
