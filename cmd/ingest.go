package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/catalog"
	"github.com/sells-group/floodcat/internal/stac"
	"github.com/sells-group/floodcat/internal/storage"
	"github.com/sells-group/floodcat/internal/store"
	"github.com/sells-group/floodcat/pkg/sentinelhub"
)

const defaultUSFIMRCollection = "s3://usfimr-data/collection.json"

var (
	ingestCollection string
	ingestDryRun     bool
	ingestLimit      int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Order imagery for cataloged floods from Sentinel Hub",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("ingest")
	},
}

var ingestS1Cmd = &cobra.Command{
	Use:   "s1",
	Short: "Search Sentinel-1 GRD scenes per USFIMR flood and run batch orders",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		col, err := loadCatalog(ctx, ingestCollection)
		if err != nil {
			return eris.Wrapf(err, "load collection %s", ingestCollection)
		}

		client, err := initSentinelHub()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close() //nolint:errcheck

		ing := &s1Ingester{
			Client:  client,
			Storage: initStorage(),
			Store:   st,
			Bucket:  cfg.SentinelHub.BatchBucket,
			Prefix:  cfg.SentinelHub.BatchPrefix,
			DryRun:  ingestDryRun,
			Poll: []sentinelhub.PollOption{
				sentinelhub.WithPollInterval(time.Duration(cfg.SentinelHub.PollIntervalSecs) * time.Second),
				sentinelhub.WithPollAttempts(cfg.SentinelHub.PollAttempts),
			},
		}

		items := col.AllItems()
		if ingestLimit > 0 && len(items) > ingestLimit {
			items = items[:ingestLimit]
		}
		return ing.Run(ctx, items)
	},
}

// s1Ingester orders Sentinel-1 batch processing for floods that have
// matching scenes and no tiles delivered yet.
type s1Ingester struct {
	Client  sentinelhub.Client
	Storage storage.Storage
	Store   store.Store
	Bucket  string
	Prefix  string
	Poll    []sentinelhub.PollOption
	DryRun  bool
}

// Run searches every flood first and then orders the ones with results, one
// at a time. A failed order stops the run.
func (g *s1Ingester) Run(ctx context.Context, floods []*stac.Item) error {
	var withResults []*stac.Item
	for _, flood := range floods {
		n, err := g.search(ctx, flood)
		if err != nil {
			return err
		}
		if n == 0 {
			zap.L().Info("no S1 results", zap.String("flood_id", flood.ID))
			continue
		}
		zap.L().Info("S1 results",
			zap.String("flood_id", flood.ID),
			zap.Int("scenes", n),
			zap.Any("flood_km2", flood.Properties["Flood_km2"]),
		)
		withResults = append(withResults, flood)
	}

	if g.DryRun {
		zap.L().Info("dry run, no batch orders placed", zap.Int("floods", len(withResults)))
		return nil
	}

	for i, flood := range withResults {
		log := zap.L().With(zap.String("flood_id", flood.ID), zap.Int("n", i+1), zap.Int("of", len(withResults)))

		delivered, err := storage.Any(ctx, g.Storage, g.outputPrefix(flood.ID))
		if err != nil {
			return eris.Wrapf(err, "check delivered tiles for flood %s", flood.ID)
		}
		if delivered {
			log.Info("tiles already delivered, skipping")
			continue
		}

		if err := g.order(ctx, flood); err != nil {
			return err
		}
		log.Info("batch order complete")
	}
	return nil
}

func (g *s1Ingester) outputPrefix(floodID string) string {
	return storage.JoinURI("s3://"+g.Bucket, g.Prefix, floodID)
}

func (g *s1Ingester) search(ctx context.Context, flood *stac.Item) (int, error) {
	from, to, err := floodWindow(flood)
	if err != nil {
		return 0, err
	}
	resp, err := g.Client.Search(ctx, sentinelhub.SearchRequest{
		BBox:       flood.BBox,
		From:       from,
		To:         to,
		Collection: sentinelhub.CollectionS1GRD,
	})
	if err != nil {
		return 0, eris.Wrapf(err, "search flood %s", flood.ID)
	}
	return resp.Context.Returned, nil
}

// order creates, analyses and starts a batch request, saving every state
// transition to the store.
func (g *s1Ingester) order(ctx context.Context, flood *stac.Item) error {
	from, to, err := floodWindow(flood)
	if err != nil {
		return err
	}
	req, err := sentinelhub.NewS1BatchRequest(flood.ID, flood.Geometry, from, to, g.Bucket, g.Prefix)
	if err != nil {
		return err
	}

	created, err := g.Client.CreateBatch(ctx, req)
	if err != nil {
		return eris.Wrapf(err, "create batch for flood %s", flood.ID)
	}
	rec := store.BatchRequest{ID: created.ID, FloodID: flood.ID, Status: created.Status}
	if err := g.Store.SaveBatchRequest(ctx, rec); err != nil {
		return err
	}

	if err := g.Client.Analyse(ctx, created.ID); err != nil {
		return eris.Wrapf(err, "analyse batch %s", created.ID)
	}
	if err := g.await(ctx, &rec, sentinelhub.StatusAnalysisDone); err != nil {
		return err
	}

	if err := g.Client.Start(ctx, created.ID); err != nil {
		return eris.Wrapf(err, "start batch %s", created.ID)
	}
	return g.await(ctx, &rec, sentinelhub.StatusDone)
}

func (g *s1Ingester) await(ctx context.Context, rec *store.BatchRequest, until string) error {
	status, pollErr := sentinelhub.PollBatch(ctx, g.Client, rec.ID, until, g.Poll...)
	if status != nil {
		rec.Status = status.Status
		rec.TileCount = status.TileCount
		rec.ValueEstimate = status.ValueEstimate
		if err := g.Store.SaveBatchRequest(ctx, *rec); err != nil {
			return err
		}
		zap.L().Info("batch status",
			zap.String("batch_id", rec.ID),
			zap.String("status", rec.Status),
			zap.Int("tiles", rec.TileCount),
			zap.Float64("value_estimate", rec.ValueEstimate),
		)
	}
	return pollErr
}

// floodWindow prefers the flood's date and clock attributes and falls back
// to the item datetime as a zero-length window.
func floodWindow(flood *stac.Item) (time.Time, time.Time, error) {
	from, to, err := catalog.FloodWindow(flood)
	if err == nil {
		return from, to, nil
	}
	if flood.Datetime != nil {
		return *flood.Datetime, *flood.Datetime, nil
	}
	return time.Time{}, time.Time{}, eris.Wrapf(err, "flood %s has no observation window", flood.ID)
}

func init() {
	ingestS1Cmd.Flags().StringVar(&ingestCollection, "collection", defaultUSFIMRCollection, "USFIMR collection document")
	ingestS1Cmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "search only, place no batch orders")
	ingestS1Cmd.Flags().IntVar(&ingestLimit, "limit", 0, "max floods to process (0 = all)")

	ingestCmd.AddCommand(ingestS1Cmd)
	rootCmd.AddCommand(ingestCmd)
}
