package main

import (
	"context"
	"iter"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodcat/internal/stac"
	"github.com/sells-group/floodcat/internal/store"
	"github.com/sells-group/floodcat/pkg/sentinelhub"
)

// fakeHub returns a fixed number of scenes per flood bbox and walks every
// batch request straight through to the polled status.
type fakeHub struct {
	scenes   map[float64]int
	fail     bool
	searches []sentinelhub.SearchRequest
	created  []sentinelhub.BatchRequest
	calls    []string
	status   string
}

func (f *fakeHub) Search(_ context.Context, req sentinelhub.SearchRequest) (*sentinelhub.SearchResponse, error) {
	f.searches = append(f.searches, req)
	return &sentinelhub.SearchResponse{Context: sentinelhub.SearchContext{Returned: f.scenes[req.BBox[0]]}}, nil
}

func (f *fakeHub) CreateBatch(_ context.Context, req sentinelhub.BatchRequest) (*sentinelhub.BatchResponse, error) {
	f.created = append(f.created, req)
	f.status = sentinelhub.StatusCreated
	return &sentinelhub.BatchResponse{ID: "batch-" + string(rune('0'+len(f.created))), Status: sentinelhub.StatusCreated}, nil
}

func (f *fakeHub) Analyse(_ context.Context, id string) error {
	f.calls = append(f.calls, "analyse "+id)
	f.status = sentinelhub.StatusAnalysisDone
	return nil
}

func (f *fakeHub) Start(_ context.Context, id string) error {
	f.calls = append(f.calls, "start "+id)
	f.status = sentinelhub.StatusDone
	if f.fail {
		f.status = sentinelhub.StatusFailed
	}
	return nil
}

func (f *fakeHub) Status(_ context.Context, id string) (*sentinelhub.BatchStatus, error) {
	return &sentinelhub.BatchStatus{ID: id, Status: f.status, TileCount: 4, ValueEstimate: 80}, nil
}

type prefixListing []string

func (p prefixListing) List(_ context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, uri := range p {
			if strings.HasPrefix(uri, prefix) && !yield(uri, nil) {
				return
			}
		}
	}
}

func (prefixListing) Fetch(context.Context, string, string) error { return nil }

func flood(id string, minX float64) *stac.Item {
	return stac.NewItem(id, stac.BoxPolygon(minX, 30, minX+1, 31), nil, map[string]any{
		"Flood_Date": "2019-05-22",
		"Start_Time": "10:00",
		"End_Time":   "16:30",
	})
}

func newIngester(t *testing.T, hub *fakeHub, delivered ...string) (*s1Ingester, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	return &s1Ingester{
		Client:  hub,
		Storage: prefixListing(delivered),
		Store:   st,
		Bucket:  "batch-bucket",
		Prefix:  "glofimr",
		Poll:    []sentinelhub.PollOption{sentinelhub.WithPollInterval(time.Millisecond), sentinelhub.WithPollAttempts(2)},
	}, st
}

func TestS1Ingester_Run(t *testing.T) {
	hub := &fakeHub{scenes: map[float64]int{-90: 3, -80: 0, -70: 2}}
	ing, st := newIngester(t, hub, "s3://batch-bucket/glofimr/3/req/tile/VV.tiff")

	err := ing.Run(context.Background(), []*stac.Item{flood("1", -90), flood("2", -80), flood("3", -70)})
	require.NoError(t, err)

	require.Len(t, hub.searches, 3)
	assert.Equal(t, sentinelhub.CollectionS1GRD, hub.searches[0].Collection)
	assert.Equal(t, time.Date(2019, 5, 22, 10, 0, 0, 0, time.UTC), hub.searches[0].From)
	assert.Equal(t, time.Date(2019, 5, 22, 16, 30, 0, 0, time.UTC), hub.searches[0].To)

	// Flood 2 has no scenes and flood 3 is already delivered.
	require.Len(t, hub.created, 1)
	assert.Contains(t, hub.created[0].Output.DefaultTilePath, "s3://batch-bucket/glofimr/1/")
	assert.Equal(t, []string{"analyse batch-1", "start batch-1"}, hub.calls)

	got, err := st.GetBatchRequest(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, "1", got.FloodID)
	assert.Equal(t, sentinelhub.StatusDone, got.Status)
	assert.Equal(t, 4, got.TileCount)
}

func TestS1Ingester_DryRun(t *testing.T) {
	hub := &fakeHub{scenes: map[float64]int{-90: 1}}
	ing, _ := newIngester(t, hub)
	ing.DryRun = true

	require.NoError(t, ing.Run(context.Background(), []*stac.Item{flood("1", -90)}))
	assert.Len(t, hub.searches, 1)
	assert.Empty(t, hub.created)
}

func TestS1Ingester_FailedBatchIsRecorded(t *testing.T) {
	hub := &fakeHub{scenes: map[float64]int{-90: 1}, fail: true}
	ing, st := newIngester(t, hub)

	err := ing.Run(context.Background(), []*stac.Item{flood("1", -90)})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinelhub.ErrBatchFailed)

	got, err := st.GetBatchRequest(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, sentinelhub.StatusFailed, got.Status)
}

func TestFloodWindow_FallsBackToDatetime(t *testing.T) {
	dt := time.Date(2019, 5, 22, 12, 0, 0, 0, time.UTC)
	item := stac.NewItem("9", nil, &dt, nil)
	from, to, err := floodWindow(item)
	require.NoError(t, err)
	assert.Equal(t, dt, from)
	assert.Equal(t, dt, to)

	_, _, err = floodWindow(stac.NewItem("10", nil, nil, nil))
	assert.Error(t, err)
}
