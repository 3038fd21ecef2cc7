package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodcat/internal/scoring"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var batchColumns = []string{"id", "flood_id", "status", "tile_count", "value_estimate", "created_at", "updated_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS batch_requests`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveBatchRequest(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO batch_requests .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("req-1", "42", "DONE", 4, 12.5, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveBatchRequest(context.Background(), BatchRequest{ID: "req-1", FloodID: "42", Status: "DONE", TileCount: 4, ValueEstimate: 12.5})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBatchRequest(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, flood_id, status, tile_count, value_estimate, created_at, updated_at FROM batch_requests WHERE id = \$1`).
		WithArgs("req-1").
		WillReturnRows(mock.NewRows(batchColumns).AddRow("req-1", "42", "DONE", 4, 12.5, now, now))

	got, err := s.GetBatchRequest(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "42", got.FloodID)
	assert.Equal(t, 4, got.TileCount)
	assert.Equal(t, now, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBatchRequest_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM batch_requests WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBatchRequest(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListBatchRequests_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`WHERE flood_id = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("42", "DONE", 100).
		WillReturnRows(mock.NewRows(batchColumns).
			AddRow("a", "42", "DONE", 1, 1.0, now, now).
			AddRow("b", "42", "DONE", 2, 2.0, now, now))

	got, err := s.ListBatchRequests(context.Background(), BatchFilter{FloodID: "42", Status: "DONE"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertScores(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rows := []scoring.ChipScore{
		{Experiment: "USFIMR_TT", ChipID: "a.tif", F1All: 0.9},
		{Experiment: "USFIMR_TT", ChipID: "b.tif", F1All: 0.5},
	}

	mock.ExpectBegin()
	for _, r := range rows {
		mock.ExpectExec(`INSERT INTO chip_scores`).
			WithArgs("run-1", r.Experiment, r.ChipID, r.F1All, 0.0, 0.0, 0.0, 0.0, 0.0, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, s.InsertScores(context.Background(), "run-1", rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertScores_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO chip_scores`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.InsertScores(context.Background(), "run-1", []scoring.ChipScore{{Experiment: "E", ChipID: "a.tif"}})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListScores(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM chip_scores WHERE run_id = \$1 ORDER BY created_at DESC, experiment, chip_id LIMIT \$2`).
		WithArgs("run-1", 5).
		WillReturnRows(mock.NewRows([]string{"run_id", "experiment", "chip_id", "f1_all", "f1_urban", "f1_not_urban", "iou_all", "iou_urban", "iou_not_urban", "created_at"}).
			AddRow("run-1", "USFIMR_TT", "a.tif", 0.9, 1.0, 0.8, 0.85, 1.0, 0.7, now))

	got, err := s.ListScores(context.Background(), ScoreFilter{RunID: "run-1", Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a.tif", got[0].ChipID)
	assert.InDelta(t, 0.7, got[0].IoUNotUrban, 1e-12)
	assert.NoError(t, mock.ExpectationsWereMet())
}
