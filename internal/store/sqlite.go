package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/floodcat/internal/scoring"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batch_requests (
	id             TEXT PRIMARY KEY,
	flood_id       TEXT NOT NULL,
	status         TEXT NOT NULL,
	tile_count     INTEGER NOT NULL DEFAULT 0,
	value_estimate REAL NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS chip_scores (
	run_id         TEXT NOT NULL,
	experiment     TEXT NOT NULL,
	chip_id        TEXT NOT NULL,
	f1_all         REAL NOT NULL,
	f1_urban       REAL NOT NULL,
	f1_not_urban   REAL NOT NULL,
	iou_all        REAL NOT NULL,
	iou_urban      REAL NOT NULL,
	iou_not_urban  REAL NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, experiment, chip_id)
);

CREATE INDEX IF NOT EXISTS idx_batch_requests_flood_id ON batch_requests(flood_id);
CREATE INDEX IF NOT EXISTS idx_chip_scores_experiment ON chip_scores(experiment);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveBatchRequest(ctx context.Context, req BatchRequest) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_requests (id, flood_id, status, tile_count, value_estimate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, tile_count = excluded.tile_count,
			value_estimate = excluded.value_estimate, updated_at = excluded.updated_at`,
		req.ID, req.FloodID, req.Status, req.TileCount, req.ValueEstimate, now, now,
	)
	return eris.Wrapf(err, "sqlite: save batch request %s", req.ID)
}

func (s *SQLiteStore) GetBatchRequest(ctx context.Context, id string) (*BatchRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, flood_id, status, tile_count, value_estimate, created_at, updated_at FROM batch_requests WHERE id = ?`,
		id,
	)
	b, err := scanBatchRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: batch request %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get batch request %s", id)
	}
	return b, nil
}

func (s *SQLiteStore) ListBatchRequests(ctx context.Context, filter BatchFilter) ([]BatchRequest, error) {
	query := `SELECT id, flood_id, status, tile_count, value_estimate, created_at, updated_at FROM batch_requests`
	var where []string
	var args []any
	if filter.FloodID != "" {
		where = append(where, "flood_id = ?")
		args = append(args, filter.FloodID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batch requests")
	}
	defer rows.Close() //nolint:errcheck

	var out []BatchRequest
	for rows.Next() {
		b, err := scanBatchRequest(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch request")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate batch requests")
}

func (s *SQLiteStore) InsertScores(ctx context.Context, runID string, rows []scoring.ChipScore) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chip_scores (run_id, experiment, chip_id, f1_all, f1_urban, f1_not_urban,
			iou_all, iou_urban, iou_not_urban, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert score")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, r.Experiment, r.ChipID,
			r.F1All, r.F1Urban, r.F1NotUrban, r.IoUAll, r.IoUUrban, r.IoUNotUrban, now); err != nil {
			return eris.Wrapf(err, "sqlite: insert score %s", r.ChipID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit scores")
}

func (s *SQLiteStore) ListScores(ctx context.Context, filter ScoreFilter) ([]ScoreRecord, error) {
	query := `SELECT run_id, experiment, chip_id, f1_all, f1_urban, f1_not_urban, iou_all, iou_urban, iou_not_urban, created_at FROM chip_scores`
	var where []string
	var args []any
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Experiment != "" {
		where = append(where, "experiment = ?")
		args = append(args, filter.Experiment)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, experiment, chip_id LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scores")
	}
	defer rows.Close() //nolint:errcheck

	var out []ScoreRecord
	for rows.Next() {
		r, err := scanScore(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate scores")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanBatchRequest(row scannable) (*BatchRequest, error) {
	var b BatchRequest
	if err := row.Scan(&b.ID, &b.FloodID, &b.Status, &b.TileCount, &b.ValueEstimate, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanScore(row scannable) (*ScoreRecord, error) {
	var r ScoreRecord
	if err := row.Scan(&r.RunID, &r.Experiment, &r.ChipID, &r.F1All, &r.F1Urban, &r.F1NotUrban,
		&r.IoUAll, &r.IoUUrban, &r.IoUNotUrban, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
