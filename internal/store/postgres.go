package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/floodcat/internal/scoring"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batch_requests (
	id             TEXT PRIMARY KEY,
	flood_id       TEXT NOT NULL,
	status         TEXT NOT NULL,
	tile_count     INTEGER NOT NULL DEFAULT 0,
	value_estimate DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chip_scores (
	run_id         UUID NOT NULL,
	experiment     TEXT NOT NULL,
	chip_id        TEXT NOT NULL,
	f1_all         DOUBLE PRECISION NOT NULL,
	f1_urban       DOUBLE PRECISION NOT NULL,
	f1_not_urban   DOUBLE PRECISION NOT NULL,
	iou_all        DOUBLE PRECISION NOT NULL,
	iou_urban      DOUBLE PRECISION NOT NULL,
	iou_not_urban  DOUBLE PRECISION NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, experiment, chip_id)
);

CREATE INDEX IF NOT EXISTS idx_batch_requests_flood_id ON batch_requests(flood_id);
CREATE INDEX IF NOT EXISTS idx_chip_scores_experiment ON chip_scores(experiment);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveBatchRequest(ctx context.Context, req BatchRequest) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batch_requests (id, flood_id, status, tile_count, value_estimate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, tile_count = EXCLUDED.tile_count,
			value_estimate = EXCLUDED.value_estimate, updated_at = EXCLUDED.updated_at`,
		req.ID, req.FloodID, req.Status, req.TileCount, req.ValueEstimate, now, now,
	)
	return eris.Wrapf(err, "postgres: save batch request %s", req.ID)
}

func (s *PostgresStore) GetBatchRequest(ctx context.Context, id string) (*BatchRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, flood_id, status, tile_count, value_estimate, created_at, updated_at FROM batch_requests WHERE id = $1`,
		id,
	)
	b, err := scanBatchRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: batch request %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get batch request %s", id)
	}
	return b, nil
}

func (s *PostgresStore) ListBatchRequests(ctx context.Context, filter BatchFilter) ([]BatchRequest, error) {
	query := `SELECT id, flood_id, status, tile_count, value_estimate, created_at, updated_at FROM batch_requests`
	var where []string
	var args []any
	if filter.FloodID != "" {
		args = append(args, filter.FloodID)
		where = append(where, fmt.Sprintf("flood_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limitOrDefault(filter.Limit))
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batch requests")
	}
	defer rows.Close()

	var out []BatchRequest
	for rows.Next() {
		b, err := scanBatchRequest(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch request")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate batch requests")
}

const insertScoreSQL = `INSERT INTO chip_scores (run_id, experiment, chip_id, f1_all, f1_urban, f1_not_urban,
	iou_all, iou_urban, iou_not_urban, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id, experiment, chip_id) DO UPDATE SET
	f1_all = EXCLUDED.f1_all, f1_urban = EXCLUDED.f1_urban, f1_not_urban = EXCLUDED.f1_not_urban,
	iou_all = EXCLUDED.iou_all, iou_urban = EXCLUDED.iou_urban, iou_not_urban = EXCLUDED.iou_not_urban`

func (s *PostgresStore) InsertScores(ctx context.Context, runID string, rows []scoring.ChipScore) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range rows {
		if _, err := tx.Exec(ctx, insertScoreSQL,
			runID, r.Experiment, r.ChipID, r.F1All, r.F1Urban, r.F1NotUrban, r.IoUAll, r.IoUUrban, r.IoUNotUrban, now,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert score %s", r.ChipID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit scores")
}

func (s *PostgresStore) ListScores(ctx context.Context, filter ScoreFilter) ([]ScoreRecord, error) {
	query := `SELECT run_id::text, experiment, chip_id, f1_all, f1_urban, f1_not_urban, iou_all, iou_urban, iou_not_urban, created_at FROM chip_scores`
	var where []string
	var args []any
	if filter.RunID != "" {
		args = append(args, filter.RunID)
		where = append(where, fmt.Sprintf("run_id = $%d", len(args)))
	}
	if filter.Experiment != "" {
		args = append(args, filter.Experiment)
		where = append(where, fmt.Sprintf("experiment = $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limitOrDefault(filter.Limit))
	query += fmt.Sprintf(" ORDER BY created_at DESC, experiment, chip_id LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scores")
	}
	defer rows.Close()

	var out []ScoreRecord
	for rows.Next() {
		r, err := scanScore(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate scores")
}
