// Package store records Sentinel Hub batch requests and chip score runs in
// SQLite or Postgres.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/floodcat/internal/scoring"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// BatchRequest is one Sentinel Hub batch order placed for a flood.
type BatchRequest struct {
	ID            string    `json:"id"`
	FloodID       string    `json:"flood_id"`
	Status        string    `json:"status"`
	TileCount     int       `json:"tile_count"`
	ValueEstimate float64   `json:"value_estimate"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ScoreRecord is a stored chip score of a scoring run.
type ScoreRecord struct {
	RunID string `json:"run_id"`
	scoring.ChipScore
	CreatedAt time.Time `json:"created_at"`
}

// BatchFilter specifies criteria for listing batch requests.
type BatchFilter struct {
	FloodID string
	Status  string
	Limit   int
}

// ScoreFilter specifies criteria for listing scores.
type ScoreFilter struct {
	RunID      string
	Experiment string
	Limit      int
}

// Store defines the persistence interface for ingest and scoring runs.
type Store interface {
	// Batch requests
	SaveBatchRequest(ctx context.Context, req BatchRequest) error
	GetBatchRequest(ctx context.Context, id string) (*BatchRequest, error)
	ListBatchRequests(ctx context.Context, filter BatchFilter) ([]BatchRequest, error)

	// Scores
	InsertScores(ctx context.Context, runID string, rows []scoring.ChipScore) error
	ListScores(ctx context.Context, filter ScoreFilter) ([]ScoreRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// NewRunID returns a fresh scoring run id.
func NewRunID() string {
	return uuid.New().String()
}

// Open connects to the store selected by driver and applies migrations.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = "floodcat.db"
		}
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
