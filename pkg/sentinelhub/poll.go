package sentinelhub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultPollAttempts = 100
)

// ErrPollExhausted is returned when a batch request does not reach the
// wanted status within the allowed number of checks.
var ErrPollExhausted = errors.New("sentinelhub: poll attempts exhausted")

// ErrBatchFailed is returned when a batch request reports FAILED.
var ErrBatchFailed = errors.New("sentinelhub: batch request failed")

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval time.Duration
	attempts int
}

// WithPollInterval overrides the fixed wait between status checks.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.interval = d
	}
}

// WithPollAttempts overrides the maximum number of status checks.
func WithPollAttempts(n int) PollOption {
	return func(c *pollConfig) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// PollBatch checks the status of batch request id until it equals until,
// reports FAILED, the context ends, or the attempts run out.
func PollBatch(ctx context.Context, client Client, id, until string, opts ...PollOption) (*BatchStatus, error) {
	cfg := pollConfig{interval: defaultPollInterval, attempts: defaultPollAttempts}
	for _, opt := range opts {
		opt(&cfg)
	}

	for attempt := 1; attempt <= cfg.attempts; attempt++ {
		status, err := client.Status(ctx, id)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("sentinelhub: poll batch %s", id))
		}
		zap.L().Debug("sentinelhub: batch status",
			zap.String("batch_id", id),
			zap.String("status", status.Status),
			zap.Int("attempt", attempt),
			zap.Int("attempts", cfg.attempts),
		)

		switch status.Status {
		case until:
			return status, nil
		case StatusFailed:
			return status, eris.Wrapf(ErrBatchFailed, "sentinelhub: batch %s: %s", id, status.Error)
		}

		if attempt == cfg.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), fmt.Sprintf("sentinelhub: poll batch %s cancelled", id))
		case <-time.After(cfg.interval):
		}
	}
	return nil, eris.Wrapf(ErrPollExhausted, "sentinelhub: batch %s not %s after %d checks", id, until, cfg.attempts)
}
