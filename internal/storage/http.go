package storage

import (
	"context"
	"iter"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures HTTPStorage.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// Rate is the per-host request rate in requests per second.
	Rate int
}

// HTTPStorage fetches http(s) URIs. It cannot list.
type HTTPStorage struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPStorage creates an HTTPStorage with per-host rate limiting.
func NewHTTPStorage(opts HTTPOptions) *HTTPStorage {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "floodcat/1.0"
	}
	if opts.Rate <= 0 {
		opts.Rate = 10
	}
	return &HTTPStorage{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (s *HTTPStorage) limiterFor(host string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.opts.Rate), s.opts.Rate)
		s.limiters[host] = lim
	}
	return lim
}

// List is not supported over plain HTTP.
func (s *HTTPStorage) List(_ context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", eris.Wrapf(ErrUnsupportedScheme, "storage: cannot list %s", prefix))
	}
}

// Fetch downloads uri to localPath unless localPath already exists.
func (s *HTTPStorage) Fetch(ctx context.Context, uri, dst string) error {
	if exists(dst) {
		return nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return eris.Wrap(err, "storage: parse url")
	}
	if err := s.limiterFor(u.Host).Wait(ctx); err != nil {
		return eris.Wrap(err, "storage: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return eris.Wrap(err, "storage: create request")
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "storage: get %s", uri)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("storage: unexpected status %d from %s", resp.StatusCode, uri)
	}

	n, err := writeLocal(dst, resp.Body)
	if err != nil {
		return err
	}
	zap.L().Debug("storage: downloaded", zap.String("url", uri), zap.String("dst", dst), zap.Int64("bytes", n))
	return nil
}
