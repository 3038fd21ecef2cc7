// Package sentinelhub is a small client for the Sentinel Hub catalog and
// batch processing APIs used to order Sentinel-1 scenes over flood events.
package sentinelhub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://services.sentinel-hub.com"

// Catalog collections accepted by Search.
const (
	CollectionS1GRD  = "sentinel-1-grd"
	CollectionS2L2A  = "sentinel-2-l2a"
	CollectionS2L1C  = "sentinel-2-l1c"
	searchLimit      = 100
	batchProcessPath = "/api/v1/batch/process/"
)

var collections = []string{CollectionS1GRD, CollectionS2L2A, CollectionS2L1C}

// ErrMissingCredentials is returned by NewClient without an OAuth id or secret.
var ErrMissingCredentials = errors.New("sentinelhub: oauth id and secret are required")

// Client defines the Sentinel Hub API operations.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	CreateBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error)
	Analyse(ctx context.Context, id string) error
	Start(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (*BatchStatus, error)
}

// SearchRequest selects catalog scenes intersecting BBox within [From, To].
type SearchRequest struct {
	BBox       []float64
	From       time.Time
	To         time.Time
	Collection string
}

// Interval renders the window as an RFC 3339 "from/to" pair.
func (r SearchRequest) Interval() string {
	return formatTime(r.From) + "/" + formatTime(r.To)
}

type searchBody struct {
	BBox        []float64    `json:"bbox"`
	Datetime    string       `json:"datetime"`
	Collections []string     `json:"collections"`
	Limit       int          `json:"limit"`
	Fields      searchFields `json:"fields"`
}

type searchFields struct {
	Include []string `json:"include"`
}

// SearchResponse is the response from POST /api/v1/catalog/search.
type SearchResponse struct {
	Type     string          `json:"type"`
	Features []SearchFeature `json:"features"`
	Context  SearchContext   `json:"context"`
}

// SearchFeature is one matching scene.
type SearchFeature struct {
	ID         string          `json:"id"`
	BBox       []float64       `json:"bbox,omitempty"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
	Properties map[string]any  `json:"properties"`
}

// Datetime returns the acquisition time from properties.datetime.
func (f SearchFeature) Datetime() (time.Time, error) {
	v, _ := f.Properties["datetime"].(string)
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sentinelhub: datetime of %s", f.ID)
	}
	return t.UTC(), nil
}

// SearchContext carries result counts.
type SearchContext struct {
	Returned int `json:"returned"`
	Limit    int `json:"limit"`
	Next     int `json:"next,omitempty"`
}

// APIError is returned when Sentinel Hub responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sentinelhub: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL. The token endpoint moves with it.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets the *http.Client used for token and API requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.base = hc
	}
}

// WithRateLimit caps requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// httpClient implements Client with an OAuth2 client-credentials transport.
type httpClient struct {
	baseURL string
	base    *http.Client
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Sentinel Hub client that fetches and refreshes its
// bearer token from <baseURL>/oauth/token.
func NewClient(oauthID, oauthSecret string, opts ...Option) (Client, error) {
	if oauthID == "" || oauthSecret == "" {
		return nil, ErrMissingCredentials
	}
	c := &httpClient{
		baseURL: defaultBaseURL,
		base: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	cc := clientcredentials.Config{
		ClientID:     oauthID,
		ClientSecret: oauthSecret,
		TokenURL:     c.baseURL + "/oauth/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, c.base)
	c.http = cc.Client(tokenCtx)
	c.http.Timeout = c.base.Timeout
	return c, nil
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if !slices.Contains(collections, req.Collection) {
		return nil, eris.Errorf("sentinelhub: unknown collection %q", req.Collection)
	}
	if len(req.BBox) != 4 {
		return nil, eris.Errorf("sentinelhub: bbox needs 4 values, got %d", len(req.BBox))
	}
	body := searchBody{
		BBox:        req.BBox,
		Datetime:    req.Interval(),
		Collections: []string{req.Collection},
		Limit:       searchLimit,
		Fields:      searchFields{Include: []string{"id", "bbox", "geometry", "properties.datetime", "properties.eo:gsd"}},
	}
	var resp SearchResponse
	if err := c.post(ctx, "/api/v1/catalog/search", body, &resp); err != nil {
		return nil, eris.Wrap(err, "sentinelhub: search catalog")
	}
	return &resp, nil
}

func (c *httpClient) CreateBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.post(ctx, batchProcessPath, req, &resp); err != nil {
		return nil, eris.Wrap(err, "sentinelhub: create batch request")
	}
	if resp.ID == "" {
		return nil, eris.New("sentinelhub: create batch request: response has no id")
	}
	return &resp, nil
}

func (c *httpClient) Analyse(ctx context.Context, id string) error {
	if err := c.post(ctx, batchProcessPath+id+"/analyse", nil, nil); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sentinelhub: analyse batch %s", id))
	}
	return nil
}

func (c *httpClient) Start(ctx context.Context, id string) error {
	if err := c.post(ctx, batchProcessPath+id+"/start", nil, nil); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sentinelhub: start batch %s", id))
	}
	return nil
}

func (c *httpClient) Status(ctx context.Context, id string) (*BatchStatus, error) {
	var resp BatchStatus
	if err := c.get(ctx, batchProcessPath+id, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sentinelhub: get batch status %s", id))
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
