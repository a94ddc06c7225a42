// Package source loads region geometry and indicator values from the
// dashboard backend API and from local files.
package source

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pkh-dashboard/peta/internal/classify"
	"github.com/pkh-dashboard/peta/internal/region"
	"github.com/pkh-dashboard/peta/internal/resilience"
)

// Indicator metrics served by the backend.
const (
	MetricKemiskinan    = "kemiskinan"
	MetricPKH           = "pkh"
	MetricKemiskinanAbs = "kemiskinan_abs"
)

// Metrics lists the valid map metrics.
var Metrics = []string{MetricKemiskinan, MetricPKH, MetricKemiskinanAbs}

// ErrInvalidMetric is returned for a metric outside Metrics.
var ErrInvalidMetric = eris.New("source: metric must be kemiskinan, pkh, or kemiskinan_abs")

// ParseMetric normalises a metric token. Empty means kemiskinan.
func ParseMetric(token string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(token))
	if m == "" {
		return MetricKemiskinan, nil
	}
	for _, valid := range Metrics {
		if m == valid {
			return m, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidMetric, "source: parse metric %q", token)
}

// ValuesQuery selects one value snapshot.
type ValuesQuery struct {
	Year     int
	Metric   string
	Category region.Category
	Codes    []int
}

func (q ValuesQuery) params() url.Values {
	v := url.Values{}
	if q.Year > 0 {
		v.Set("year", strconv.Itoa(q.Year))
	}
	if q.Metric != "" {
		v.Set("metric", q.Metric)
	}
	if q.Category != "" && q.Category != region.CategoryAll {
		v.Set("tipe", string(q.Category))
	}
	if len(q.Codes) > 0 {
		codes := make([]string, len(q.Codes))
		for i, c := range q.Codes {
			codes[i] = strconv.Itoa(c)
		}
		v.Set("kabkota", strings.Join(codes, ","))
	}
	return v
}

// ValuesResponse is the payload of /api/map and /api/kabkota.
type ValuesResponse struct {
	Status string
	Year   int
	Metric string
	Rows   []classify.ValueRow
}

type valuesPayload struct {
	Status string              `json:"status"`
	Detail string              `json:"detail"`
	Year   int                 `json:"year"`
	Metric string              `json:"metric"`
	Data   []classify.ValueRow `json:"data"`
}

// APIOptions configures an APIClient.
type APIOptions struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	Backoff    resilience.Backoff
	Properties region.Properties
	HTTPClient *http.Client
}

// APIClient talks to the dashboard backend.
type APIClient struct {
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
	backoff resilience.Backoff
	props   region.Properties
}

// NewAPIClient validates opts and returns a client.
func NewAPIClient(opts APIOptions) (*APIClient, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, eris.Wrapf(err, "source: parse base url %q", opts.BaseURL)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, eris.Errorf("source: base url %q must be http or https", opts.BaseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	burst := 1
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
		burst = int(math.Max(1, opts.RatePerSec))
	}

	backoff := opts.Backoff
	if backoff.Attempts == 0 {
		backoff = resilience.DefaultBackoff()
	}
	props := opts.Properties
	if props.Code == "" || props.Name == "" {
		props = region.DefaultProperties()
	}

	return &APIClient{
		base:    base,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		backoff: backoff,
		props:   props,
	}, nil
}

// Regions fetches the province GeoJSON from /api/map/geojson.
func (c *APIClient) Regions(ctx context.Context) (region.Collection, error) {
	return resilience.Retry(ctx, c.backoff, "fetch geojson", func(ctx context.Context) (region.Collection, error) {
		body, err := c.get(ctx, "/api/map/geojson", nil)
		if err != nil {
			return nil, err
		}
		defer body.Close() //nolint:errcheck

		regions, err := region.DecodeGeoJSON(body, c.props)
		if err != nil {
			return nil, eris.Wrap(err, "source: decode geojson")
		}
		return regions, nil
	})
}

// MapValues fetches /api/map.
func (c *APIClient) MapValues(ctx context.Context, q ValuesQuery) (ValuesResponse, error) {
	return c.values(ctx, "/api/map", q)
}

// KabkotaValues fetches /api/kabkota, which lists the same rows ordered by
// value for the region picker.
func (c *APIClient) KabkotaValues(ctx context.Context, q ValuesQuery) (ValuesResponse, error) {
	return c.values(ctx, "/api/kabkota", q)
}

// Values implements ValueSource using /api/map.
func (c *APIClient) Values(ctx context.Context, q ValuesQuery) ([]classify.ValueRow, error) {
	resp, err := c.MapValues(ctx, q)
	if err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

func (c *APIClient) values(ctx context.Context, path string, q ValuesQuery) (ValuesResponse, error) {
	var payload valuesPayload
	if err := c.getJSON(ctx, path, q.params(), &payload); err != nil {
		return ValuesResponse{}, err
	}
	if payload.Status != "" && payload.Status != "ok" {
		return ValuesResponse{}, eris.Errorf("source: %s returned status %q: %s", path, payload.Status, payload.Detail)
	}

	rows := payload.Data
	if rows == nil {
		rows = []classify.ValueRow{}
	}
	return ValuesResponse{
		Status: payload.Status,
		Year:   payload.Year,
		Metric: payload.Metric,
		Rows:   rows,
	}, nil
}

// getJSON decodes a GET response into out, retrying transient failures.
func (c *APIClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	_, err := resilience.Retry(ctx, c.backoff, "GET "+path, func(ctx context.Context) (struct{}, error) {
		body, err := c.get(ctx, path, params)
		if err != nil {
			return struct{}{}, err
		}
		defer body.Close() //nolint:errcheck

		if err := json.NewDecoder(body).Decode(out); err != nil {
			return struct{}{}, eris.Wrapf(err, "source: decode %s", path)
		}
		return struct{}{}, nil
	})
	return err
}

// get performs one rate-limited request. Non-2xx responses become
// *resilience.HTTPError.
func (c *APIClient) get(ctx context.Context, path string, params url.Values) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "source: rate limiter wait")
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "source: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "source: GET %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		zap.L().Debug("source: upstream error",
			zap.String("url", u.String()),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &resilience.HTTPError{
			Method: http.MethodGet,
			URL:    u.String(),
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}
	return resp.Body, nil
}
