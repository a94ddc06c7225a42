package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pkh-dashboard/peta/internal/classify"
	"github.com/pkh-dashboard/peta/internal/region"
)

// MetricAll requests every metric from /api/predict.
const MetricAll = "all"

// PredictQuery selects a forecast from /api/predict.
type PredictQuery struct {
	Metric   string
	Horizon  int
	Method   string
	Category region.Category
	Codes    []int
}

func (q PredictQuery) params() url.Values {
	v := ValuesQuery{Category: q.Category, Codes: q.Codes}.params()
	metric := q.Metric
	if metric == "" {
		metric = MetricAll
	}
	v.Set("metric", metric)
	if q.Horizon > 0 {
		v.Set("horizon", strconv.Itoa(q.Horizon))
	}
	if q.Method != "" {
		v.Set("method", q.Method)
	}
	return v
}

// PredictionRow is one forecast value for a region and year.
type PredictionRow struct {
	Year  int     `json:"tahun"`
	Code  int     `json:"kode_kabupaten_kota"`
	Name  string  `json:"nama_kabupaten_kota"`
	Value float64 `json:"value"`
}

// Prediction is a forecast payload. The backend returns data either as a
// list for a single metric (Flat) or as an object keyed by metric when all
// metrics are requested (ByMetric). Exactly one of the two is set unless
// data was null.
type Prediction struct {
	Status     string
	Metric     string
	Horizon    int
	StartYear  int
	EndYear    int
	Method     string
	ExportPath string

	Flat     []PredictionRow
	ByMetric map[string][]PredictionRow
}

type predictionPayload struct {
	Status     string          `json:"status"`
	Detail     string          `json:"detail"`
	Metric     string          `json:"metric"`
	Horizon    int             `json:"horizon"`
	StartYear  int             `json:"start_year"`
	EndYear    int             `json:"end_year"`
	Method     string          `json:"method"`
	ExportPath *string         `json:"export_path"`
	Data       json.RawMessage `json:"data"`
}

// UnmarshalJSON decodes the payload and resolves which data shape was sent.
func (p *Prediction) UnmarshalJSON(b []byte) error {
	var raw predictionPayload
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(err, "source: decode prediction")
	}
	if raw.Status != "" && raw.Status != "ok" {
		return eris.Errorf("source: prediction status %q: %s", raw.Status, raw.Detail)
	}

	*p = Prediction{
		Status:    raw.Status,
		Metric:    raw.Metric,
		Horizon:   raw.Horizon,
		StartYear: raw.StartYear,
		EndYear:   raw.EndYear,
		Method:    raw.Method,
	}
	if raw.ExportPath != nil {
		p.ExportPath = *raw.ExportPath
	}

	data := bytes.TrimSpace(raw.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '[':
		if err := json.Unmarshal(data, &p.Flat); err != nil {
			return eris.Wrap(err, "source: decode prediction rows")
		}
		if p.Flat == nil {
			p.Flat = []PredictionRow{}
		}
	case data[0] == '{':
		if err := json.Unmarshal(data, &p.ByMetric); err != nil {
			return eris.Wrap(err, "source: decode prediction metrics")
		}
	default:
		return eris.Errorf("source: prediction data must be a list or object, got %.20s", string(data))
	}
	return nil
}

// Rows returns the forecast rows for metric. For a single-metric payload
// the metric must match or be empty.
func (p Prediction) Rows(metric string) []PredictionRow {
	if p.ByMetric != nil {
		return p.ByMetric[strings.ToLower(metric)]
	}
	if metric == "" || strings.EqualFold(metric, p.Metric) {
		return p.Flat
	}
	return nil
}

// ValuesFor returns the forecast for one metric and year as value rows.
func (p Prediction) ValuesFor(metric string, year int) []classify.ValueRow {
	var out []classify.ValueRow
	for _, r := range p.Rows(metric) {
		if r.Year != year {
			continue
		}
		out = append(out, classify.ValueRow{Code: r.Code, Name: r.Name, Value: r.Value})
	}
	return out
}

// Predict fetches /api/predict.
func (c *APIClient) Predict(ctx context.Context, q PredictQuery) (Prediction, error) {
	var p Prediction
	if err := c.getJSON(ctx, "/api/predict", q.params(), &p); err != nil {
		return Prediction{}, err
	}
	return p, nil
}

// ForecastSource is a ValueSource that maps one forecast year of the
// metric being displayed.
type ForecastSource struct {
	Client  *APIClient
	Horizon int
	Method  string
	// Year selects the forecast year. Zero means the last forecast year.
	Year int
}

// Values implements ValueSource using /api/predict.
func (f ForecastSource) Values(ctx context.Context, q ValuesQuery) ([]classify.ValueRow, error) {
	metric := q.Metric
	if metric == "" {
		metric = MetricKemiskinan
	}
	p, err := f.Client.Predict(ctx, PredictQuery{
		Metric:   metric,
		Horizon:  f.Horizon,
		Method:   f.Method,
		Category: q.Category,
		Codes:    q.Codes,
	})
	if err != nil {
		return nil, err
	}

	year := f.Year
	if year == 0 {
		year = p.EndYear
	}
	rows := p.ValuesFor(metric, year)
	if len(rows) == 0 {
		return nil, eris.Errorf("source: forecast has no %s rows for %d", metric, year)
	}
	return rows, nil
}
