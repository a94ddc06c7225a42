// Package metrics exposes Prometheus collectors for the map pipeline and
// HTTP surface.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
)

// Cache results.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Collector bundles the service metrics. A nil *Collector is a valid no-op
// recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	Recomputes    *prometheus.CounterVec
	Fallbacks     prometheus.Counter
	CacheRequests *prometheus.CounterVec
	StaleUpdates  *prometheus.CounterVec
	Regions       prometheus.Gauge
	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// New registers the collectors against reg, defaulting to the global
// registry when nil. Registering twice against the same registry reuses the
// existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Recomputes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "peta_pipeline_recompute_total",
		Help: "Pipeline stage recomputations, labeled by stage.",
	}, []string{"stage"})); err != nil {
		return nil, err
	}
	if c.Fallbacks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peta_scene_fallback_total",
		Help: "Scenes served as the no-map fallback.",
	})); err != nil {
		return nil, err
	}
	if c.CacheRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "peta_scene_cache_requests_total",
		Help: "Rendered scene cache lookups, labeled by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.StaleUpdates, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "peta_stale_updates_total",
		Help: "Dataset snapshots dropped because a newer version was already applied.",
	}, []string{"input"})); err != nil {
		return nil, err
	}
	if c.Regions, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "peta_rendered_regions",
		Help: "Regions drawn in the most recent scene.",
	})); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "peta_http_requests_total",
		Help: "HTTP requests, labeled by route pattern and status code.",
	}, []string{"route", "code"})); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "peta_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route"})); err != nil {
		return nil, err
	}

	return c, nil
}

// Recompute counts one pipeline stage run.
func (c *Collector) Recompute(stage string) {
	if c == nil {
		return
	}
	c.Recomputes.WithLabelValues(stage).Inc()
}

// Fallback counts one fallback scene.
func (c *Collector) Fallback() {
	if c == nil {
		return
	}
	c.Fallbacks.Inc()
}

// Stale counts one dropped snapshot for input.
func (c *Collector) Stale(input string) {
	if c == nil {
		return
	}
	c.StaleUpdates.WithLabelValues(input).Inc()
}

// Rendered records the region count of the latest scene.
func (c *Collector) Rendered(n int) {
	if c == nil {
		return
	}
	c.Regions.Set(float64(n))
}

// CacheLookup counts a cache hit or miss.
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	c.CacheRequests.WithLabelValues(result).Inc()
}

// ObserveHTTP records one handled request.
func (c *Collector) ObserveHTTP(route string, status int, seconds float64) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.HTTPDurations.WithLabelValues(route).Observe(seconds)
}

// Handler serves the registered metrics.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// register adds col to reg, returning the already registered collector of
// the same type when one exists.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, eris.Wrap(err, "metrics: register collector")
	}
	return col, nil
}
