// Package observability bundles the service's Prometheus metrics: HTTP
// request counters and latency histograms, cache hit/miss counters, and
// upstream provider failure counters. A Collector is constructed once at
// startup and injected wherever events are recorded; all recorder methods
// are nil-safe so tests can pass a nil collector.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the service's Prometheus metrics and provides helpers
// to wire them into the HTTP chassis.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	CacheLookups     *prometheus.CounterVec
	ProviderFailures *prometheus.CounterVec
	ModelCalls       *prometheus.CounterVec
}

// NewCollector registers the service metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadrisk_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "roadrisk_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roadrisk_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"route", "method"})
	durations, err = registerHistogramVec(reg, durations, "roadrisk_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadrisk_cache_lookups_total",
		Help: "Cache lookups, labeled by store (weather, twilight, roadflags, rows) and outcome (hit, miss).",
	}, []string{"store", "outcome"})
	cacheLookups, err = registerCounterVec(reg, cacheLookups, "roadrisk_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	providerFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadrisk_provider_failures_total",
		Help: "Upstream geodata/routing failures that were absorbed into fallbacks, labeled by provider.",
	}, []string{"provider"})
	providerFailures, err = registerCounterVec(reg, providerFailures, "roadrisk_provider_failures_total")
	if err != nil {
		return nil, err
	}

	modelCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadrisk_model_calls_total",
		Help: "Risk model service round-trips, labeled by endpoint and outcome (ok, error).",
	}, []string{"endpoint", "outcome"})
	modelCalls, err = registerCounterVec(reg, modelCalls, "roadrisk_model_calls_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		HTTPRequests:     requests,
		HTTPDurations:    durations,
		CacheLookups:     cacheLookups,
		ProviderFailures: providerFailures,
		ModelCalls:       modelCalls,
	}, nil
}

// ObserveRequest records one handled HTTP request.
func (c *Collector) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.HTTPRequests != nil {
		c.HTTPRequests.WithLabelValues(route, method, fmt.Sprintf("%d", code)).Inc()
	}
	if c.HTTPDurations != nil {
		c.HTTPDurations.WithLabelValues(route, method).Observe(elapsed.Seconds())
	}
}

// CacheHit records a cache hit for the named store.
func (c *Collector) CacheHit(store string) {
	if c == nil || c.CacheLookups == nil {
		return
	}
	c.CacheLookups.WithLabelValues(store, "hit").Inc()
}

// CacheMiss records a cache miss for the named store.
func (c *Collector) CacheMiss(store string) {
	if c == nil || c.CacheLookups == nil {
		return
	}
	c.CacheLookups.WithLabelValues(store, "miss").Inc()
}

// ProviderFailure records an absorbed upstream failure.
func (c *Collector) ProviderFailure(provider string) {
	if c == nil || c.ProviderFailures == nil {
		return
	}
	c.ProviderFailures.WithLabelValues(provider).Inc()
}

// ModelCall records one model service round-trip.
func (c *Collector) ModelCall(endpoint string, err error) {
	if c == nil || c.ModelCalls == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.ModelCalls.WithLabelValues(endpoint, outcome).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
