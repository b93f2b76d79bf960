package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/buoy-console/internal/gateway"
)

const namespace = "console"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the default one. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpInflight prometheus.Gauge

	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec

	cacheLookups  *prometheus.CounterVec
	cacheFetches  *prometheus.CounterVec
	cacheDiscards *prometheus.CounterVec
	cacheInflight *prometheus.GaugeVec
	cacheLatency  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Console HTTP requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Console HTTP request latency in seconds by method/route.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "In-flight console HTTP requests.",
		}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Backend calls by method/route/outcome/status.",
		}, []string{"method", "route", "outcome", "status"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend call latency in seconds by method/route.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Query cache lookups by tag/result (hit, miss, joined).",
		}, []string{"tag", "result"}),
		cacheFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetches_total",
			Help:      "Completed query fetches by tag/outcome.",
		}, []string{"tag", "outcome"}),
		cacheDiscards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "discards_total",
			Help:      "Fetches abandoned or whose result was dropped, by tag.",
		}, []string{"tag"}),
		cacheInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "inflight_fetches",
			Help:      "Query fetches currently running, by tag.",
		}, []string{"tag"}),
		cacheLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetch_duration_seconds",
			Help:      "Query fetch duration in seconds by tag.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"tag"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpLatency, m.httpInflight,
		m.backendRequests, m.backendLatency,
		m.cacheLookups, m.cacheFetches, m.cacheDiscards, m.cacheInflight, m.cacheLatency,
	)
	return m
}

// Registry exposes the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RegisterGaugeFunc exports a value sampled at scrape time.
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) {
	if m == nil || fn == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) HTTPInflightInc() {
	if m == nil {
		return
	}
	m.httpInflight.Inc()
}

func (m *Metrics) HTTPInflightDec() {
	if m == nil {
		return
	}
	m.httpInflight.Dec()
}

// ObserveRequest implements gateway.Observer.
func (m *Metrics) ObserveRequest(method, route string, kind gateway.Kind, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(method, route, kind.String(), strconv.Itoa(status)).Inc()
	m.backendLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// The methods below implement querycache.Hooks.

func (m *Metrics) Hit(tag string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(tag, "hit").Inc()
}

func (m *Metrics) Miss(tag string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(tag, "miss").Inc()
}

func (m *Metrics) Joined(tag string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(tag, "joined").Inc()
}

func (m *Metrics) FetchStarted(tag string) {
	if m == nil {
		return
	}
	m.cacheInflight.WithLabelValues(tag).Inc()
}

func (m *Metrics) FetchFinished(tag string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cacheInflight.WithLabelValues(tag).Dec()
	m.cacheFetches.WithLabelValues(tag, fetchOutcome(err)).Inc()
	m.cacheLatency.WithLabelValues(tag).Observe(elapsed.Seconds())
}

func (m *Metrics) Discarded(tag string) {
	if m == nil {
		return
	}
	m.cacheDiscards.WithLabelValues(tag).Inc()
}

func fetchOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	if _, ok := gateway.IsUnauthorized(err); ok {
		return "unauthorized"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}
