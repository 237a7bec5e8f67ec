package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProxyMetrics records dispatch engine activity: attempted dispatches by path
// and outcome, end-to-end dispatch latency, and fee collection volumes.
type ProxyMetrics struct {
	dispatches  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	collections *prometheus.CounterVec
	sweeps      prometheus.Counter
}

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	proxyMetricsOnce sync.Once
	proxyRegistry    *ProxyMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics
)

// Proxy returns the lazily-initialised dispatch engine metrics registry.
func Proxy() *ProxyMetrics {
	proxyMetricsOnce.Do(func() {
		proxyRegistry = &ProxyMetrics{
			dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bridgeproxy",
				Subsystem: "dispatch",
				Name:      "requests_total",
				Help:      "Total dispatch attempts segmented by path and outcome.",
			}, []string{"path", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bridgeproxy",
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Latency distribution for dispatch execution.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"path"}),
			collections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bridgeproxy",
				Subsystem: "fees",
				Name:      "collections_total",
				Help:      "Total fee collection operations segmented by beneficiary kind.",
			}, []string{"beneficiary"}),
			sweeps: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bridgeproxy",
				Subsystem: "admin",
				Name:      "sweeps_total",
				Help:      "Total emergency sweep operations executed.",
			}),
		}
		prometheus.MustRegister(
			proxyRegistry.dispatches,
			proxyRegistry.latency,
			proxyRegistry.collections,
			proxyRegistry.sweeps,
		)
	})
	return proxyRegistry
}

// ObserveDispatch records one dispatch attempt. Path is "token" or "native";
// outcome is "ok" or "error".
func (m *ProxyMetrics) ObserveDispatch(path string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.dispatches.WithLabelValues(path, outcome).Inc()
	m.latency.WithLabelValues(path).Observe(duration.Seconds())
}

// ObserveCollection records one successful fee collection.
func (m *ProxyMetrics) ObserveCollection(beneficiary string) {
	if m == nil {
		return
	}
	m.collections.WithLabelValues(beneficiary).Inc()
}

// ObserveSweep records one executed sweep.
func (m *ProxyMetrics) ObserveSweep() {
	if m == nil {
		return
	}
	m.sweeps.Inc()
}

// HTTP returns the lazily-initialised HTTP server metrics registry.
func HTTP() interface {
	Observe(route, method string, status int, duration time.Duration)
} {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bridgeproxy",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bridgeproxy",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency)
	})
	return httpRegistry
}

func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}
