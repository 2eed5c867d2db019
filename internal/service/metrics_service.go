package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the scheduling
// core: HTTP traffic, cache effectiveness and reconciliation scan outcomes.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	scanDuration    prometheus.Histogram
	scansTotal      prometheus.Counter
	scanConflicts   prometheus.Gauge
	openConflicts   prometheus.Gauge
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	scanDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "conflict_scan_duration_seconds",
		Help:    "Duration of conflict reconciliation scans",
		Buckets: prometheus.DefBuckets,
	})

	scansTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conflict_scans_total",
		Help: "Total number of completed conflict scans",
	})

	scanConflicts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "conflict_scan_last_detected",
		Help: "Conflicts newly recorded by the most recent scan",
	})

	openConflicts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "conflicts_unresolved",
		Help: "Unresolved conflicts currently in the ledger",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, scanDuration, scansTotal, scanConflicts, openConflicts, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		scanDuration:    scanDuration,
		scansTotal:      scansTotal,
		scanConflicts:   scanConflicts,
		openConflicts:   openConflicts,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveScan records the outcome of one reconciliation scan.
func (m *MetricsService) ObserveScan(detected int, duration time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(duration.Seconds())
	m.scansTotal.Inc()
	m.scanConflicts.Set(float64(detected))
}

// SetOpenConflicts updates the unresolved conflict gauge.
func (m *MetricsService) SetOpenConflicts(count int) {
	if m == nil {
		return
	}
	m.openConflicts.Set(float64(count))
}
