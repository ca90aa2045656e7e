// Package metrics exposes Prometheus instrumentation for the storage manager.
// A nil *Metrics is valid and records nothing, so tests and tools can skip it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors.
type Metrics struct {
	registry prometheus.Gatherer

	uploadsTotal       *prometheus.CounterVec
	uploadBytesTotal   prometheus.Counter
	rejectionsTotal    *prometheus.CounterVec
	deletesTotal       prometheus.Counter
	providerOpDuration *prometheus.HistogramVec
	providerErrors     *prometheus.CounterVec
	failoversTotal     *prometheus.CounterVec
	providerHealthy    *prometheus.GaugeVec
	providerLatency    *prometheus.GaugeVec
	cleanupRuns        *prometheus.CounterVec
	cleanupDuration    prometheus.Histogram
	cleanupLastRun     prometheus.Gauge
	cleanupPurged      prometheus.Counter
	cleanupBytesFreed  prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates and registers collectors under namespace.
// A nil registry gets a fresh prometheus.Registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Completed uploads by storage status.",
		}, []string{"status"}),
		uploadBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes accepted by completed uploads.",
		}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_rejections_total",
			Help:      "Uploads rejected before any provider write, by reason.",
		}, []string{"reason"}),
		deletesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "soft_deletes_total",
			Help:      "Files soft-deleted by users.",
		}),
		providerOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_operation_duration_seconds",
			Help:      "Provider operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider operation failures by error code.",
		}, []string{"provider", "operation", "code"}),
		failoversTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "url_failovers_total",
			Help:      "URL resolutions that did not return the preferred provider.",
		}, []string{"outcome"}),
		providerHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_healthy",
			Help:      "1 when the last health check of the provider succeeded.",
		}, []string{"provider", "role"}),
		providerLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_health_check_seconds",
			Help:      "Duration of the last provider health check.",
		}, []string{"provider", "role"}),
		cleanupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_runs_total",
			Help:      "Retention cleanup runs by result.",
		}, []string{"result"}),
		cleanupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cleanup_run_duration_seconds",
			Help:      "Retention cleanup run duration.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		cleanupLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cleanup_last_run_timestamp_seconds",
			Help:      "Unix time of the last completed cleanup run.",
		}),
		cleanupPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_records_purged_total",
			Help:      "Ledger records purged by retention cleanup.",
		}),
		cleanupBytesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_bytes_freed_total",
			Help:      "Object bytes removed by retention cleanup.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.uploadsTotal, m.uploadBytesTotal, m.rejectionsTotal, m.deletesTotal,
		m.providerOpDuration, m.providerErrors, m.failoversTotal,
		m.providerHealthy, m.providerLatency,
		m.cleanupRuns, m.cleanupDuration, m.cleanupLastRun, m.cleanupPurged, m.cleanupBytesFreed,
		m.httpRequests, m.httpDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// =============================================================================
// Upload pipeline
// =============================================================================

// UploadCompleted counts a successful upload.
func (m *Metrics) UploadCompleted(status string, size int64) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(status).Inc()
	m.uploadBytesTotal.Add(float64(size))
}

// UploadRejected counts a validation rejection.
func (m *Metrics) UploadRejected(reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}

// FileDeleted counts a soft delete.
func (m *Metrics) FileDeleted() {
	if m == nil {
		return
	}
	m.deletesTotal.Inc()
}

// =============================================================================
// Providers
// =============================================================================

// ObserveProviderOp records a provider call. code is empty on success.
func (m *Metrics) ObserveProviderOp(provider, op string, d time.Duration, code string) {
	if m == nil {
		return
	}
	m.providerOpDuration.WithLabelValues(provider, op).Observe(d.Seconds())
	if code != "" {
		m.providerErrors.WithLabelValues(provider, op, code).Inc()
	}
}

// SetProviderHealth publishes the latest health check result.
func (m *Metrics) SetProviderHealth(provider, role string, healthy bool, d time.Duration) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.providerHealthy.WithLabelValues(provider, role).Set(v)
	m.providerLatency.WithLabelValues(provider, role).Set(d.Seconds())
}

// Failover counts a resolution that left the preferred URL.
// outcome is the served role ("primary" or "backup") or "fail_open".
func (m *Metrics) Failover(outcome string) {
	if m == nil {
		return
	}
	m.failoversTotal.WithLabelValues(outcome).Inc()
}

// =============================================================================
// Retention cleanup
// =============================================================================

// CleanupRun records one retention pass.
func (m *Metrics) CleanupRun(result string, d time.Duration, purged, bytesFreed int64) {
	if m == nil {
		return
	}
	m.cleanupRuns.WithLabelValues(result).Inc()
	m.cleanupDuration.Observe(d.Seconds())
	m.cleanupLastRun.SetToCurrentTime()
	m.cleanupPurged.Add(float64(purged))
	m.cleanupBytesFreed.Add(float64(bytesFreed))
}

// =============================================================================
// HTTP
// =============================================================================

// Middleware records request counts and latency keyed by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
