// Package observability provides Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bulkdl"

// Metrics holds all application metrics.
// Every Record/Set method is safe to call on a nil *Metrics.
type Metrics struct {
	// Batch metrics
	BatchesStarted    prometheus.Counter
	BatchesCompleted  *prometheus.CounterVec
	BatchesInProgress prometheus.Gauge
	BatchDuration     prometheus.Histogram
	ItemsTotal        *prometheus.CounterVec
	DeliveredBytes    prometheus.Counter
	DeliveriesTotal   *prometheus.CounterVec
	StatusEditErrors  prometheus.Counter

	// Session metrics
	SessionInputs *prometheus.CounterVec

	// Storage metrics
	CleanupDirsTotal prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Proxy metrics
	ProxyRequestsTotal *prometheus.CounterVec
	ProxyFailures      *prometheus.CounterVec
	ProxiesAvailable   prometheus.Gauge

	// Downloader metrics
	DownloaderRequestsTotal *prometheus.CounterVec
	DownloaderErrors        *prometheus.CounterVec

	// System metrics
	GoRoutines prometheus.Gauge
}

// New creates all application metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	metrics := &Metrics{
		// Batch metrics
		BatchesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batches",
			Name:      "started_total",
			Help:      "Total number of batches started",
		}),
		BatchesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batches",
			Name:      "completed_total",
			Help:      "Total number of batches finished, by outcome",
		}, []string{"outcome"}),
		BatchesInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batches",
			Name:      "in_progress",
			Help:      "Number of batches currently processing",
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batches",
			Name:      "duration_seconds",
			Help:      "Histogram of batch duration in seconds",
			Buckets:   []float64{5, 30, 60, 300, 600, 1800, 3600, 7200},
		}),
		ItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batches",
			Name:      "items_total",
			Help:      "Total number of batch items, by result",
		}, []string{"result"}),
		DeliveredBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "bytes_total",
			Help:      "Total bytes delivered to requesters",
		}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "files_total",
			Help:      "Total number of files sent, by kind and status",
		}, []string{"kind", "status"}),
		StatusEditErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "status_edit_errors_total",
			Help:      "Total number of swallowed status message edit failures",
		}),

		// Session metrics
		SessionInputs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "inputs_total",
			Help:      "Total number of session inputs, by effect",
		}, []string{"effect"}),

		// Storage metrics
		CleanupDirsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "cleanup_dirs_total",
			Help:      "Total number of orphaned requester directories removed",
		}),

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPResponseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Histogram of HTTP response sizes in bytes",
			Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		}, []string{"method", "path"}),

		// Proxy metrics
		ProxyRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Total number of requests made through proxies",
		}, []string{"proxy"}),
		ProxyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "failures_total",
			Help:      "Total number of proxy failures",
		}, []string{"proxy"}),
		ProxiesAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "available",
			Help:      "Number of currently available proxies",
		}),

		// Downloader metrics
		DownloaderRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "downloader",
			Name:      "requests_total",
			Help:      "Total number of tool invocations",
		}, []string{"tool", "status"}),
		DownloaderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "downloader",
			Name:      "errors_total",
			Help:      "Total number of tool invocation errors",
		}, []string{"tool", "error_type"}),

		// System metrics
		GoRoutines: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "goroutines",
			Help:      "Number of goroutines",
		}),
	}

	return metrics
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// BatchTimer marks a batch as started and returns a function that records its outcome and duration.
func (m *Metrics) BatchTimer() func(outcome string) {
	if m == nil {
		return func(string) {}
	}

	start := time.Now()

	m.BatchesStarted.Inc()
	m.BatchesInProgress.Inc()

	return func(outcome string) {
		m.BatchesInProgress.Dec()
		m.BatchesCompleted.WithLabelValues(outcome).Inc()
		m.BatchDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordItem records the result of one download item: succeeded, failed or skipped.
func (m *Metrics) RecordItem(result string) {
	if m == nil {
		return
	}

	m.ItemsTotal.WithLabelValues(result).Inc()
}

// RecordDelivery records one sent (or failed) file.
func (m *Metrics) RecordDelivery(kind, status string, size int64) {
	if m == nil {
		return
	}

	m.DeliveriesTotal.WithLabelValues(kind, status).Inc()

	if status == "ok" {
		m.DeliveredBytes.Add(float64(size))
	}
}

// RecordStatusEditError counts a swallowed status edit failure.
func (m *Metrics) RecordStatusEditError() {
	if m == nil {
		return
	}

	m.StatusEditErrors.Inc()
}

// RecordSessionInput records the effect produced by one session input.
func (m *Metrics) RecordSessionInput(effect string) {
	if m == nil {
		return
	}

	m.SessionInputs.WithLabelValues(effect).Inc()
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration, size int) {
	if m == nil {
		return
	}

	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(size))
}

// RecordCleanup records removed orphan directories.
func (m *Metrics) RecordCleanup(dirs int) {
	if m == nil {
		return
	}

	m.CleanupDirsTotal.Add(float64(dirs))
}

// RecordDownloaderRequest records a tool invocation.
func (m *Metrics) RecordDownloaderRequest(tool, status string) {
	if m == nil {
		return
	}

	m.DownloaderRequestsTotal.WithLabelValues(tool, status).Inc()
}

// RecordDownloaderError records a tool invocation error.
func (m *Metrics) RecordDownloaderError(tool, errorType string) {
	if m == nil {
		return
	}

	m.DownloaderErrors.WithLabelValues(tool, errorType).Inc()
}

// RecordProxyRequest records a proxy request.
func (m *Metrics) RecordProxyRequest(proxy string) {
	if m == nil {
		return
	}

	m.ProxyRequestsTotal.WithLabelValues(proxy).Inc()
}

// RecordProxyFailure records a proxy failure.
func (m *Metrics) RecordProxyFailure(proxy string) {
	if m == nil {
		return
	}

	m.ProxyFailures.WithLabelValues(proxy).Inc()
}

// SetProxiesAvailable sets the number of available proxies.
func (m *Metrics) SetProxiesAvailable(count int) {
	if m == nil {
		return
	}

	m.ProxiesAvailable.Set(float64(count))
}

// SetGoroutines sets the current goroutine count.
func (m *Metrics) SetGoroutines(count int) {
	if m == nil {
		return
	}

	m.GoRoutines.Set(float64(count))
}
