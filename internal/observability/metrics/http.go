package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/tphakala/imagelens/internal/logger"
)

// HTTPMetrics contains Prometheus metrics for the HTTP API.
type HTTPMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
	uploadSize      prometheus.Histogram
	inFlight        prometheus.Gauge
}

// NewHTTPMetrics creates and registers the HTTP metrics.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagelens_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"}, // path is the route template, not the raw URL
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagelens_http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	m.requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagelens_http_request_errors_total",
			Help: "Total number of HTTP requests answered with an error",
		},
		[]string{"method", "path", "error_type"},
	)
	m.uploadSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagelens_http_upload_size_bytes",
		Help:    "Size of uploaded images",
		Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10), // 16KiB to 8MiB
	})
	m.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "imagelens_http_requests_in_flight",
		Help: "Requests currently being served",
	})
}

func (m *HTTPMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.requestErrors,
		m.uploadSize,
		m.inFlight,
	}
}

// Describe implements the Collector interface
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// RecordHTTPRequest records a completed request
func (m *HTTPMetrics) RecordHTTPRequest(method, path string, statusCode int, duration float64) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordHTTPRequestError records a request answered with an error
func (m *HTTPMetrics) RecordHTTPRequestError(method, path, errorType string) {
	m.requestErrors.WithLabelValues(method, path, errorType).Inc()
}

// RecordUploadSize records the size of an uploaded image
func (m *HTTPMetrics) RecordUploadSize(sizeBytes int) {
	m.uploadSize.Observe(float64(sizeBytes))
}

func (m *HTTPMetrics) RequestStarted()  { m.inFlight.Inc() }
func (m *HTTPMetrics) RequestFinished() { m.inFlight.Dec() }

// InFlight returns the current number of requests being served
func (m *HTTPMetrics) InFlight() float64 {
	metric := &dto.Metric{}
	if err := m.inFlight.Write(metric); err != nil {
		log.Warn("failed to read in-flight gauge", logger.Error(err))
		return 0
	}
	if metric.Gauge != nil && metric.Gauge.Value != nil {
		return *metric.Gauge.Value
	}
	return 0
}
