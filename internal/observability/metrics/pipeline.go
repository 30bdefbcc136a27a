// Package metrics provides custom Prometheus metrics for the imagelens pipeline.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/imagelens/internal/vision"
)

// Run outcomes used as the outcome label of imagelens_runs_total.
const (
	OutcomeAnalyzed      = "analyzed"
	OutcomeCached        = "cached"
	OutcomePartial       = "partial"
	OutcomeInvalidImage  = "invalid_image"
	OutcomeNoLayers      = "no_layers"
	OutcomeInternalError = "error"
)

// PipelineMetrics contains Prometheus metrics for analysis runs and layers.
type PipelineMetrics struct {
	LayerDuration *prometheus.HistogramVec
	LayerTotal    *prometheus.CounterVec
	LayerErrors   *prometheus.CounterVec

	RunDuration   prometheus.Histogram
	RunsTotal     *prometheus.CounterVec
	ThrottledRuns prometheus.Counter
	ActiveRuns    prometheus.Gauge
	Embeddings    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPipelineMetrics creates and registers the pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.LayerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagelens_layer_duration_seconds",
			Help:    "Time taken by one analysis layer",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"layer"},
	)
	m.LayerTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagelens_layer_runs_total",
			Help: "Total number of layer executions",
		},
		[]string{"layer", "status"},
	)
	m.LayerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagelens_layer_errors_total",
			Help: "Total number of failed layer executions by error type",
		},
		[]string{"layer", "error_type"},
	)

	m.RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagelens_run_duration_seconds",
		Help:    "Wall time of a complete analysis run",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagelens_runs_total",
			Help: "Total number of analysis requests by outcome",
		},
		[]string{"outcome"},
	)
	m.ThrottledRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imagelens_thermal_throttled_runs_total",
		Help: "Runs that used the throttled configuration because of thermal pressure",
	})
	m.ActiveRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "imagelens_active_runs",
		Help: "Number of analysis runs in progress",
	})
	m.Embeddings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagelens_embeddings_total",
			Help: "Embedding requests by status",
		},
		[]string{"status"},
	)
}

// RecordLayer records one layer execution.
func (m *PipelineMetrics) RecordLayer(layer vision.Layer, took time.Duration, err error) {
	name := string(layer)
	m.LayerDuration.WithLabelValues(name).Observe(took.Seconds())
	if err != nil {
		m.LayerTotal.WithLabelValues(name, "error").Inc()
		m.LayerErrors.WithLabelValues(name, categorizeError(err)).Inc()
		return
	}
	m.LayerTotal.WithLabelValues(name, "success").Inc()
}

// RecordRun records a finished Analyze call.
func (m *PipelineMetrics) RecordRun(outcome string, took time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeAnalyzed || outcome == OutcomePartial {
		m.RunDuration.Observe(took.Seconds())
	}
}

// RecordThrottled counts a run downgraded by thermal pressure.
func (m *PipelineMetrics) RecordThrottled() {
	m.ThrottledRuns.Inc()
}

// RunStarted and RunFinished track in-flight runs.
func (m *PipelineMetrics) RunStarted()  { m.ActiveRuns.Inc() }
func (m *PipelineMetrics) RunFinished() { m.ActiveRuns.Dec() }

// RecordEmbedding counts embedding attempts.
func (m *PipelineMetrics) RecordEmbedding(err error) {
	if err != nil {
		m.Embeddings.WithLabelValues("error").Inc()
		return
	}
	m.Embeddings.WithLabelValues("success").Inc()
}

// categorizeError maps layer errors to a bounded label set.
func categorizeError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, vision.ErrAnalysisTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, vision.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, vision.ErrModelLoadFailure):
		return "model_load"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "layer_error"
	}
}

func (m *PipelineMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.LayerDuration,
		m.LayerTotal,
		m.LayerErrors,
		m.RunDuration,
		m.RunsTotal,
		m.ThrottledRuns,
		m.ActiveRuns,
		m.Embeddings,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
