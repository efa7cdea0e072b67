package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkflowMetrics exposes gauges and counters for the workflow lifecycle:
// snapshot sizes observed at start/finish and per-backend upload outcomes.
type WorkflowMetrics struct {
	originalPaths prometheus.Gauge
	finalPaths    prometheus.Gauge
	newPaths      prometheus.Gauge

	enqueuedPaths *prometheus.CounterVec
	uploadedPaths *prometheus.CounterVec
	skippedPaths  *prometheus.CounterVec
	failedPaths   *prometheus.CounterVec
}

// NewWorkflowMetrics creates a Prometheus-backed WorkflowMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// All recording methods are safe to call on a nil receiver.
func NewWorkflowMetrics() *WorkflowMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &WorkflowMetrics{
		originalPaths: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "magic_nix_cache_num_original_paths",
			Help: "Number of store paths present when the workflow started",
		}),
		finalPaths: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "magic_nix_cache_num_final_paths",
			Help: "Number of store paths present when the workflow finished",
		}),
		newPaths: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "magic_nix_cache_num_new_paths",
			Help: "Number of store paths created during the workflow",
		}),
		enqueuedPaths: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "magic_nix_cache_enqueued_paths_total",
				Help: "Total number of store paths accepted for upload, per backend",
			},
			[]string{"backend"},
		),
		uploadedPaths: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "magic_nix_cache_uploaded_paths_total",
				Help: "Total number of store paths uploaded, per backend",
			},
			[]string{"backend"},
		),
		skippedPaths: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "magic_nix_cache_skipped_paths_total",
				Help: "Total number of store paths skipped as already cached, per backend",
			},
			[]string{"backend"},
		),
		failedPaths: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "magic_nix_cache_failed_paths_total",
				Help: "Total number of store path uploads that failed terminally, per backend",
			},
			[]string{"backend"},
		),
	}
}

// RecordOriginalPaths records the snapshot size observed at workflow start.
func (m *WorkflowMetrics) RecordOriginalPaths(n int) {
	if m == nil {
		return
	}
	m.originalPaths.Set(float64(n))
}

// RecordFinishCounts records the snapshot sizes observed at workflow finish.
func (m *WorkflowMetrics) RecordFinishCounts(original, final, created int) {
	if m == nil {
		return
	}
	m.originalPaths.Set(float64(original))
	m.finalPaths.Set(float64(final))
	m.newPaths.Set(float64(created))
}

// RecordEnqueued records paths accepted by a backend's queue.
func (m *WorkflowMetrics) RecordEnqueued(backend string, n int) {
	if m == nil {
		return
	}
	m.enqueuedPaths.WithLabelValues(backend).Add(float64(n))
}

// RecordDrainReport records a backend's final drain outcome.
func (m *WorkflowMetrics) RecordDrainReport(backend string, uploaded, skipped, failed int) {
	if m == nil {
		return
	}
	m.uploadedPaths.WithLabelValues(backend).Add(float64(uploaded))
	m.skippedPaths.WithLabelValues(backend).Add(float64(skipped))
	m.failedPaths.WithLabelValues(backend).Add(float64(failed))
}
