// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records pipeline execution metrics.
type Collector struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	artifactsTotal   *prometheus.CounterVec
	artifactDuration *prometheus.HistogramVec

	storeOperations *prometheus.CounterVec
	storeOpDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a collector registering its metrics under the given
// namespace. A nil registerer uses the process-default registry; tests pass
// a fresh prometheus.NewRegistry to avoid duplicate registration.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"pipeline", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"pipeline"},
	)

	c.artifactsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_total",
			Help:      "Total number of executed artifacts by terminal status",
		},
		[]string{"pipeline", "status"},
	)

	c.artifactDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_duration_seconds",
			Help:      "Artifact execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"pipeline"},
	)

	c.storeOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of artifact store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	c.storeOpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Artifact store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// ObserveRun records the outcome of one pipeline run.
func (c *Collector) ObserveRun(pipeline string, success bool, duration time.Duration) {
	status := "failed"
	if success {
		status = "succeeded"
	}
	c.runsTotal.WithLabelValues(pipeline, status).Inc()
	c.runDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}

// ObserveArtifact records one artifact's terminal status and duration.
func (c *Collector) ObserveArtifact(pipeline, status string, duration time.Duration) {
	c.artifactsTotal.WithLabelValues(pipeline, status).Inc()
	if duration > 0 {
		c.artifactDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
	}
}

// ObserveStoreOperation records one artifact store operation.
func (c *Collector) ObserveStoreOperation(backend, operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.storeOperations.WithLabelValues(backend, operation, status).Inc()
	c.storeOpDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}
