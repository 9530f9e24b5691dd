package lifecycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics backed by a private Prometheus registry
type PrometheusMetrics struct {
	stateTransitions *prometheus.CounterVec

	syncDuration *prometheus.HistogramVec
	stopDuration *prometheus.HistogramVec

	errors   *prometheus.CounterVec
	restarts *prometheus.CounterVec

	queueDepth      prometheus.Gauge
	queueAdds       *prometheus.CounterVec
	queueRetries    *prometheus.CounterVec
	backoffDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a Prometheus metrics sink under the given namespace
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "lifecycle"
	}

	pm := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
	}

	pm.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_state_transitions_total",
			Help:      "Total number of component state transitions",
		},
		[]string{"component", "from_state", "to_state"},
	)

	pm.syncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "component_sync_duration_seconds",
			Help:      "Duration of component sync operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"component", "kind", "status"},
	)

	pm.stopDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "component_stop_duration_seconds",
			Help:      "Duration of component stop operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	pm.errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_errors_total",
			Help:      "Total number of component sync errors",
		},
		[]string{"component", "error_type"},
	)

	pm.restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_restarts_total",
			Help:      "Total number of component restarts",
		},
		[]string{"component"},
	)

	pm.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retry_queue_depth",
			Help:      "Current depth of the retry queue",
		},
	)

	pm.queueAdds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_queue_adds_total",
			Help:      "Total number of items added to the retry queue",
		},
		[]string{"component"},
	)

	pm.queueRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_queue_retries_total",
			Help:      "Total number of retries taken from the queue",
		},
		[]string{"component"},
	)

	pm.backoffDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retry_queue_backoff_duration_seconds",
			Help:      "Duration of backoff delays for failing components",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"component"},
	)

	pm.registry.MustRegister(
		pm.stateTransitions,
		pm.syncDuration,
		pm.stopDuration,
		pm.errors,
		pm.restarts,
		pm.queueDepth,
		pm.queueAdds,
		pm.queueRetries,
		pm.backoffDuration,
	)

	return pm
}

// StateTransition records a component state transition
func (pm *PrometheusMetrics) StateTransition(id ComponentID, fromState, toState ComponentState) {
	pm.stateTransitions.WithLabelValues(
		string(id),
		fromState.String(),
		toState.String(),
	).Inc()
}

// SyncDuration records the duration of a sync operation
func (pm *PrometheusMetrics) SyncDuration(id ComponentID, kind UpdateKind, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	pm.syncDuration.WithLabelValues(
		string(id),
		kind.String(),
		status,
	).Observe(duration.Seconds())
}

// StopDuration records the duration of a stop operation
func (pm *PrometheusMetrics) StopDuration(id ComponentID, duration time.Duration) {
	pm.stopDuration.WithLabelValues(string(id)).Observe(duration.Seconds())
}

// SyncError records a sync error
func (pm *PrometheusMetrics) SyncError(id ComponentID, errorType string) {
	pm.errors.WithLabelValues(string(id), errorType).Inc()
}

// Restart records a component restart
func (pm *PrometheusMetrics) Restart(id ComponentID) {
	pm.restarts.WithLabelValues(string(id)).Inc()
}

// QueueDepth records the current retry queue depth
func (pm *PrometheusMetrics) QueueDepth(depth int) {
	pm.queueDepth.Set(float64(depth))
}

// QueueAdd records an item added to the retry queue
func (pm *PrometheusMetrics) QueueAdd(id ComponentID, delay time.Duration) {
	pm.queueAdds.WithLabelValues(string(id)).Inc()
}

// QueueRetry records a retry taken from the queue
func (pm *PrometheusMetrics) QueueRetry(id ComponentID) {
	pm.queueRetries.WithLabelValues(string(id)).Inc()
}

// BackoffDuration records an error backoff delay
func (pm *PrometheusMetrics) BackoffDuration(id ComponentID, duration time.Duration) {
	pm.backoffDuration.WithLabelValues(string(id)).Observe(duration.Seconds())
}

// Registry exposes the registry for promhttp handler setup
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

var _ Metrics = (*PrometheusMetrics)(nil)
