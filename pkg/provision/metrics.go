package provision

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the sink for provisioning instrumentation
type Metrics interface {
	// EnvironmentCreated records a successful environment build
	EnvironmentCreated(component string, duration time.Duration)

	// EnvironmentSkipped records an idempotent no-op
	EnvironmentSkipped(component string)

	// EnvironmentFailed records a failed create or install phase
	EnvironmentFailed(component, phase string)
}

type noopMetrics struct{}

func (noopMetrics) EnvironmentCreated(component string, duration time.Duration) {}
func (noopMetrics) EnvironmentSkipped(component string)                         {}
func (noopMetrics) EnvironmentFailed(component, phase string)                   {}

// NewNoopMetrics returns a metrics sink that discards everything
func NewNoopMetrics() Metrics {
	return noopMetrics{}
}

// PrometheusMetrics implements Metrics on a caller-supplied registry
type PrometheusMetrics struct {
	created  *prometheus.HistogramVec
	skipped  *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewPrometheusMetrics registers provisioning metrics on reg
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "provision"
	}

	pm := &PrometheusMetrics{
		created: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "environment_create_duration_seconds",
				Help:      "Duration of environment create + install",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"component"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "environment_skipped_total",
				Help:      "Provisioning runs skipped because the environment existed",
			},
			[]string{"component"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "environment_failures_total",
				Help:      "Provisioning failures by phase",
			},
			[]string{"component", "phase"},
		),
	}

	reg.MustRegister(pm.created, pm.skipped, pm.failures)

	return pm
}

// EnvironmentCreated records a successful environment build
func (pm *PrometheusMetrics) EnvironmentCreated(component string, duration time.Duration) {
	pm.created.WithLabelValues(component).Observe(duration.Seconds())
}

// EnvironmentSkipped records an idempotent no-op
func (pm *PrometheusMetrics) EnvironmentSkipped(component string) {
	pm.skipped.WithLabelValues(component).Inc()
}

// EnvironmentFailed records a failed create or install phase
func (pm *PrometheusMetrics) EnvironmentFailed(component, phase string) {
	pm.failures.WithLabelValues(component, phase).Inc()
}

var _ Metrics = (*PrometheusMetrics)(nil)
