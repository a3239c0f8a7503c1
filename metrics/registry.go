package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/data-exchange-registry/interfaces"
)

// Operation outcomes used as the "outcome" label.
const (
	OutcomeOK                 = "ok"
	OutcomeUnauthorized       = "unauthorized"
	OutcomeAlreadyInitialized = "already_initialized"
	OutcomeNotInitialized     = "not_initialized"
	OutcomeError              = "error"
)

// RegistryMetrics tracks registry operations. A nil *RegistryMetrics is
// valid and records nothing.
type RegistryMetrics struct {
	operations      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	persistFailures prometheus.Counter
	requests        prometheus.Gauge
	responses       prometheus.Gauge
}

// NewRegistryMetrics creates and registers the registry collectors.
func NewRegistryMetrics(namespace string, reg prometheus.Registerer) *RegistryMetrics {
	m := &RegistryMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_operations_total",
			Help:      "Registry operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registry_operation_duration_seconds",
			Help:      "Registry operation latency including persistence.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_persist_failures_total",
			Help:      "Mutations rolled back because the snapshot could not be saved.",
		}),
		requests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_requests",
			Help:      "Number of stored requests.",
		}),
		responses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_responses",
			Help:      "Number of stored responses.",
		}),
	}

	reg.MustRegister(m.operations, m.duration, m.persistFailures, m.requests, m.responses)
	return m
}

// ObserveOperation records one call of op.
func (m *RegistryMetrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, Outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *RegistryMetrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// SetSizes updates the stored request and response gauges.
func (m *RegistryMetrics) SetSizes(requests, responses int) {
	if m == nil {
		return
	}
	m.requests.Set(float64(requests))
	m.responses.Set(float64(responses))
}

// Outcome classifies an operation error into a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, interfaces.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, interfaces.ErrAlreadyInitialized):
		return OutcomeAlreadyInitialized
	case errors.Is(err, interfaces.ErrNotInitialized):
		return OutcomeNotInitialized
	default:
		return OutcomeError
	}
}
