package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProviderMetrics tracks the provider agent. A nil *ProviderMetrics is
// valid and records nothing.
type ProviderMetrics struct {
	polls     prometheus.Counter
	fetches   *prometheus.CounterVec
	submitted *prometheus.CounterVec
}

// NewProviderMetrics creates and registers the provider collectors.
func NewProviderMetrics(namespace string, reg prometheus.Registerer) *ProviderMetrics {
	m := &ProviderMetrics{
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_polls_total",
			Help:      "Completed polls of the registry request list.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fetches_total",
			Help:      "Resource fetches by outcome.",
		}, []string{"outcome"}),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_submissions_total",
			Help:      "Responses submitted to the registry by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.polls, m.fetches, m.submitted)
	return m
}

func (m *ProviderMetrics) Polled() {
	if m == nil {
		return
	}
	m.polls.Inc()
}

func (m *ProviderMetrics) Fetched(err error) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(Outcome(err)).Inc()
}

func (m *ProviderMetrics) Submitted(err error) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(Outcome(err)).Inc()
}
