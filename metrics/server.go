// Package metrics exposes Prometheus collectors for the registry host and
// the provider agent, and a standalone HTTP server serving them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves /metrics for a dedicated Prometheus registry.
type MetricsServer struct {
	namespace string
	registry  *prometheus.Registry
	srv       *http.Server
}

// New creates a metrics server listening on addr. Collectors are namespaced
// with namespace. An empty addr still yields a usable registry; the server
// is simply never started.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace})); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &MetricsServer{
		namespace: namespace,
		registry:  registry,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Namespace returns the prefix applied to every collector.
func (m *MetricsServer) Namespace() string {
	return m.namespace
}

// Registerer returns the registry collectors should be registered with.
func (m *MetricsServer) Registerer() prometheus.Registerer {
	return m.registry
}

// Gatherer returns the registry for inspection, mostly in tests.
func (m *MetricsServer) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
