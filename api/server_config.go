package api

import (
	"log/slog"
	"time"

	"github.com/ruteri/data-exchange-registry/metrics"
)

// HTTPServerConfig configures one listener of the registry server. The
// registry API and the unseal endpoint each get their own.
type HTTPServerConfig struct {
	// ListenAddr serves the mounted route registrars next to /livez,
	// /readyz, /drain and /undrain.
	ListenAddr string

	// MetricsAddr exposes the Prometheus registry with the registry
	// operation counters, durations and persist failures. Empty disables it.
	MetricsAddr string

	// Metrics lets several listeners share one metrics server. Nil makes
	// the server build its own on MetricsAddr.
	Metrics *metrics.MetricsServer

	// EnablePprof mounts /debug/pprof on ListenAddr.
	EnablePprof bool

	// Log receives the request log and lifecycle events.
	Log *slog.Logger

	// DrainDuration is the grace period after /drain during which /readyz
	// reports not ready while requests are still served.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds how long in-flight registry calls
	// may take to finish once shutdown starts.
	GracefulShutdownDuration time.Duration

	// ReadTimeout and WriteTimeout bound a single request. In signature
	// mode the body is read in full before authentication, so ReadTimeout
	// also caps slow uploads.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
