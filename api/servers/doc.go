/*
Package servers runs the registry HTTP API.

Server mounts one or more route handlers (see handlers.Handler) behind the
request logging middleware and adds the operational endpoints:

	GET /livez     liveness probe
	GET /readyz    readiness probe, 503 while draining
	GET /drain     mark the server not ready ahead of a shutdown
	GET /undrain   mark the server ready again
	/debug/...     pprof, when EnablePprof is set

Prometheus metrics are served on a separate listener (MetricsAddr).

# Example Usage

	cfg := &api.HTTPServerConfig{
	    ListenAddr:               ":8080",
	    MetricsAddr:              ":8090",
	    Log:                      logger,
	    DrainDuration:            30 * time.Second,
	    GracefulShutdownDuration: 30 * time.Second,
	    ReadTimeout:              60 * time.Second,
	    WriteTimeout:             30 * time.Second,
	}

	server, err := servers.New(cfg, handler)
	if err != nil {
	    return err
	}
	server.RunInBackground()
	defer server.Shutdown()
*/
package servers
