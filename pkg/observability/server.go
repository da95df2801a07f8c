package observability

import "net/http"

// Register mounts the health and metrics endpoints on mux, served from the
// process-wide checker returned by InitHealthChecker.
func Register(mux *http.ServeMux) {
	hc := InitHealthChecker()
	mux.HandleFunc("GET /health", HealthHandler(hc))
	mux.HandleFunc("GET /health/live", LivenessHandler())
	mux.HandleFunc("GET /health/ready", ReadinessHandler(hc))
	mux.Handle("GET /metrics", MetricsHandler())
}
