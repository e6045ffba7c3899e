package api

import (
	"net/http"

	"churnpipe/internal/health"
	"churnpipe/internal/observability"
	"churnpipe/internal/pipeline"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Manager       *pipeline.Manager
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates the HTTP router with all routes and middleware
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Manager, cfg.HealthChecker)
	mux := http.NewServeMux()

	// Health endpoints are unauthenticated so orchestration probes work
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Run API
	auth := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/runs", auth(http.HandlerFunc(handler.CreateRun)))
	mux.Handle("GET /v1/runs", auth(http.HandlerFunc(handler.ListRuns)))
	mux.Handle("GET /v1/runs/{runId}", auth(http.HandlerFunc(handler.GetRun)))
	mux.Handle("DELETE /v1/runs/{runId}", auth(http.HandlerFunc(handler.DeleteRun)))
	mux.Handle("POST /v1/runs/{runId}/upload", auth(http.HandlerFunc(handler.Upload)))
	mux.Handle("POST /v1/runs/{runId}/retry", auth(http.HandlerFunc(handler.Retry)))
	mux.Handle("POST /v1/runs/{runId}/analyze", auth(http.HandlerFunc(handler.Analyze)))
	mux.Handle("GET /v1/runs/{runId}/batches", auth(http.HandlerFunc(handler.Batches)))
	mux.Handle("GET /v1/runs/{runId}/predictions", auth(http.HandlerFunc(handler.Predictions)))

	// Apply global middleware (innermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware(h)
	h = CORSMiddleware(h)
	h = MetricsMiddleware(cfg.Metrics)(h)
	h = LoggingMiddleware(h)
	h = RecoveryMiddleware(h)

	return h
}
