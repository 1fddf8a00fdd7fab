package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vulntor/attackq/pkg/config"
	"github.com/vulntor/attackq/pkg/server/api"
	v1 "github.com/vulntor/attackq/pkg/server/api/v1"
)

// NewRouter creates and configures the main HTTP router.
//
// Health endpoints are always enabled for liveness/readiness checks. The
// Prometheus endpoint is mounted when cfg.MetricsEnabled is set and a
// metrics handler is given.
func NewRouter(cfg config.ServerConfig, deps *api.Deps, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// Health endpoints (always enabled)
	r.Get("/healthz", HealthzHandler)
	r.Get("/readyz", v1.ReadyzHandler(deps))

	if cfg.MetricsEnabled && metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	if deps.Jobs != nil && deps.Storage != nil {
		r.Mount("/api/v1", v1.Routes(deps))
	}

	return r
}

// HealthzHandler responds with 200 OK if the server process is alive.
// This endpoint is used by load balancers and orchestrators for liveness checks.
//
// It does not check dependencies (database, scheduler) - just process health.
// For readiness, use /readyz instead.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
