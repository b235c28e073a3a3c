package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles the HTTP surface for route registration.
type Handlers struct {
	Sync     *SyncHandler
	Logs     *LogsHandler
	Health   *HealthChecker
	Verifier TokenVerifier

	// AllowedOrigins for CORS; empty allows only same-origin tools.
	AllowedOrigins []string
}

// SetupRoutes builds the router. /health and /metrics are unauthenticated;
// everything under /api requires a bearer token.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := h.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health.Handle)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(h.Verifier))

		r.Get("/campaigns/sync", h.Sync.Sync)
		r.Get("/logs", h.Logs.List)
		r.Get("/logs/{ruleID}/detail", h.Logs.RuleDetail)
	})

	return r
}
