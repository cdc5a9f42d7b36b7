package http

import (
	"net/http"

	"github.com/atinyakov/learnpath/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler of the remote plan store.
//
// Routes:
//
//	GET    /healthz                 liveness probe
//	GET    /api/public/{token}      publicHandler.Get         (rate limited)
//	GET    /api/plans?owner=        planHandler.List          (bearer auth)
//	POST   /api/plans               planHandler.Create        (bearer auth)
//	PUT    /api/plans/{id}          planHandler.Update        (bearer auth)
//	DELETE /api/plans/{id}          planHandler.Delete        (bearer auth)
//	GET    /api/completions?owner=  planHandler.Completions   (bearer auth)
//	PUT    /api/completions         planHandler.UpsertCompletion (bearer auth)
//	POST   /api/upgrade             upgradeHandler.Upgrade    (bearer auth)
func NewRouter(
	planHandler *PlanHandler,
	publicHandler *PublicHandler,
	upgradeHandler *UpgradeHandler,
	secret string,
	limiter *middleware.RateLimiter,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Only allow request bodies with Content-Type: application/json
	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.With(limiter.Middleware).Get("/public/{token}", publicHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(secret))

			r.Get("/plans", planHandler.List)
			r.Post("/plans", planHandler.Create)
			r.Put("/plans/{id}", planHandler.Update)
			r.Delete("/plans/{id}", planHandler.Delete)

			r.Get("/completions", planHandler.Completions)
			r.Put("/completions", planHandler.UpsertCompletion)

			r.Post("/upgrade", upgradeHandler.Upgrade)
		})
	})

	return r
}
