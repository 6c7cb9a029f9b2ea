package app

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"salesforecast/internal/middleware"
	handlers "salesforecast/internal/transport/http"
	ws "salesforecast/internal/websocket"
)

// setupRouter builds the route tree. Ordering: RequestID, RealIP, OTel,
// logger, recoverer, then the API-only middleware. /ws and /metrics sit
// outside the API group so no timeout or rate limit applies to them.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.NewOTelMiddleware(a.OTelProviders, a.Metrics).Handler)
	r.Use(middleware.StructuredLogger(a.Logger))
	r.Use(middleware.Recoverer(a.ErrorHandler))

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	r.Get("/ws", ws.Handler(a.WebSocketHub, a.Logger))
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.CORS(a.corsConfig()))
		if rl := a.Config.Security.RateLimit; rl.Enabled {
			r.Use(middleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
		}

		r.Get("/", handlers.ServeDashboard(a.Config.Paths.WebDir, AppName))
		a.setupAPIRoutes(r)
	})

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	validator := middleware.NewValidator(a.Config.Server.MaxBodyBytes, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.Timeout(a.requestTimeout()))

		handlers.NewHealthHandler(a.Services.Health, a.Logger).Routes(r)
		handlers.NewDataHandler(a.Services.Data, a.Logger, a.ErrorHandler).Routes(r)
		handlers.NewPredictionHandler(a.Services.Prediction, validator, a.Logger, a.ErrorHandler).Routes(r)
		handlers.NewPipelineHandler(a.Services.Pipeline, a.Logger, a.ErrorHandler).Routes(r)
	})
}
