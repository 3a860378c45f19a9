package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geoflow/geoflow/core/infrastructure/logging"
	"github.com/geoflow/geoflow/core/infrastructure/transport/http/dto"
	"github.com/geoflow/geoflow/core/infrastructure/transport/http/handlers"
	"github.com/geoflow/geoflow/core/infrastructure/transport/http/middleware"
)

const requestTimeout = 30 * time.Second

// RegisterRoutes registers all HTTP routes
func RegisterRoutes(
	r chi.Router,
	api handlers.WorkflowAPI,
	events EventSource,
	version string,
	shutdownCtx context.Context,
) {
	log := logging.New("routes")
	log.Infof("Registering HTTP routes")

	h := handlers.NewWorkflowHandler(api)
	var routes []string

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(requestTimeout))
			r.With(middleware.RequireJSON).Post("/sessions", h.SubmitQuery)
			r.With(middleware.RequireJSON).Patch("/sessions/{sessionID}/steps/{stepID}", h.EditStep)
			r.With(middleware.RequireJSON).Post("/layers/{layerID}/click", h.ClickLayer)
			r.Get("/sessions", h.ListSessions)
			r.Get("/sessions/{sessionID}", h.GetSession)
			r.Post("/sessions/{sessionID}/steps/{stepID}/execute", h.ExecuteStep)
			r.Post("/sessions/{sessionID}/execute", h.ExecuteWorkflow)
			r.Get("/layers", h.ListLayers)
			r.Get("/map", h.Map)
			r.Get("/templates", h.Templates)
		})
		// No timeout: the stream lives as long as the client
		r.Get("/events", handleEvents(events, shutdownCtx))
	})
	routes = append(routes,
		"POST /api/sessions",
		"GET /api/sessions",
		"GET /api/sessions/{sessionID}",
		"PATCH /api/sessions/{sessionID}/steps/{stepID}",
		"POST /api/sessions/{sessionID}/steps/{stepID}/execute",
		"POST /api/sessions/{sessionID}/execute",
		"GET /api/layers",
		"POST /api/layers/{layerID}/click",
		"GET /api/map",
		"GET /api/templates",
		"GET /api/events (server-sent events)",
	)

	// Heartbeat endpoint for health checks
	r.Get("/heartbeat", handleHeartbeat(version))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs", handleDocs(api, version))
	routes = append(routes, "GET /heartbeat", "GET /metrics", "GET /docs")

	log.Infof("Routes registered: %d", len(routes))
	for _, route := range routes {
		log.Debugf("  %s", route)
	}
}

func handleHeartbeat(version string) http.HandlerFunc {
	base := handlers.NewBaseHandler("heartbeat")
	return func(w http.ResponseWriter, r *http.Request) {
		base.WriteSuccess(w, dto.HealthResponse{Success: true, Version: version})
	}
}
