// Package api exposes the airspace state and routing engine over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aviaro/skygraph/internal/airspace"
	"github.com/aviaro/skygraph/internal/config"
	"github.com/aviaro/skygraph/internal/routing"
	"github.com/aviaro/skygraph/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(as *airspace.Service, finder *routing.Finder, cfg *config.Config, log *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(as, finder, cfg.Routing, log),
		middleware: NewMiddleware(log),
		config:     cfg,
		logger:     log.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	if r.config.Server.CORSEnabled {
		router.Use(r.middleware.CORS)
	}

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Airspace entity updates
		router.Put("/airspace/vertiports", r.handler.ReplaceVertiports)
		router.Put("/airspace/waypoints", r.handler.ReplaceWaypoints)
		router.Put("/airspace/no-fly-zones", r.handler.ReplaceNoFlyZones)
		router.Post("/airspace/aircraft", r.handler.UpdateAircraftPositions)

		// Lookups
		router.Get("/airspace/nodes/nearest", r.handler.NearestNode)

		// Flight paths
		router.Put("/flights/{flightID}/path", r.handler.UpdateFlightPath)
		router.Post("/flights/search", r.handler.SearchFlights)

		// Routing
		router.Post("/routes/best-path", r.handler.BestPath)
	})

	// Probes
	router.Get("/ready", r.handler.GetReady)
	router.Get("/health", r.handler.GetHealth)

	return router
}
