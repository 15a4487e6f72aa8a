// Package rest exposes the referral network over HTTP.
package rest

import (
	"context"
	"net/http"

	"referralnet-backend/application/commands/bus"
	querybus "referralnet-backend/application/queries/bus"
	"referralnet-backend/interfaces/http/rest/handlers"
	"referralnet-backend/interfaces/http/rest/middleware"
	"referralnet-backend/pkg/auth"
	"referralnet-backend/pkg/common"
	apperrors "referralnet-backend/pkg/errors"
	"referralnet-backend/pkg/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig carries the router's dependencies
type RouterConfig struct {
	CommandBus   *bus.CommandBus
	QueryBus     *querybus.QueryBus
	Validator    *auth.JWTValidator
	ErrorHandler *apperrors.ErrorHandler
	Metrics      *observability.Collector
	// Ready reports whether the store can take traffic; nil means always ready
	Ready          func(ctx context.Context) error
	AllowedOrigins []string
	EnableCORS     bool
	EnableMetrics  bool
	Logger         *zap.Logger
}

// Router creates and configures the HTTP router
type Router struct {
	config RouterConfig
}

// NewRouter creates a new router instance
func NewRouter(config RouterConfig) *Router {
	return &Router{config: config}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	cfg := rt.config
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(cfg.ErrorHandler.Middleware)
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.EnableMetrics && cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
	}

	if cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if cfg.EnableMetrics && cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	networkHandler := handlers.NewNetworkHandler(cfg.CommandBus, cfg.QueryBus, cfg.ErrorHandler, cfg.Logger)
	leadHandler := handlers.NewLeadHandler(cfg.CommandBus, cfg.ErrorHandler, cfg.Logger)
	admin := middleware.RequireRole(auth.RoleAdmin)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.Validator, cfg.Logger))

		r.Route("/network", func(r chi.Router) {
			r.Get("/forest", networkHandler.GetForest)
			r.Get("/integrity", networkHandler.GetIntegrity)

			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Put("/agents/{agentID}/parent", networkHandler.ReparentAgent)
				r.Post("/repairs/orphans", networkHandler.RepairOrphans)
				r.Post("/repairs/normalize-parents", networkHandler.NormalizeParents)
			})
		})

		r.Get("/agents/{agentID}/upline", networkHandler.GetUpline)

		r.Route("/leads", func(r chi.Router) {
			r.Use(admin)
			r.Post("/{leadID}/attribution", leadHandler.AttributeLead)
			r.Post("/assignments", leadHandler.AssignLeads)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck reports whether the store is accepting calls
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	if rt.config.Ready != nil {
		if err := rt.config.Ready(r.Context()); err != nil {
			rt.config.ErrorHandler.Handle(w, r, err)
			return
		}
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
