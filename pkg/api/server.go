package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/pulse/pkg/analytics"
	"github.com/platinummonkey/pulse/pkg/auth"
	"github.com/platinummonkey/pulse/pkg/middleware"
	"github.com/platinummonkey/pulse/pkg/observability"
	"github.com/platinummonkey/pulse/pkg/storage"
	"github.com/platinummonkey/pulse/pkg/tokencache"
)

// ServerOptions carries the dependencies the API server wires together
type ServerOptions struct {
	Users     storage.UserStore
	Events    storage.EventStore
	Issuer    *auth.Issuer
	Cache     *tokencache.Cache
	Analytics *analytics.Service

	AuthMiddleware *middleware.AuthMiddleware
	// RateLimit is optional; nil disables request throttling
	RateLimit *middleware.RateLimitMiddleware

	Metrics *observability.Metrics
	Logger  *observability.Logger
}

// Server represents our API server
type Server struct {
	router        *mux.Router
	authHandlers  *AuthHandlers
	eventHandlers *EventHandlers
	statsHandlers *StatsHandlers
}

// NewServer creates a new API server
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		authHandlers:  NewAuthHandlers(opts.Users, opts.Issuer, opts.Cache, opts.Metrics, opts.Logger),
		eventHandlers: NewEventHandlers(opts.Events, opts.Metrics, opts.Logger),
		statsHandlers: NewStatsHandlers(opts.Analytics, opts.Metrics, opts.Logger),
	}

	s.router.Use(middleware.RequestID(opts.Logger))

	limit := func(next http.Handler) http.Handler { return next }
	if opts.RateLimit != nil {
		limit = opts.RateLimit.Handler
	}

	s.authHandlers.RegisterRoutes(s.router, opts.AuthMiddleware, limit)
	s.eventHandlers.RegisterRoutes(s.router, limit)
	s.statsHandlers.RegisterRoutes(s.router, opts.AuthMiddleware, limit)

	return s
}

// Router exposes the underlying mux so callers can attach middleware
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
