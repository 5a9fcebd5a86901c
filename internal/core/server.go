// Package core provides the API chassis for the road-risk service. It builds
// the chi router and enforces the cross-cutting concerns -- panic recovery,
// request correlation, logging, CORS, and metrics -- before requests reach
// the domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"roadrisk/internal/config"
	"roadrisk/internal/observability"
)

// RouteRegistrar mounts a group of domain routes onto the /v1 namespace.
// The indirection keeps core free of handler imports.
type RouteRegistrar func(r chi.Router)

// Server bundles the chassis dependencies and the router they are mounted on.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.Collector

	// V1RouteRegistrars are populated by the application entry point before
	// MountRoutes is called.
	V1RouteRegistrars []RouteRegistrar

	// HealthProbes are checked by GET /health.
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer constructs the chassis. Routes are mounted separately via
// MountRoutes so tests can customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger, metrics *observability.Collector) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		router:  chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server-held resources. The HTTP listener itself is owned
// and drained by the entry point.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown complete")
	return nil
}
