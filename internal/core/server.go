// Package core provides the API chassis for the ListBridge service. It creates
// a chi router and enforces cross-cutting concerns -- panic recovery, request
// correlation, security headers, logging, and error handling -- before requests
// reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"listbridge/internal/config"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
// It must exceed the outbound call timeout so a webhook delivery can finish
// its dispatch loop before the inbound context is cancelled.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in request
// logs to prevent accidental leakage of credentials. Stripe-Signature is
// redacted because a logged header plus payload would let anyone replay the
// delivery within the timestamp window.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Stripe-Signature",
	"Cookie",
}

// Server encapsulates the shared dependencies of the ListBridge API, allowing
// for easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// HealthProbes are the registered subsystem checks for GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are invoked under /v1 when routes are mounted. The
	// indirection avoids import cycles between core and handler packages.
	V1RouteRegistrars []func(chi.Router)

	// RootRouteRegistrars are invoked at the router root. The webhook ingress
	// uses this because its public path is fixed by existing Stripe endpoint
	// configurations and does not live under /v1.
	RootRouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer initializes the chassis and prepares the server for route
// mounting. It performs a fail-fast check on critical dependencies.
//
// The caller is responsible for appending route registrars and calling
// MountRoutes after construction. This separation allows tests to customize
// route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes defines the top-level routing hierarchy: the global middleware
// chain, the versioned API group, and the health check.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	for _, registrar := range s.RootRouteRegistrars {
		registrar(s.router)
	}

	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering Rationale:
//  1. Recoverer       - Catches panics; outermost to catch all failures.
//  2. ContextTimeout  - Sets a soft deadline on every request.
//  3. RequestID       - Generates/propagates correlation ID for tracing.
//  4. SecurityHeaders - Ensures all responses include security headers.
//  5. RequestLogger   - Structured logging (redacted headers).
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
}

// Shutdown performs a graceful termination of server resources. Database
// pools are owned by the entry point and closed there; this hook exists so
// future resources acquired by the chassis have a release point.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown complete")
	return nil
}
