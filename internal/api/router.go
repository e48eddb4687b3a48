// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

// Package api assembles the HTTP surface: router, middleware stack, and
// server lifecycle.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/veliq/timegrid/internal/api/handlers"
	"github.com/veliq/timegrid/internal/api/middleware"
)

// RouterConfig contains configuration for setting up routes.
type RouterConfig struct {
	// JWTSecret is the secret for JWT token validation.
	JWTSecret string

	// CORSConfig is the CORS configuration.
	CORSConfig middleware.CORSConfig

	// RateLimitPerMinute is the rate limit for API requests.
	RateLimitPerMinute int

	// RequestTimeout is the timeout for HTTP requests.
	RequestTimeout time.Duration

	// Logger for request logging.
	Logger middleware.RequestLogger

	// EnableDebugLogging enables verbose request logging.
	EnableDebugLogging bool

	// APIKeyAuth is an optional authenticator for API key-based authentication.
	APIKeyAuth middleware.APIKeyAuthenticator
}

// DefaultRouterConfig returns a default router configuration.
func DefaultRouterConfig(jwtSecret string) RouterConfig {
	return RouterConfig{
		JWTSecret:          jwtSecret,
		CORSConfig:         middleware.DefaultCORSConfig(),
		RateLimitPerMinute: 100,
		RequestTimeout:     30 * time.Second,
		EnableDebugLogging: false,
	}
}

// Handlers contains all API handlers.
// All fields are optional - if nil, the corresponding routes won't be mounted.
type Handlers struct {
	System   *handlers.SystemHandler
	Calendar *handlers.CalendarHandler
}

// NewRouter creates a new chi router with all routes configured.
func NewRouter(config RouterConfig, h *Handlers) chi.Router {
	r := chi.NewRouter()

	// =========================================================================
	// Global Middleware (applied to all routes)
	// =========================================================================

	// Request ID (must be first)
	r.Use(middleware.RequestID)

	// Real IP extraction from proxy headers
	r.Use(middleware.RealIP)

	// Request logging
	if config.Logger != nil {
		if config.EnableDebugLogging {
			r.Use(middleware.DebugLogging(config.Logger))
		} else {
			r.Use(middleware.SimpleLogging(config.Logger))
		}
	}

	// Panic recovery
	r.Use(middleware.Recovery(middleware.RecoveryConfig{
		Logger:     config.Logger,
		PrintStack: true,
	}))

	// CORS
	r.Use(middleware.CORS(config.CORSConfig))

	// =========================================================================
	// Health Check Routes (no auth required)
	// =========================================================================

	if h.System != nil {
		r.Get("/health", h.System.Health)
		r.Get("/healthz", h.System.Liveness)
		r.Get("/ready", h.System.Readiness)
	}

	// =========================================================================
	// API Routes
	// =========================================================================

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.RequestTimeout))

		// -----------------------------------------------------------------
		// Public routes (no authentication)
		// -----------------------------------------------------------------
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthRateLimit())

			if h.System != nil {
				r.Get("/system/version", h.System.Version)
			}
		})

		// -----------------------------------------------------------------
		// Authenticated routes
		// -----------------------------------------------------------------
		r.Group(func(r chi.Router) {
			// JWT + API Key Authentication
			r.Use(middleware.Auth(middleware.AuthConfig{
				Secret:      config.JWTSecret,
				TokenLookup: "header:Authorization,query:token,cookie:auth_token",
				APIKeyAuth:  config.APIKeyAuth,
			}))

			// Standard API rate limiting
			r.Use(middleware.RateLimitByUser(rateLimit(config), time.Minute))

			if h.System != nil {
				r.Route("/system", func(r chi.Router) {
					r.Get("/info", h.System.Info)
					r.Get("/health", h.System.Health)
					r.Get("/metrics", h.System.Metrics)
				})
			}

			if h.Calendar != nil {
				r.Mount("/calendar", h.Calendar.Routes())
			}
		})
	})

	return r
}

func rateLimit(config RouterConfig) int {
	if config.RateLimitPerMinute > 0 {
		return config.RateLimitPerMinute
	}
	return 100
}
