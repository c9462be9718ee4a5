// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes pipeline sessions over HTTP: start, progress stream,
// status, cancel and discovery endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/auditrun/internal/api/middleware"
	"github.com/ManuGH/auditrun/internal/health"
	"github.com/ManuGH/auditrun/internal/log"
	"github.com/ManuGH/auditrun/internal/pipeline/hub"
	"github.com/ManuGH/auditrun/internal/pipeline/model"
	"github.com/ManuGH/auditrun/internal/pipeline/stages"
)

// Sessions starts and controls pipeline runs.
type Sessions interface {
	Start(ctx context.Context, req model.StartRequest) (string, error)
	Cancel(sessionID string) bool
	Disconnected(sessionID string)
}

// Events is the observer side of the event hub.
type Events interface {
	Subscribe(sessionID string) (*hub.Subscriber, error)
	Unsubscribe(sessionID string, sub *hub.Subscriber)
	Last(sessionID string) (model.Event, bool)
}

// Config configures the HTTP surface.
type Config struct {
	Version         string
	SSEKeepAlive    time.Duration
	StartRateLimit  int
	StartRateWindow time.Duration
	// ServeMetrics mounts /metrics on this router. Disable it when metrics
	// have their own listener.
	ServeMetrics   bool
	TracingService string
	Stages         stages.Options
	// Health backs /healthz and /readyz. Nil gets a manager without checks.
	Health *health.Manager
}

// Server holds the HTTP handlers.
type Server struct {
	sessions Sessions
	events   Events
	cfg      Config
	health   *health.Manager
	logger   zerolog.Logger
}

// New creates a Server.
func New(sessions Sessions, events Events, cfg Config) *Server {
	hm := cfg.Health
	if hm == nil {
		hm = health.NewManager(cfg.Version)
	}
	return &Server{
		sessions: sessions,
		events:   events,
		cfg:      cfg,
		health:   hm,
		logger:   log.WithComponent("api"),
	}
}

// Handler returns the routed HTTP handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		TracingService: s.cfg.TracingService,
		QuietPaths:     []string{"/healthz", "/readyz", "/metrics"},
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	if s.cfg.ServeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sites", s.handleSites)
		r.With(middleware.RateLimit(middleware.RateLimitConfig{
			RequestLimit: s.cfg.StartRateLimit,
			WindowSize:   s.cfg.StartRateWindow,
		})).Post("/pipelines", s.handleStart)
		r.Get("/pipelines/{sessionID}", s.handleStatus)
		r.Delete("/pipelines/{sessionID}", s.handleCancel)
		r.Get("/pipelines/{sessionID}/events", s.handleEvents)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "system/not_found", "Not Found", "NOT_FOUND", "no such route", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "system/method_not_allowed", "Method Not Allowed",
			"METHOD_NOT_ALLOWED", r.Method+" is not supported on this route", nil)
	})
	return r
}

// MetricsHandler serves Prometheus metrics on a dedicated listener.
func MetricsHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
