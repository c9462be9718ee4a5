// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"net/http"

	"github.com/ManuGH/auditrun/internal/api"
	"github.com/ManuGH/auditrun/internal/config"
	"github.com/ManuGH/auditrun/internal/health"
	"github.com/ManuGH/auditrun/internal/pipeline/hub"
	"github.com/ManuGH/auditrun/internal/pipeline/orchestrator"
	"github.com/ManuGH/auditrun/internal/pipeline/runner"
	"github.com/ManuGH/auditrun/internal/pipeline/session"
	"github.com/ManuGH/auditrun/internal/pipeline/stages"
	"github.com/rs/zerolog"
)

// runtime is the wired pipeline plus its HTTP surface.
type runtime struct {
	hub      *hub.Hub
	sessions *session.Service
	server   *api.Server
	health   *health.Manager
	metrics  http.Handler // nil when /metrics is served by the API router
}

func buildRuntime(cfg config.AppConfig, logger zerolog.Logger) *runtime {
	stageOpts := stages.Options{Headless: cfg.Tasks.Headless}

	h := hub.New(cfg.Pipeline.CloseGrace,
		hub.WithBuffer(cfg.API.SubscriberBuffer),
		hub.WithLogger(logger.With().Str("component", "hub").Logger()),
	)
	r := runner.New(cfg.Tasks, cfg.RunnerOptions())
	orch := orchestrator.New(h, orchestrator.FromRunner(r), orchestrator.Options{
		Stages:     stageOpts,
		StartDelay: cfg.Pipeline.StartDelay,
	})
	svc := session.NewService(h, orch, session.Options{
		CancelOnDisconnect: cfg.Pipeline.CancelOnDisconnect,
	})
	hm := buildHealth(cfg, svc)
	srv := api.New(svc, h, api.Config{
		Version:         cfg.Version,
		SSEKeepAlive:    cfg.API.SSEKeepAlive,
		StartRateLimit:  cfg.API.StartRateLimit,
		StartRateWindow: cfg.API.StartRateWindow,
		ServeMetrics:    cfg.API.MetricsAddr == "",
		TracingService:  "auditrun",
		Stages:          stageOpts,
		Health:          hm,
	})
	rt := &runtime{hub: h, sessions: svc, server: srv, health: hm}
	if cfg.API.MetricsAddr != "" {
		rt.metrics = api.MetricsHandler()
	}
	return rt
}

// buildHealth registers one readiness check per task executable, plus the
// session service accepting work.
func buildHealth(cfg config.AppConfig, svc *session.Service) *health.Manager {
	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewFuncChecker("sessions", func(context.Context) health.CheckResult {
		if !svc.Accepting() {
			return health.CheckResult{Status: health.StatusUnhealthy, Message: "shutting down"}
		}
		return health.CheckResult{Status: health.StatusHealthy, Message: "accepting"}
	}))

	needsInterpreter := false
	for _, task := range stages.TaskNames() {
		if script, ok := cfg.Tasks.ScriptPath(task); ok {
			needsInterpreter = true
			hm.RegisterChecker(health.NewFileChecker("script:"+task, script))
			continue
		}
		argv, err := cfg.Tasks.Command(task)
		bin := ""
		if err == nil {
			bin = argv[0]
		}
		hm.RegisterChecker(health.NewExecutableChecker("command:"+task, bin))
	}
	if needsInterpreter {
		bin := ""
		if len(cfg.Tasks.Interpreter) > 0 {
			bin = cfg.Tasks.Interpreter[0]
		}
		hm.RegisterChecker(health.NewExecutableChecker("interpreter", bin))
	}
	return hm
}
