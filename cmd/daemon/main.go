// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/auditrun/internal/config"
	"github.com/ManuGH/auditrun/internal/daemon"
	"github.com/ManuGH/auditrun/internal/health"
	xglog "github.com/ManuGH/auditrun/internal/log"
	"github.com/ManuGH/auditrun/internal/telemetry"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "config" {
		os.Exit(runConfigCLI(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "auditrun",
		Version: version,
	})

	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		effectiveConfigPath = resolveDefaultConfigPath()
	}

	// Load configuration with precedence: ENV > File > Defaults
	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "auditrun",
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")

	if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectiveConfigPath).
			Strs("env_overrides", loader.AppliedEnv()).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Strs("env_overrides", loader.AppliedEnv()).
			Msg("loaded configuration from environment and defaults")
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "auditrun",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		Exporter:       cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "telemetry.init_failed").
			Msg("failed to initialize tracing")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.API.ListenAddr).
		Msg("starting auditrun")

	logger.Info().Msgf("→ Tasks: %s %s", strings.Join(cfg.Tasks.Interpreter, " "), cfg.Tasks.ScriptsDir)
	if len(cfg.Tasks.Commands) > 0 {
		logger.Info().Msgf("→ Command overrides: %d", len(cfg.Tasks.Commands))
	}
	if cfg.Pipeline.TaskTimeout > 0 {
		logger.Info().Msgf("→ Task timeout: %s", cfg.Pipeline.TaskTimeout)
	}
	if cfg.Pipeline.CancelOnDisconnect {
		logger.Info().Msg("→ Runs are canceled when their observer disconnects")
	}
	if cfg.Telemetry.Enabled {
		logger.Info().Msgf("→ Tracing: %s %s", cfg.Telemetry.Exporter, cfg.Telemetry.Endpoint)
	}

	rt := buildRuntime(cfg, logger)

	// Pre-flight Checks (Fail Fast)
	if err := health.PerformStartupChecks(ctx, rt.health); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("Startup checks failed. Please verify the interpreter and task scripts.")
	}

	mgr, err := daemon.NewManager(daemon.ServerConfig{
		ListenAddr:        cfg.API.ListenAddr,
		MetricsAddr:       cfg.API.MetricsAddr,
		ReadHeaderTimeout: cfg.API.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.API.ShutdownTimeout,
	}, daemon.Deps{
		Logger:         logger,
		APIHandler:     rt.server.Handler(),
		MetricsHandler: rt.metrics,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.creation.failed").
			Msg("failed to create daemon manager")
	}

	// Ending the runs closes their event streams, which lets the API server
	// drain instead of waiting out the shutdown timeout.
	mgr.RegisterDrainHook("sessions", rt.sessions.Shutdown)
	mgr.RegisterDrainHook("hub", func(context.Context) error {
		rt.hub.Shutdown()
		return nil
	})
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)

	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.failed").
			Msg("daemon manager failed")
	}

	logger.Info().Msg("server exiting")
}
