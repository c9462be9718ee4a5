// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"time"
)

// mergeFileConfig overlays src onto dst.
func (l *Loader) mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.LogFormat != "" {
		dst.LogFormat = src.LogFormat
	}
	if err := l.mergeFileAPI(dst, src); err != nil {
		return err
	}
	if err := l.mergeFilePipeline(dst, src); err != nil {
		return err
	}
	l.mergeFileTasks(dst, src)
	l.mergeFileTelemetry(dst, src)
	return nil
}

func (l *Loader) mergeFileAPI(dst *AppConfig, src *FileConfig) error {
	a := src.API
	if a.ListenAddr != "" {
		dst.API.ListenAddr = a.ListenAddr
	}
	if a.MetricsAddr != "" {
		dst.API.MetricsAddr = a.MetricsAddr
	}
	if a.StartRateLimit != nil {
		dst.API.StartRateLimit = *a.StartRateLimit
	}
	if a.SubscriberBuffer != nil {
		dst.API.SubscriberBuffer = *a.SubscriberBuffer
	}
	return mergeDurations(map[string]durationField{
		"api.sseKeepAlive":      {a.SSEKeepAlive, &dst.API.SSEKeepAlive},
		"api.startRateWindow":   {a.StartRateWindow, &dst.API.StartRateWindow},
		"api.readHeaderTimeout": {a.ReadHeaderTimeout, &dst.API.ReadHeaderTimeout},
		"api.shutdownTimeout":   {a.ShutdownTimeout, &dst.API.ShutdownTimeout},
	})
}

func (l *Loader) mergeFilePipeline(dst *AppConfig, src *FileConfig) error {
	p := src.Pipeline
	if p.CancelOnDisconnect != nil {
		dst.Pipeline.CancelOnDisconnect = *p.CancelOnDisconnect
	}
	if p.StdoutTail != nil {
		dst.Pipeline.StdoutTail = *p.StdoutTail
	}
	if p.StderrTail != nil {
		dst.Pipeline.StderrTail = *p.StderrTail
	}
	return mergeDurations(map[string]durationField{
		"pipeline.closeGrace":  {p.CloseGrace, &dst.Pipeline.CloseGrace},
		"pipeline.startDelay":  {p.StartDelay, &dst.Pipeline.StartDelay},
		"pipeline.taskTimeout": {p.TaskTimeout, &dst.Pipeline.TaskTimeout},
		"pipeline.killGrace":   {p.KillGrace, &dst.Pipeline.KillGrace},
	})
}

func (l *Loader) mergeFileTasks(dst *AppConfig, src *FileConfig) {
	t := src.Tasks
	if len(t.Interpreter) > 0 {
		dst.Tasks.Interpreter = t.Interpreter
	}
	if t.ScriptsDir != "" {
		dst.Tasks.ScriptsDir = os.ExpandEnv(t.ScriptsDir)
	}
	if t.WorkDir != "" {
		dst.Tasks.WorkDir = os.ExpandEnv(t.WorkDir)
	}
	if t.Headless != nil {
		dst.Tasks.Headless = *t.Headless
	}
	if len(t.Commands) > 0 {
		dst.Tasks.Commands = make(map[string][]string, len(t.Commands))
		for task, argv := range t.Commands {
			dst.Tasks.Commands[task] = append([]string(nil), argv...)
		}
	}
}

func (l *Loader) mergeFileTelemetry(dst *AppConfig, src *FileConfig) {
	t := src.Telemetry
	if t.Enabled != nil {
		dst.Telemetry.Enabled = *t.Enabled
	}
	if t.Exporter != "" {
		dst.Telemetry.Exporter = t.Exporter
	}
	if t.Endpoint != "" {
		dst.Telemetry.Endpoint = t.Endpoint
	}
	if t.Environment != "" {
		dst.Telemetry.Environment = t.Environment
	}
	if t.SamplingRate != nil {
		dst.Telemetry.SamplingRate = *t.SamplingRate
	}
}

type durationField struct {
	raw string
	dst *time.Duration
}

func mergeDurations(fields map[string]durationField) error {
	for key, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", key, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// mergeEnvConfig applies AUDITRUN_* overrides.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	// LOG_LEVEL is honoured as a fallback alias for containers that set it globally.
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogLevel = l.envString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = l.envString(EnvPrefix+"LOG_FORMAT", cfg.LogFormat)

	cfg.API.ListenAddr = l.envString(EnvPrefix+"LISTEN", cfg.API.ListenAddr)
	cfg.API.MetricsAddr = l.envString(EnvPrefix+"METRICS_LISTEN", cfg.API.MetricsAddr)
	cfg.API.SSEKeepAlive = l.envDuration(EnvPrefix+"SSE_KEEPALIVE", cfg.API.SSEKeepAlive)
	cfg.API.StartRateLimit = l.envInt(EnvPrefix+"START_RATE_LIMIT", cfg.API.StartRateLimit)
	cfg.API.StartRateWindow = l.envDuration(EnvPrefix+"START_RATE_WINDOW", cfg.API.StartRateWindow)
	cfg.API.SubscriberBuffer = l.envInt(EnvPrefix+"SUBSCRIBER_BUFFER", cfg.API.SubscriberBuffer)
	cfg.API.ReadHeaderTimeout = l.envDuration(EnvPrefix+"READ_HEADER_TIMEOUT", cfg.API.ReadHeaderTimeout)
	cfg.API.ShutdownTimeout = l.envDuration(EnvPrefix+"SHUTDOWN_TIMEOUT", cfg.API.ShutdownTimeout)

	cfg.Pipeline.CloseGrace = l.envDuration(EnvPrefix+"CLOSE_GRACE", cfg.Pipeline.CloseGrace)
	cfg.Pipeline.StartDelay = l.envDuration(EnvPrefix+"START_DELAY", cfg.Pipeline.StartDelay)
	cfg.Pipeline.TaskTimeout = l.envDuration(EnvPrefix+"TASK_TIMEOUT", cfg.Pipeline.TaskTimeout)
	cfg.Pipeline.KillGrace = l.envDuration(EnvPrefix+"KILL_GRACE", cfg.Pipeline.KillGrace)
	cfg.Pipeline.CancelOnDisconnect = l.envBool(EnvPrefix+"CANCEL_ON_DISCONNECT", cfg.Pipeline.CancelOnDisconnect)
	cfg.Pipeline.StdoutTail = l.envInt(EnvPrefix+"STDOUT_TAIL", cfg.Pipeline.StdoutTail)
	cfg.Pipeline.StderrTail = l.envInt(EnvPrefix+"STDERR_TAIL", cfg.Pipeline.StderrTail)

	cfg.Tasks.Interpreter = l.envFields(EnvPrefix+"TASK_INTERPRETER", cfg.Tasks.Interpreter)
	cfg.Tasks.ScriptsDir = l.envString(EnvPrefix+"SCRIPTS_DIR", cfg.Tasks.ScriptsDir)
	cfg.Tasks.WorkDir = l.envString(EnvPrefix+"WORK_DIR", cfg.Tasks.WorkDir)
	cfg.Tasks.Headless = l.envBool(EnvPrefix+"HEADLESS", cfg.Tasks.Headless)

	cfg.Telemetry.Enabled = l.envBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvPrefix+"TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvPrefix+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Environment = l.envString(EnvPrefix+"TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
