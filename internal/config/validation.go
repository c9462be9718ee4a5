// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ManuGH/auditrun/internal/pipeline/stages"
	"github.com/ManuGH/auditrun/internal/validate"
)

// Validate reports every invalid field of cfg at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.LogLevel("LogLevel", cfg.LogLevel)
	v.OneOf("LogFormat", cfg.LogFormat, []string{"json", "console"})

	v.ListenAddr("API.ListenAddr", cfg.API.ListenAddr)
	if cfg.API.MetricsAddr != "" {
		v.ListenAddr("API.MetricsAddr", cfg.API.MetricsAddr)
	}
	v.NonNegativeDuration("API.SSEKeepAlive", cfg.API.SSEKeepAlive)
	v.NonNegative("API.StartRateLimit", cfg.API.StartRateLimit)
	if cfg.API.StartRateLimit > 0 && cfg.API.StartRateWindow <= 0 {
		v.Addf("API.StartRateWindow", cfg.API.StartRateWindow, "must be positive when a start rate limit is set")
	}
	v.Range("API.SubscriberBuffer", cfg.API.SubscriberBuffer, 1, 65536)
	v.NonNegativeDuration("API.ReadHeaderTimeout", cfg.API.ReadHeaderTimeout)
	v.NonNegativeDuration("API.ShutdownTimeout", cfg.API.ShutdownTimeout)

	v.NonNegativeDuration("Pipeline.CloseGrace", cfg.Pipeline.CloseGrace)
	v.NonNegativeDuration("Pipeline.StartDelay", cfg.Pipeline.StartDelay)
	v.NonNegativeDuration("Pipeline.TaskTimeout", cfg.Pipeline.TaskTimeout)
	v.NonNegativeDuration("Pipeline.KillGrace", cfg.Pipeline.KillGrace)
	v.Positive("Pipeline.StdoutTail", cfg.Pipeline.StdoutTail)
	v.Positive("Pipeline.StderrTail", cfg.Pipeline.StderrTail)

	if cfg.Tasks.WorkDir != "" {
		v.Directory("Tasks.WorkDir", cfg.Tasks.WorkDir)
	}
	known := stages.TaskNames()
	for _, task := range slices.Sorted(maps.Keys(cfg.Tasks.Commands)) {
		if !slices.Contains(known, task) {
			v.Addf("Tasks.Commands", task, "unknown task %q", task)
			continue
		}
		v.Argv(fmt.Sprintf("Tasks.Commands[%s]", task), cfg.Tasks.Commands[task])
	}
	if len(cfg.Tasks.Commands) < len(known) {
		v.Argv("Tasks.Interpreter", cfg.Tasks.Interpreter)
		v.NotEmpty("Tasks.ScriptsDir", cfg.Tasks.ScriptsDir)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate)
	}

	return v.Err()
}
