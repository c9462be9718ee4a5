// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "slices"

// FileConfig renders the effective configuration in file form, so that
// writing it out and loading it again yields the same AppConfig.
func (c AppConfig) FileConfig() FileConfig {
	rateLimit := c.API.StartRateLimit
	buffer := c.API.SubscriberBuffer
	cancelOnDisconnect := c.Pipeline.CancelOnDisconnect
	stdoutTail := c.Pipeline.StdoutTail
	stderrTail := c.Pipeline.StderrTail
	headless := c.Tasks.Headless
	telemetryEnabled := c.Telemetry.Enabled
	samplingRate := c.Telemetry.SamplingRate

	var commands map[string][]string
	if len(c.Tasks.Commands) > 0 {
		commands = make(map[string][]string, len(c.Tasks.Commands))
		for task, argv := range c.Tasks.Commands {
			commands[task] = slices.Clone(argv)
		}
	}

	return FileConfig{
		LogLevel:  c.LogLevel,
		LogFormat: c.LogFormat,
		API: FileAPIConfig{
			ListenAddr:        c.API.ListenAddr,
			MetricsAddr:       c.API.MetricsAddr,
			SSEKeepAlive:      c.API.SSEKeepAlive.String(),
			StartRateLimit:    &rateLimit,
			StartRateWindow:   c.API.StartRateWindow.String(),
			SubscriberBuffer:  &buffer,
			ReadHeaderTimeout: c.API.ReadHeaderTimeout.String(),
			ShutdownTimeout:   c.API.ShutdownTimeout.String(),
		},
		Pipeline: FilePipelineConfig{
			CloseGrace:         c.Pipeline.CloseGrace.String(),
			StartDelay:         c.Pipeline.StartDelay.String(),
			TaskTimeout:        c.Pipeline.TaskTimeout.String(),
			KillGrace:          c.Pipeline.KillGrace.String(),
			CancelOnDisconnect: &cancelOnDisconnect,
			StdoutTail:         &stdoutTail,
			StderrTail:         &stderrTail,
		},
		Tasks: FileTasksConfig{
			Interpreter: slices.Clone(c.Tasks.Interpreter),
			ScriptsDir:  c.Tasks.ScriptsDir,
			WorkDir:     c.Tasks.WorkDir,
			Headless:    &headless,
			Commands:    commands,
		},
		Telemetry: FileTelemetryConfig{
			Enabled:      &telemetryEnabled,
			Exporter:     c.Telemetry.Exporter,
			Endpoint:     c.Telemetry.Endpoint,
			Environment:  c.Telemetry.Environment,
			SamplingRate: &samplingRate,
		},
	}
}
