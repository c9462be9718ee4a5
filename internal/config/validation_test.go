// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/auditrun/internal/pipeline/stages"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"defaults", func(*AppConfig) {}, ""},
		{"log level", func(c *AppConfig) { c.LogLevel = "loud" }, "LogLevel"},
		{"log format", func(c *AppConfig) { c.LogFormat = "xml" }, "LogFormat"},
		{"listen addr", func(c *AppConfig) { c.API.ListenAddr = "localhost" }, "API.ListenAddr"},
		{"negative grace", func(c *AppConfig) { c.Pipeline.CloseGrace = -1 }, "Pipeline.CloseGrace"},
		{"zero tail", func(c *AppConfig) { c.Pipeline.StderrTail = 0 }, "Pipeline.StderrTail"},
		{"rate window", func(c *AppConfig) { c.API.StartRateWindow = 0 }, "API.StartRateWindow"},
		{"missing work dir", func(c *AppConfig) { c.Tasks.WorkDir = "/definitely/not/here" }, "Tasks.WorkDir"},
		{"unknown task override", func(c *AppConfig) {
			c.Tasks.Commands = map[string][]string{"ocr": {"/bin/true"}}
		}, "unknown task"},
		{"empty task override", func(c *AppConfig) {
			c.Tasks.Commands = map[string][]string{stages.TaskTextExtractor: {}}
		}, "Tasks.Commands[text_extractor]"},
		{"empty interpreter", func(c *AppConfig) { c.Tasks.Interpreter = nil }, "Tasks.Interpreter"},
		{"telemetry exporter", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, "Telemetry.Exporter"},
		{"sampling rate", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.SamplingRate = 2
		}, "Telemetry.SamplingRate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_InterpreterNotNeededWhenAllTasksOverridden(t *testing.T) {
	cfg := Defaults()
	cfg.Tasks.Interpreter = nil
	cfg.Tasks.Commands = map[string][]string{}
	for _, name := range stages.TaskNames() {
		cfg.Tasks.Commands[name] = []string{"/bin/true"}
	}
	assert.NoError(t, Validate(cfg))
}
