// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for auditrun.
package config

import "time"

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	Version   string
	LogLevel  string
	LogFormat string

	API       APIConfig
	Pipeline  PipelineConfig
	Tasks     TasksConfig
	Telemetry TelemetryConfig
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	ListenAddr        string
	MetricsAddr       string // empty serves /metrics on ListenAddr
	SSEKeepAlive      time.Duration
	StartRateLimit    int // start requests per client per StartRateWindow, 0 disables
	StartRateWindow   time.Duration
	SubscriberBuffer  int
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// PipelineConfig configures session execution.
type PipelineConfig struct {
	CloseGrace         time.Duration
	StartDelay         time.Duration
	TaskTimeout        time.Duration // 0 = no limit
	KillGrace          time.Duration
	CancelOnDisconnect bool
	StdoutTail         int
	StderrTail         int
}

// TasksConfig describes how task names map to executables.
type TasksConfig struct {
	Interpreter []string
	ScriptsDir  string
	WorkDir     string
	Headless    bool
	Commands    map[string][]string
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	Environment  string
	SamplingRate float64
}

// FileConfig is the YAML representation. Pointers distinguish "unset" from
// zero values; durations are Go duration strings.
type FileConfig struct {
	LogLevel  string `yaml:"logLevel,omitempty" json:"logLevel,omitempty"`
	LogFormat string `yaml:"logFormat,omitempty" json:"logFormat,omitempty"`

	API       FileAPIConfig       `yaml:"api,omitempty" json:"api,omitempty"`
	Pipeline  FilePipelineConfig  `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`
	Tasks     FileTasksConfig     `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Telemetry FileTelemetryConfig `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
}

type FileAPIConfig struct {
	ListenAddr        string `yaml:"listenAddr,omitempty" json:"listenAddr,omitempty"`
	MetricsAddr       string `yaml:"metricsAddr,omitempty" json:"metricsAddr,omitempty"`
	SSEKeepAlive      string `yaml:"sseKeepAlive,omitempty" json:"sseKeepAlive,omitempty"`
	StartRateLimit    *int   `yaml:"startRateLimit,omitempty" json:"startRateLimit,omitempty"`
	StartRateWindow   string `yaml:"startRateWindow,omitempty" json:"startRateWindow,omitempty"`
	SubscriberBuffer  *int   `yaml:"subscriberBuffer,omitempty" json:"subscriberBuffer,omitempty"`
	ReadHeaderTimeout string `yaml:"readHeaderTimeout,omitempty" json:"readHeaderTimeout,omitempty"`
	ShutdownTimeout   string `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
}

type FilePipelineConfig struct {
	CloseGrace         string `yaml:"closeGrace,omitempty" json:"closeGrace,omitempty"`
	StartDelay         string `yaml:"startDelay,omitempty" json:"startDelay,omitempty"`
	TaskTimeout        string `yaml:"taskTimeout,omitempty" json:"taskTimeout,omitempty"`
	KillGrace          string `yaml:"killGrace,omitempty" json:"killGrace,omitempty"`
	CancelOnDisconnect *bool  `yaml:"cancelOnDisconnect,omitempty" json:"cancelOnDisconnect,omitempty"`
	StdoutTail         *int   `yaml:"stdoutTail,omitempty" json:"stdoutTail,omitempty"`
	StderrTail         *int   `yaml:"stderrTail,omitempty" json:"stderrTail,omitempty"`
}

type FileTasksConfig struct {
	Interpreter []string            `yaml:"interpreter,omitempty" json:"interpreter,omitempty"`
	ScriptsDir  string              `yaml:"scriptsDir,omitempty" json:"scriptsDir,omitempty"`
	WorkDir     string              `yaml:"workDir,omitempty" json:"workDir,omitempty"`
	Headless    *bool               `yaml:"headless,omitempty" json:"headless,omitempty"`
	Commands    map[string][]string `yaml:"commands,omitempty" json:"commands,omitempty"`
}

type FileTelemetryConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty" json:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Environment  string   `yaml:"environment,omitempty" json:"environment,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:  "info",
		LogFormat: "json",
		API: APIConfig{
			ListenAddr:        ":8080",
			SSEKeepAlive:      15 * time.Second,
			StartRateLimit:    10,
			StartRateWindow:   time.Minute,
			SubscriberBuffer:  256,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Pipeline: PipelineConfig{
			CloseGrace: 2 * time.Second,
			StartDelay: 500 * time.Millisecond,
			KillGrace:  5 * time.Second,
			StdoutTail: 200,
			StderrTail: 100,
		},
		Tasks: TasksConfig{
			Interpreter: []string{"python3", "-u"},
			ScriptsDir:  "scripts",
			Headless:    true,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			Environment:  "production",
			SamplingRate: 1.0,
		},
	}
}
