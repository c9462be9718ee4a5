// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func captureCLI(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	prevOut, prevErr := stdout, stderr
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = prevOut, prevErr })
	return &out, &errOut
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigValidate(t *testing.T) {
	t.Setenv(configPathEnv, "")

	tests := []struct {
		name     string
		args     func(t *testing.T) []string
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing file flag",
			args:     func(*testing.T) []string { return nil },
			wantCode: 2,
			wantErr:  "--file is required",
		},
		{
			name: "valid file",
			args: func(t *testing.T) []string {
				return []string{"-f", writeFile(t, "logLevel: debug\n")}
			},
			wantCode: 0,
		},
		{
			name: "unknown key",
			args: func(t *testing.T) []string {
				return []string{"--file", writeFile(t, "pipeline:\n  graceClose: 1s\n")}
			},
			wantCode: 1,
			wantErr:  "Configuration error",
		},
		{
			name: "invalid value",
			args: func(t *testing.T) []string {
				return []string{"--file", writeFile(t, "api:\n  subscriberBuffer: 0\n")}
			},
			wantCode: 1,
			wantErr:  "SubscriberBuffer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut := captureCLI(t)
			code := runConfigCLI(append([]string{"validate"}, tt.args(t)...))
			assert.Equal(t, tt.wantCode, code)
			if tt.wantErr != "" {
				assert.Contains(t, errOut.String(), tt.wantErr)
			}
		})
	}
}

func TestConfigValidate_UsesEnvPath(t *testing.T) {
	t.Setenv(configPathEnv, writeFile(t, "logFormat: console\n"))
	out, _ := captureCLI(t)
	assert.Equal(t, 0, runConfigCLI([]string{"validate"}))
	assert.Contains(t, out.String(), "is valid")
}

func TestConfigDump(t *testing.T) {
	t.Setenv(configPathEnv, "")
	path := writeFile(t, "api:\n  listenAddr: \"127.0.0.1:9000\"\npipeline:\n  taskTimeout: 10m\n")

	out, _ := captureCLI(t)
	require.Equal(t, 0, runConfigCLI([]string{"dump", "-f", path}))
	var dumped map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &dumped))
	assert.Equal(t, "127.0.0.1:9000", dumped["api"].(map[string]any)["listenAddr"])
	assert.Equal(t, "10m0s", dumped["pipeline"].(map[string]any)["taskTimeout"])

	out, _ = captureCLI(t)
	require.Equal(t, 0, runConfigCLI([]string{"dump", "-f", path, "--format=json"}))
	var asJSON map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &asJSON))
	assert.Equal(t, "127.0.0.1:9000", asJSON["api"].(map[string]any)["listenAddr"])
}

func TestConfigCLI_Usage(t *testing.T) {
	_, errOut := captureCLI(t)
	assert.Equal(t, 0, runConfigCLI(nil))
	assert.Contains(t, errOut.String(), "auditrun config validate")

	_, errOut = captureCLI(t)
	assert.Equal(t, 2, runConfigCLI([]string{"migrate"}))
	assert.Contains(t, errOut.String(), "Unknown subcommand: migrate")

	_, _ = captureCLI(t)
	assert.Equal(t, 2, runConfigCLI([]string{"dump", "--format=toml"}))
}
