// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutableChecker(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "task")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o700))
	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, []byte("data"), 0o600))

	tests := []struct {
		name string
		bin  string
		want Status
	}{
		{name: "absolute executable", bin: script, want: StatusHealthy},
		{name: "not executable", bin: plain, want: StatusUnhealthy},
		{name: "missing", bin: filepath.Join(dir, "nope"), want: StatusUnhealthy},
		{name: "not on path", bin: "auditrun-no-such-binary", want: StatusUnhealthy},
		{name: "empty", bin: "", want: StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewExecutableChecker("interpreter", tt.bin)
			assert.Equal(t, "interpreter", c.Name())
			assert.Equal(t, tt.want, c.Check(context.Background()).Status)
		})
	}
}

func TestFuncChecker(t *testing.T) {
	accepting := true
	c := NewFuncChecker("sessions", func(context.Context) CheckResult {
		if accepting {
			return CheckResult{Status: StatusHealthy}
		}
		return CheckResult{Status: StatusUnhealthy, Message: "shutting down"}
	})

	assert.Equal(t, "sessions", c.Name())
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
	accepting = false
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
}

func TestPerformStartupChecks(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(&mockChecker{name: "interpreter", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "script:zepto_scraper", status: StatusDegraded, message: "file is empty"})
	require.NoError(t, PerformStartupChecks(context.Background(), m))

	m.RegisterChecker(&mockChecker{name: "script:blinkit_scraper", status: StatusUnhealthy, err: "file not found"})
	m.RegisterChecker(&mockChecker{name: "script:amazon", status: StatusUnhealthy, err: "file not found"})
	err := PerformStartupChecks(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script:amazon, script:blinkit_scraper")
}
