// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts external tasks in their own process group so the
// whole tree (interpreter, browser driver, helpers) can be stopped together.
package procgroup

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ManuGH/auditrun/internal/metrics"
)

// Terminate sends SIGTERM to the process group of cmd and escalates to
// SIGKILL if the group is still alive after grace. The returned stop function
// cancels a pending escalation and must be called once the process is reaped.
// Safe to call on nil or unstarted commands.
func Terminate(cmd *exec.Cmd, grace time.Duration) (stop func(), err error) {
	if cmd == nil || cmd.Process == nil {
		return func() {}, nil
	}

	err = Kill(cmd, syscall.SIGTERM)
	record("SIGTERM", err)
	if grace <= 0 {
		return func() {}, err
	}

	var once sync.Once
	timer := time.AfterFunc(grace, func() {
		once.Do(func() {
			record("SIGKILL", Kill(cmd, syscall.SIGKILL))
		})
	})
	return func() {
		timer.Stop()
		once.Do(func() {})
	}, err
}

func record(sig string, err error) {
	if err == nil {
		metrics.IncProcTerminate(sig, "sent")
		return
	}
	metrics.IncProcTerminate(sig, "error")
}
