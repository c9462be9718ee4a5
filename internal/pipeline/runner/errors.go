// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package runner

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownTask is wrapped by SpawnError when no command is configured for a task.
var ErrUnknownTask = errors.New("unknown task")

// SpawnError reports that an external task could not be started at all
// (not found, permission denied, no command configured).
type SpawnError struct {
	Task string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start task %q: %v", e.Task, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// StageFailure reports a task that ran and did not succeed.
type StageFailure struct {
	Task     string
	ExitCode int
	Stderr   []string
	TimedOut bool
	Canceled bool
	Timeout  time.Duration
}

func (e *StageFailure) Error() string {
	var b strings.Builder
	switch {
	case e.Canceled:
		fmt.Fprintf(&b, "task %q canceled", e.Task)
	case e.TimedOut:
		fmt.Fprintf(&b, "task %q timed out after %s", e.Task, e.Timeout)
	default:
		fmt.Fprintf(&b, "task %q exited with code %d", e.Task, e.ExitCode)
	}
	if last := e.lastStderr(); last != "" {
		b.WriteString(": ")
		b.WriteString(last)
	}
	return b.String()
}

// Detail returns the captured standard error tail as one block of text.
func (e *StageFailure) Detail() string {
	return strings.Join(e.Stderr, "\n")
}

func (e *StageFailure) lastStderr() string {
	for i := len(e.Stderr) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(e.Stderr[i]); s != "" {
			return s
		}
	}
	return ""
}
