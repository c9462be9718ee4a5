// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"

	"github.com/ManuGH/auditrun/internal/pipeline/runner"
)

// runnerAdapter exposes a *runner.Runner as a TaskStarter.
type runnerAdapter struct {
	runner *runner.Runner
}

// FromRunner adapts r to the TaskStarter interface.
func FromRunner(r *runner.Runner) TaskStarter {
	return runnerAdapter{runner: r}
}

// Start implements TaskStarter.
func (a runnerAdapter) Start(ctx context.Context, inv runner.Invocation) (Task, error) {
	p, err := a.runner.Start(ctx, inv)
	if err != nil {
		return nil, err
	}
	return p, nil
}
