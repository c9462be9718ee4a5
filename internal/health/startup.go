// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ManuGH/auditrun/internal/log"
)

// PerformStartupChecks runs the readiness checks once before the servers
// start and fails when any of them is unhealthy.
func PerformStartupChecks(ctx context.Context, m *Manager) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	resp := m.Ready(ctx)

	names := make([]string, 0, len(resp.Checks))
	for name := range resp.Checks {
		names = append(names, name)
	}
	slices.Sort(names)

	var failed []string
	for _, name := range names {
		result := resp.Checks[name]
		switch result.Status {
		case StatusUnhealthy:
			logger.Error().
				Str("check", name).
				Str("error", result.Error).
				Str("detail", result.Message).
				Msg("✗ startup check failed")
			failed = append(failed, name)
		case StatusDegraded:
			logger.Warn().Str("check", name).Str("detail", result.Message).Msg("! startup check degraded")
		default:
			logger.Debug().Str("check", name).Str("detail", result.Message).Msg("✓ startup check passed")
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("startup checks failed: %s", strings.Join(failed, ", "))
	}
	logger.Info().Int("checks", len(names)).Msg("✅ All startup checks passed")
	return nil
}
