// SPDX-License-Identifier: MIT

// Package health answers liveness and readiness checks. The daemon is ready
// when the session service still accepts work and every task a pipeline may
// invoke can be started.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/auditrun/internal/log"
)

// Status is the outcome of one check or of all checks together.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// worse returns the more severe of a and b.
func worse(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

const (
	defaultCheckTimeout = 2 * time.Second
	checkParallelism    = 4
)

// CheckResult is what a Checker reports.
type CheckResult struct {
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    int64                  `json:"uptimeSeconds"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the /readyz body.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is one named check. Check must honour ctx.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Option configures a Manager.
type Option func(*Manager)

// WithCheckTimeout bounds every single check.
func WithCheckTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.checkTimeout = d
		}
	}
}

// Manager runs the registered checkers.
type Manager struct {
	version      string
	startedAt    time.Time
	checkTimeout time.Duration

	mu       sync.RWMutex
	checkers []Checker
}

// NewManager creates a Manager reporting version.
func NewManager(version string, opts ...Option) *Manager {
	m := &Manager{
		version:      version,
		startedAt:    time.Now(),
		checkTimeout: defaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterChecker adds c. Names should be unique; a later checker with the
// same name shadows the earlier one in responses.
func (m *Manager) RegisterChecker(c Checker) {
	m.mu.Lock()
	m.checkers = append(m.checkers, c)
	m.mu.Unlock()
}

// run executes all checkers in parallel, each under its own timeout, and
// returns the worst status with the per-check results.
func (m *Manager) run(ctx context.Context) (Status, map[string]CheckResult) {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()
	if len(checkers) == 0 {
		return StatusHealthy, nil
	}

	results := make([]CheckResult, len(checkers))
	var g errgroup.Group
	g.SetLimit(checkParallelism)
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = m.checkOne(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	byName := make(map[string]CheckResult, len(checkers))
	for i, c := range checkers {
		byName[c.Name()] = results[i]
		overall = worse(overall, results[i].Status)
	}
	return overall, byName
}

func (m *Manager) checkOne(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	start := time.Now()
	res := c.Check(ctx)
	if res.Status == "" {
		res.Status = StatusUnhealthy
	}
	if err := ctx.Err(); err != nil && res.Status == StatusHealthy {
		res = CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	res.LatencyMS = time.Since(start).Milliseconds()
	return res
}

// Health is the liveness view. The process is alive whenever it can answer;
// checks only run in verbose mode and never change the HTTP status.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Uptime:    int64(time.Since(m.startedAt).Seconds()),
		Timestamp: time.Now(),
	}
	if verbose {
		resp.Status, resp.Checks = m.run(ctx)
	}
	return resp
}

// Ready is the readiness view. Degraded checks still count as ready.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	status, checks := m.run(ctx)
	return ReadinessResponse{
		Ready:     status != StatusUnhealthy,
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// ServeHealth answers /healthz, always with 200.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	resp := m.Health(r.Context(), r.URL.Query().Get("verbose") == "true")
	writeJSON(w, r, http.StatusOK, resp)
}

// ServeReady answers /readyz with 200 or 503.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
		logger := log.WithComponentFromContext(r.Context(), "health")
		logger.Warn().
			Str(log.FieldEvent, "readiness.failed").
			Str("status", string(resp.Status)).
			Msg("not ready")
	}
	writeJSON(w, r, code, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "health")
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "health.encode_failed").
			Msg("failed to encode health response")
	}
}

// FileChecker verifies that a task script exists and is a regular file.
// An empty script is degraded: it starts, but does nothing useful.
type FileChecker struct {
	name string
	path string
}

// NewFileChecker checks path under the given name.
func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{name: name, path: path}
}

func (c *FileChecker) Name() string { return c.name }

func (c *FileChecker) Check(_ context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusUnhealthy, Error: "no path configured"}
	}
	info, err := os.Stat(c.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return CheckResult{Status: StatusUnhealthy, Error: "file not found", Message: c.path}
	case err != nil:
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	case !info.Mode().IsRegular():
		return CheckResult{Status: StatusUnhealthy, Error: "not a regular file", Message: c.path}
	case info.Size() == 0:
		return CheckResult{Status: StatusDegraded, Message: "file is empty: " + c.path}
	}
	return CheckResult{Status: StatusHealthy, Message: c.path}
}
