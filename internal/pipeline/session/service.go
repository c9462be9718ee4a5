// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session is the entry point of the pipeline: it validates start
// requests, allocates session ids and runs the orchestrator in the background.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/auditrun/internal/log"
	"github.com/ManuGH/auditrun/internal/metrics"
	"github.com/ManuGH/auditrun/internal/pipeline/hub"
	"github.com/ManuGH/auditrun/internal/pipeline/model"
	"github.com/ManuGH/auditrun/internal/pipeline/stages"
)

const maxIDAttempts = 3

var (
	// ErrShuttingDown is returned by Start once Shutdown has begun.
	ErrShuttingDown = errors.New("session service is shutting down")
	// ErrIDExhausted means no unique session id could be allocated.
	ErrIDExhausted = errors.New("could not allocate a unique session id")
)

// Registry is the part of the event hub the service needs.
type Registry interface {
	Register(sessionID string, total int) error
	Publish(sessionID string, ev model.Event)
	Close(sessionID string)
	Last(sessionID string) (model.Event, bool)
}

// Executor runs one pipeline session to completion.
type Executor interface {
	Execute(ctx context.Context, sessionID string, req model.Request) error
}

// Options configure a Service.
type Options struct {
	// CancelOnDisconnect stops a run when its observer goes away. Off by
	// default: a disconnect only detaches the observer.
	CancelOnDisconnect bool
	// NewID overrides session id generation (tests).
	NewID  func() string
	Logger *zerolog.Logger
}

// Run is the handle of an in-flight session.
type Run struct {
	ID        string
	Site      model.Site
	StartedAt time.Time
	Done      chan struct{}
	cancel    context.CancelFunc
}

// Service starts and tracks pipeline sessions.
type Service struct {
	registry Registry
	executor Executor
	opts     Options
	logger   zerolog.Logger

	mu       sync.Mutex
	runs     map[string]*Run
	stopping bool
	wg       sync.WaitGroup
}

// NewService creates a Service.
func NewService(registry Registry, executor Executor, opts Options) *Service {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	logger := log.WithComponent("session")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Service{
		registry: registry,
		executor: executor,
		opts:     opts,
		logger:   logger,
		runs:     make(map[string]*Run),
	}
}

// Start validates sr, registers a new session and launches its run without
// waiting for it. A *model.ValidationError means no session was created.
func (s *Service) Start(ctx context.Context, sr model.StartRequest) (string, error) {
	req, err := sr.Validate()
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				metrics.IncValidationReject(f.Field)
			}
		}
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return "", ErrShuttingDown
	}

	id, err := s.allocateLocked()
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := &Run{
		ID:        id,
		Site:      req.Site,
		StartedAt: time.Now(),
		Done:      make(chan struct{}),
		cancel:    cancel,
	}
	s.runs[id] = run
	s.wg.Add(1)

	metrics.IncSessionStarted(string(req.Site))
	metrics.SessionsActive.Inc()
	s.logger.Info().
		Str(log.FieldSessionID, id).
		Str(log.FieldRequestID, log.RequestIDFromContext(ctx)).
		Str(log.FieldSite, string(req.Site)).
		Str(log.FieldEvent, "session.started").
		Msg("session accepted")

	go s.execute(runCtx, run, req)
	return id, nil
}

// allocateLocked draws a fresh id and registers it with the hub. A collision
// is reported by the hub as a DuplicateSessionError and the id is redrawn.
func (s *Service) allocateLocked() (string, error) {
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id := s.opts.NewID()
		err := s.registry.Register(id, stages.Total)
		if err == nil {
			return id, nil
		}
		var dup *hub.DuplicateSessionError
		if !errors.As(err, &dup) {
			return "", fmt.Errorf("register session: %w", err)
		}
		s.logger.Warn().
			Str(log.FieldSessionID, id).
			Int("attempt", attempt).
			Str(log.FieldEvent, "session.id_collision").
			Msg("session id collision, drawing a new one")
	}
	return "", ErrIDExhausted
}

func (s *Service) execute(ctx context.Context, run *Run, req model.Request) {
	status := model.StatusCompleted
	defer func() {
		if rec := recover(); rec != nil {
			buf := make([]byte, 8192)
			n := runtime.Stack(buf, false)
			s.logger.Error().
				Str(log.FieldSessionID, run.ID).
				Str(log.FieldEvent, "panic.recovered").
				Interface("panic_value", rec).
				Str("stack_trace", string(buf[:n])).
				Msg("pipeline run panicked")
			s.abort(run.ID, fmt.Sprintf("panic: %v", rec))
			status = model.StatusError
		}

		run.cancel()
		close(run.Done)

		s.mu.Lock()
		delete(s.runs, run.ID)
		s.mu.Unlock()

		metrics.SessionsActive.Dec()
		metrics.IncSessionFinished(string(run.Site), string(status))
		s.logger.Info().
			Str(log.FieldSessionID, run.ID).
			Str(log.FieldEvent, "session.finished").
			Str("status", string(status)).
			Dur("duration", time.Since(run.StartedAt)).
			Msg("session finished")
		s.wg.Done()
	}()

	if err := s.executor.Execute(ctx, run.ID, req); err != nil {
		status = model.StatusError
		s.logger.Debug().Err(err).Str(log.FieldSessionID, run.ID).Msg("pipeline run ended with error")
		s.abort(run.ID, err.Error())
	}
}

// abort publishes a best-effort error event unless the session already
// reached a terminal status.
func (s *Service) abort(sessionID, detail string) {
	last, ok := s.registry.Last(sessionID)
	if !ok || last.IsTerminal() {
		return
	}
	step := last.Step
	s.registry.Publish(sessionID, model.Event{
		Step:    step,
		Total:   stages.Total,
		Message: "Pipeline aborted",
		Status:  model.StatusError,
		Detail:  detail,
	})
	s.registry.Close(sessionID)
}

// Cancel stops the run of a session. It reports false for unknown or finished
// sessions.
func (s *Service) Cancel(sessionID string) bool {
	s.mu.Lock()
	run, ok := s.runs[sessionID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.logger.Info().Str(log.FieldSessionID, sessionID).Str(log.FieldEvent, "session.cancel").Msg("canceling run")
	run.cancel()
	return true
}

// Disconnected is called when the observer of a session goes away.
func (s *Service) Disconnected(sessionID string) {
	if s.opts.CancelOnDisconnect {
		s.Cancel(sessionID)
	}
}

// Get returns the handle of an in-flight session.
func (s *Service) Get(sessionID string) (*Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[sessionID]
	return run, ok
}

// Running returns the number of in-flight sessions.
func (s *Service) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Accepting reports whether Start still admits new sessions.
func (s *Service) Accepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopping
}

// Shutdown rejects new sessions, cancels every in-flight run and waits for
// them until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.logger.Info().Int("count", len(s.runs)).Msg("canceling in-flight sessions")
	for _, run := range s.runs {
		run.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions: %w", ctx.Err())
	}
}
