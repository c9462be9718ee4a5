// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "fmt"

// Session tracks one pipeline run. It is owned by the goroutine executing the
// run and is never shared; observers only ever see Event copies.
type Session struct {
	ID      string
	Step    int
	Total   int
	Status  Status
	Message string
	Detail  string
}

// NewSession returns a pending session.
func NewSession(id string, total int) *Session {
	return &Session{ID: id, Total: total, Status: StatusPending}
}

// Advance moves the session to step with a running status.
func (s *Session) Advance(step int, message string) (Event, error) {
	if s.Status.IsTerminal() {
		return Event{}, ErrAlreadyTerminal
	}
	if step < s.Step {
		return Event{}, fmt.Errorf("%w: %d -> %d", ErrStepRegression, s.Step, step)
	}
	s.Step = step
	s.Status = StatusRunning
	s.Message = message
	s.Detail = ""
	return s.Event(), nil
}

// Progress records a detail line at the current step.
func (s *Session) Progress(detail string) (Event, error) {
	if s.Status.IsTerminal() {
		return Event{}, ErrAlreadyTerminal
	}
	s.Detail = detail
	return s.Event(), nil
}

// Finish moves the session to a terminal status. A session finishes once.
func (s *Session) Finish(status Status, step int, message, detail string) (Event, error) {
	if !status.IsTerminal() {
		return Event{}, fmt.Errorf("status %q is not terminal", status)
	}
	if s.Status.IsTerminal() {
		return Event{}, ErrAlreadyTerminal
	}
	if step < s.Step {
		return Event{}, fmt.Errorf("%w: %d -> %d", ErrStepRegression, s.Step, step)
	}
	s.Step = step
	s.Status = status
	s.Message = message
	s.Detail = detail
	return s.Event(), nil
}

// Event returns an immutable snapshot of the session.
func (s *Session) Event() Event {
	status := s.Status
	if status == StatusPending {
		status = StatusRunning
	}
	return Event{
		Step:    s.Step,
		Total:   s.Total,
		Message: s.Message,
		Status:  status,
		Detail:  s.Detail,
	}
}
