// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/auditrun/internal/log"
	"github.com/ManuGH/auditrun/internal/pipeline/hub"
	"github.com/ManuGH/auditrun/internal/pipeline/model"
)

// handleEvents streams a session's events as server-sent events. Every record
// is one "data:" line holding a JSON event, followed by a blank line. The
// first record is always the synthetic connected event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	logger := log.WithContext(log.ContextWithSessionID(r.Context(), id), s.logger)

	sub, err := s.events.Subscribe(id)
	if err != nil {
		var dup *hub.DuplicateSessionError
		switch {
		case errors.Is(err, hub.ErrSessionNotFound):
			// Unknown or expired: an already closed stream, not an error.
			writeStreamHeaders(w)
			w.WriteHeader(http.StatusOK)
			_ = http.NewResponseController(w).Flush()
		case errors.As(err, &dup):
			writeProblem(w, r, http.StatusConflict, "pipeline/already_observed", "Conflict", "ALREADY_OBSERVED",
				"another client is already observing this session", nil)
		default:
			writeProblem(w, r, http.StatusServiceUnavailable, "system/unavailable", "Service Unavailable",
				"HUB_UNAVAILABLE", err.Error(), nil)
		}
		return
	}

	completed := false
	defer func() {
		if completed {
			return
		}
		// Observer went away before the session ended.
		s.events.Unsubscribe(id, sub)
		s.sessions.Disconnected(id)
		logger.Info().Str(log.FieldEvent, "stream.detached").Msg("event stream observer disconnected")
	}()

	writeStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	if err := writeEvent(w, model.ConnectedEvent(sub.Total())); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	var keepAlive <-chan time.Time
	if s.cfg.SSEKeepAlive > 0 {
		t := time.NewTicker(s.cfg.SSEKeepAlive)
		defer t.Stop()
		keepAlive = t.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, ok := <-sub.C():
			if !ok {
				completed = true
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeStreamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func writeEvent(w io.Writer, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(data)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, data...)
	buf = append(buf, '\n', '\n')
	_, err = w.Write(buf)
	return err
}
