// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hub is the in-process registry of pipeline sessions and the single
// observer attached to each of them.
package hub

import (
	"sync"
	"time"

	"github.com/ManuGH/auditrun/internal/log"
	"github.com/ManuGH/auditrun/internal/metrics"
	"github.com/ManuGH/auditrun/internal/pipeline/model"
	"github.com/rs/zerolog"
)

const defaultBuffer = 256

// Hub maps session ids to their subscriber. All state lives behind one mutex;
// channel writes are non-blocking so a stalled observer never blocks a
// publisher, and under backpressure only detail events are lost.
type Hub struct {
	mu      sync.Mutex
	grace   time.Duration
	buffer  int
	entries map[string]*entry
	closed  bool
	logger  zerolog.Logger
}

type entry struct {
	total   int
	sub     *Subscriber
	last    model.Event
	hasLast bool
	closing bool
	timer   *time.Timer
	dropped int
}

// Option customises a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber event buffer.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// New creates a hub that keeps a finished session's stream open for grace
// before closing it.
func New(grace time.Duration, opts ...Option) *Hub {
	h := &Hub{
		grace:   grace,
		buffer:  defaultBuffer,
		entries: make(map[string]*entry),
		logger:  log.WithComponent("hub"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register creates the entry for a new session with a fixed step total.
func (h *Hub) Register(sessionID string, total int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if _, ok := h.entries[sessionID]; ok {
		return &DuplicateSessionError{SessionID: sessionID, Reason: "already registered"}
	}
	h.entries[sessionID] = &entry{total: total}
	metrics.HubSessions.Set(float64(len(h.entries)))
	return nil
}

// Subscribe attaches the observer of a session. The last event published so
// far, if any, is replayed into the new subscriber.
func (h *Hub) Subscribe(sessionID string) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	e, ok := h.entries[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if e.sub != nil {
		return nil, &DuplicateSessionError{SessionID: sessionID, Reason: "subscriber already attached"}
	}

	sub := newSubscriber(sessionID, e.total, h.buffer)
	if e.hasLast {
		sub.ch <- e.last
	}
	e.sub = sub
	metrics.HubSubscribers.Inc()
	return sub, nil
}

// Publish delivers ev to the session's subscriber. Unknown sessions and
// sessions without an observer drop the event silently. A slow observer only
// loses detail lines; step transitions and the terminal event are always
// queued. The subscriber is detached only when its sink has been closed.
func (h *Hub) Publish(sessionID string, ev model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[sessionID]
	if !ok {
		metrics.IncHubPublish("unobserved")
		return
	}
	e.last = ev
	e.hasLast = true
	if e.sub == nil {
		metrics.IncHubPublish("unobserved")
		return
	}

	if e.sub.closed {
		err := &DeliveryError{SessionID: sessionID, Reason: "subscriber closed"}
		metrics.IncHubDrop("subscriber_closed")
		h.logger.Warn().
			Err(err).
			Str(log.FieldSessionID, sessionID).
			Int(log.FieldStep, ev.Step).
			Str(log.FieldEvent, "hub.delivery_failed").
			Msg("detaching subscriber")
		h.removeLocked(sessionID, e)
		return
	}

	delivered, evicted := e.sub.offer(ev)
	switch {
	case !delivered:
		metrics.IncHubDrop("detail_dropped")
		if e.dropped == 0 {
			h.logger.Debug().
				Str(log.FieldSessionID, sessionID).
				Int(log.FieldStep, ev.Step).
				Str(log.FieldEvent, "hub.detail_dropped").
				Msg("observer is behind, dropping output lines")
		}
		e.dropped++
	case evicted:
		metrics.IncHubDrop("evicted")
		metrics.IncHubPublish("delivered")
	default:
		metrics.IncHubPublish("delivered")
	}
	if ev.IsTerminal() && e.dropped > 0 {
		h.logger.Info().
			Str(log.FieldSessionID, sessionID).
			Int("dropped", e.dropped).
			Str(log.FieldEvent, "hub.detail_dropped").
			Msg("output lines dropped for slow observer")
	}
}

// Close schedules the removal of a finished session. The subscriber stays
// open for the grace window so the terminal event can be flushed.
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[sessionID]
	if !ok || e.closing {
		return
	}
	e.closing = true
	if h.grace <= 0 {
		h.removeLocked(sessionID, e)
		return
	}
	e.timer = time.AfterFunc(h.grace, func() { h.expire(sessionID, e) })
}

func (h *Hub) expire(sessionID string, e *entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.entries[sessionID]; ok && cur == e {
		h.removeLocked(sessionID, e)
	}
}

// Unsubscribe handles an observer disconnect: the mapping is removed at once
// and later publishes for the session become no-ops. The run itself is not
// affected.
func (h *Hub) Unsubscribe(sessionID string, sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.entries[sessionID]; ok && e.sub == sub {
		h.removeLocked(sessionID, e)
		return
	}
	sub.close()
}

// Last returns the most recent event published for a session.
func (h *Hub) Last(sessionID string) (model.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[sessionID]
	if !ok {
		return model.Event{}, false
	}
	if !e.hasLast {
		return model.Event{Total: e.total, Status: model.StatusPending, Message: "pending"}, true
	}
	return e.last, true
}

// Total returns the declared step count of a registered session.
func (h *Hub) Total(sessionID string) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[sessionID]
	if !ok {
		return 0, false
	}
	return e.total, true
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Shutdown closes every subscriber and rejects further registrations.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, e := range h.entries {
		h.removeLocked(id, e)
	}
}

func (h *Hub) removeLocked(sessionID string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.sub != nil {
		e.sub.close()
		e.sub = nil
		metrics.HubSubscribers.Dec()
	}
	delete(h.entries, sessionID)
	metrics.HubSessions.Set(float64(len(h.entries)))
}
