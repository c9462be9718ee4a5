// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hub

import (
	"sync"

	"github.com/ManuGH/auditrun/internal/pipeline/model"
)

// Subscriber is the event sink of exactly one session.
//
// Its channel holds buffer detail events plus a reserve sized for every step
// transition, the terminal event and the replayed last event, so those are
// never refused while detail lines are being dropped.
type Subscriber struct {
	sessionID string
	total     int
	buffer    int
	ch        chan model.Event
	once      sync.Once
	closed    bool
}

func newSubscriber(sessionID string, total, buffer int) *Subscriber {
	return &Subscriber{
		sessionID: sessionID,
		total:     total,
		buffer:    buffer,
		ch:        make(chan model.Event, buffer+reserve(total)),
	}
}

// reserve is the number of events per session that bypass the detail limit.
func reserve(total int) int {
	return max(total, 0) + 2
}

// C yields the session's events in publish order. It is closed when the
// session expires, the subscriber is detached or the hub shuts down.
func (s *Subscriber) C() <-chan model.Event {
	return s.ch
}

// SessionID returns the observed session.
func (s *Subscriber) SessionID() string {
	return s.sessionID
}

// Total returns the session's declared step count.
func (s *Subscriber) Total() int {
	return s.total
}

// close is only called with the hub lock held, which also serializes it
// against sends.
func (s *Subscriber) close() {
	s.once.Do(func() {
		s.closed = true
		close(s.ch)
	})
}

// offer enqueues ev without blocking. Detail events are refused once buffer
// events are queued. Other events always enter: if the reserve is somehow
// exhausted, the oldest queued event is evicted to make room. Callers hold
// the hub lock, so s has no concurrent sender.
func (s *Subscriber) offer(ev model.Event) (delivered, evicted bool) {
	if ev.IsDetail() && len(s.ch) >= s.buffer {
		return false, false
	}
	select {
	case s.ch <- ev:
		return true, false
	default:
	}
	if ev.IsDetail() {
		return false, false
	}
	select {
	case <-s.ch:
		evicted = true
	default:
	}
	s.ch <- ev
	return true, evicted
}
