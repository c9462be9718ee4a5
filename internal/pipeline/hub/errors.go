// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hub

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when subscribing to a session that was
	// never registered or has already expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrClosed is returned once the hub has been shut down.
	ErrClosed = errors.New("event hub closed")
)

// DuplicateSessionError signals a session id collision or a second observer
// for the same session.
type DuplicateSessionError struct {
	SessionID string
	Reason    string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("duplicate session %q: %s", e.SessionID, e.Reason)
}

// DeliveryError describes an event that could not be written because the
// subscriber's sink was closed. It never reaches the publisher; the hub logs
// it and detaches the subscriber.
type DeliveryError struct {
	SessionID string
	Reason    string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver event to session %q: %s", e.SessionID, e.Reason)
}
