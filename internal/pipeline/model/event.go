// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// Event is an immutable progress snapshot delivered to a session's observer.
// Step is 1-based; step 0 is reserved for the synthetic "connected" record.
type Event struct {
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Message string `json:"message"`
	Status  Status `json:"status"`
	Detail  string `json:"detail,omitempty"`
}

// ConnectedEvent is the first record sent on every new event stream.
func ConnectedEvent(total int) Event {
	return Event{Step: 0, Total: total, Message: "connected", Status: StatusRunning}
}

// IsTerminal reports whether e closes the session.
func (e Event) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// IsDetail reports whether e only carries a line of step output. Detail
// events may be dropped under backpressure; step transitions and terminal
// events may not.
func (e Event) IsDetail() bool {
	return e.Status == StatusRunning && e.Detail != ""
}
