// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldTask      = "task"
	FieldStep      = "step"
	FieldTotal     = "total"
	FieldSite      = "site"
	FieldExitCode  = "exit_code"
	FieldPID       = "pid"

	// Path / URL fields
	FieldPath = "path"
)
