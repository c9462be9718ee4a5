// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Pipeline attributes
	SessionIDKey   = "pipeline.session_id"
	SiteKey        = "pipeline.site"
	StepKey        = "pipeline.step"
	StepThroughKey = "pipeline.step_through"
	TotalKey       = "pipeline.total"
	TaskKey        = "pipeline.task"
	ExitCodeKey    = "pipeline.exit_code"
	StatusKey      = "pipeline.status"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes creates attributes describing a pipeline session.
func SessionAttributes(sessionID, site string, total int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, sessionID),
		attribute.String(SiteKey, site),
		attribute.Int(TotalKey, total),
	}
}

// StepAttributes creates attributes for one step invocation.
func StepAttributes(step, through int, task string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(StepKey, step),
		attribute.String(TaskKey, task),
	}
	if through > step {
		attrs = append(attrs, attribute.Int(StepThroughKey, through))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
