// Package domain provides the core entities and canonical error types
// for the workflow copilot.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of a core error.
type ErrorKind string

const (
	// ErrorKindMalformedRecord indicates a stored encrypted record that does
	// not match the iv:tag:ciphertext format.
	ErrorKindMalformedRecord ErrorKind = "malformed_record"

	// ErrorKindAuthenticationFailure indicates an AEAD tag verification
	// failure: tampered data or the wrong vault key.
	ErrorKindAuthenticationFailure ErrorKind = "authentication_failure"

	// ErrorKindProviderNotConfigured indicates no LLM provider credential is
	// available to the process.
	ErrorKindProviderNotConfigured ErrorKind = "provider_not_configured"

	// ErrorKindTransport indicates a network-level failure talking to the
	// remote workflow platform or the LLM provider.
	ErrorKindTransport ErrorKind = "transport"

	// ErrorKindUpstream indicates the remote platform responded with a
	// non-2xx status.
	ErrorKindUpstream ErrorKind = "upstream"

	// ErrorKindNotFound indicates a local entity does not exist.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindUnauthorized indicates an ownership mismatch.
	ErrorKindUnauthorized ErrorKind = "unauthorized"

	// ErrorKindPlanNotPending indicates a transition attempted on a plan not
	// in the expected source state.
	ErrorKindPlanNotPending ErrorKind = "plan_not_pending"

	// ErrorKindNoTargetWorkflow indicates approve/test on a conversation with
	// no bound workflow id.
	ErrorKindNoTargetWorkflow ErrorKind = "no_target_workflow"

	// ErrorKindInvalidRequest indicates malformed caller input.
	ErrorKindInvalidRequest ErrorKind = "invalid_request"
)

// Error is the canonical typed failure propagated out of the core.
type Error struct {
	// Kind is the category of error.
	Kind ErrorKind

	// Message is the human-readable error message.
	Message string

	// StatusCode is the upstream HTTP status for upstream errors.
	StatusCode int

	// Body is the raw upstream response body for upstream errors.
	Body string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind == ErrorKindUpstream {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatusCode returns the status code the route layer should surface.
func (e *Error) HTTPStatusCode() int {
	switch e.Kind {
	case ErrorKindInvalidRequest, ErrorKindPlanNotPending, ErrorKindNoTargetWorkflow:
		return http.StatusBadRequest
	case ErrorKindUnauthorized:
		return http.StatusForbidden
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindUpstream:
		return http.StatusBadGateway
	case ErrorKindTransport:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// KindOf reports whether err is a core Error of the given kind.
func KindOf(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ErrMalformedRecord creates a malformed record error.
func ErrMalformedRecord(message string) *Error {
	return &Error{Kind: ErrorKindMalformedRecord, Message: message}
}

// ErrAuthenticationFailure creates an authentication failure error.
func ErrAuthenticationFailure(message string) *Error {
	return &Error{Kind: ErrorKindAuthenticationFailure, Message: message}
}

// ErrProviderNotConfigured creates a provider-not-configured error.
func ErrProviderNotConfigured() *Error {
	return &Error{Kind: ErrorKindProviderNotConfigured, Message: "no LLM provider credential configured"}
}

// ErrTransport wraps a network-level failure.
func ErrTransport(cause error) *Error {
	return &Error{Kind: ErrorKindTransport, Message: "request failed", Cause: cause}
}

// ErrUpstream creates an upstream error carrying the raw response body.
func ErrUpstream(statusCode int, body string) *Error {
	return &Error{Kind: ErrorKindUpstream, Message: body, StatusCode: statusCode, Body: body}
}

// ErrNotFound creates a not found error for the named entity.
func ErrNotFound(entity, id string) *Error {
	return &Error{Kind: ErrorKindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// ErrUnauthorized creates an ownership mismatch error.
func ErrUnauthorized(message string) *Error {
	return &Error{Kind: ErrorKindUnauthorized, Message: message}
}

// ErrPlanNotPending creates a plan-not-pending error.
func ErrPlanNotPending(planID string, status PlanStatus) *Error {
	return &Error{Kind: ErrorKindPlanNotPending, Message: fmt.Sprintf("plan %s is %s, expected pending", planID, status)}
}

// ErrNoTargetWorkflow creates a no-target-workflow error.
func ErrNoTargetWorkflow(conversationID string) *Error {
	return &Error{Kind: ErrorKindNoTargetWorkflow, Message: fmt.Sprintf("conversation %s has no target workflow", conversationID)}
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *Error {
	return &Error{Kind: ErrorKindInvalidRequest, Message: message}
}
