package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{ErrInvalidRequest("bad"), http.StatusBadRequest},
		{ErrPlanNotPending("p1", PlanApplied), http.StatusBadRequest},
		{ErrNoTargetWorkflow("c1"), http.StatusBadRequest},
		{ErrUnauthorized("nope"), http.StatusForbidden},
		{ErrNotFound("plan", "p1"), http.StatusNotFound},
		{ErrUpstream(500, "boom"), http.StatusBadGateway},
		{ErrTransport(fmt.Errorf("refused")), http.StatusGatewayTimeout},
		{ErrMalformedRecord("bad"), http.StatusInternalServerError},
		{ErrAuthenticationFailure("bad"), http.StatusInternalServerError},
		{ErrProviderNotConfigured(), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.HTTPStatusCode(); got != tt.want {
			t.Errorf("%s: HTTPStatusCode() = %d, want %d", tt.err.Kind, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	err := ErrNotFound("plan", "p1")
	if !KindOf(err, ErrorKindNotFound) {
		t.Error("KindOf() = false for matching kind")
	}
	if KindOf(err, ErrorKindUnauthorized) {
		t.Error("KindOf() = true for a different kind")
	}
	if KindOf(fmt.Errorf("plain"), ErrorKindNotFound) {
		t.Error("KindOf() = true for a non-core error")
	}

	// Wrapped core errors are still recognized.
	wrapped := fmt.Errorf("loading plan: %w", err)
	if !KindOf(wrapped, ErrorKindNotFound) {
		t.Error("KindOf() = false for a wrapped core error")
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := ErrTransport(cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is() does not reach the transport cause")
	}
}

func TestUpstreamErrorCarriesBody(t *testing.T) {
	err := ErrUpstream(422, `{"message":"invalid node"}`)
	if err.StatusCode != 422 || err.Body != `{"message":"invalid node"}` {
		t.Errorf("upstream error = %+v", err)
	}
}
