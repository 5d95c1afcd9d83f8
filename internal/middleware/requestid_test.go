package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestID(t *testing.T) {
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	RequestID()(handler).ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	if seen == "" {
		t.Error("Request ID should be set in context")
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, context = %q", got, seen)
	}
}

func TestRequestIDTrusted(t *testing.T) {
	existingID := "existing-request-id"

	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(RequestIDHeader, existingID)
	RequestID()(handler).ServeHTTP(httptest.NewRecorder(), req)

	if seen != existingID {
		t.Errorf("Expected request ID %s, got %s", existingID, seen)
	}
}

func TestRequestIDUntrusted(t *testing.T) {
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	mw := RequestIDWithConfig(RequestIDConfig{
		TrustHeader: false,
		Generator:   func() string { return "generated" },
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(RequestIDHeader, "client-supplied")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	if seen != "generated" {
		t.Errorf("Expected generated ID, got %s", seen)
	}
}

func TestRequestIDFromContextEmpty(t *testing.T) {
	if id := RequestIDFromContext(context.Background()); id != "" {
		t.Errorf("expected empty ID, got %q", id)
	}
	if id := RequestIDFromContext(WithRequestID(context.Background(), "abc")); id != "abc" {
		t.Errorf("expected abc, got %q", id)
	}
}
