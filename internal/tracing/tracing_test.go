package tracing

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wudi/hitcounter/config"
)

func newTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tr, err := NewWithExporter(config.TracingConfig{Enabled: true, ServiceName: "hitcounter-test"}, exp)
	if err != nil {
		t.Fatalf("NewWithExporter: %v", err)
	}
	return tr, exp
}

func TestTracerMiddleware(t *testing.T) {
	tr, exp := newTestTracer(t)

	handler := tr.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/hello", nil))

	if w.Header().Get("X-Trace-ID") == "" {
		t.Error("expected X-Trace-ID response header")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "GET /hello" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
}

func TestTracerMiddlewarePropagation(t *testing.T) {
	tr, exp := newTestTracer(t)

	handler := tr.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if got := w.Header().Get("X-Trace-ID"); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("X-Trace-ID = %q", got)
	}
	tr.Close()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Parent.SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("span should be parented to the incoming context: %+v", spans)
	}
}

func TestStartSpanRecordsError(t *testing.T) {
	tr, exp := newTestTracer(t)

	_, span := tr.StartSpan(context.Background(), "counter.increment", attribute.String("hitcounter.path", "/x"))
	EndSpan(span, stderrors.New("throttled"))
	tr.Close()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v", spans[0].Status.Code)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected an exception event")
	}
}

func TestDisabledTracer(t *testing.T) {
	tr, err := New(config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.IsEnabled() {
		t.Error("tracer should be disabled")
	}

	ctx := context.Background()
	got, span := tr.StartSpan(ctx, "noop")
	if got != ctx {
		t.Error("disabled tracer should return the same context")
	}
	EndSpan(span, nil)

	var nilTracer *Tracer
	nilTracer.StartSpan(ctx, "noop")
	if err := nilTracer.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}

	called := false
	h := nilTracer.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !called {
		t.Error("disabled middleware should call next")
	}
}
