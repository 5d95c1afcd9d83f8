package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies a proxy failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindMalformedRequest: the request carries no usable counting key.
	KindMalformedRequest
	// KindStoreUnavailable: the atomic increment could not be performed.
	KindStoreUnavailable
	// KindDownstreamUnavailable: the downstream handler could not be reached
	// or replied with something that is not a response payload.
	KindDownstreamUnavailable
	// KindDownstreamError: the downstream handler ran and reported an error.
	KindDownstreamError
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRequest:
		return "MalformedRequest"
	case KindStoreUnavailable:
		return "StoreUnavailable"
	case KindDownstreamUnavailable:
		return "DownstreamUnavailable"
	case KindDownstreamError:
		return "DownstreamError"
	}
	return "Unknown"
}

// Stage tells whether the counter had been incremented when the failure happened.
type Stage string

const (
	StageBeforeIncrement Stage = "before_increment"
	StageAfterIncrement  Stage = "after_increment"
)

// Stage returns where in the pipeline a failure of this kind occurs.
func (k Kind) Stage() Stage {
	switch k {
	case KindDownstreamUnavailable, KindDownstreamError:
		return StageAfterIncrement
	}
	return StageBeforeIncrement
}

// Layer groups kinds by the component at fault.
func (k Kind) Layer() string {
	switch k {
	case KindMalformedRequest:
		return "request"
	case KindStoreUnavailable:
		return "proxy"
	case KindDownstreamUnavailable, KindDownstreamError:
		return "downstream"
	}
	return "unknown"
}

// Code returns the HTTP status used when the failure is written to a client.
func (k Kind) Code() int {
	switch k {
	case KindMalformedRequest:
		return http.StatusBadRequest
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case KindDownstreamUnavailable, KindDownstreamError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// ProxyError is a classified counting proxy failure.
type ProxyError struct {
	Kind      Kind            `json:"-"`
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	Stage     Stage           `json:"stage"`
	Key       string          `json:"path,omitempty"`
	Details   string          `json:"details,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"downstream,omitempty"`

	underlying error
}

func (e *ProxyError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *ProxyError) Unwrap() error {
	return e.underlying
}

// Is matches any ProxyError of the same kind, so the sentinels below work
// with errors.Is.
func (e *ProxyError) Is(target error) bool {
	t, ok := target.(*ProxyError)
	return ok && t.Kind == e.Kind
}

// Counted reports whether the counter was incremented before the failure.
func (e *ProxyError) Counted() bool {
	return e.Stage == StageAfterIncrement
}

// WriteJSON writes the error as JSON to the response.
func (e *ProxyError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Hitcounter-Stage", string(e.Stage))
	w.WriteHeader(e.Code)
	json.NewEncoder(w).Encode(e)
}

// Sentinels for errors.Is checks.
var (
	ErrMalformedRequest      = New(KindMalformedRequest, "malformed request")
	ErrStoreUnavailable      = New(KindStoreUnavailable, "counter store unavailable")
	ErrDownstreamUnavailable = New(KindDownstreamUnavailable, "downstream unavailable")
	ErrDownstreamError       = New(KindDownstreamError, "downstream error")
)

// New creates a new ProxyError
func New(kind Kind, message string) *ProxyError {
	return &ProxyError{
		Kind:    kind,
		Code:    kind.Code(),
		Message: message,
		Type:    kind.String(),
		Stage:   kind.Stage(),
	}
}

// Wrap wraps an error with a kind and message
func Wrap(err error, kind Kind, message string) *ProxyError {
	e := New(kind, message)
	e.underlying = err
	return e
}

func (e *ProxyError) clone() *ProxyError {
	c := *e
	return &c
}

// WithKey records the counting key the failure relates to
func (e *ProxyError) WithKey(key string) *ProxyError {
	c := e.clone()
	c.Key = key
	return c
}

// WithDetails adds details to the error
func (e *ProxyError) WithDetails(details string) *ProxyError {
	c := e.clone()
	c.Details = details
	return c
}

// WithRequestID adds a request ID to the error
func (e *ProxyError) WithRequestID(requestID string) *ProxyError {
	c := e.clone()
	c.RequestID = requestID
	return c
}

// WithPayload attaches the downstream's error payload. Non-JSON payloads are
// kept as details so the rendered error stays valid JSON.
func (e *ProxyError) WithPayload(payload []byte) *ProxyError {
	c := e.clone()
	if len(payload) == 0 {
		return c
	}
	if json.Valid(payload) {
		c.Payload = append(json.RawMessage(nil), payload...)
	} else {
		c.Details = string(payload)
	}
	return c
}

// As extracts a ProxyError from an error chain.
func As(err error) (*ProxyError, bool) {
	var pe *ProxyError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the kind of the first ProxyError in err's chain.
func KindOf(err error) Kind {
	if pe, ok := As(err); ok {
		return pe.Kind
	}
	return KindUnknown
}

// WriteStatus writes a plain JSON error for failures outside the proxy
// pipeline (routing, panics, oversized bodies).
func WriteStatus(w http.ResponseWriter, code int, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(struct {
		Code      int    `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	}{code, http.StatusText(code), requestID})
}
