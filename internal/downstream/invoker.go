// Package downstream forwards an invocation event to the handler that does
// the real work and relays its reply without interpreting it.
package downstream

import (
	"context"
	"encoding/json"

	"github.com/wudi/hitcounter/internal/errors"
	"github.com/wudi/hitcounter/internal/payload"
)

// Invoker calls the downstream handler synchronously.
//
// Failures are *errors.ProxyError values of kind KindDownstreamUnavailable
// (transport failure, no or malformed reply) or KindDownstreamError (the
// handler ran and reported an error).
type Invoker interface {
	Invoke(ctx context.Context, req payload.Request) (payload.Response, error)
	Close() error
}

// Func adapts an in-process function into an Invoker.
type Func func(ctx context.Context, req payload.Request) (payload.Response, error)

func (f Func) Invoke(ctx context.Context, req payload.Request) (payload.Response, error) {
	return f(ctx, req)
}

func (f Func) Close() error { return nil }

// checkReply rejects empty and non-JSON replies. The bytes themselves are
// returned untouched.
func checkReply(target string, body []byte) (payload.Response, error) {
	if len(body) == 0 {
		return nil, errors.New(errors.KindDownstreamUnavailable, "downstream unavailable").
			WithDetails(target + ": empty response payload")
	}
	if !json.Valid(body) {
		return nil, errors.New(errors.KindDownstreamUnavailable, "downstream unavailable").
			WithDetails(target + ": malformed response payload")
	}
	return payload.Response(body), nil
}
