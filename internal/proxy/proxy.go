// Package proxy implements the counting proxy: every invocation increments the
// hit counter for the request's path and then forwards the unmodified request
// to the downstream handler, returning its reply untouched.
package proxy

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/wudi/hitcounter/internal/awsutil"
	"github.com/wudi/hitcounter/internal/counter"
	"github.com/wudi/hitcounter/internal/downstream"
	"github.com/wudi/hitcounter/internal/errors"
	"github.com/wudi/hitcounter/internal/logging"
	"github.com/wudi/hitcounter/internal/metrics"
	"github.com/wudi/hitcounter/internal/middleware"
	"github.com/wudi/hitcounter/internal/payload"
	"github.com/wudi/hitcounter/internal/tracing"
)

// Proxy counts and forwards invocations. It keeps no state between
// invocations beyond the clients it was built with, so Handle is safe for
// concurrent use.
type Proxy struct {
	store   counter.Store
	invoker downstream.Invoker
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	logger  *zap.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithMetrics records invocation metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Proxy) { p.metrics = c }
}

// WithTracer wraps each stage in a span.
func WithTracer(t *tracing.Tracer) Option {
	return func(p *Proxy) { p.tracer = t }
}

// WithLogger overrides the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Proxy) { p.logger = l }
}

// New creates a Proxy.
func New(store counter.Store, invoker downstream.Invoker, opts ...Option) *Proxy {
	p := &Proxy{
		store:   store,
		invoker: invoker,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Proxy) log() *zap.Logger {
	if p.logger != nil {
		return p.logger
	}
	return logging.Global()
}

// Handle runs one invocation: derive the key, increment its counter, invoke
// the downstream with req and return the downstream's reply.
//
// Failures are *errors.ProxyError. MalformedRequest and StoreUnavailable
// happen before the increment and the downstream is never called.
// DownstreamUnavailable and DownstreamError happen after it; the increment
// stands.
func (p *Proxy) Handle(ctx context.Context, req payload.Request) (payload.Response, error) {
	done := p.metrics.Begin()
	requestID := middleware.RequestIDFromContext(ctx)
	logger := p.log()
	if requestID != "" {
		logger = logger.With(zap.String("request_id", requestID))
	}

	if logger.Core().Enabled(zap.DebugLevel) {
		logger.Debug("request", zap.ByteString("event", req))
	}

	key, err := payload.DeriveKey(req)
	if err != nil {
		done(metrics.OutcomeMalformedRequest)
		logger.Warn("rejecting malformed request", zap.Error(err))
		return nil, errors.Wrap(err, errors.KindMalformedRequest, "malformed request").
			WithRequestID(requestID)
	}
	logger = logger.With(zap.String("path", key))

	hits, err := p.increment(ctx, key)
	if err != nil {
		done(metrics.OutcomeStoreUnavailable)
		fields := []zap.Field{
			zap.String("stage", string(errors.StageBeforeIncrement)),
			zap.Error(err),
		}
		if code := awsutil.ErrorCode(err); code != "" {
			fields = append(fields,
				zap.String("aws_error_code", code),
				zap.Bool("throttled", awsutil.Throttled(err)),
				zap.Bool("access_denied", awsutil.AccessDenied(err)),
			)
		}
		logger.Error("counter increment failed", fields...)
		return nil, errors.Wrap(err, errors.KindStoreUnavailable, "counter store unavailable").
			WithKey(key).
			WithRequestID(requestID)
	}

	resp, err := p.invoke(ctx, key, req)
	if err != nil {
		pe := classifyDownstream(err).WithKey(key).WithRequestID(requestID)
		if pe.Kind == errors.KindDownstreamError {
			done(metrics.OutcomeDownstreamError)
		} else {
			done(metrics.OutcomeDownstreamUnavailable)
		}
		logger.Warn("downstream invocation failed",
			zap.String("stage", string(errors.StageAfterIncrement)),
			zap.Int64("hits", hits),
			zap.String("kind", pe.Type),
			zap.Error(err),
		)
		return nil, pe
	}

	if logger.Core().Enabled(zap.DebugLevel) {
		logger.Debug("downstream response", zap.Int64("hits", hits), zap.ByteString("response", resp))
	}
	done(metrics.OutcomeOK)
	return resp, nil
}

func (p *Proxy) increment(ctx context.Context, key string) (int64, error) {
	ctx, span := p.tracer.StartSpan(ctx, "counter.increment", attribute.String("hitcounter.path", key))
	start := time.Now()
	hits, err := p.store.Increment(ctx, key)
	p.metrics.RecordIncrement(err, time.Since(start))
	if err == nil {
		span.SetAttributes(attribute.Int64("hitcounter.hits", hits))
	}
	tracing.EndSpan(span, err)
	return hits, err
}

func (p *Proxy) invoke(ctx context.Context, key string, req payload.Request) (payload.Response, error) {
	ctx, span := p.tracer.StartSpan(ctx, "downstream.invoke", attribute.String("hitcounter.path", key))
	start := time.Now()
	resp, err := p.invoker.Invoke(ctx, req)

	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultUnavailable
		if errors.KindOf(err) == errors.KindDownstreamError {
			result = metrics.ResultError
		}
	}
	p.metrics.RecordDownstream(result, time.Since(start))
	tracing.EndSpan(span, err)
	return resp, err
}

// classifyDownstream keeps an invoker's classification and treats anything
// else as a transport failure.
func classifyDownstream(err error) *errors.ProxyError {
	if pe, ok := errors.As(err); ok {
		switch pe.Kind {
		case errors.KindDownstreamError, errors.KindDownstreamUnavailable:
			return pe
		}
	}
	return errors.Wrap(err, errors.KindDownstreamUnavailable, "downstream unavailable")
}
