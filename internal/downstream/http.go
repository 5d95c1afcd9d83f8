package downstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/wudi/hitcounter/config"
	"github.com/wudi/hitcounter/internal/errors"
	"github.com/wudi/hitcounter/internal/payload"
	"github.com/wudi/hitcounter/internal/tracing"
)

// maxReplySize caps the downstream reply, matching the Lambda synchronous
// response limit.
const maxReplySize = 6 << 20

// HTTPInvoker POSTs the event to a URL and relays the response body.
type HTTPInvoker struct {
	client  *http.Client
	url     string
	headers map[string]string

	totalInvokes atomic.Int64
	totalErrors  atomic.Int64
}

// NewHTTPInvoker creates an HTTP invoker around client. A nil client gets
// the default pooled transport and cfg.Timeout.
func NewHTTPInvoker(client *http.Client, cfg config.HTTPDownstreamConfig) *HTTPInvoker {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout, Transport: DefaultTransport()}
	}
	return &HTTPInvoker{
		client:  client,
		url:     cfg.URL,
		headers: cfg.Headers,
	}
}

// DialHTTP creates an HTTP invoker with a pooled transport built from cfg.
func DialHTTP(cfg config.HTTPDownstreamConfig) (*HTTPInvoker, error) {
	transport, err := NewTransport(TransportConfigFrom(cfg))
	if err != nil {
		return nil, err
	}
	return NewHTTPInvoker(&http.Client{Timeout: cfg.Timeout, Transport: transport}, cfg), nil
}

func (h *HTTPInvoker) Invoke(ctx context.Context, req payload.Request) (payload.Response, error) {
	h.totalInvokes.Add(1)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(req))
	if err != nil {
		h.totalErrors.Add(1)
		return nil, errors.Wrap(err, errors.KindDownstreamUnavailable, "downstream unavailable")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		httpReq.Header.Set(k, v)
	}
	tracing.InjectHeaders(ctx, httpReq.Header)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		h.totalErrors.Add(1)
		return nil, errors.Wrap(err, errors.KindDownstreamUnavailable, "downstream unavailable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize+1))
	if err != nil {
		h.totalErrors.Add(1)
		return nil, errors.Wrap(err, errors.KindDownstreamUnavailable, "downstream unavailable")
	}
	tooLarge := len(body) > maxReplySize

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.totalErrors.Add(1)
		e := errors.New(errors.KindDownstreamError, "downstream error").
			WithDetails(fmt.Sprintf("status %d", resp.StatusCode))
		if !tooLarge {
			e = e.WithPayload(body)
		}
		return nil, e
	}

	if tooLarge {
		h.totalErrors.Add(1)
		return nil, errors.New(errors.KindDownstreamUnavailable, "downstream unavailable").
			WithDetails(fmt.Sprintf("%s: response payload too large (limit %d bytes)", h.url, maxReplySize))
	}

	out, err := checkReply(h.url, body)
	if err != nil {
		h.totalErrors.Add(1)
		return nil, err
	}
	return out, nil
}

// Stats returns invoker stats.
func (h *HTTPInvoker) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":          config.DownstreamHTTP,
		"url":           h.url,
		"total_invokes": h.totalInvokes.Load(),
		"total_errors":  h.totalErrors.Load(),
	}
}

func (h *HTTPInvoker) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
