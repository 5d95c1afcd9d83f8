package downstream

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wudi/hitcounter/config"
	"github.com/wudi/hitcounter/internal/errors"
	"github.com/wudi/hitcounter/internal/payload"
)

// Headers set by NATS micro services on an error reply.
const (
	natsServiceErrorHeader     = "Nats-Service-Error"
	natsServiceErrorCodeHeader = "Nats-Service-Error-Code"
)

// NATSConn is the subset of *nats.Conn used by NATSInvoker.
type NATSConn interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
	Drain() error
}

// NATSInvoker sends the event as a NATS request and relays the reply.
type NATSInvoker struct {
	conn    NATSConn
	subject string
	timeout time.Duration

	totalInvokes atomic.Int64
	totalErrors  atomic.Int64
}

// DialNATS connects to the configured NATS server.
func DialNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	opts := []nats.Option{nats.Name(cfg.Name)}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}
	return nc, nil
}

// NewNATSInvoker creates a NATS request/reply invoker.
func NewNATSInvoker(conn NATSConn, cfg config.NATSConfig) *NATSInvoker {
	return &NATSInvoker{
		conn:    conn,
		subject: cfg.Subject,
		timeout: cfg.Timeout,
	}
}

func (n *NATSInvoker) Invoke(ctx context.Context, req payload.Request) (payload.Response, error) {
	n.totalInvokes.Add(1)

	// RequestWithContext requires a deadline.
	if _, ok := ctx.Deadline(); !ok && n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	msg, err := n.conn.RequestWithContext(ctx, n.subject, req)
	if err != nil {
		n.totalErrors.Add(1)
		pe := errors.Wrap(err, errors.KindDownstreamUnavailable, "downstream unavailable")
		if stderrors.Is(err, nats.ErrNoResponders) {
			pe = pe.WithDetails("no responders on " + n.subject)
		}
		return nil, pe
	}

	if code := msg.Header.Get(natsServiceErrorCodeHeader); code != "" {
		n.totalErrors.Add(1)
		details := code
		if desc := msg.Header.Get(natsServiceErrorHeader); desc != "" {
			details = code + " " + desc
		}
		return nil, errors.New(errors.KindDownstreamError, "downstream error").
			WithDetails(details).
			WithPayload(msg.Data)
	}

	out, err := checkReply(n.subject, msg.Data)
	if err != nil {
		n.totalErrors.Add(1)
		return nil, err
	}
	return out, nil
}

// Stats returns invoker stats.
func (n *NATSInvoker) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":          config.DownstreamNATS,
		"subject":       n.subject,
		"total_invokes": n.totalInvokes.Load(),
		"total_errors":  n.totalErrors.Load(),
	}
}

func (n *NATSInvoker) Close() error {
	return n.conn.Drain()
}
