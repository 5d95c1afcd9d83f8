package downstream

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wudi/hitcounter/config"
	"github.com/wudi/hitcounter/internal/errors"
	"github.com/wudi/hitcounter/internal/payload"
)

type fakeNATS struct {
	msg         *nats.Msg
	err         error
	hadDeadline bool
	subject     string
	drained     bool
}

func (f *fakeNATS) RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error) {
	_, f.hadDeadline = ctx.Deadline()
	f.subject = subj
	return f.msg, f.err
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

func TestNATSInvokerReply(t *testing.T) {
	fake := &fakeNATS{msg: &nats.Msg{Data: []byte(`{"statusCode":200}`)}}
	inv := NewNATSInvoker(fake, config.NATSConfig{Subject: "hello.invoke", Timeout: time.Second})

	resp, err := inv.Invoke(context.Background(), payload.Request(`{"path":"/hello"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(resp) != `{"statusCode":200}` {
		t.Errorf("response = %s", resp)
	}
	if !fake.hadDeadline {
		t.Error("expected a deadline to be applied")
	}
	if fake.subject != "hello.invoke" {
		t.Errorf("subject = %q", fake.subject)
	}

	inv.Close()
	if !fake.drained {
		t.Error("Close should drain the connection")
	}
}

func TestNATSInvokerFailures(t *testing.T) {
	svcErr := nats.NewMsg("reply")
	svcErr.Header.Set(natsServiceErrorCodeHeader, "500")
	svcErr.Header.Set(natsServiceErrorHeader, "handler failed")
	svcErr.Data = []byte(`{"errorMessage":"boom"}`)

	tests := []struct {
		name string
		msg  *nats.Msg
		err  error
		want errors.Kind
	}{
		{"no responders", nil, nats.ErrNoResponders, errors.KindDownstreamUnavailable},
		{"timeout", nil, context.DeadlineExceeded, errors.KindDownstreamUnavailable},
		{"service error", svcErr, nil, errors.KindDownstreamError},
		{"empty reply", &nats.Msg{}, nil, errors.KindDownstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := NewNATSInvoker(&fakeNATS{msg: tt.msg, err: tt.err}, config.NATSConfig{Subject: "s", Timeout: time.Second})
			_, err := inv.Invoke(context.Background(), payload.Request(`{"path":"/x"}`))
			if got := errors.KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNATSInvokerLiveServer(t *testing.T) {
	nc, err := DialNATS(config.NATSConfig{URL: nats.DefaultURL, Name: "hitcounter-test"})
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}

	sub, err := nc.Subscribe("hitcounter.test.invoke", func(m *nats.Msg) {
		m.Respond([]byte(`{"echo":` + string(m.Data) + `}`))
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	inv := NewNATSInvoker(nc, config.NATSConfig{Subject: "hitcounter.test.invoke", Timeout: 2 * time.Second})
	defer inv.Close()

	resp, err := inv.Invoke(context.Background(), payload.Request(`{"path":"/live"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(resp) != `{"echo":{"path":"/live"}}` {
		t.Errorf("response = %s", resp)
	}
}
