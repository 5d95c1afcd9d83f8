package proxy

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wudi/hitcounter/internal/counter"
	"github.com/wudi/hitcounter/internal/downstream"
	"github.com/wudi/hitcounter/internal/errors"
	"github.com/wudi/hitcounter/internal/metrics"
	"github.com/wudi/hitcounter/internal/middleware"
	"github.com/wudi/hitcounter/internal/payload"
)

// helloDownstream answers like the sample handler the hit counter fronts.
func helloDownstream(calls *atomic.Int64) downstream.Invoker {
	return downstream.Func(func(_ context.Context, req payload.Request) (payload.Response, error) {
		calls.Add(1)
		return payload.Response(`{"statusCode":200,"headers":{"Content-Type":"text/plain"},"body":"Hello, CDK!"}`), nil
	})
}

type failingStore struct {
	counter.Store
	err error
}

func (s *failingStore) Increment(context.Context, string) (int64, error) {
	return 0, s.err
}

func TestHandleCountsEachInvocation(t *testing.T) {
	store := counter.NewMemoryStore()
	var calls atomic.Int64
	p := New(store, helloDownstream(&calls))

	for i := 0; i < 3; i++ {
		if _, err := p.Handle(context.Background(), payload.Request(`{"path":"/hello"}`)); err != nil {
			t.Fatalf("Handle #%d: %v", i, err)
		}
	}

	hits, _ := store.Get(context.Background(), "/hello")
	if hits != 3 {
		t.Errorf("hits = %d, want 3", hits)
	}
	if calls.Load() != 3 {
		t.Errorf("downstream calls = %d, want 3", calls.Load())
	}
}

func TestHandleIsTransparent(t *testing.T) {
	req := payload.Request(`{"path":"/echo","body":"{\"a\": [1, 2.50, null]}","headers":{"X-A":"b"},"n":1e3}`)
	reply := payload.Response("{\n  \"statusCode\": 201,\n  \"body\": \"\\u00e9\"\n}")

	var got payload.Request
	inv := downstream.Func(func(_ context.Context, r payload.Request) (payload.Response, error) {
		got = r
		return reply, nil
	})
	p := New(counter.NewMemoryStore(), inv)

	resp, err := p.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if string(got) != string(req) {
		t.Errorf("downstream saw %s, want %s", got, req)
	}
	if string(resp) != string(reply) {
		t.Errorf("response = %q, want %q", resp, reply)
	}
}

func TestHandleDownstreamFailureAfterIncrement(t *testing.T) {
	store := counter.NewMemoryStore()
	store.Set("/test", 5)

	inv := downstream.Func(func(context.Context, payload.Request) (payload.Response, error) {
		return nil, errors.New(errors.KindDownstreamError, "downstream error").
			WithPayload([]byte(`{"errorMessage":"boom"}`))
	})
	p := New(store, inv)

	_, err := p.Handle(context.Background(), payload.Request(`{"path":"/test"}`))
	if !stderrors.Is(err, errors.ErrDownstreamError) {
		t.Fatalf("err = %v, want DownstreamError", err)
	}
	pe, _ := errors.As(err)
	if !pe.Counted() {
		t.Error("downstream failure should report the increment as applied")
	}
	if pe.Key != "/test" {
		t.Errorf("key = %q", pe.Key)
	}
	if string(pe.Payload) != `{"errorMessage":"boom"}` {
		t.Errorf("payload = %s", pe.Payload)
	}

	hits, _ := store.Get(context.Background(), "/test")
	if hits != 6 {
		t.Errorf("hits = %d, want 6", hits)
	}
}

func TestHandleUnclassifiedDownstreamFailure(t *testing.T) {
	store := counter.NewMemoryStore()
	inv := downstream.Func(func(context.Context, payload.Request) (payload.Response, error) {
		return nil, context.DeadlineExceeded
	})
	p := New(store, inv)

	_, err := p.Handle(context.Background(), payload.Request(`{"path":"/slow"}`))
	if errors.KindOf(err) != errors.KindDownstreamUnavailable {
		t.Fatalf("kind = %s, want DownstreamUnavailable", errors.KindOf(err))
	}
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Error("cause should be preserved")
	}
	if hits, _ := store.Get(context.Background(), "/slow"); hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

func TestHandleStoreFailureSkipsDownstream(t *testing.T) {
	mem := counter.NewMemoryStore()
	mem.Set("/hello", 2)
	store := &failingStore{Store: mem, err: stderrors.New("ProvisionedThroughputExceededException")}

	var calls atomic.Int64
	p := New(store, helloDownstream(&calls))

	_, err := p.Handle(context.Background(), payload.Request(`{"path":"/hello"}`))
	if !stderrors.Is(err, errors.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want StoreUnavailable", err)
	}
	pe, _ := errors.As(err)
	if pe.Counted() {
		t.Error("store failure must not report the increment as applied")
	}
	if calls.Load() != 0 {
		t.Errorf("downstream called %d times", calls.Load())
	}
	if hits, _ := mem.Get(context.Background(), "/hello"); hits != 2 {
		t.Errorf("hits = %d, want 2", hits)
	}
}

func TestHandleMalformedRequest(t *testing.T) {
	tests := []struct {
		name string
		req  string
	}{
		{"not json", `path=/hello`},
		{"array", `["/hello"]`},
		{"missing path", `{"resource":"/hello"}`},
		{"number path", `{"path":42}`},
		{"empty path", `{"path":""}`},
		{"duplicate path", `{"path":"/counted","path":"/served"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := counter.NewMemoryStore()
			var calls atomic.Int64
			p := New(store, helloDownstream(&calls))

			_, err := p.Handle(context.Background(), payload.Request(tt.req))
			if errors.KindOf(err) != errors.KindMalformedRequest {
				t.Fatalf("kind = %s, want MalformedRequest", errors.KindOf(err))
			}
			if calls.Load() != 0 {
				t.Error("downstream must not be invoked")
			}
			if records, _ := store.List(context.Background(), 0); len(records) != 0 {
				t.Errorf("no counter should be created: %v", records)
			}
		})
	}
}

func TestHandleConcurrentIncrements(t *testing.T) {
	store := counter.NewMemoryStore()
	var calls atomic.Int64
	p := New(store, helloDownstream(&calls))

	const workers, perWorker = 16, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := "/hot"
				if i%5 == 0 {
					key = fmt.Sprintf("/w%d", w)
				}
				if _, err := p.Handle(context.Background(), payload.Request(`{"path":"`+key+`"}`)); err != nil {
					t.Errorf("Handle: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	hot, _ := store.Get(context.Background(), "/hot")
	if want := int64(workers * perWorker * 4 / 5); hot != want {
		t.Errorf("/hot = %d, want %d", hot, want)
	}
	for w := 0; w < workers; w++ {
		if n, _ := store.Get(context.Background(), fmt.Sprintf("/w%d", w)); n != perWorker/5 {
			t.Errorf("/w%d = %d, want %d", w, n, perWorker/5)
		}
	}
}

func TestHandleRecordsMetricsAndLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := metrics.NewCollector()

	var calls atomic.Int64
	p := New(counter.NewMemoryStore(), helloDownstream(&calls),
		WithMetrics(m),
		WithLogger(zap.New(core)),
	)

	ctx := middleware.WithRequestID(context.Background(), "req-7")
	if _, err := p.Handle(ctx, payload.Request(`{"path":"/hello"}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	p.Handle(ctx, payload.Request(`{}`))

	reg := m.Registry()
	if n, err := testutil.GatherAndCount(reg, "hitcounter_invocations_total"); err != nil || n != 2 {
		t.Errorf("invocation series = %d, want 2", n)
	}

	if logs.FilterMessage("request").Len() != 2 {
		t.Errorf("expected 2 debug request logs, got %d", logs.FilterMessage("request").Len())
	}
	resp := logs.FilterMessage("downstream response").All()
	if len(resp) != 1 {
		t.Fatalf("expected 1 downstream response log, got %d", len(resp))
	}
	fields := resp[0].ContextMap()
	if fields["request_id"] != "req-7" || fields["path"] != "/hello" || fields["hits"] != int64(1) {
		t.Errorf("fields = %v", fields)
	}
	if logs.FilterMessage("rejecting malformed request").Len() != 1 {
		t.Error("expected a malformed request warning")
	}
}
