package proxy

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/wudi/hitcounter/internal/counter"
	"github.com/wudi/hitcounter/internal/downstream"
	"github.com/wudi/hitcounter/internal/errors"
	"github.com/wudi/hitcounter/internal/middleware"
	"github.com/wudi/hitcounter/internal/payload"
)

func TestLambdaHandlerReturnsRawReply(t *testing.T) {
	var seenID string
	inv := downstream.Func(func(ctx context.Context, req payload.Request) (payload.Response, error) {
		seenID = middleware.RequestIDFromContext(ctx)
		return payload.Response(`{"statusCode":200,"body":"ok"}`), nil
	})
	store := counter.NewMemoryStore()
	h := New(store, inv).LambdaHandler()

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "aws-req-1"})
	out, err := h(ctx, json.RawMessage(`{"path":"/hello"}`))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if string(out) != `{"statusCode":200,"body":"ok"}` {
		t.Errorf("out = %s", out)
	}
	if seenID != "aws-req-1" {
		t.Errorf("request id = %q", seenID)
	}
	if hits, _ := store.Get(context.Background(), "/hello"); hits != 1 {
		t.Errorf("hits = %d", hits)
	}
}

func TestLambdaHandlerErrorType(t *testing.T) {
	inv := downstream.Func(func(context.Context, payload.Request) (payload.Response, error) {
		return nil, errors.New(errors.KindDownstreamError, "downstream error").
			WithPayload([]byte(`{"errorMessage":"boom"}`))
	})
	h := New(counter.NewMemoryStore(), inv).LambdaHandler()

	_, err := h(context.Background(), json.RawMessage(`{"path":"/test"}`))

	var ive messages.InvokeResponse_Error
	if !stderrors.As(err, &ive) {
		t.Fatalf("err = %T, want InvokeResponse_Error", err)
	}
	if ive.Type != "DownstreamError" {
		t.Errorf("type = %q", ive.Type)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ive.Message), &body); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	if body["stage"] != "after_increment" || body["path"] != "/test" {
		t.Errorf("body = %v", body)
	}
}
