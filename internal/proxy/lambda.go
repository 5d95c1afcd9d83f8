package proxy

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/wudi/hitcounter/internal/errors"
	"github.com/wudi/hitcounter/internal/middleware"
	"github.com/wudi/hitcounter/internal/payload"
)

// LambdaHandler adapts the proxy to the AWS Lambda Go runtime. The event is
// taken and the downstream reply returned as raw JSON.
//
// Failures are reported with the error kind as errorType and the rendered
// ProxyError as errorMessage, so the caller can see the stage and the
// downstream's own error payload.
func (p *Proxy) LambdaHandler() func(ctx context.Context, event json.RawMessage) (json.RawMessage, error) {
	return func(ctx context.Context, event json.RawMessage) (json.RawMessage, error) {
		if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
			ctx = middleware.WithRequestID(ctx, lc.AwsRequestID)
		}

		resp, err := p.Handle(ctx, payload.Request(event))
		if err != nil {
			return nil, lambdaError(err)
		}
		return json.RawMessage(resp), nil
	}
}

func lambdaError(err error) error {
	pe, ok := errors.As(err)
	if !ok {
		return err
	}
	msg, merr := json.Marshal(pe)
	if merr != nil {
		msg = []byte(pe.Error())
	}
	return messages.InvokeResponse_Error{
		Message: string(msg),
		Type:    pe.Type,
	}
}
