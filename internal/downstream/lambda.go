package downstream

import (
	"context"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/wudi/hitcounter/config"
	"github.com/wudi/hitcounter/internal/errors"
	"github.com/wudi/hitcounter/internal/payload"
)

// LambdaAPI is the subset of the Lambda client used by LambdaInvoker.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *awslambda.InvokeInput, optFns ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error)
}

// LambdaInvoker invokes an AWS Lambda function with the event as payload.
type LambdaInvoker struct {
	client       LambdaAPI
	functionName string
	qualifier    string

	totalInvokes atomic.Int64
	totalErrors  atomic.Int64
}

// NewLambdaInvoker creates a Lambda invoker from config.
func NewLambdaInvoker(client LambdaAPI, cfg config.LambdaConfig) *LambdaInvoker {
	return &LambdaInvoker{
		client:       client,
		functionName: cfg.FunctionName,
		qualifier:    cfg.Qualifier,
	}
}

func (l *LambdaInvoker) Invoke(ctx context.Context, req payload.Request) (payload.Response, error) {
	l.totalInvokes.Add(1)

	in := &awslambda.InvokeInput{
		FunctionName:   aws.String(l.functionName),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        req,
	}
	if l.qualifier != "" {
		in.Qualifier = aws.String(l.qualifier)
	}

	out, err := l.client.Invoke(ctx, in)
	if err != nil {
		l.totalErrors.Add(1)
		return nil, errors.Wrap(err, errors.KindDownstreamUnavailable, "downstream unavailable")
	}

	// The function ran but failed; Payload holds its error document.
	if out.FunctionError != nil {
		l.totalErrors.Add(1)
		return nil, errors.New(errors.KindDownstreamError, "downstream error").
			WithDetails(aws.ToString(out.FunctionError)).
			WithPayload(out.Payload)
	}

	resp, err := checkReply(l.functionName, out.Payload)
	if err != nil {
		l.totalErrors.Add(1)
		return nil, err
	}
	return resp, nil
}

// Stats returns invoker stats.
func (l *LambdaInvoker) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":          config.DownstreamLambda,
		"function_name": l.functionName,
		"total_invokes": l.totalInvokes.Load(),
		"total_errors":  l.totalErrors.Load(),
	}
}

func (l *LambdaInvoker) Close() error { return nil }
