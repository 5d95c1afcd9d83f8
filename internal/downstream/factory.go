package downstream

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/wudi/hitcounter/config"
	"github.com/wudi/hitcounter/internal/awsutil"
)

// New builds the Invoker selected by cfg.Type.
func New(ctx context.Context, cfg config.DownstreamConfig, awsOpts config.AWSConfig) (Invoker, error) {
	switch cfg.Type {
	case config.DownstreamLambda:
		awsCfg, err := awsutil.Load(ctx, awsOpts)
		if err != nil {
			return nil, err
		}
		client := awslambda.NewFromConfig(awsCfg, func(o *awslambda.Options) {
			if awsOpts.Endpoint != "" {
				o.BaseEndpoint = aws.String(awsOpts.Endpoint)
			}
		})
		return NewLambdaInvoker(client, cfg.Lambda), nil

	case config.DownstreamHTTP:
		return DialHTTP(cfg.HTTP)

	case config.DownstreamNATS:
		nc, err := DialNATS(cfg.NATS)
		if err != nil {
			return nil, err
		}
		return NewNATSInvoker(nc, cfg.NATS), nil
	}
	return nil, fmt.Errorf("downstream: unknown type %q", cfg.Type)
}
