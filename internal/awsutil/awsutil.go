// Package awsutil loads the aws.Config shared by the DynamoDB store and the
// Lambda invoker.
package awsutil

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/smithy-go"

	"github.com/wudi/hitcounter/config"
)

const defaultRegion = "us-east-1"

// Load resolves AWS settings. Region falls back to AWS_REGION and then
// us-east-1; static credentials are used only when both key parts are set.
//
// The SDK retryer is limited to a single attempt: a retried UpdateItem or
// Invoke would count or run the request twice.
func Load(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	region := cfg.Region
	if region == "" && os.Getenv("AWS_REGION") == "" && os.Getenv("AWS_DEFAULT_REGION") == "" {
		region = defaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(1),
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("aws: failed to load config: %w", err)
	}
	return awsCfg, nil
}

// ErrorCode returns the AWS API error code in err's chain, or "" when err
// did not come from an AWS API response.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// Throttled reports whether err is an AWS throttling response.
func Throttled(err error) bool {
	switch ErrorCode(err) {
	case "ThrottlingException", "ProvisionedThroughputExceededException",
		"RequestLimitExceeded", "TooManyRequestsException":
		return true
	}
	return false
}

// AccessDenied reports whether err is an AWS authorization failure.
func AccessDenied(err error) bool {
	switch ErrorCode(err) {
	case "AccessDeniedException", "UnrecognizedClientException", "AccessDenied":
		return true
	}
	return false
}
