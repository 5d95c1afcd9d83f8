package counter

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/wudi/hitcounter/config"
	"github.com/wudi/hitcounter/internal/awsutil"
)

// New builds the Store selected by cfg.Type. AWS configuration is only loaded for the
// DynamoDB backend.
func New(ctx context.Context, cfg config.StoreConfig, awsOpts config.AWSConfig) (Store, error) {
	switch cfg.Type {
	case config.StoreDynamoDB:
		awsCfg, err := awsutil.Load(ctx, awsOpts)
		if err != nil {
			return nil, err
		}
		return NewDynamoDBStore(newDynamoDBClient(awsCfg, awsOpts), cfg.DynamoDB, cfg.Timeout), nil

	case config.StoreRedis:
		client := NewRedisClient(cfg.Redis)
		return NewRedisStore(client, cfg.Redis.Prefix, cfg.Redis.Key, cfg.Timeout), nil

	case config.StorePostgres:
		db, err := OpenPostgres(cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(db, cfg.Postgres.Table, cfg.Timeout), nil

	case config.StoreMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("counter: unknown store type %q", cfg.Type)
}

func newDynamoDBClient(awsCfg aws.Config, opts config.AWSConfig) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
}
