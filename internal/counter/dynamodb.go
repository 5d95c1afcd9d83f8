package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wudi/hitcounter/config"
)

const (
	attrPath = "path"
	attrHits = "hits"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoDBStore.
type DynamoDBAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoDBStore counts hits in a table keyed by "path" with a numeric
// "hits" attribute.
type DynamoDBStore struct {
	client  DynamoDBAPI
	table   string
	timeout time.Duration

	readCapacity  int64
	writeCapacity int64
	createWait    time.Duration
}

// NewDynamoDBStore creates a DynamoDB-backed store.
func NewDynamoDBStore(client DynamoDBAPI, cfg config.DynamoDBConfig, timeout time.Duration) *DynamoDBStore {
	rc := cfg.ReadCapacity
	if rc == 0 {
		rc = 5
	}
	wc := cfg.WriteCapacity
	if wc == 0 {
		wc = 5
	}
	return &DynamoDBStore{
		client:        client,
		table:         cfg.Table,
		timeout:       timeout,
		readCapacity:  rc,
		writeCapacity: wc,
		createWait:    2 * time.Minute,
	}
}

func (s *DynamoDBStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(parent, s.timeout)
	}
	return parent, func() {}
}

func pathKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPath: &types.AttributeValueMemberS{Value: key},
	}
}

// Increment issues UpdateItem with "ADD hits :incr". ADD treats a missing
// item or attribute as 0, so the first hit creates the record with 1.
func (s *DynamoDBStore) Increment(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              pathKey(key),
		UpdateExpression: aws.String("ADD #hits :incr"),
		ExpressionAttributeNames: map[string]string{
			"#hits": attrHits,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":incr": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("dynamodb: update %s %q: %w", s.table, key, err)
	}
	return hitsOf(out.Attributes)
}

func (s *DynamoDBStore) Get(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            pathKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("dynamodb: get %s %q: %w", s.table, key, err)
	}
	if out.Item == nil {
		return 0, nil
	}
	return hitsOf(out.Item)
}

// List scans the whole table. It is meant for the admin viewer, not the
// request path.
func (s *DynamoDBStore) List(ctx context.Context, limit int) ([]Record, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var records []Record
	p := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:            aws.String(s.table),
		ProjectionExpression: aws.String("#path, #hits"),
		ExpressionAttributeNames: map[string]string{
			"#path": attrPath,
			"#hits": attrHits,
		},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb: scan %s: %w", s.table, err)
		}
		for _, item := range page.Items {
			path, ok := item[attrPath].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			hits, err := hitsOf(item)
			if err != nil {
				return nil, err
			}
			records = append(records, Record{Path: path.Value, Hits: hits})
		}
	}
	return sortRecords(records, limit), nil
}

// EnsureSchema creates the hits table when it does not exist yet and waits
// for it to become active.
func (s *DynamoDBStore) EnsureSchema(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("dynamodb: describe %s: %w", s.table, err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPath), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPath), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModeProvisioned,
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(s.readCapacity),
			WriteCapacityUnits: aws.Int64(s.writeCapacity),
		},
		SSESpecification: &types.SSESpecification{
			Enabled: aws.Bool(true),
			SSEType: types.SSETypeKms,
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb: create %s: %w", s.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, s.createWait); err != nil {
		return fmt.Errorf("dynamodb: wait for %s: %w", s.table, err)
	}
	return nil
}

func (s *DynamoDBStore) Close() error { return nil }

func hitsOf(item map[string]types.AttributeValue) (int64, error) {
	av, ok := item[attrHits]
	if !ok {
		return 0, nil
	}
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("dynamodb: %s attribute is %T, want N", attrHits, av)
	}
	hits, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dynamodb: parse %s %q: %w", attrHits, n.Value, err)
	}
	return hits, nil
}
