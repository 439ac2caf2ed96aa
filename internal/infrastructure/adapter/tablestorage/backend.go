// Package tablestorage is the DynamoDB table backend. Entities live in tables keyed by
// a PartitionKey hash key and a RowKey range key.
package tablestorage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
)

// Key attribute names shared by every table
const (
	PartitionKeyAttribute = "PartitionKey"
	RowKeyAttribute       = "RowKey"
)

// DynamoAPI is the part of the DynamoDB client the backend calls
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// Backend is shared by every session of one DynamoDB account
type Backend struct {
	api          DynamoAPI
	config       Config
	timeProvider core.TimeProvider
	logger       core.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

// NewBackend creates a backend over api
func NewBackend(api DynamoAPI, config Config, timeProvider core.TimeProvider, logger core.Logger) *Backend {
	return &Backend{
		api:          api,
		config:       config,
		timeProvider: timeProvider,
		logger:       logger,
		ensured:      make(map[string]bool),
	}
}

// Open starts a session; each tracking store gets its own
func (b *Backend) Open() *Session {
	return &Session{backend: b}
}

// TableName returns the physical name of a logical table
func (b *Backend) TableName(table string) string {
	return b.config.TablePrefix + table
}

// ensureTable creates the table when it does not exist and waits until it is active
func (b *Backend) ensureTable(ctx context.Context, table string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ensured[table] {
		return nil
	}

	name := b.TableName(table)
	_, err := b.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	switch {
	case err == nil:
		b.ensured[table] = true
		return nil
	case !isTableNotFound(err):
		return mapError("describe table "+name, err)
	}

	b.logger.Info("Creating table", map[string]any{"table": name})

	_, err = b.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(PartitionKeyAttribute), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(RowKeyAttribute), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(PartitionKeyAttribute), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(RowKeyAttribute), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return mapError("create table "+name, err)
		}
	}

	timeout := b.config.TableWaitTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().TableWaitTimeout
	}
	waiter := dynamodb.NewTableExistsWaiter(b.api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, timeout); err != nil {
		return mapError("wait for table "+name, err)
	}

	b.ensured[table] = true
	return nil
}

func (b *Backend) getItem(ctx context.Context, table string, key entity.TableKey, dst any) (bool, error) {
	out, err := b.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.TableName(table)),
		Key:            keyAttributes(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, mapError("get item", err)
	}
	if len(out.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(out.Item, dst); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", table, key, err)
	}
	return true, nil
}

func keyAttributes(key entity.TableKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		PartitionKeyAttribute: &types.AttributeValueMemberS{Value: key.PartitionKey},
		RowKeyAttribute:       &types.AttributeValueMemberS{Value: key.RowKey},
	}
}

// encodeItem marshals e and stamps the key attributes, which always win over entity fields
func encodeItem(key entity.TableKey, e any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	for name, value := range keyAttributes(key) {
		item[name] = value
	}
	return item, nil
}
