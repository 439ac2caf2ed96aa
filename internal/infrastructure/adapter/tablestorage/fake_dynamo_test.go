package tablestorage

import (
	"context"
	"maps"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

type itemKey struct {
	partition string
	row       string
}

// fakeDynamo is an in-memory stand-in for the DynamoDB API
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]map[itemKey]map[string]types.AttributeValue

	describeCalls int
	createCalls   int
	batchCalls    int
	transactCalls int

	// unprocessedRounds is how many BatchWriteItem calls leave their last request unprocessed
	unprocessedRounds int
	err               error
}

func newFakeDynamo(tables ...string) *fakeDynamo {
	f := &fakeDynamo{tables: make(map[string]map[itemKey]map[string]types.AttributeValue)}
	for _, t := range tables {
		f.tables[t] = make(map[itemKey]map[string]types.AttributeValue)
	}
	return f
}

func keyFrom(item map[string]types.AttributeValue) itemKey {
	pk, _ := item[PartitionKeyAttribute].(*types.AttributeValueMemberS)
	rk, _ := item[RowKeyAttribute].(*types.AttributeValueMemberS)
	var k itemKey
	if pk != nil {
		k.partition = pk.Value
	}
	if rk != nil {
		k.row = rk.Value
	}
	return k
}

func (f *fakeDynamo) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	rows, ok := f.tables[aws.ToString(params.TableName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	return &dynamodb.GetItemOutput{Item: maps.Clone(rows[keyFrom(params.Key)])}, nil
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.err != nil {
		return nil, f.err
	}

	unprocessed := make(map[string][]types.WriteRequest)
	for table, requests := range params.RequestItems {
		rows, ok := f.tables[table]
		if !ok {
			return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
		}
		if f.unprocessedRounds > 0 && len(requests) > 0 {
			unprocessed[table] = requests[len(requests)-1:]
			requests = requests[:len(requests)-1]
		}
		for _, r := range requests {
			switch {
			case r.PutRequest != nil:
				rows[keyFrom(r.PutRequest.Item)] = maps.Clone(r.PutRequest.Item)
			case r.DeleteRequest != nil:
				delete(rows, keyFrom(r.DeleteRequest.Key))
			}
		}
	}
	if f.unprocessedRounds > 0 {
		f.unprocessedRounds--
	}
	return &dynamodb.BatchWriteItemOutput{UnprocessedItems: unprocessed}, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactCalls++
	if f.err != nil {
		return nil, f.err
	}

	type target struct {
		table string
		key   itemKey
	}
	seen := make(map[target]bool, len(params.TransactItems))
	for _, item := range params.TransactItems {
		var t target
		switch {
		case item.Put != nil:
			t = target{aws.ToString(item.Put.TableName), keyFrom(item.Put.Item)}
		case item.Delete != nil:
			t = target{aws.ToString(item.Delete.TableName), keyFrom(item.Delete.Key)}
		}
		if seen[t] {
			return nil, &smithy.GenericAPIError{
				Code:    "ValidationException",
				Message: "Transaction request cannot include multiple operations on one item",
			}
		}
		seen[t] = true
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, item := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if item.Put == nil || item.Put.ConditionExpression == nil {
			continue
		}
		if _, exists := f.tables[aws.ToString(item.Put.TableName)][keyFrom(item.Put.Item)]; exists {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, item := range params.TransactItems {
		switch {
		case item.Put != nil:
			f.tables[aws.ToString(item.Put.TableName)][keyFrom(item.Put.Item)] = maps.Clone(item.Put.Item)
		case item.Delete != nil:
			delete(f.tables[aws.ToString(item.Delete.TableName)], keyFrom(item.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeCalls++

	name := aws.ToString(params.TableName)
	if _, ok := f.tables[name]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableName: params.TableName, TableStatus: types.TableStatusActive},
	}, nil
}

func (f *fakeDynamo) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++

	name := aws.ToString(params.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("table exists")}
	}
	f.tables[name] = make(map[itemKey]map[string]types.AttributeValue)
	return &dynamodb.CreateTableOutput{
		TableDescription: &types.TableDescription{TableName: params.TableName, TableStatus: types.TableStatusActive},
	}, nil
}
