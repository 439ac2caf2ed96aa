package tablestorage

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

// insertGuard makes an insert fail when a row with the same key already exists
func insertGuard() (expression.Expression, error) {
	return expression.NewBuilder().
		WithCondition(expression.Name(PartitionKeyAttribute).AttributeNotExists()).
		Build()
}

// transactItems converts write operations into transaction actions
func (b *Backend) transactItems(ops []persistence.WriteOperation[entity.TableKey]) ([]types.TransactWriteItem, error) {
	guard, err := insertGuard()
	if err != nil {
		return nil, fmt.Errorf("build insert condition: %w", err)
	}

	items := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		table := aws.String(b.TableName(op.Table))

		if op.Kind == persistence.OperationDelete {
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{TableName: table, Key: keyAttributes(op.Key)},
			})
			continue
		}

		item, err := encodeItem(op.Key, op.Entity)
		if err != nil {
			return nil, err
		}
		put := &types.Put{TableName: table, Item: item}
		if op.Kind == persistence.OperationInsert {
			put.ConditionExpression = guard.Condition()
			put.ExpressionAttributeNames = guard.Names()
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}
	return items, nil
}

// transactWrite writes ops as one all-or-nothing request
func (b *Backend) transactWrite(ctx context.Context, ops []persistence.WriteOperation[entity.TableKey]) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > MaxTransactWriteItems {
		return fmt.Errorf("%w: %d operations, limit %d", errs.ErrTransactionTooLarge, len(ops), MaxTransactWriteItems)
	}

	items, err := b.transactItems(ops)
	if err != nil {
		return err
	}

	_, err = b.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	return mapError("transact write items", err)
}

// batchWrite writes ops with BatchWriteItem and resubmits whatever the service leaves unprocessed
func (b *Backend) batchWrite(ctx context.Context, batch persistence.Batch[entity.TableKey]) error {
	if batch.Len() > MaxBatchWriteItems {
		return fmt.Errorf("%w: %d operations, limit %d", errs.ErrBatchTooLarge, batch.Len(), MaxBatchWriteItems)
	}

	requests := make([]types.WriteRequest, 0, batch.Len())
	for _, op := range batch.Operations {
		if op.Kind == persistence.OperationDelete {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: keyAttributes(op.Key)},
			})
			continue
		}
		item, err := encodeItem(op.Key, op.Entity)
		if err != nil {
			return err
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	pending := map[string][]types.WriteRequest{b.TableName(batch.Table): requests}
	for attempt := 0; ; attempt++ {
		out, err := b.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return mapError("batch write item", err)
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}

		pending = out.UnprocessedItems
		if attempt >= b.config.MaxUnprocessedRetries {
			return fmt.Errorf("%w: %d items still unprocessed after %d attempts",
				errs.ErrBackendUnavailable, countRequests(pending), attempt+1)
		}

		backoff := calculateBackoffWithJitter(attempt, b.config)
		b.logger.Warn("Resubmitting unprocessed items", map[string]any{
			"table":       batch.Table,
			"attempt":     attempt + 1,
			"unprocessed": countRequests(pending),
			"retry_after": backoff.String(),
		})

		select {
		case <-b.timeProvider.After(core.Duration(backoff)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func countRequests(requests map[string][]types.WriteRequest) int {
	n := 0
	for _, r := range requests {
		n += len(r)
	}
	return n
}

// calculateBackoffWithJitter computes the backoff duration with exponential increase and jitter
func calculateBackoffWithJitter(attempt int, config Config) time.Duration {
	backoff := config.RetryInterval * (1 << uint(attempt))
	if backoff > config.MaxRetryInterval || backoff <= 0 {
		backoff = config.MaxRetryInterval
	}

	if config.JitterFactor > 0 {
		backoff += time.Duration(float64(backoff) * config.JitterFactor * rand.Float64())
	}
	return backoff
}
