package tablestorage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

var (
	_ persistence.TableBackend[entity.TableKey] = (*Session)(nil)
	_ persistence.Transactor                    = (*Session)(nil)
)

var errTransactionActive = errors.New("tablestorage: a transaction is already active on this session")

// Session is one tracking store's connection to table storage.
// While a transaction is open, batches are buffered and sent as one TransactWriteItems call.
type Session struct {
	backend *Backend

	mu sync.Mutex
	tx *transaction
}

// EnsureTable creates the table when it does not exist
func (s *Session) EnsureTable(ctx context.Context, table string, sample any) error {
	return s.backend.ensureTable(ctx, table)
}

// Load reads one entity; writes buffered in an open transaction are visible
func (s *Session) Load(ctx context.Context, table string, key entity.TableKey, dst any) (bool, error) {
	if tx := s.current(); tx != nil {
		if op, ok := tx.lookup(table, key); ok {
			if op.Kind == persistence.OperationDelete {
				return false, nil
			}
			return true, roundTrip(op.Entity, dst)
		}
	}
	return s.backend.getItem(ctx, table, key, dst)
}

// ExecuteBatch writes one batch, or buffers it when a transaction is open
//
// Possible errors:
// - ErrTransactionTooLarge: If the open transaction would exceed the service limit
// - ErrDuplicateEntity: If an atomic insert hits an existing row
// - ErrBackendUnavailable: If the service rejects the write
func (s *Session) ExecuteBatch(ctx context.Context, batch persistence.Batch[entity.TableKey]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if tx := s.current(); tx != nil {
		return tx.add(batch)
	}

	if s.backend.config.AtomicBatches {
		return s.backend.transactWrite(ctx, batch.Operations)
	}
	return s.backend.batchWrite(ctx, batch)
}

// Limits returns the per-batch ceiling of the configured write API
func (s *Session) Limits() persistence.BatchLimits {
	return persistence.BatchLimits{
		MaxOperations:  s.backend.config.batchLimit(),
		MaxConcurrency: s.backend.config.FanOut,
	}
}

// BeginTransaction opens a buffered transaction on this session
func (s *Session) BeginTransaction(ctx context.Context) (persistence.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		return nil, errTransactionActive
	}
	s.tx = &transaction{session: s}
	return s.tx, nil
}

// Close drops an open transaction; the DynamoDB client itself is shared and stays open
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx = nil
	return nil
}

func (s *Session) current() *transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx
}

func (s *Session) finish(tx *transaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != tx {
		return false
	}
	s.tx = nil
	return true
}

type transaction struct {
	session *Session

	mu  sync.Mutex
	ops []persistence.WriteOperation[entity.TableKey]
}

// add buffers batch, keeping at most one operation per item since TransactWriteItems
// rejects two actions on the same key
func (t *transaction) add(batch persistence.Batch[entity.TableKey]) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ops := slices.Clone(t.ops)
	for _, op := range batch.Operations {
		i := slices.IndexFunc(ops, func(o persistence.WriteOperation[entity.TableKey]) bool {
			return o.Table == op.Table && o.Key == op.Key
		})
		if i < 0 {
			ops = append(ops, op)
			continue
		}
		ops[i] = coalesce(ops[i], op)
	}

	if len(ops) > MaxTransactWriteItems {
		return fmt.Errorf("%w: %d buffered operations, limit %d",
			errs.ErrTransactionTooLarge, len(ops), MaxTransactWriteItems)
	}
	t.ops = ops
	return nil
}

// coalesce folds a later operation on the same item into the buffered one.
// An item inserted in this transaction keeps its insert guard when rewritten, and an
// item deleted earlier in it is written back with a plain put.
func coalesce(prev, next persistence.WriteOperation[entity.TableKey]) persistence.WriteOperation[entity.TableKey] {
	switch {
	case prev.Kind == persistence.OperationInsert && next.Kind == persistence.OperationUpdate:
		next.Kind = persistence.OperationInsert
	case prev.Kind == persistence.OperationDelete && next.Kind == persistence.OperationInsert:
		next.Kind = persistence.OperationUpdate
	}
	return next
}

func (t *transaction) lookup(table string, key entity.TableKey) (persistence.WriteOperation[entity.TableKey], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.ops) - 1; i >= 0; i-- {
		if t.ops[i].Table == table && t.ops[i].Key == key {
			return t.ops[i], true
		}
	}
	return persistence.WriteOperation[entity.TableKey]{}, false
}

// Commit sends every buffered operation in one TransactWriteItems call
func (t *transaction) Commit(ctx context.Context) error {
	if !t.session.finish(t) {
		return fmt.Errorf("%w: transaction already finished", errs.ErrInvalidRequest)
	}

	t.mu.Lock()
	ops := t.ops
	t.ops = nil
	t.mu.Unlock()

	return t.session.backend.transactWrite(ctx, ops)
}

// Rollback discards the buffered operations; nothing reached the service yet
func (t *transaction) Rollback(ctx context.Context) error {
	if !t.session.finish(t) {
		return nil
	}

	t.mu.Lock()
	t.ops = nil
	t.mu.Unlock()
	return nil
}

// roundTrip copies a buffered entity into dst through the item codec
func roundTrip(src, dst any) error {
	item, err := attributevalue.MarshalMap(src)
	if err != nil {
		return err
	}
	return attributevalue.UnmarshalMap(item, dst)
}
