package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

var errTransactionActive = errors.New("memory: a transaction is already active on this session")

var (
	_ persistence.TableBackend[entity.TableKey] = (*Session[entity.TableKey])(nil)
	_ persistence.Transactor                    = (*Session[entity.TableKey])(nil)
)

// Session is one store's view of a Database. Writes made while a transaction is open are
// buffered and applied together on commit.
type Session[K entity.Key] struct {
	db *Database[K]

	mu     sync.Mutex
	tx     *transaction[K]
	closed bool
}

// EnsureTable creates table when missing
func (s *Session[K]) EnsureTable(ctx context.Context, table string, sample any) error {
	s.db.ensure(table)
	return nil
}

// Load reads the committed row under key into dst; rows buffered in an open transaction win
func (s *Session[K]) Load(ctx context.Context, table string, key K, dst any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	tx := s.tx
	s.mu.Unlock()

	if tx != nil {
		if op, ok := tx.lookup(table, key); ok {
			if op.Kind == persistence.OperationDelete {
				return false, nil
			}
			return true, copyInto(dst, snapshot(op.Entity))
		}
	}
	return s.db.load(table, key, dst)
}

// ExecuteBatch applies b, or buffers it when a transaction is open
func (s *Session[K]) ExecuteBatch(ctx context.Context, b persistence.Batch[K]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	tx := s.tx
	s.mu.Unlock()

	if tx != nil {
		tx.add(b)
		return nil
	}
	return s.db.apply(b)
}

// Limits returns the database limits
func (s *Session[K]) Limits() persistence.BatchLimits {
	return s.db.limits
}

// BeginTransaction opens a buffered transaction
func (s *Session[K]) BeginTransaction(ctx context.Context) (persistence.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: session closed", errs.ErrBackendUnavailable)
	}
	if s.tx != nil {
		return nil, errTransactionActive
	}
	s.tx = &transaction[K]{session: s}
	return s.tx, nil
}

// Close discards any open transaction
func (s *Session[K]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tx = nil
	return nil
}

func (s *Session[K]) finish(tx *transaction[K]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != tx {
		return false
	}
	s.tx = nil
	return true
}

type transaction[K entity.Key] struct {
	session *Session[K]

	mu      sync.Mutex
	batches []persistence.Batch[K]
}

func (t *transaction[K]) add(b persistence.Batch[K]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches = append(t.batches, b)
}

// lookup returns the latest buffered operation for key
func (t *transaction[K]) lookup(table string, key K) (persistence.WriteOperation[K], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.batches) - 1; i >= 0; i-- {
		b := t.batches[i]
		if b.Table != table {
			continue
		}
		for j := len(b.Operations) - 1; j >= 0; j-- {
			if b.Operations[j].Key == key {
				return b.Operations[j], true
			}
		}
	}
	return persistence.WriteOperation[K]{}, false
}

func (t *transaction[K]) Commit(ctx context.Context) error {
	if !t.session.finish(t) {
		return fmt.Errorf("%w: transaction already finished", errs.ErrInvalidRequest)
	}
	t.mu.Lock()
	batches := t.batches
	t.batches = nil
	t.mu.Unlock()
	return t.session.db.apply(batches...)
}

func (t *transaction[K]) Rollback(ctx context.Context) error {
	if !t.session.finish(t) {
		return nil
	}
	t.mu.Lock()
	t.batches = nil
	t.mu.Unlock()
	return nil
}
