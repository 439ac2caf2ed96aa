package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

var (
	_ persistence.TableBackend[entity.RecordID] = (*Session)(nil)
	_ persistence.Transactor                    = (*Session)(nil)
)

// Session is one tracking store's view of the relational database.
// Outside a transaction each batch runs in its own database transaction;
// inside one, every batch joins the open transaction.
type Session struct {
	manager *Manager

	mu sync.Mutex
	tx *gorm.DB
}

// EnsureTable creates or migrates the table for sample's model
func (s *Session) EnsureTable(ctx context.Context, table string, sample any) error {
	if sample == nil {
		return fmt.Errorf("%w: table %s needs a sample model to migrate", errs.ErrInvalidRequest, table)
	}
	return s.manager.ensureTable(ctx, table, sample)
}

// Load reads one record by primary key into dst
func (s *Session) Load(ctx context.Context, table string, key entity.RecordID, dst any) (bool, error) {
	db := s.conn(ctx)

	column, err := primaryKeyColumn(db, dst)
	if err != nil {
		return false, err
	}

	err = db.Table(table).Where(clause.Eq{Column: clause.Column{Name: column}, Value: key.String()}).Take(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.manager.errorMapper.MapError(err, "load "+table)
	}
	return true, nil
}

// ExecuteBatch applies every operation of the batch atomically
//
// Possible errors:
// - ErrDuplicateEntity: If an insert hits an existing primary key
// - ErrConstraintViolation: If a check or foreign key constraint fails
// - ErrBackendUnavailable: If the database cannot be reached
func (s *Session) ExecuteBatch(ctx context.Context, batch persistence.Batch[entity.RecordID]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if batch.Len() > s.manager.batchLimit() {
		return fmt.Errorf("%w: %d operations, limit %d", errs.ErrBatchTooLarge, batch.Len(), s.manager.batchLimit())
	}

	apply := func(tx *gorm.DB) error {
		for _, op := range batch.Operations {
			if err := s.apply(tx, op); err != nil {
				return err
			}
		}
		return nil
	}

	if tx := s.current(); tx != nil {
		return apply(tx.WithContext(ctx))
	}

	m := s.manager
	return RetryOnTransientError(ctx, m.retryConfig, func() error {
		return m.db.WithContext(ctx).Transaction(apply)
	}, m.errorMapper, m.timeProvider, m.logger)
}

func (s *Session) apply(tx *gorm.DB, op persistence.WriteOperation[entity.RecordID]) error {
	var result *gorm.DB
	switch op.Kind {
	case persistence.OperationInsert:
		result = tx.Table(op.Table).Create(op.Entity)
	case persistence.OperationUpdate:
		result = tx.Table(op.Table).Save(op.Entity)
	case persistence.OperationDelete:
		result = tx.Table(op.Table).Delete(op.Entity)
	default:
		return fmt.Errorf("%w: unknown operation %s", errs.ErrInvalidRequest, op.Kind)
	}

	if result.Error != nil {
		return s.manager.errorMapper.MapError(result.Error, fmt.Sprintf("%s %s/%s", op.Kind, op.Table, op.Key))
	}
	return nil
}

// Limits reports the configured batch size; a session holds one connection so batches run one at a time
func (s *Session) Limits() persistence.BatchLimits {
	return persistence.BatchLimits{
		MaxOperations:  s.manager.batchLimit(),
		MaxConcurrency: 1,
	}
}

// BeginTransaction starts a database transaction that later batches and loads join
func (s *Session) BeginTransaction(ctx context.Context) (persistence.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		return nil, fmt.Errorf("%w: a transaction is already active on this session", errs.ErrInvalidRequest)
	}

	m := s.manager
	m.logger.Debug("Beginning database transaction", map[string]any{"isolation": m.config.IsolationLevel})

	tx := m.db.WithContext(ctx).Begin(&sql.TxOptions{Isolation: m.config.Isolation()})
	if tx.Error != nil {
		m.logger.Error("Failed to begin transaction", map[string]any{"error": tx.Error.Error()})
		return nil, m.errorMapper.MapError(tx.Error, "begin transaction")
	}

	s.tx = tx
	return &transaction{session: s, tx: tx}, nil
}

// Close rolls back a transaction left open; the pool itself belongs to the manager
func (s *Session) Close() error {
	s.mu.Lock()
	tx := s.tx
	s.tx = nil
	s.mu.Unlock()

	if tx == nil {
		return nil
	}
	s.manager.logger.Warn("Closing session with an open transaction, rolling back", nil)
	return rollback(tx, s.manager)
}

func (s *Session) current() *gorm.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx
}

func (s *Session) conn(ctx context.Context) *gorm.DB {
	if tx := s.current(); tx != nil {
		return tx.WithContext(ctx)
	}
	return s.manager.db.WithContext(ctx)
}

func (s *Session) finish(tx *gorm.DB) bool {
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
	tx      *gorm.DB
}

// Commit commits the database transaction
func (t *transaction) Commit(ctx context.Context) error {
	if !t.session.finish(t.tx) {
		return fmt.Errorf("%w: transaction already finished", errs.ErrInvalidRequest)
	}

	m := t.session.manager
	m.logger.Debug("Committing database transaction", nil)
	if err := t.tx.Commit().Error; err != nil {
		m.logger.Error("Failed to commit transaction", map[string]any{"error": err.Error()})
		return m.errorMapper.MapError(err, "commit transaction")
	}
	return nil
}

// Rollback rolls the database transaction back; rolling back a finished transaction is a no-op
func (t *transaction) Rollback(ctx context.Context) error {
	if !t.session.finish(t.tx) {
		return nil
	}
	return rollback(t.tx, t.session.manager)
}

func rollback(tx *gorm.DB, m *Manager) error {
	m.logger.Debug("Rolling back database transaction", nil)

	err := tx.Rollback().Error
	if errors.Is(err, sql.ErrTxDone) || errors.Is(err, gorm.ErrInvalidTransaction) {
		m.logger.Warn("Transaction has already been committed or rolled back", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	if err != nil {
		m.logger.Error("Failed to rollback transaction", map[string]any{"error": err.Error()})
		return m.errorMapper.MapError(err, "rollback transaction")
	}
	return nil
}

// primaryKeyColumn resolves the primary key column of model's schema
func primaryKeyColumn(db *gorm.DB, model any) (string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return "", fmt.Errorf("%w: parse model: %w", errs.ErrInvalidRequest, err)
	}
	if stmt.Schema.PrioritizedPrimaryField == nil {
		return "", fmt.Errorf("%w: model %s has no primary key", errs.ErrInvalidRequest, stmt.Schema.Name)
	}
	return stmt.Schema.PrioritizedPrimaryField.DBName, nil
}
