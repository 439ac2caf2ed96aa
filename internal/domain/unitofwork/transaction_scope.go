package unitofwork

import (
	"context"
	"errors"
	"fmt"
	"sync"

	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

// Outcome is what a transaction body asks the scope to do with its transaction
type Outcome int

const (
	// Proceed commits when the root has committed and no child commit is pending
	Proceed Outcome = iota
	// Rollback rolls the transaction back without reporting an error
	Rollback
)

// ScopeState is the lifecycle state of a TransactionScope
type ScopeState int

const (
	ScopeIdle ScopeState = iota
	ScopeInTransaction
	ScopeCommitted
	ScopeRolledBack
)

// String returns the state name
func (s ScopeState) String() string {
	switch s {
	case ScopeIdle:
		return "idle"
	case ScopeInTransaction:
		return "in_transaction"
	case ScopeCommitted:
		return "committed"
	case ScopeRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Body is the work a TransactionScope runs. ctx carries the root unit of work, so units
// created from it in reuse mode join the transaction.
type Body[H persistence.TransactionalHandle] func(ctx context.Context, uow *UnitOfWork[H]) (Outcome, error)

// ScopeOption configures a TransactionScope
type ScopeOption func(*scopeOptions)

type scopeOptions struct {
	name          string
	afterCommit   func(ctx context.Context)
	afterRollback func(ctx context.Context)
}

// WithScopeName names the root unit of work of the scope
func WithScopeName(name string) ScopeOption {
	return func(o *scopeOptions) {
		o.name = name
	}
}

// WithAfterCommit runs fn once the backend transaction has committed
func WithAfterCommit(fn func(ctx context.Context)) ScopeOption {
	return func(o *scopeOptions) {
		o.afterCommit = fn
	}
}

// WithAfterRollback runs fn once the backend transaction has been rolled back
func WithAfterRollback(fn func(ctx context.Context)) ScopeOption {
	return func(o *scopeOptions) {
		o.afterRollback = fn
	}
}

// TransactionScope runs one body inside one backend transaction. It is single use.
type TransactionScope[H persistence.TransactionalHandle] struct {
	provider *Provider[H]
	logger   core.Logger
	options  scopeOptions

	mu    sync.Mutex
	state ScopeState
}

// NewTransactionScope creates an idle scope over provider
func NewTransactionScope[H persistence.TransactionalHandle](provider *Provider[H], opts ...ScopeOption) *TransactionScope[H] {
	var options scopeOptions
	for _, opt := range opts {
		opt(&options)
	}

	return &TransactionScope[H]{
		provider: provider,
		logger:   provider.logger,
		options:  options,
	}
}

// RunInTransaction runs body in a fresh transaction scope
func RunInTransaction[H persistence.TransactionalHandle](ctx context.Context, provider *Provider[H], body Body[H], opts ...ScopeOption) error {
	return NewTransactionScope(provider, opts...).Execute(ctx, body)
}

// State returns the scope state
func (s *TransactionScope[H]) State() ScopeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *TransactionScope[H]) setState(state ScopeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Execute creates an owning root unit of work, opens a backend transaction on its handle
// and runs body. The transaction commits only when the body succeeded, the root committed
// at least once, no child commit is left pending and nobody asked for a rollback.
//
// Possible errors:
// - ErrTransactionScopeCompleted: If the scope already ran
// - ErrChildCommitPending: If a nested unit of work committed after the root's last commit
// - any error returned by body, after the transaction was rolled back
func (s *TransactionScope[H]) Execute(ctx context.Context, body Body[H]) (err error) {
	s.mu.Lock()
	if s.state != ScopeIdle {
		s.mu.Unlock()
		return errs.ErrTransactionScopeCompleted
	}
	s.state = ScopeInTransaction
	s.mu.Unlock()

	ctx, root := s.provider.CreateWithOptions(ctx, Options{
		Mode: AlwaysCreateOwnContext,
		Name: s.options.name,
	})
	defer func() {
		if disposeErr := root.Dispose(ctx); disposeErr != nil {
			err = errors.Join(err, disposeErr)
		}
	}()

	handle, err := root.Handle(ctx)
	if err != nil {
		s.setState(ScopeRolledBack)
		return err
	}
	tx, err := handle.BeginTransaction(ctx)
	if err != nil {
		s.setState(ScopeRolledBack)
		return fmt.Errorf("begin transaction: %w", err)
	}
	root.enterTransaction()

	s.logger.Debug("Transaction started", map[string]any{
		"unit_of_work": root.ID(),
	})

	outcome, bodyErr := s.run(ctx, root, tx, body)
	return s.resolve(ctx, root, tx, outcome, bodyErr)
}

// run calls body and rolls the transaction back before re-raising a panic
func (s *TransactionScope[H]) run(ctx context.Context, root *UnitOfWork[H], tx persistence.Transaction, body Body[H]) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Transaction body panicked", map[string]any{
				"unit_of_work": root.ID(),
				"panic":        fmt.Sprint(r),
			})
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error("Failed to roll back transaction", map[string]any{
					"unit_of_work": root.ID(),
					"error":        rbErr.Error(),
				})
			}
			root.leaveTransaction()
			s.setState(ScopeRolledBack)
			panic(r)
		}
	}()

	return body(ctx, root)
}

func (s *TransactionScope[H]) resolve(ctx context.Context, root *UnitOfWork[H], tx persistence.Transaction, outcome Outcome, bodyErr error) error {
	fields := map[string]any{
		"unit_of_work": root.ID(),
		"commit_count": root.CommitCount(),
	}

	switch {
	case bodyErr != nil && !errs.IsRollbackRequested(bodyErr):
		fields["error"] = bodyErr.Error()
		s.logger.Warn("Transaction body failed, rolling back", fields)
		return s.rollback(ctx, root, tx, bodyErr)

	case outcome == Rollback || root.RollbackRequested() || bodyErr != nil:
		s.logger.Info("Transaction rollback requested", fields)
		return s.rollback(ctx, root, tx, nil)

	case root.CommitPending():
		s.logger.Error("Transaction has a child commit pending, rolling back", fields)
		return s.rollback(ctx, root, tx, errs.NewChildCommitPendingError(root.ID(), root.CommitCount()))

	case root.CommitCount() == 0:
		s.logger.Warn("Transaction body never committed, rolling back", fields)
		return s.rollback(ctx, root, tx, nil)
	}

	if err := tx.Commit(ctx); err != nil {
		fields["error"] = err.Error()
		s.logger.Error("Failed to commit transaction", fields)
		return s.rollback(ctx, root, tx, fmt.Errorf("commit transaction: %w", err))
	}
	root.leaveTransaction()
	s.setState(ScopeCommitted)
	s.logger.Debug("Transaction committed", fields)

	runActions(ctx, root.takeAfterCommit())
	if s.options.afterCommit != nil {
		s.options.afterCommit(ctx)
	}
	return nil
}

// rollback rolls tx back, fires the after-rollback hook and returns cause
func (s *TransactionScope[H]) rollback(ctx context.Context, root *UnitOfWork[H], tx persistence.Transaction, cause error) error {
	root.leaveTransaction()
	s.setState(ScopeRolledBack)

	// after-commit actions of a rolled back transaction never run
	root.takeAfterCommit()

	if err := tx.Rollback(ctx); err != nil {
		s.logger.Error("Failed to roll back transaction", map[string]any{
			"unit_of_work": root.ID(),
			"error":        err.Error(),
		})
		return errors.Join(cause, fmt.Errorf("rollback transaction: %w", err))
	}

	if s.options.afterRollback != nil {
		s.options.afterRollback(ctx)
	}
	return cause
}
