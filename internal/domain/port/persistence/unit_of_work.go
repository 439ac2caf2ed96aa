package persistence

import (
	"context"
)

// UnitOfWork is the lifecycle surface every unit of work exposes to the scope registry
// and to application code that does not care which resource it is bound to
type UnitOfWork interface {
	// ID returns the unique identifier of this unit of work
	ID() string

	// Commit persists the work accumulated so far and returns the number of entities written.
	// A unit of work that reuses an ancestor's resource only records the request on the owner.
	//
	// Possible errors:
	// - ErrUnitOfWorkDisposed: If the unit of work was already disposed
	// - ErrBackendUnavailable: If the backend write fails
	Commit(ctx context.Context) (int, error)

	// RegisterAfterCommitAction queues a callback that runs only after a real, successful commit
	RegisterAfterCommitAction(action func(ctx context.Context))

	// Dispose releases the unit of work. It is idempotent.
	//
	// Possible errors:
	// - ErrScopeNotDisposedCorrectly: If the unit of work is not the innermost active scope
	// - ErrChildCommitPending: If a nested commit was never acknowledged by this owner
	Dispose(ctx context.Context) error

	// IsDisposed reports whether Dispose has run
	IsDisposed() bool
}

// ResourceHandle is the live connection or session a unit of work owns or borrows
type ResourceHandle interface {
	// SaveChanges flushes pending changes and returns the number of entities written
	SaveChanges(ctx context.Context) (int, error)

	// Close releases the handle; it is called once, by the owning unit of work
	Close() error
}

// Transaction is a backend transaction opened on a resource handle
type Transaction interface {
	// Commit commits the transaction
	Commit(ctx context.Context) error

	// Rollback rolls back the transaction
	Rollback(ctx context.Context) error
}

// Transactor is implemented by handles and backends that can open transactions
type Transactor interface {
	// BeginTransaction starts a new backend transaction
	//
	// Possible errors:
	// - ErrTransactionsUnsupported: If the backend has no transaction support
	BeginTransaction(ctx context.Context) (Transaction, error)
}

// TransactionalHandle is a resource handle that can open backend transactions
type TransactionalHandle interface {
	ResourceHandle
	Transactor
}

// HandleFactory creates a fresh resource handle for an owning unit of work
type HandleFactory[H ResourceHandle] func(ctx context.Context) (H, error)
