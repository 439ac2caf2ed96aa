// Package unitofwork implements nested units of work that share one resource handle,
// and transaction scopes built on top of them.
package unitofwork

import (
	"context"
	"errors"
	"fmt"

	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

// Mode selects how a new unit of work obtains its resource handle
type Mode int

const (
	// ModeDefault uses the provider's configured mode
	ModeDefault Mode = iota
	// ReuseParentContext binds to the nearest enclosing unit of work of the same provider,
	// and owns a new handle only when there is none
	ReuseParentContext
	// AlwaysCreateOwnContext always owns a new handle
	AlwaysCreateOwnContext
)

// String returns the mode name used in configuration
func (m Mode) String() string {
	switch m {
	case ReuseParentContext:
		return "reuse"
	case AlwaysCreateOwnContext:
		return "own"
	default:
		return "default"
	}
}

// ParseMode maps a configuration value to a Mode
func ParseMode(value string) (Mode, error) {
	switch value {
	case "", "default":
		return ModeDefault, nil
	case "reuse":
		return ReuseParentContext, nil
	case "own":
		return AlwaysCreateOwnContext, nil
	default:
		return ModeDefault, fmt.Errorf("%w: unknown unit of work mode %q", errs.ErrInvalidRequest, value)
	}
}

// Options configures a single unit of work
type Options struct {
	Mode Mode
	Name string
}

// UnitOfWork is one scope of work against a resource handle of type H.
// An owning unit of work creates, saves and closes the handle; a bound one borrows the
// handle of its owning ancestor and only records commit requests on it.
type UnitOfWork[H persistence.ResourceHandle] struct {
	lifecycle

	provider *Provider[H]
	owner    *UnitOfWork[H]
	logger   core.Logger

	// owner-only state, guarded by lifecycle.mu
	handle            H
	handleCreated     bool
	commitCount       int
	commitPending     bool
	inTransaction     bool
	rollbackRequested bool
}

var _ persistence.UnitOfWork = (*UnitOfWork[persistence.ResourceHandle])(nil)

// OwnsResource reports whether this unit of work owns its handle
func (u *UnitOfWork[H]) OwnsResource() bool {
	return u.owner == nil
}

// Root returns the owning unit of work; an owner returns itself
func (u *UnitOfWork[H]) Root() *UnitOfWork[H] {
	if u.owner != nil {
		return u.owner
	}
	return u
}

// Handle returns the resource handle, creating it on the owner the first time it is needed
//
// Possible errors:
// - ErrUnitOfWorkDisposed: If this unit of work or its owner was disposed
func (u *UnitOfWork[H]) Handle(ctx context.Context) (H, error) {
	var zero H
	if u.IsDisposed() {
		return zero, fmt.Errorf("%w: %s", errs.ErrUnitOfWorkDisposed, u.id)
	}

	root := u.Root()
	root.mu.Lock()
	defer root.mu.Unlock()

	if root.disposed {
		return zero, fmt.Errorf("%w: owner %s", errs.ErrUnitOfWorkDisposed, root.id)
	}
	if root.handleCreated {
		return root.handle, nil
	}

	handle, err := root.provider.factory(ctx)
	if err != nil {
		return zero, fmt.Errorf("create resource handle: %w", err)
	}
	root.handle = handle
	root.handleCreated = true
	return handle, nil
}

// Commit persists the accumulated work when this unit of work owns its handle.
// A bound unit of work only counts the request on its owner, marks it pending, and hands
// over its after-commit actions; the owner must commit afterwards for the work to persist.
//
// Possible errors:
// - ErrUnitOfWorkDisposed: If the unit of work was already disposed
// - any error returned by the handle's SaveChanges
func (u *UnitOfWork[H]) Commit(ctx context.Context) (int, error) {
	if u.IsDisposed() {
		return 0, fmt.Errorf("%w: %s", errs.ErrUnitOfWorkDisposed, u.id)
	}

	if u.owner != nil {
		return 0, u.commitOnOwner()
	}

	u.mu.Lock()
	handle, created := u.handle, u.handleCreated
	u.mu.Unlock()

	written := 0
	if created {
		n, err := handle.SaveChanges(ctx)
		if err != nil {
			u.logger.Error("Failed to commit unit of work", map[string]any{
				"unit_of_work": u.id,
				"error":        err.Error(),
			})
			return n, err
		}
		written = n
	}

	u.mu.Lock()
	u.commitCount++
	u.commitPending = false
	inTransaction := u.inTransaction
	u.mu.Unlock()

	u.logger.Debug("Unit of work committed", map[string]any{
		"unit_of_work": u.id,
		"written":      written,
	})

	if !inTransaction {
		runActions(ctx, u.takeAfterCommit())
	}
	return written, nil
}

func (u *UnitOfWork[H]) commitOnOwner() error {
	actions := u.takeAfterCommit()

	owner := u.owner
	owner.mu.Lock()
	if owner.disposed {
		owner.mu.Unlock()
		return fmt.Errorf("%w: owner %s", errs.ErrUnitOfWorkDisposed, owner.id)
	}
	owner.commitCount++
	owner.commitPending = true
	owner.afterCommit = append(owner.afterCommit, actions...)
	owner.mu.Unlock()

	u.logger.Debug("Commit deferred to owning unit of work", map[string]any{
		"unit_of_work": u.id,
		"owner":        owner.id,
	})
	return nil
}

// CommitCount returns how many commits the owner has recorded, its own and its children's
func (u *UnitOfWork[H]) CommitCount() int {
	root := u.Root()
	root.mu.Lock()
	defer root.mu.Unlock()
	return root.commitCount
}

// CommitPending reports whether a bound unit of work committed after the owner's last commit
func (u *UnitOfWork[H]) CommitPending() bool {
	root := u.Root()
	root.mu.Lock()
	defer root.mu.Unlock()
	return root.commitPending
}

// InTransaction reports whether the owner runs inside a transaction scope
func (u *UnitOfWork[H]) InTransaction() bool {
	root := u.Root()
	root.mu.Lock()
	defer root.mu.Unlock()
	return root.inTransaction
}

func (u *UnitOfWork[H]) enterTransaction() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.inTransaction = true
}

// leaveTransaction ends the transaction; whatever was pending has been resolved by the scope
func (u *UnitOfWork[H]) leaveTransaction() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.inTransaction = false
	u.commitPending = false
}

// RequestRollback asks the enclosing transaction scope to roll back instead of committing
func (u *UnitOfWork[H]) RequestRollback() {
	root := u.Root()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.rollbackRequested = true
}

// RollbackTransaction requests a rollback and returns ErrRollbackRequested, for bodies that
// prefer to unwind by returning the error
func (u *UnitOfWork[H]) RollbackTransaction() error {
	u.RequestRollback()
	return errs.ErrRollbackRequested
}

// RollbackRequested reports whether any unit of work sharing this owner requested a rollback
func (u *UnitOfWork[H]) RollbackRequested() bool {
	root := u.Root()
	root.mu.Lock()
	defer root.mu.Unlock()
	return root.rollbackRequested
}

// Dispose ends the unit of work: it leaves the scope stack, and an owner closes its handle.
// Calling it again is a no-op.
//
// Possible errors:
// - ErrScopeNotDisposedCorrectly: If the unit of work is not the innermost active scope
// - ErrChildCommitPending: If an owner outside a transaction has a child commit it never followed
func (u *UnitOfWork[H]) Dispose(ctx context.Context) error {
	if !u.markDisposed() {
		return nil
	}

	var failures []error
	if err := u.runDisposing(); err != nil {
		u.logger.Warn("Unit of work left the scope stack out of order", map[string]any{
			"unit_of_work": u.id,
			"error":        err.Error(),
		})
		failures = append(failures, err)
	}

	if u.owner == nil {
		u.mu.Lock()
		pending := u.commitPending && !u.inTransaction
		commitCount := u.commitCount
		handle, created := u.handle, u.handleCreated
		var zero H
		u.handle, u.handleCreated = zero, false
		u.afterCommit = nil
		u.mu.Unlock()

		if pending {
			u.logger.Warn("Unit of work disposed with a child commit pending", map[string]any{
				"unit_of_work": u.id,
				"commit_count": commitCount,
			})
			failures = append(failures, errs.NewChildCommitPendingError(u.id, commitCount))
		}

		if created {
			if err := handle.Close(); err != nil {
				failures = append(failures, fmt.Errorf("close resource handle: %w", err))
			}
		}
	}

	u.logger.Debug("Unit of work disposed", map[string]any{
		"unit_of_work": u.id,
		"owner":        u.OwnsResource(),
	})
	return errors.Join(failures...)
}
