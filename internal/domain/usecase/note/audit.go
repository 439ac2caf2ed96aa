package note

import (
	"context"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	"github.com/amirhossein-jamali/workscope/internal/domain/unitofwork"
)

// auditAfterCommit records the audit entries once the unit's changes are durable.
// A nested unit hands the action to its owner, so nothing is audited until the outermost commit.
func (u *NoteUseCase) auditAfterCommit(uow *noteUnit, action entity.AuditAction, keys ...entity.TableKey) {
	if u.audit == nil {
		return
	}

	unitID := uow.Root().ID()
	uow.RegisterAfterCommitAction(func(ctx context.Context) {
		if err := u.recordAudit(ctx, unitID, action, keys); err != nil {
			u.logger.Error("Failed to record audit entries", map[string]any{
				"action":       string(action),
				"entries":      len(keys),
				"unit_of_work": unitID,
				"error":        err.Error(),
			})
		}
	})
}

// recordAudit writes one audit entry per key in a single database transaction
func (u *NoteUseCase) recordAudit(ctx context.Context, unitID string, action entity.AuditAction, keys []entity.TableKey) error {
	scopeName := "audit-" + string(action)

	return unitofwork.RunInTransaction(ctx, u.audit, func(ctx context.Context, uow *unitofwork.UnitOfWork[*AuditStore]) (unitofwork.Outcome, error) {
		store, err := uow.Handle(ctx)
		if err != nil {
			return unitofwork.Proceed, err
		}
		for _, key := range keys {
			if err := store.RegisterNew(entity.NewAuditEntry(entity.NotesTable, key, action, unitID, u.timeProvider)); err != nil {
				return unitofwork.Proceed, err
			}
		}
		_, err = uow.Commit(ctx)
		return unitofwork.Proceed, err
	},
		unitofwork.WithScopeName(scopeName),
		unitofwork.WithAfterCommit(func(context.Context) { u.observe(scopeName, "committed") }),
		unitofwork.WithAfterRollback(func(context.Context) { u.observe(scopeName, "rolled_back") }),
	)
}

func (u *NoteUseCase) observe(scope, outcome string) {
	if u.observer != nil {
		u.observer.ObserveTransaction(scope, outcome)
	}
}
