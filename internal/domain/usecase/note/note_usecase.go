package note

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/tracking"
	"github.com/amirhossein-jamali/workscope/internal/domain/unitofwork"
)

// MaxImportSize bounds the number of notes one import may create
const MaxImportSize = 1000

type (
	// NoteStore tracks notes in table storage
	NoteStore = tracking.Store[entity.TableKey]
	// AuditStore tracks audit entries in the relational database
	AuditStore = tracking.Store[entity.RecordID]
	// NoteProvider creates units of work over table storage
	NoteProvider = unitofwork.Provider[*NoteStore]
	// AuditProvider creates units of work over the relational database
	AuditProvider = unitofwork.Provider[*AuditStore]
)

// TransactionObserver is told how each audit transaction scope ended
type TransactionObserver interface {
	ObserveTransaction(scope, outcome string)
}

// ImportItem is one note of a bulk import
type ImportItem struct {
	Title string
	Body  string
}

// NoteUseCase handles note-related business logic.
// Notes live in table storage; every mutation is audited in the relational
// database once the note's unit of work has committed.
type NoteUseCase struct {
	notes        *NoteProvider
	audit        *AuditProvider
	timeProvider core.TimeProvider
	logger       core.Logger
	observer     TransactionObserver
}

// Option configures a NoteUseCase
type Option func(*NoteUseCase)

// WithTransactionObserver reports audit transaction outcomes to observer
func WithTransactionObserver(observer TransactionObserver) Option {
	return func(u *NoteUseCase) {
		u.observer = observer
	}
}

// NewNoteUseCase creates a new NoteUseCase; a nil audit provider disables auditing
func NewNoteUseCase(
	notes *NoteProvider,
	audit *AuditProvider,
	timeProvider core.TimeProvider,
	logger core.Logger,
	opts ...Option,
) *NoteUseCase {
	u := &NoteUseCase{
		notes:        notes,
		audit:        audit,
		timeProvider: timeProvider,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type noteUnit = unitofwork.UnitOfWork[*NoteStore]

// inUnit runs fn inside a notes unit of work that joins any unit already in ctx.
// When commit is set the unit commits after fn succeeds.
func (u *NoteUseCase) inUnit(ctx context.Context, commit bool, fn func(ctx context.Context, uow *noteUnit, store *NoteStore) error) (err error) {
	ctx, uow := u.notes.Create(ctx)
	defer func() {
		err = errors.Join(err, uow.Dispose(ctx))
	}()

	store, err := uow.Handle(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, uow, store); err != nil {
		return err
	}
	if commit {
		_, err = uow.Commit(ctx)
	}
	return err
}

// CreateNote creates a note for tenant
func (u *NoteUseCase) CreateNote(ctx context.Context, tenant, title, body string) (*entity.Note, error) {
	note, err := entity.NewNote(tenant, title, body, u.timeProvider)
	if err != nil {
		return nil, err
	}

	err = u.inUnit(ctx, true, func(ctx context.Context, uow *noteUnit, store *NoteStore) error {
		if err := store.RegisterNew(note); err != nil {
			return err
		}
		u.auditAfterCommit(uow, entity.AuditCreated, note.Key())
		return nil
	})
	if err != nil {
		u.logger.Error("Failed to create note", map[string]any{
			"tenant": note.Tenant,
			"error":  err.Error(),
		})
		return nil, err
	}

	u.logger.Info("Note created", map[string]any{
		"tenant":  note.Tenant,
		"note_id": note.ID,
	})
	return note, nil
}

// GetNote returns a note by key
//
// Possible errors:
// - ErrEntityNotFound: If no note has the key
func (u *NoteUseCase) GetNote(ctx context.Context, key entity.TableKey) (*entity.Note, error) {
	var note *entity.Note
	err := u.inUnit(ctx, false, func(ctx context.Context, _ *noteUnit, store *NoteStore) error {
		var err error
		note, err = tracking.Get[entity.Note](ctx, store, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// RenameNote changes the title of a note
func (u *NoteUseCase) RenameNote(ctx context.Context, key entity.TableKey, title string) (*entity.Note, error) {
	var note *entity.Note
	err := u.inUnit(ctx, true, func(ctx context.Context, uow *noteUnit, store *NoteStore) error {
		var err error
		if note, err = tracking.Get[entity.Note](ctx, store, key); err != nil {
			return err
		}
		if err := note.Rename(title, u.timeProvider); err != nil {
			return err
		}
		if err := store.RegisterDirty(note); err != nil {
			return err
		}
		u.auditAfterCommit(uow, entity.AuditUpdated, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// ArchiveNote archives a note; archiving an archived note changes nothing and is not audited
func (u *NoteUseCase) ArchiveNote(ctx context.Context, key entity.TableKey) (*entity.Note, error) {
	var note *entity.Note
	err := u.inUnit(ctx, true, func(ctx context.Context, uow *noteUnit, store *NoteStore) error {
		var err error
		if note, err = tracking.Get[entity.Note](ctx, store, key); err != nil {
			return err
		}
		if !note.Archive(u.timeProvider) {
			return nil
		}
		if err := store.RegisterDirty(note); err != nil {
			return err
		}
		u.auditAfterCommit(uow, entity.AuditArchived, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// DeleteNote removes a note
//
// Possible errors:
// - ErrEntityNotFound: If no note has the key
func (u *NoteUseCase) DeleteNote(ctx context.Context, key entity.TableKey) error {
	err := u.inUnit(ctx, true, func(ctx context.Context, uow *noteUnit, store *NoteStore) error {
		note, err := tracking.Get[entity.Note](ctx, store, key)
		if err != nil {
			return err
		}
		if err := store.RegisterRemoved(note); err != nil {
			return err
		}
		u.auditAfterCommit(uow, entity.AuditDeleted, key)
		return nil
	})
	if err != nil {
		return err
	}

	u.logger.Info("Note deleted", map[string]any{
		"tenant":  key.PartitionKey,
		"note_id": key.RowKey,
	})
	return nil
}

// ImportNotes creates every item for tenant in one unit of work.
// Items are validated up front so an invalid item creates nothing.
func (u *NoteUseCase) ImportNotes(ctx context.Context, tenant string, items []ImportItem) ([]*entity.Note, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: nothing to import", errs.ErrInvalidRequest)
	}
	if len(items) > MaxImportSize {
		return nil, fmt.Errorf("%w: %d notes exceed the import limit of %d", errs.ErrInvalidRequest, len(items), MaxImportSize)
	}

	notes := make([]*entity.Note, 0, len(items))
	keys := make([]entity.TableKey, 0, len(items))
	for i, item := range items {
		note, err := entity.NewNote(tenant, item.Title, item.Body, u.timeProvider)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		notes = append(notes, note)
		keys = append(keys, note.Key())
	}

	var written int
	var deferred bool
	err := u.inUnit(ctx, false, func(ctx context.Context, uow *noteUnit, store *NoteStore) error {
		for _, note := range notes {
			if err := store.RegisterNew(note); err != nil {
				return err
			}
		}
		u.auditAfterCommit(uow, entity.AuditCreated, keys...)

		var err error
		deferred = !uow.OwnsResource()
		written, err = uow.Commit(ctx)
		return err
	})
	if err != nil {
		u.logger.Error("Failed to import notes", map[string]any{
			"tenant": tenant,
			"count":  len(items),
			"error":  err.Error(),
		})
		return nil, err
	}

	fields := map[string]any{
		"tenant":   tenant,
		"count":    len(notes),
		"deferred": deferred,
	}
	// a deferred import is written when the enclosing unit of work commits
	if !deferred {
		fields["written"] = written
	}
	u.logger.Info("Notes imported", fields)
	return notes, nil
}
