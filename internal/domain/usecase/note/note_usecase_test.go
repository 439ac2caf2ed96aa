package note

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/workscope/internal/domain/scope"
	"github.com/amirhossein-jamali/workscope/internal/domain/unitofwork"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/logger"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/memory"
	timeadapter "github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/time"
	coremocks "github.com/amirhossein-jamali/workscope/mocks/port/core"
)

type fixture struct {
	notesDB  *memory.Database[entity.TableKey]
	auditDB  *memory.Database[entity.RecordID]
	notes    *NoteProvider
	observed map[string]int
	useCase  *NoteUseCase
}

type countingObserver map[string]int

func (c countingObserver) ObserveTransaction(scope, outcome string) {
	c[scope+":"+outcome]++
}

func newFixture(t *testing.T, log core.Logger) *fixture {
	t.Helper()

	timeProvider := timeadapter.NewRealTimeProvider()
	registry := scope.NewRegistry()
	notesDB := memory.NewDatabase[entity.TableKey](persistence.BatchLimits{}, log)
	auditDB := memory.NewDatabase[entity.RecordID](persistence.BatchLimits{}, log)

	notes := unitofwork.NewProvider(registry, memory.NewStoreFactory(notesDB, timeProvider, log), log)
	audit := unitofwork.NewProvider(registry, memory.NewStoreFactory(auditDB, timeProvider, log), log)
	observer := countingObserver{}

	return &fixture{
		notesDB:  notesDB,
		auditDB:  auditDB,
		notes:    notes,
		observed: observer,
		useCase:  NewNoteUseCase(notes, audit, timeProvider, log, WithTransactionObserver(observer)),
	}
}

func TestCreateNote(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates and audits the note", func(t *testing.T) {
		f := newFixture(t, logger.NewNoopLogger())

		note, err := f.useCase.CreateNote(ctx, "tenant-1", "  Groceries ", "milk")

		require.NoError(t, err)
		assert.Equal(t, "Groceries", note.Title)
		assert.Equal(t, 1, f.notesDB.Count(entity.NotesTable))
		assert.Equal(t, 1, f.auditDB.Count(entity.AuditEntriesTable))
		assert.Equal(t, 1, f.observed["audit-created:committed"])
	})

	t.Run("Invalid title creates nothing", func(t *testing.T) {
		f := newFixture(t, logger.NewNoopLogger())

		note, err := f.useCase.CreateNote(ctx, "tenant-1", "   ", "body")

		assert.ErrorIs(t, err, errs.ErrInvalidRequest)
		assert.Nil(t, note)
		assert.False(t, f.notesDB.HasTable(entity.NotesTable))
	})

	t.Run("Failed write is not audited", func(t *testing.T) {
		log := coremocks.NewMockLogger(t)
		log.EXPECT().Debug(mock.Anything, mock.Anything).Maybe()
		log.EXPECT().Warn(mock.Anything, mock.Anything).Maybe()
		log.EXPECT().Info(mock.Anything, mock.Anything).Maybe()
		log.EXPECT().Error("Failed to create note", mock.Anything).Once()
		log.EXPECT().Error(mock.Anything, mock.Anything).Maybe()

		f := newFixture(t, log)
		f.notesDB.FailOn = func(persistence.Batch[entity.TableKey]) error {
			return fmt.Errorf("%w: throttled", errs.ErrBackendUnavailable)
		}

		_, err := f.useCase.CreateNote(ctx, "tenant-1", "title", "body")

		assert.ErrorIs(t, err, errs.ErrBackendUnavailable)
		assert.Equal(t, 0, f.auditDB.Count(entity.AuditEntriesTable))
	})

	t.Run("Audit failure keeps the note", func(t *testing.T) {
		log := coremocks.NewMockLogger(t)
		log.EXPECT().Debug(mock.Anything, mock.Anything).Maybe()
		log.EXPECT().Warn(mock.Anything, mock.Anything).Maybe()
		log.EXPECT().Info(mock.Anything, mock.Anything).Maybe()
		log.EXPECT().Error("Failed to record audit entries", mock.Anything).Once()
		log.EXPECT().Error(mock.Anything, mock.Anything).Maybe()

		f := newFixture(t, log)
		f.auditDB.FailOn = func(persistence.Batch[entity.RecordID]) error {
			return errors.New("audit database down")
		}

		_, err := f.useCase.CreateNote(ctx, "tenant-1", "title", "body")

		require.NoError(t, err)
		assert.Equal(t, 1, f.notesDB.Count(entity.NotesTable))
		assert.Equal(t, 1, f.observed["audit-created:rolled_back"])
	})
}

func TestNoteLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, logger.NewNoopLogger())

	created, err := f.useCase.CreateNote(ctx, "tenant-1", "draft", "body")
	require.NoError(t, err)
	key := created.Key()

	renamed, err := f.useCase.RenameNote(ctx, key, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", renamed.Title)

	loaded, err := f.useCase.GetNote(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "final", loaded.Title)
	assert.False(t, loaded.Archived)

	archived, err := f.useCase.ArchiveNote(ctx, key)
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	_, err = f.useCase.ArchiveNote(ctx, key)
	require.NoError(t, err)

	require.NoError(t, f.useCase.DeleteNote(ctx, key))

	_, err = f.useCase.GetNote(ctx, key)
	assert.ErrorIs(t, err, errs.ErrEntityNotFound)
	assert.ErrorIs(t, f.useCase.DeleteNote(ctx, key), errs.ErrEntityNotFound)

	// created, updated, archived once, deleted
	assert.Equal(t, 4, f.auditDB.Count(entity.AuditEntriesTable))
	assert.Equal(t, 0, f.notesDB.Count(entity.NotesTable))
}

func TestRenameNote_InvalidTitle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, logger.NewNoopLogger())

	created, err := f.useCase.CreateNote(ctx, "tenant-1", "draft", "body")
	require.NoError(t, err)

	_, err = f.useCase.RenameNote(ctx, created.Key(), "")
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)

	loaded, err := f.useCase.GetNote(ctx, created.Key())
	require.NoError(t, err)
	assert.Equal(t, "draft", loaded.Title)
	assert.Equal(t, 1, f.auditDB.Count(entity.AuditEntriesTable))
}

func TestImportNotes(t *testing.T) {
	ctx := context.Background()

	t.Run("Large imports are chunked", func(t *testing.T) {
		f := newFixture(t, logger.NewNoopLogger())
		items := make([]ImportItem, 150)
		for i := range items {
			items[i] = ImportItem{Title: fmt.Sprintf("note %d", i)}
		}

		notes, err := f.useCase.ImportNotes(ctx, "tenant-1", items)

		require.NoError(t, err)
		assert.Len(t, notes, 150)
		assert.Equal(t, 150, f.notesDB.Count(entity.NotesTable))
		assert.Len(t, f.notesDB.Batches(), 2)
		assert.Equal(t, 150, f.auditDB.Count(entity.AuditEntriesTable))
		assert.Equal(t, 1, f.observed["audit-created:committed"])
	})

	t.Run("One invalid item imports nothing", func(t *testing.T) {
		f := newFixture(t, logger.NewNoopLogger())

		_, err := f.useCase.ImportNotes(ctx, "tenant-1", []ImportItem{{Title: "ok"}, {Title: ""}})

		assert.ErrorIs(t, err, errs.ErrInvalidRequest)
		assert.Contains(t, err.Error(), "item 1")
		assert.Equal(t, 0, f.notesDB.Count(entity.NotesTable))
	})

	t.Run("Empty and oversized imports are rejected", func(t *testing.T) {
		f := newFixture(t, logger.NewNoopLogger())

		_, err := f.useCase.ImportNotes(ctx, "tenant-1", nil)
		assert.ErrorIs(t, err, errs.ErrInvalidRequest)

		_, err = f.useCase.ImportNotes(ctx, "tenant-1", make([]ImportItem, MaxImportSize+1))
		assert.ErrorIs(t, err, errs.ErrInvalidRequest)
	})
}

func TestNestedInRequestUnit(t *testing.T) {
	f := newFixture(t, logger.NewNoopLogger())
	ctx, request := f.notes.Create(context.Background())

	first, err := f.useCase.CreateNote(ctx, "tenant-1", "first", "")
	require.NoError(t, err)
	_, err = f.useCase.CreateNote(ctx, "tenant-1", "second", "")
	require.NoError(t, err)

	// nested commits only mark the request unit; nothing is written or audited yet
	assert.Equal(t, 0, f.notesDB.Count(entity.NotesTable))
	assert.Equal(t, 0, f.auditDB.Count(entity.AuditEntriesTable))
	assert.True(t, request.CommitPending())

	// reads inside the request see the tracked note
	loaded, err := f.useCase.GetNote(ctx, first.Key())
	require.NoError(t, err)
	assert.Same(t, first, loaded)

	written, err := request.Commit(ctx)
	require.NoError(t, err)
	require.NoError(t, request.Dispose(ctx))

	assert.Equal(t, 2, written)
	assert.Equal(t, 2, f.notesDB.Count(entity.NotesTable))
	assert.Equal(t, 2, f.auditDB.Count(entity.AuditEntriesTable))
}

func TestImportNotes_LogsDeferredWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("Own unit reports the written count", func(t *testing.T) {
		log := coremocks.NewMockLogger(t)
		log.EXPECT().Debug(mock.Anything, mock.Anything).Maybe()
		log.EXPECT().Warn(mock.Anything, mock.Anything).Maybe()
		log.EXPECT().Info("Notes imported", map[string]any{
			"tenant":   "tenant-1",
			"count":    2,
			"deferred": false,
			"written":  2,
		}).Once()
		log.EXPECT().Info(mock.Anything, mock.Anything).Maybe()
		f := newFixture(t, log)

		_, err := f.useCase.ImportNotes(ctx, "tenant-1", []ImportItem{{Title: "a"}, {Title: "b"}})
		require.NoError(t, err)
	})

	t.Run("Request unit defers the write", func(t *testing.T) {
		log := coremocks.NewMockLogger(t)
		log.EXPECT().Debug(mock.Anything, mock.Anything).Maybe()
		log.EXPECT().Warn(mock.Anything, mock.Anything).Maybe()
		log.EXPECT().Info("Notes imported", map[string]any{
			"tenant":   "tenant-1",
			"count":    2,
			"deferred": true,
		}).Once()
		log.EXPECT().Info(mock.Anything, mock.Anything).Maybe()
		f := newFixture(t, log)

		requestCtx, request := f.notes.Create(ctx)
		_, err := f.useCase.ImportNotes(requestCtx, "tenant-1", []ImportItem{{Title: "a"}, {Title: "b"}})
		require.NoError(t, err)
		assert.Equal(t, 0, f.notesDB.Count(entity.NotesTable))

		_, err = request.Commit(requestCtx)
		require.NoError(t, err)
		require.NoError(t, request.Dispose(requestCtx))
		assert.Equal(t, 2, f.notesDB.Count(entity.NotesTable))
	})
}

func TestNestedInRequestUnit_DisposedWithoutCommit(t *testing.T) {
	f := newFixture(t, logger.NewNoopLogger())
	ctx, request := f.notes.Create(context.Background())

	_, err := f.useCase.CreateNote(ctx, "tenant-1", "lost", "")
	require.NoError(t, err)

	err = request.Dispose(ctx)

	assert.True(t, errs.IsChildCommitPendingError(err))
	assert.Equal(t, 0, f.notesDB.Count(entity.NotesTable))
	assert.Equal(t, 0, f.auditDB.Count(entity.AuditEntriesTable))
}
