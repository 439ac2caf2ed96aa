package tablestorage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/workscope/internal/domain/scope"
	"github.com/amirhossein-jamali/workscope/internal/domain/tracking"
	"github.com/amirhossein-jamali/workscope/internal/domain/unitofwork"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/logger"
	timeadapter "github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/time"
)

const prefix = "test_"

func testConfig(atomic bool) Config {
	cfg := DefaultConfig()
	cfg.TablePrefix = prefix
	cfg.AtomicBatches = atomic
	cfg.RetryInterval = time.Millisecond
	cfg.MaxRetryInterval = 5 * time.Millisecond
	return cfg
}

func newTestBackend(api DynamoAPI, cfg Config) *Backend {
	return NewBackend(api, cfg, timeadapter.NewRealTimeProvider(), logger.NewNoopLogger())
}

func testNote(tenant, id string) *entity.Note {
	now := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	return &entity.Note{Tenant: tenant, ID: id, Title: "note " + id, Body: "body", CreatedAt: now, UpdatedAt: now}
}

func noteBatch(kind persistence.OperationKind, notes ...*entity.Note) persistence.Batch[entity.TableKey] {
	b := persistence.Batch[entity.TableKey]{Kind: kind, Table: entity.NotesTable}
	for _, n := range notes {
		b.PartitionKey = n.Tenant
		b.Operations = append(b.Operations, persistence.WriteOperation[entity.TableKey]{
			Kind: kind, Table: entity.NotesTable, Key: n.Key(), Entity: n,
		})
	}
	return b
}

func TestBackend_EnsureTable(t *testing.T) {
	t.Run("Creates missing table once", func(t *testing.T) {
		api := newFakeDynamo()
		backend := newTestBackend(api, testConfig(true))
		ctx := context.Background()

		require.NoError(t, backend.Open().EnsureTable(ctx, entity.NotesTable, &entity.Note{}))
		require.NoError(t, backend.Open().EnsureTable(ctx, entity.NotesTable, &entity.Note{}))

		assert.Equal(t, 1, api.createCalls)
		assert.Contains(t, api.tables, prefix+entity.NotesTable)
	})

	t.Run("Existing table is only described", func(t *testing.T) {
		api := newFakeDynamo(prefix + entity.NotesTable)
		backend := newTestBackend(api, testConfig(true))

		require.NoError(t, backend.Open().EnsureTable(context.Background(), entity.NotesTable, &entity.Note{}))

		assert.Equal(t, 0, api.createCalls)
		assert.Equal(t, 1, api.describeCalls)
	})

	t.Run("Describe failure is mapped", func(t *testing.T) {
		api := newFakeDynamo()
		backend := newTestBackend(&describeFailing{fakeDynamo: api}, testConfig(true))

		err := backend.Open().EnsureTable(context.Background(), entity.NotesTable, &entity.Note{})

		assert.ErrorIs(t, err, errs.ErrBackendUnavailable)
	})
}

type describeFailing struct {
	*fakeDynamo
}

func (d *describeFailing) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return nil, &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"}
}

func TestSession_AtomicBatches(t *testing.T) {
	api := newFakeDynamo(prefix + entity.NotesTable)
	backend := newTestBackend(api, testConfig(true))
	session := backend.Open()
	ctx := context.Background()

	require.NoError(t, session.ExecuteBatch(ctx, noteBatch(persistence.OperationInsert, testNote("t1", "a"), testNote("t1", "b"))))
	assert.Equal(t, 1, api.transactCalls)
	assert.Equal(t, 2, api.count(prefix+entity.NotesTable))

	err := session.ExecuteBatch(ctx, noteBatch(persistence.OperationInsert, testNote("t1", "b"), testNote("t1", "c")))
	assert.ErrorIs(t, err, errs.ErrDuplicateEntity)
	assert.Equal(t, 2, api.count(prefix+entity.NotesTable))

	changed := testNote("t1", "a")
	changed.Title = "changed"
	require.NoError(t, session.ExecuteBatch(ctx, noteBatch(persistence.OperationUpdate, changed)))
	require.NoError(t, session.ExecuteBatch(ctx, noteBatch(persistence.OperationDelete, testNote("t1", "b"))))

	var loaded entity.Note
	found, err := session.Load(ctx, entity.NotesTable, entity.NewTableKey("t1", "a"), &loaded)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "changed", loaded.Title)
	assert.Equal(t, "t1", loaded.Tenant)
	assert.True(t, loaded.CreatedAt.Equal(changed.CreatedAt))

	found, err = session.Load(ctx, entity.NotesTable, entity.NewTableKey("t1", "b"), &loaded)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSession_BatchWriteResubmitsUnprocessed(t *testing.T) {
	api := newFakeDynamo(prefix + entity.NotesTable)
	api.unprocessedRounds = 2
	backend := newTestBackend(api, testConfig(false))
	session := backend.Open()

	err := session.ExecuteBatch(context.Background(), noteBatch(persistence.OperationInsert,
		testNote("t1", "a"), testNote("t1", "b"), testNote("t1", "c")))

	require.NoError(t, err)
	assert.Equal(t, 3, api.batchCalls)
	assert.Equal(t, 3, api.count(prefix+entity.NotesTable))
}

func TestSession_BatchWriteGivesUp(t *testing.T) {
	api := newFakeDynamo(prefix + entity.NotesTable)
	api.unprocessedRounds = 10
	cfg := testConfig(false)
	cfg.MaxUnprocessedRetries = 1
	session := newTestBackend(api, cfg).Open()

	err := session.ExecuteBatch(context.Background(), noteBatch(persistence.OperationInsert, testNote("t1", "a"), testNote("t1", "b")))

	assert.ErrorIs(t, err, errs.ErrBackendUnavailable)
	assert.Equal(t, 2, api.batchCalls)
}

func TestSession_BatchWriteLimit(t *testing.T) {
	api := newFakeDynamo(prefix + entity.NotesTable)
	session := newTestBackend(api, testConfig(false)).Open()

	notes := make([]*entity.Note, 0, MaxBatchWriteItems+1)
	for i := 0; i <= MaxBatchWriteItems; i++ {
		notes = append(notes, testNote("t1", fmt.Sprintf("n-%02d", i)))
	}

	err := session.ExecuteBatch(context.Background(), noteBatch(persistence.OperationInsert, notes...))

	assert.ErrorIs(t, err, errs.ErrBatchTooLarge)
	assert.Equal(t, 0, api.batchCalls)
}

func TestSession_Limits(t *testing.T) {
	api := newFakeDynamo()

	assert.Equal(t, persistence.BatchLimits{MaxOperations: 100, MaxConcurrency: 3}, newTestBackend(api, testConfig(true)).Open().Limits())
	assert.Equal(t, 25, newTestBackend(api, testConfig(false)).Open().Limits().MaxOperations)

	cfg := testConfig(true)
	cfg.MaxBatchSize = 10
	assert.Equal(t, 10, newTestBackend(api, cfg).Open().Limits().MaxOperations)
}

func TestSession_Transaction(t *testing.T) {
	api := newFakeDynamo(prefix + entity.NotesTable)
	session := newTestBackend(api, testConfig(false)).Open()
	ctx := context.Background()

	tx, err := session.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = session.BeginTransaction(ctx)
	assert.Error(t, err)

	require.NoError(t, session.ExecuteBatch(ctx, noteBatch(persistence.OperationInsert, testNote("t1", "a"))))
	assert.Equal(t, 0, api.count(prefix+entity.NotesTable))

	var loaded entity.Note
	found, err := session.Load(ctx, entity.NotesTable, entity.NewTableKey("t1", "a"), &loaded)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "note a", loaded.Title)

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 1, api.transactCalls)
	assert.Equal(t, 0, api.batchCalls)
	assert.Equal(t, 1, api.count(prefix+entity.NotesTable))

	assert.ErrorIs(t, tx.Commit(ctx), errs.ErrInvalidRequest)

	tx, err = session.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, session.ExecuteBatch(ctx, noteBatch(persistence.OperationInsert, testNote("t1", "b"))))
	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, 1, api.count(prefix+entity.NotesTable))
	assert.Equal(t, 1, api.transactCalls)
}

func TestSession_TransactionKeepsOneOperationPerItem(t *testing.T) {
	ctx := context.Background()

	t.Run("Insert then update stays a guarded insert", func(t *testing.T) {
		api := newFakeDynamo(prefix + entity.NotesTable)
		session := newTestBackend(api, testConfig(false)).Open()

		tx, err := session.BeginTransaction(ctx)
		require.NoError(t, err)

		created := testNote("t1", "a")
		require.NoError(t, session.ExecuteBatch(ctx, noteBatch(persistence.OperationInsert, created)))
		renamed := *created
		renamed.Title = "renamed"
		require.NoError(t, session.ExecuteBatch(ctx, noteBatch(persistence.OperationUpdate, &renamed)))

		require.Len(t, tx.(*transaction).ops, 1)
		assert.Equal(t, persistence.OperationInsert, tx.(*transaction).ops[0].Kind)

		require.NoError(t, tx.Commit(ctx))
		assert.Equal(t, 1, api.transactCalls)

		var loaded entity.Note
		found, err := session.Load(ctx, entity.NotesTable, created.Key(), &loaded)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "renamed", loaded.Title)
	})

	t.Run("Guard still rejects an existing item", func(t *testing.T) {
		api := newFakeDynamo(prefix + entity.NotesTable)
		session := newTestBackend(api, testConfig(false)).Open()
		require.NoError(t, session.backend.transactWrite(ctx, noteBatch(persistence.OperationInsert, testNote("t1", "a")).Operations))

		tx, err := session.BeginTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, session.ExecuteBatch(ctx, noteBatch(persistence.OperationInsert, testNote("t1", "a"))))
		require.NoError(t, session.ExecuteBatch(ctx, noteBatch(persistence.OperationUpdate, testNote("t1", "a"))))

		assert.ErrorIs(t, tx.Commit(ctx), errs.ErrDuplicateEntity)
	})

	t.Run("Delete then insert becomes a plain put", func(t *testing.T) {
		api := newFakeDynamo(prefix + entity.NotesTable)
		session := newTestBackend(api, testConfig(false)).Open()
		require.NoError(t, session.backend.transactWrite(ctx, noteBatch(persistence.OperationInsert, testNote("t1", "a")).Operations))

		tx, err := session.BeginTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, session.ExecuteBatch(ctx, noteBatch(persistence.OperationDelete, testNote("t1", "a"))))
		require.NoError(t, session.ExecuteBatch(ctx, noteBatch(persistence.OperationInsert, testNote("t1", "a"))))

		require.NoError(t, tx.Commit(ctx))
		assert.Equal(t, 1, api.count(prefix+entity.NotesTable))
	})
}

func TestSession_TransactionTooLarge(t *testing.T) {
	api := newFakeDynamo(prefix + entity.NotesTable)
	session := newTestBackend(api, testConfig(true)).Open()
	ctx := context.Background()

	_, err := session.BeginTransaction(ctx)
	require.NoError(t, err)

	first := make([]*entity.Note, 0, 60)
	second := make([]*entity.Note, 0, 60)
	for i := 0; i < 60; i++ {
		first = append(first, testNote("t1", fmt.Sprintf("a-%02d", i)))
		second = append(second, testNote("t1", fmt.Sprintf("b-%02d", i)))
	}

	require.NoError(t, session.ExecuteBatch(ctx, noteBatch(persistence.OperationInsert, first...)))
	err = session.ExecuteBatch(ctx, noteBatch(persistence.OperationInsert, second...))
	assert.ErrorIs(t, err, errs.ErrTransactionTooLarge)
}

func TestMapError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected error
	}{
		{"Throttling", &smithy.GenericAPIError{Code: "ThrottlingException"}, errs.ErrBackendUnavailable},
		{"Validation", &smithy.GenericAPIError{Code: "ValidationException"}, errs.ErrInvalidRequest},
		{"Plain", errors.New("connection reset"), errs.ErrBackendUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := mapError("op", tc.err)
			assert.ErrorIs(t, mapped, tc.expected)
			assert.ErrorIs(t, mapped, tc.err)
		})
	}

	assert.NoError(t, mapError("op", nil))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Region = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.JitterFactor = 2
	assert.Error(t, cfg.Validate())
}

func TestStoreFactory_FlushThroughUnitOfWork(t *testing.T) {
	api := newFakeDynamo()
	backend := newTestBackend(api, testConfig(true))
	provider := unitofwork.NewProvider(scope.NewRegistry(), NewStoreFactory(backend, logger.NewNoopLogger()), logger.NewNoopLogger())

	ctx, root := provider.Create(context.Background())
	store, err := root.Handle(ctx)
	require.NoError(t, err)
	for i := 0; i < 150; i++ {
		require.NoError(t, store.RegisterNew(testNote("tenant-1", fmt.Sprintf("n-%03d", i))))
	}

	written, err := root.Commit(ctx)
	require.NoError(t, err)
	require.NoError(t, root.Dispose(ctx))

	assert.Equal(t, 150, written)
	assert.Equal(t, 2, api.transactCalls)
	assert.Equal(t, 150, api.count(prefix+entity.NotesTable))

	ctx, reader := provider.Create(context.Background())
	readStore, err := provider.Handle(ctx)
	require.NoError(t, err)
	loaded, err := tracking.Get[entity.Note](ctx, readStore, entity.NewTableKey("tenant-1", "n-042"))
	require.NoError(t, err)
	assert.Equal(t, "note n-042", loaded.Title)
	require.NoError(t, reader.Dispose(ctx))
}

func TestStoreFactory_TransactionScopeCommitsAtomically(t *testing.T) {
	api := newFakeDynamo(prefix + entity.NotesTable)
	backend := newTestBackend(api, testConfig(true))
	provider := unitofwork.NewProvider(scope.NewRegistry(), NewStoreFactory(backend, logger.NewNoopLogger()), logger.NewNoopLogger())

	err := unitofwork.RunInTransaction(context.Background(), provider, func(ctx context.Context, uow *unitofwork.UnitOfWork[*tracking.Store[entity.TableKey]]) (unitofwork.Outcome, error) {
		store, err := uow.Handle(ctx)
		if err != nil {
			return unitofwork.Proceed, err
		}
		for _, id := range []string{"a", "b", "c"} {
			if err := store.RegisterNew(testNote("t1", id)); err != nil {
				return unitofwork.Proceed, err
			}
		}
		_, err = uow.Commit(ctx)
		return unitofwork.Proceed, err
	})

	require.NoError(t, err)
	assert.Equal(t, 1, api.transactCalls)
	assert.Equal(t, 3, api.count(prefix+entity.NotesTable))
}

func TestInsertGuard(t *testing.T) {
	guard, err := insertGuard()

	require.NoError(t, err)
	assert.Contains(t, aws.ToString(guard.Condition()), "attribute_not_exists")
	assert.Contains(t, guard.Names(), "#0")
	assert.Equal(t, PartitionKeyAttribute, guard.Names()["#0"])
}
