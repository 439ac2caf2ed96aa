package persistence

import (
	"context"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
)

// OperationKind is the kind of write a batch performs
type OperationKind int

// Operation kinds, in flush order
const (
	OperationInsert OperationKind = iota
	OperationUpdate
	OperationDelete
)

// String returns the lowercase name of the operation kind
func (k OperationKind) String() string {
	switch k {
	case OperationInsert:
		return "insert"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// WriteOperation is one pending write against a table
type WriteOperation[K entity.Key] struct {
	Kind   OperationKind
	Table  string
	Key    K
	Entity any
}

// PartitionKey returns the partition the operation belongs to
func (o WriteOperation[K]) PartitionKey() string {
	return o.Key.Partition()
}

// Batch is a backend-legal group of writes: one kind, one table, one partition
type Batch[K entity.Key] struct {
	Kind         OperationKind
	Table        string
	PartitionKey string
	Operations   []WriteOperation[K]
}

// Len returns the number of operations in the batch
func (b Batch[K]) Len() int {
	return len(b.Operations)
}

// BatchLimits describes what a backend accepts per batch and how many batches may run at once
type BatchLimits struct {
	MaxOperations  int
	MaxConcurrency int
}

// TableBackend is the storage driver boundary the change-tracking store writes through
type TableBackend[K entity.Key] interface {
	// EnsureTable opens or creates the named table. sample is an entity of the table's type.
	//
	// Possible errors:
	// - ErrBackendUnavailable: If the backend cannot be reached
	EnsureTable(ctx context.Context, table string, sample any) error

	// Load reads the entity stored under key into dst and reports whether it exists
	//
	// Possible errors:
	// - ErrBackendUnavailable: If the backend cannot be reached
	Load(ctx context.Context, table string, key K, dst any) (bool, error)

	// ExecuteBatch writes one legal batch
	//
	// Possible errors:
	// - ErrBatchTooLarge: If the batch exceeds the backend's limit
	// - ErrDuplicateEntity: If an insert hits an existing key
	// - ErrBackendUnavailable: If the backend cannot be reached
	ExecuteBatch(ctx context.Context, batch Batch[K]) error

	// Limits returns the backend's batching constraints
	Limits() BatchLimits
}
