package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// Key is the identity of a tracked entity within its table.
// Partition returns the shard the backend batches on; keys that share a
// partition may be written in the same atomic batch.
type Key interface {
	comparable
	Partition() string
}

// HasKey is implemented by every entity that can be tracked
type HasKey[K Key] interface {
	Key() K
}

// Entity is a keyed value stored in a named table
type Entity[K Key] interface {
	HasKey[K]
	TableName() string
}

// TableKey is the composite identity used by table storage
type TableKey struct {
	PartitionKey string
	RowKey       string
}

// NewTableKey creates a table key
func NewTableKey(partitionKey, rowKey string) TableKey {
	return TableKey{PartitionKey: partitionKey, RowKey: rowKey}
}

// Partition returns the partition key
func (k TableKey) Partition() string {
	return k.PartitionKey
}

// String formats the key as partition|row
func (k TableKey) String() string {
	return fmt.Sprintf("%s|%s", k.PartitionKey, k.RowKey)
}

// IsZero reports whether both halves of the key are empty
func (k TableKey) IsZero() bool {
	return k.PartitionKey == "" && k.RowKey == ""
}

// RecordID is the primary key of a relational record.
// Relational tables have no partitions, so every record shares the empty one.
type RecordID string

// NewRecordID generates a random record ID
func NewRecordID() RecordID {
	return RecordID(uuid.NewString())
}

// Partition returns the empty partition
func (id RecordID) Partition() string {
	return ""
}

// String returns the raw ID
func (id RecordID) String() string {
	return string(id)
}
