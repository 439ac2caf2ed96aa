// Package batch splits pending writes into backend-legal batches and runs them with bounded fan-out.
package batch

import (
	"iter"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

// DefaultMaxOperations is the per-batch ceiling used when a backend reports none
const DefaultMaxOperations = 100

type groupKey struct {
	kind      persistence.OperationKind
	table     string
	partition string
}

// Chunks groups ops by operation kind, then by table and partition key, and slices every
// group into batches of at most maxOps operations. Kinds come out in insert, update, delete
// order; groups within a kind keep the order in which they first appear in ops.
// The sequence is lazy: each batch is cut when the consumer asks for it.
func Chunks[K entity.Key](ops []persistence.WriteOperation[K], maxOps int) iter.Seq[persistence.Batch[K]] {
	if maxOps <= 0 {
		maxOps = DefaultMaxOperations
	}

	return func(yield func(persistence.Batch[K]) bool) {
		groups := make(map[groupKey][]persistence.WriteOperation[K])
		order := make(map[persistence.OperationKind][]groupKey)

		for _, op := range ops {
			key := groupKey{kind: op.Kind, table: op.Table, partition: op.PartitionKey()}
			if _, seen := groups[key]; !seen {
				order[op.Kind] = append(order[op.Kind], key)
			}
			groups[key] = append(groups[key], op)
		}

		for _, kind := range []persistence.OperationKind{
			persistence.OperationInsert,
			persistence.OperationUpdate,
			persistence.OperationDelete,
		} {
			for _, key := range order[kind] {
				group := groups[key]
				for start := 0; start < len(group); start += maxOps {
					end := min(start+maxOps, len(group))
					b := persistence.Batch[K]{
						Kind:         key.kind,
						Table:        key.table,
						PartitionKey: key.partition,
						Operations:   group[start:end:end],
					}
					if !yield(b) {
						return
					}
				}
			}
		}
	}
}
