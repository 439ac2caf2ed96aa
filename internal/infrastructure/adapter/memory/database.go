// Package memory is an in-process table backend. It serves local runs and tests.
package memory

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

// Default limits, mirroring a table-storage service
const (
	DefaultMaxOperations  = 100
	DefaultMaxConcurrency = 3
)

// Database holds tables shared by every session opened on it
type Database[K entity.Key] struct {
	logger core.Logger
	limits persistence.BatchLimits

	mu      sync.RWMutex
	tables  map[string]map[K]reflect.Value
	batches []persistence.Batch[K]

	// FailOn, when set, is consulted before a batch is applied
	FailOn func(b persistence.Batch[K]) error
}

// NewDatabase creates an empty database; zero limits fall back to the defaults
func NewDatabase[K entity.Key](limits persistence.BatchLimits, logger core.Logger) *Database[K] {
	if limits.MaxOperations <= 0 {
		limits.MaxOperations = DefaultMaxOperations
	}
	if limits.MaxConcurrency <= 0 {
		limits.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Database[K]{
		logger: logger,
		limits: limits,
		tables: make(map[string]map[K]reflect.Value),
	}
}

// Open starts a session; sessions are the per-store backends
func (d *Database[K]) Open() *Session[K] {
	return &Session[K]{db: d}
}

// Batches returns a copy of every batch applied so far
func (d *Database[K]) Batches() []persistence.Batch[K] {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]persistence.Batch[K](nil), d.batches...)
}

// Count returns the number of rows in table
func (d *Database[K]) Count(table string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tables[table])
}

// HasTable reports whether table was created
func (d *Database[K]) HasTable(table string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.tables[table]
	return ok
}

func (d *Database[K]) ensure(table string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tables[table]; !ok {
		d.tables[table] = make(map[K]reflect.Value)
		d.logger.Debug("Created in-memory table", map[string]any{"table": table})
	}
}

func (d *Database[K]) load(table string, key K, dst any) (bool, error) {
	d.mu.RLock()
	row, ok := d.tables[table][key]
	d.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, copyInto(dst, row)
}

// apply writes batches atomically: either all of them are applied or none
func (d *Database[K]) apply(batches ...persistence.Batch[K]) error {
	for _, b := range batches {
		if d.FailOn != nil {
			if err := d.FailOn(b); err != nil {
				return err
			}
		}
		if len(b.Operations) > d.limits.MaxOperations {
			return fmt.Errorf("%w: %d operations, limit %d", errs.ErrBatchTooLarge, len(b.Operations), d.limits.MaxOperations)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, b := range batches {
		rows, ok := d.tables[b.Table]
		if !ok {
			return fmt.Errorf("%w: table %s does not exist", errs.ErrBackendUnavailable, b.Table)
		}
		for _, op := range b.Operations {
			if op.Kind == persistence.OperationInsert {
				if _, exists := rows[op.Key]; exists {
					return fmt.Errorf("%w: %s/%v", errs.ErrDuplicateEntity, b.Table, op.Key)
				}
			}
		}
	}

	for _, b := range batches {
		rows := d.tables[b.Table]
		for _, op := range b.Operations {
			if op.Kind == persistence.OperationDelete {
				delete(rows, op.Key)
				continue
			}
			rows[op.Key] = snapshot(op.Entity)
		}
		d.batches = append(d.batches, b)
	}
	return nil
}

// snapshot copies the value behind an entity pointer so later mutations do not leak in
func snapshot(e any) reflect.Value {
	v := reflect.ValueOf(e)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	c := reflect.New(v.Type()).Elem()
	c.Set(v)
	return c
}

func copyInto(dst any, row reflect.Value) error {
	target := reflect.ValueOf(dst)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return fmt.Errorf("%w: load target must be a non-nil pointer, got %T", errs.ErrInvalidRequest, dst)
	}
	if target.Elem().Type() != row.Type() {
		return fmt.Errorf("%w: cannot load %s into %T", errs.ErrInvalidRequest, row.Type(), dst)
	}
	target.Elem().Set(row)
	return nil
}
