// Package tracking implements the identity map and change tracker that sits between
// a unit of work and a table backend.
package tracking

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/amirhossein-jamali/workscope/internal/domain/batch"
	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

type recordKey[K entity.Key] struct {
	table string
	key   K
}

type record struct {
	entity any
	state  State
	seq    uint64
}

// Store tracks entity changes for one backend session and flushes them in batches.
// It is the resource handle a unit of work owns.
type Store[K entity.Key] struct {
	backend      persistence.TableBackend[K]
	timeProvider core.TimeProvider
	logger       core.Logger
	observer     FlushObserver
	maxOps       int
	fanOut       int

	flushLock *semaphore.Weighted

	mu      sync.Mutex
	records map[recordKey[K]]*record
	seq     uint64
	closed  bool

	ensureMu sync.Mutex
	ensured  map[string]bool
}

// Option configures a Store
type Option func(*storeOptions)

type storeOptions struct {
	observer FlushObserver
	maxOps   int
	fanOut   int
}

// WithObserver reports batch and flush timings to observer
func WithObserver(observer FlushObserver) Option {
	return func(o *storeOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithMaxOperations caps the batch size below the backend's own limit
func WithMaxOperations(maxOps int) Option {
	return func(o *storeOptions) {
		o.maxOps = maxOps
	}
}

// WithFanOut sets how many batches run concurrently within one wave
func WithFanOut(fanOut int) Option {
	return func(o *storeOptions) {
		o.fanOut = fanOut
	}
}

// NewStore creates an empty store writing through backend
func NewStore[K entity.Key](backend persistence.TableBackend[K], timeProvider core.TimeProvider, logger core.Logger, opts ...Option) *Store[K] {
	options := storeOptions{
		observer: noopObserver{},
		maxOps:   batch.DefaultMaxOperations,
		fanOut:   batch.DefaultFanOut,
	}
	for _, opt := range opts {
		opt(&options)
	}

	limits := backend.Limits()
	if limits.MaxOperations > 0 && (options.maxOps <= 0 || limits.MaxOperations < options.maxOps) {
		options.maxOps = limits.MaxOperations
	}
	if limits.MaxConcurrency > 0 && (options.fanOut <= 0 || limits.MaxConcurrency < options.fanOut) {
		options.fanOut = limits.MaxConcurrency
	}

	return &Store[K]{
		backend:      backend,
		timeProvider: timeProvider,
		logger:       logger,
		observer:     options.observer,
		maxOps:       options.maxOps,
		fanOut:       options.fanOut,
		flushLock:    semaphore.NewWeighted(1),
		records:      make(map[recordKey[K]]*record),
		ensured:      make(map[string]bool),
	}
}

func keyOf[K entity.Key](e entity.Entity[K]) recordKey[K] {
	return recordKey[K]{table: e.TableName(), key: e.Key()}
}

func (s *Store[K]) conflict(rk recordKey[K], current, requested State) error {
	return errs.NewTrackingConflictError(rk.table, fmt.Sprint(rk.key), current.String(), requested.String())
}

// track stores e under rk in state. Caller holds s.mu.
func (s *Store[K]) track(rk recordKey[K], e any, state State) {
	s.seq++
	s.records[rk] = &record{entity: e, state: state, seq: s.seq}
}

// RegisterNew tracks e as a new entity to insert on the next flush
//
// Possible errors:
// - ErrEntityAlreadyTracked: If e is already tracked in any state
func (s *Store[K]) RegisterNew(e entity.Entity[K]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rk := keyOf(e)
	if r, ok := s.records[rk]; ok {
		return s.conflict(rk, r.state, StateNew)
	}
	s.track(rk, e, StateNew)
	return nil
}

// RegisterClean tracks e as loaded and unchanged
//
// Possible errors:
// - ErrEntityAlreadyTracked: If e is already tracked in any state
func (s *Store[K]) RegisterClean(e entity.Entity[K]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rk := keyOf(e)
	if r, ok := s.records[rk]; ok {
		return s.conflict(rk, r.state, StateClean)
	}
	s.track(rk, e, StateClean)
	return nil
}

// RegisterDirty marks e as modified. A new entity stays new; a clean one becomes dirty.
//
// Possible errors:
// - ErrEntityAlreadyTracked: If e is tracked as removed
func (s *Store[K]) RegisterDirty(e entity.Entity[K]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rk := keyOf(e)
	r, ok := s.records[rk]
	if !ok {
		s.track(rk, e, StateDirty)
		return nil
	}

	switch r.state {
	case StateRemoved:
		return s.conflict(rk, r.state, StateDirty)
	case StateClean:
		s.track(rk, e, StateDirty)
	default:
		s.track(rk, e, r.state)
	}
	return nil
}

// RegisterRemoved marks e for deletion. A new entity that was never written is simply forgotten.
func (s *Store[K]) RegisterRemoved(e entity.Entity[K]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rk := keyOf(e)
	r, ok := s.records[rk]
	switch {
	case !ok:
		s.track(rk, e, StateRemoved)
	case r.state == StateNew:
		delete(s.records, rk)
	case r.state == StateRemoved:
	default:
		s.track(rk, e, StateRemoved)
	}
	return nil
}

// State returns the tracking state of e
func (s *Store[K]) State(e entity.Entity[K]) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[keyOf(e)]; ok {
		return r.state
	}
	return StateUntracked
}

// Counts returns how many entities are tracked per state
func (s *Store[K]) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Counts
	for _, r := range s.records {
		switch r.state {
		case StateNew:
			c.New++
		case StateDirty:
			c.Dirty++
		case StateClean:
			c.Clean++
		case StateRemoved:
			c.Removed++
		}
	}
	return c
}

// Len returns the number of tracked entities
func (s *Store[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// HasChanges reports whether a flush would write anything
func (s *Store[K]) HasChanges() bool {
	return s.Counts().Pending() > 0
}

func (s *Store[K]) lookup(table string, key K) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[recordKey[K]{table: table, key: key}]
	if !ok {
		return nil, false
	}
	return r.entity, true
}

// attachLoaded registers a freshly loaded entity as clean, or returns the one tracked meanwhile
func (s *Store[K]) attachLoaded(table string, key K, e any) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	rk := recordKey[K]{table: table, key: key}
	if r, ok := s.records[rk]; ok {
		return r.entity
	}
	s.track(rk, e, StateClean)
	return e
}

func (s *Store[K]) ensureTable(ctx context.Context, table string, sample any) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()

	if s.ensured[table] {
		return nil
	}
	if err := s.backend.EnsureTable(ctx, table, sample); err != nil {
		return fmt.Errorf("ensure table %s: %w", table, err)
	}
	s.ensured[table] = true
	return nil
}

func (s *Store[K]) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: store is closed", errs.ErrUnitOfWorkDisposed)
	}
	return nil
}

// BeginTransaction opens a backend transaction covering every later flush of this store
//
// Possible errors:
// - ErrTransactionsUnsupported: If the backend cannot run transactions
func (s *Store[K]) BeginTransaction(ctx context.Context) (persistence.Transaction, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	transactor, ok := s.backend.(persistence.Transactor)
	if !ok {
		return nil, errs.ErrTransactionsUnsupported
	}
	return transactor.BeginTransaction(ctx)
}

// Close drops every tracked entity and closes the backend session when it is closable
func (s *Store[K]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clear(s.records)
	s.mu.Unlock()

	if closer, ok := s.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
