package tracking

import (
	"context"
	"fmt"

	"github.com/amirhossein-jamali/workscope/internal/domain/batch"
	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

type pendingWrite[K entity.Key] struct {
	rk  recordKey[K]
	seq uint64
}

var flushPhases = []struct {
	state State
	kind  persistence.OperationKind
}{
	{StateNew, persistence.OperationInsert},
	{StateDirty, persistence.OperationUpdate},
	{StateRemoved, persistence.OperationDelete},
}

// SaveChanges writes every pending entity: inserts first, then updates, then deletes.
// It returns the number of entities written.
//
// A phase is settled only when all of its batches succeed. A failure leaves earlier phases
// settled and durable; wrap the store in a backend transaction when all three phases must
// be atomic. After a complete flush the store tracks nothing written before the flush began.
func (s *Store[K]) SaveChanges(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if err := s.flushLock.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer s.flushLock.Release(1)

	started := s.timeProvider.Now()
	total, err := s.flush(ctx)
	s.observer.ObserveFlush(total, s.timeProvider.Since(started), err)

	if err != nil {
		s.logger.Error("Flush failed", map[string]any{
			"written": total,
			"error":   err.Error(),
		})
		return total, err
	}

	if total > 0 {
		s.logger.Debug("Flushed pending changes", map[string]any{
			"written":     total,
			"duration_ms": s.timeProvider.Since(started).Std().Milliseconds(),
		})
	}
	return total, nil
}

func (s *Store[K]) flush(ctx context.Context) (int, error) {
	s.mu.Lock()
	watermark := s.seq
	s.mu.Unlock()

	total := 0
	for _, phase := range flushPhases {
		ops, writes := s.collect(phase.state, phase.kind)
		if len(ops) == 0 {
			continue
		}

		ensured := make(map[string]bool)
		for _, op := range ops {
			if ensured[op.Table] {
				continue
			}
			if err := s.ensureTable(ctx, op.Table, op.Entity); err != nil {
				return total, err
			}
			ensured[op.Table] = true
		}

		if _, err := batch.Execute(ctx, batch.Chunks(ops, s.maxOps), s.fanOut, s.runBatch); err != nil {
			return total, fmt.Errorf("%s phase: %w", phase.kind, err)
		}

		s.settle(phase.kind, writes)
		total += len(ops)
	}

	s.dropClean(watermark)
	return total, nil
}

func (s *Store[K]) runBatch(ctx context.Context, b persistence.Batch[K]) error {
	started := s.timeProvider.Now()
	err := s.backend.ExecuteBatch(ctx, b)
	s.observer.ObserveBatch(b.Table, b.Kind, b.Len(), s.timeProvider.Since(started), err)
	return err
}

// collect snapshots the entities currently in state as write operations
func (s *Store[K]) collect(state State, kind persistence.OperationKind) ([]persistence.WriteOperation[K], []pendingWrite[K]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ops []persistence.WriteOperation[K]
	var writes []pendingWrite[K]
	for rk, r := range s.records {
		if r.state != state {
			continue
		}
		ops = append(ops, persistence.WriteOperation[K]{
			Kind:   kind,
			Table:  rk.table,
			Key:    rk.key,
			Entity: r.entity,
		})
		writes = append(writes, pendingWrite[K]{rk: rk, seq: r.seq})
	}
	return ops, writes
}

// settle moves written records out of their pending state.
// Records registered again while the phase ran keep their newer state.
func (s *Store[K]) settle(kind persistence.OperationKind, writes []pendingWrite[K]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		r, ok := s.records[w.rk]
		if !ok || r.seq != w.seq {
			continue
		}
		if kind == persistence.OperationDelete {
			delete(s.records, w.rk)
			continue
		}
		r.state = StateClean
	}
}

func (s *Store[K]) dropClean(watermark uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for rk, r := range s.records {
		if r.state == StateClean && r.seq <= watermark {
			delete(s.records, rk)
		}
	}
}
