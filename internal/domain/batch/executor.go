package batch

import (
	"context"
	"iter"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

// DefaultFanOut is the number of batches kept in flight when the caller does not choose one
const DefaultFanOut = 3

// RunFunc writes one batch to the backend
type RunFunc[K entity.Key] func(ctx context.Context, b persistence.Batch[K]) error

// Execute runs the batches of seq in waves of fanOut concurrent calls to run.
// ctx is checked before every wave, never in the middle of one, so batches that already
// completed stay durable when the flow is cancelled.
// It returns the number of batches that completed successfully.
func Execute[K entity.Key](ctx context.Context, seq iter.Seq[persistence.Batch[K]], fanOut int, run RunFunc[K]) (int, error) {
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}

	var completed atomic.Int64
	wave := make([]persistence.Batch[K], 0, fanOut)

	flush := func() error {
		if len(wave) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var g errgroup.Group
		for _, b := range wave {
			g.Go(func() error {
				if err := run(ctx, b); err != nil {
					return &errs.BatchError{
						Table:        b.Table,
						PartitionKey: b.PartitionKey,
						Operation:    b.Kind.String(),
						Size:         b.Len(),
						Err:          err,
					}
				}
				completed.Add(1)
				return nil
			})
		}
		err := g.Wait()
		wave = wave[:0]
		return err
	}

	for b := range seq {
		wave = append(wave, b)
		if len(wave) == fanOut {
			if err := flush(); err != nil {
				return int(completed.Load()), err
			}
		}
	}
	if err := flush(); err != nil {
		return int(completed.Load()), err
	}

	return int(completed.Load()), nil
}
