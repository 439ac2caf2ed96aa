package memory

import (
	"context"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/workscope/internal/domain/tracking"
)

// NewStoreFactory returns a handle factory that opens a fresh session per owning unit of work
func NewStoreFactory[K entity.Key](db *Database[K], timeProvider core.TimeProvider, logger core.Logger, opts ...tracking.Option) persistence.HandleFactory[*tracking.Store[K]] {
	return func(ctx context.Context) (*tracking.Store[K], error) {
		return tracking.NewStore[K](db.Open(), timeProvider, logger, opts...), nil
	}
}
