package database

import (
	"context"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/workscope/internal/domain/tracking"
)

// NewStoreFactory returns a handle factory that opens a relational tracking store per root unit of work
func NewStoreFactory(manager *Manager, logger core.Logger, opts ...tracking.Option) persistence.HandleFactory[*tracking.Store[entity.RecordID]] {
	return func(ctx context.Context) (*tracking.Store[entity.RecordID], error) {
		return tracking.NewStore[entity.RecordID](manager.Open(), manager.timeProvider, logger, opts...), nil
	}
}
