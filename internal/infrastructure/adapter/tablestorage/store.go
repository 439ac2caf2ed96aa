package tablestorage

import (
	"context"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/workscope/internal/domain/tracking"
)

// NewStoreFactory returns a handle factory that opens a new session per owning unit of work
func NewStoreFactory(backend *Backend, logger core.Logger, opts ...tracking.Option) persistence.HandleFactory[*tracking.Store[entity.TableKey]] {
	return func(ctx context.Context) (*tracking.Store[entity.TableKey], error) {
		return tracking.NewStore[entity.TableKey](backend.Open(), backend.timeProvider, logger, opts...), nil
	}
}
