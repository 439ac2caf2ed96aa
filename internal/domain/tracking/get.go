package tracking

import (
	"context"
	"fmt"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
)

// Get returns the entity of type T stored under key.
// The identity map is consulted first, in any tracking state; only when the key is untracked
// is the backend queried, and the loaded entity is then tracked as clean.
//
// Possible errors:
// - ErrEntityNotFound: If the backend has no entity under key
// - ErrEntityAlreadyTracked: If key is tracked with an entity of a different type
// - ErrBackendUnavailable: If the backend cannot be reached
func Get[T any, PT interface {
	*T
	entity.Entity[K]
}, K entity.Key](ctx context.Context, s *Store[K], key K) (PT, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	table := PT(new(T)).TableName()

	if tracked, ok := s.lookup(table, key); ok {
		return asType[PT](table, key, tracked)
	}

	dst := PT(new(T))
	if err := s.ensureTable(ctx, table, dst); err != nil {
		return nil, err
	}

	found, err := s.backend.Load(ctx, table, key, dst)
	if err != nil {
		return nil, fmt.Errorf("load %s/%v: %w", table, key, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s/%v", errs.ErrEntityNotFound, table, key)
	}

	return asType[PT](table, key, s.attachLoaded(table, key, dst))
}

func asType[PT any, K entity.Key](table string, key K, tracked any) (PT, error) {
	e, ok := tracked.(PT)
	if !ok {
		var zero PT
		return zero, fmt.Errorf("%w: %s/%v is tracked as %T", errs.ErrEntityAlreadyTracked, table, key, tracked)
	}
	return e, nil
}
