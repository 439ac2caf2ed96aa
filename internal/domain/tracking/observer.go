package tracking

import (
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

// FlushObserver receives timings for every batch and every flush a store runs
type FlushObserver interface {
	ObserveBatch(table string, kind persistence.OperationKind, size int, duration core.Duration, err error)
	ObserveFlush(entities int, duration core.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveBatch(string, persistence.OperationKind, int, core.Duration, error) {}

func (noopObserver) ObserveFlush(int, core.Duration, error) {}
