package unitofwork

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/workscope/internal/domain/scope"
	coremocks "github.com/amirhossein-jamali/workscope/mocks/port/core"
)

type fakeTransaction struct {
	commits   int
	rollbacks int
}

func (t *fakeTransaction) Commit(ctx context.Context) error {
	t.commits++
	return nil
}

func (t *fakeTransaction) Rollback(ctx context.Context) error {
	t.rollbacks++
	return nil
}

// fakeHandle counts saves and closes; pending is what the next SaveChanges reports as written
type fakeHandle struct {
	mu       sync.Mutex
	pending  int
	saves    int
	closes   int
	saveErr  error
	beginErr error
	txs      []*fakeTransaction
}

func (h *fakeHandle) SaveChanges(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saves++
	if h.saveErr != nil {
		return 0, h.saveErr
	}
	n := h.pending
	h.pending = 0
	return n, nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return nil
}

func (h *fakeHandle) BeginTransaction(ctx context.Context) (persistence.Transaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.beginErr != nil {
		return nil, h.beginErr
	}
	tx := &fakeTransaction{}
	h.txs = append(h.txs, tx)
	return tx, nil
}

func (h *fakeHandle) lastTx() *fakeTransaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.txs) == 0 {
		return nil
	}
	return h.txs[len(h.txs)-1]
}

// handleFactory hands out fakeHandles and remembers them
type handleFactory struct {
	mu      sync.Mutex
	created []*fakeHandle
	prepare func(h *fakeHandle)
}

func (f *handleFactory) create(ctx context.Context) (*fakeHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fakeHandle{}
	if f.prepare != nil {
		f.prepare(h)
	}
	f.created = append(f.created, h)
	return h, nil
}

func (f *handleFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func newTestLogger(t *testing.T) *coremocks.MockLogger {
	t.Helper()
	mockLogger := coremocks.NewMockLogger(t)
	mockLogger.EXPECT().Debug(mock.Anything, mock.Anything).Maybe()
	mockLogger.EXPECT().Info(mock.Anything, mock.Anything).Maybe()
	mockLogger.EXPECT().Warn(mock.Anything, mock.Anything).Maybe()
	mockLogger.EXPECT().Error(mock.Anything, mock.Anything).Maybe()
	return mockLogger
}

func newTestProvider(t *testing.T, opts ...ProviderOption) (*Provider[*fakeHandle], *handleFactory) {
	t.Helper()
	factory := &handleFactory{}
	return NewProvider(scope.NewRegistry(), factory.create, newTestLogger(t), opts...), factory
}
