package metrics

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

func TestCollector_ObserveBatch(t *testing.T) {
	c := NewCollector("workscope")

	c.ObserveBatch("notes", persistence.OperationInsert, 100, 20*core.Millisecond, nil)
	c.ObserveBatch("notes", persistence.OperationInsert, 50, 10*core.Millisecond, nil)
	c.ObserveBatch("notes", persistence.OperationDelete, 3, core.Millisecond, errors.New("throttled"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Batches.WithLabelValues("notes", "insert", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Batches.WithLabelValues("notes", "delete", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.BatchSize))
}

func TestCollector_ObserveFlush(t *testing.T) {
	c := NewCollector("workscope")

	c.ObserveFlush(150, 50*core.Millisecond, nil)
	c.ObserveFlush(0, core.Millisecond, errors.New("insert phase: boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Flushes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Flushes.WithLabelValues("error")))
}

func TestCollector_ObserveTransactionAndHTTP(t *testing.T) {
	c := NewCollector("workscope")

	c.ObserveTransaction("archive-note", "committed")
	c.ObserveTransaction("archive-note", "rolled_back")
	c.ObserveTransaction("archive-note", "committed")
	c.ObserveHTTP(http.MethodPost, "/api/v1/notes", http.StatusCreated, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Transactions.WithLabelValues("archive-note", "committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("POST", "/api/v1/notes", "201")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("workscope")
	c.ObserveFlush(1, core.Millisecond, nil)

	db, err := sql.Open("pgx", "host=localhost port=1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, c.RegisterDBStats(db, "audit"))

	recorder := httptest.NewRecorder()
	c.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "workscope_store_flushes_total")
	assert.Contains(t, recorder.Body.String(), "go_sql_max_open_connections")
}
