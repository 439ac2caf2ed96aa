package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	gormlogger "gorm.io/gorm/logger"

	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	coremocks "github.com/amirhossein-jamali/workscope/mocks/port/core"
)

func TestDatabaseLogger_Trace(t *testing.T) {
	begin := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	query := func() (string, int64) { return `INSERT INTO "audit_entries" ("id") VALUES ('a')`, 1 }

	t.Run("Errors are logged at error level", func(t *testing.T) {
		logger := coremocks.NewMockLogger(t)
		timeProvider := coremocks.NewMockTimeProvider(t)
		timeProvider.EXPECT().Since(begin).Return(core.Millisecond)
		logger.EXPECT().Error("SQL Error", mock.MatchedBy(func(fields map[string]any) bool {
			return fields["error"] == "boom" && fields["type"] == "INSERT" && fields["table"] == "audit_entries"
		})).Once()

		dbLogger := NewDatabaseLogger(logger, timeProvider, "warn", 200*time.Millisecond)
		dbLogger.Trace(context.Background(), begin, query, errors.New("boom"))
	})

	t.Run("Slow queries are logged at warn level", func(t *testing.T) {
		logger := coremocks.NewMockLogger(t)
		timeProvider := coremocks.NewMockTimeProvider(t)
		timeProvider.EXPECT().Since(begin).Return(core.Second)
		logger.EXPECT().Warn("Slow SQL Query", mock.MatchedBy(func(fields map[string]any) bool {
			return fields["unit_of_work"] == "uow-1"
		})).Once()

		dbLogger := NewDatabaseLogger(logger, timeProvider, "warn", 200*time.Millisecond)
		dbLogger.Trace(WithUnitOfWorkID(context.Background(), "uow-1"), begin, query, nil)
	})

	t.Run("Fast queries are only logged at info level", func(t *testing.T) {
		logger := coremocks.NewMockLogger(t)
		timeProvider := coremocks.NewMockTimeProvider(t)
		timeProvider.EXPECT().Since(begin).Return(core.Millisecond)

		NewDatabaseLogger(logger, timeProvider, "warn", 200*time.Millisecond).
			Trace(context.Background(), begin, query, nil)

		logger.EXPECT().Debug("SQL Query", mock.Anything).Once()
		NewDatabaseLogger(logger, timeProvider, "info", 200*time.Millisecond).
			Trace(context.Background(), begin, query, nil)
	})

	t.Run("Silent logs nothing", func(t *testing.T) {
		logger := coremocks.NewMockLogger(t)
		timeProvider := coremocks.NewMockTimeProvider(t)

		dbLogger := NewDatabaseLogger(logger, timeProvider, "info", 0).LogMode(gormlogger.Silent)
		dbLogger.Trace(context.Background(), begin, query, errors.New("ignored"))
	})
}

func TestDatabaseLogger_Messages(t *testing.T) {
	logger := coremocks.NewMockLogger(t)
	logger.EXPECT().Warn("retrying 3 times", map[string]any{"source": "database"}).Once()

	dbLogger := NewDatabaseLogger(logger, coremocks.NewMockTimeProvider(t), "warn", 0)
	dbLogger.Info(context.Background(), "not logged at warn")
	dbLogger.Warn(context.Background(), "retrying %d times", 3)
}

func TestExtractQueryDetails(t *testing.T) {
	testCases := []struct {
		sql       string
		queryType string
		table     string
	}{
		{`SELECT * FROM "audit_entries" WHERE "id" = $1 LIMIT 1`, "SELECT", "audit_entries"},
		{`INSERT INTO "audit_entries" ("id","entity_table") VALUES ($1,$2)`, "INSERT", "audit_entries"},
		{`UPDATE "audit_entries" SET "action"=$1`, "UPDATE", "audit_entries"},
		{`DELETE FROM audit_entries WHERE id = $1`, "DELETE", "audit_entries"},
		{`SET TRANSACTION ISOLATION LEVEL SERIALIZABLE`, "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.sql, func(t *testing.T) {
			assert.Equal(t, tc.queryType, extractQueryType(tc.sql))
			assert.Equal(t, tc.table, extractTableName(tc.sql))
		})
	}
}
