package migration

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/logger"
	timeadapter "github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/time"
)

func TestMigrateAll(t *testing.T) {
	dsn := os.Getenv("WS_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("WS_TEST_DB_DSN not set, skipping PostgreSQL migration test")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, db.Migrator().DropTable(&entity.AuditEntry{}, &MigrationVersion{}))
	m := NewMigrationManager(db, logger.NewNoopLogger(), timeadapter.NewRealTimeProvider())

	require.NoError(t, m.MigrateAll(ctx))
	assert.True(t, db.Migrator().HasTable(entity.AuditEntriesTable))

	version, err := m.GetCurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// second run is a no-op
	require.NoError(t, m.MigrateAll(ctx))
	var count int64
	require.NoError(t, db.Model(&MigrationVersion{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
