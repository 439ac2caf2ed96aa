package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
)

// CurrentSchemaVersion represents the current database schema version
const CurrentSchemaVersion = "1.0.0"

// MigrationVersion records one applied schema version
type MigrationVersion struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Version   string    `gorm:"type:varchar(20);not null;index"`
	AppliedAt time.Time `gorm:"not null"`
	Details   string    `gorm:"type:text"`
}

// TableName specifies the table name for the migration version model
func (MigrationVersion) TableName() string {
	return "migration_versions"
}

// MigrationManager brings the relational schema up to CurrentSchemaVersion
type MigrationManager struct {
	db           *gorm.DB
	logger       core.Logger
	timeProvider core.TimeProvider
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *gorm.DB, logger core.Logger, timeProvider core.TimeProvider) *MigrationManager {
	return &MigrationManager{
		db:           db,
		logger:       logger,
		timeProvider: timeProvider,
	}
}

// MigrateAll performs all migrations. A database already at the target version is left alone.
func (m *MigrationManager) MigrateAll(ctx context.Context) error {
	db := m.db.WithContext(ctx)

	if err := db.AutoMigrate(&MigrationVersion{}); err != nil {
		return fmt.Errorf("create migration version table: %w", err)
	}

	currentVersion, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("check current schema version: %w", err)
	}
	if currentVersion == CurrentSchemaVersion {
		m.logger.Info("Database already at target version, skipping migration", map[string]any{
			"version": currentVersion,
		})
		return nil
	}

	m.logger.Info("Starting database migrations", map[string]any{
		"current_version": currentVersion,
		"target_version":  CurrentSchemaVersion,
	})

	if err := db.AutoMigrate(&entity.AuditEntry{}); err != nil {
		return fmt.Errorf("auto-migrate models: %w", err)
	}

	if err := m.createIndexes(ctx); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}

	if err := m.setVersion(ctx, CurrentSchemaVersion, "Audit schema"); err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}

	m.logger.Info("Database migrations completed successfully", map[string]any{
		"version": CurrentSchemaVersion,
	})
	return nil
}

// GetCurrentVersion returns the latest applied version, or "" for a fresh database
func (m *MigrationManager) GetCurrentVersion(ctx context.Context) (string, error) {
	var version MigrationVersion
	err := m.db.WithContext(ctx).Order("applied_at desc").First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return version.Version, nil
}

func (m *MigrationManager) setVersion(ctx context.Context, version, details string) error {
	return m.db.WithContext(ctx).Create(&MigrationVersion{
		Version:   version,
		AppliedAt: m.timeProvider.Now(),
		Details:   details,
	}).Error
}

// createIndexes adds the indexes AutoMigrate cannot express
func (m *MigrationManager) createIndexes(ctx context.Context) error {
	// audit entries are append-only, so a BRIN index stays small as the table grows
	statements := []string{
		"CREATE INDEX IF NOT EXISTS idx_audit_entries_created_at ON audit_entries USING brin (created_at)",
		"CREATE INDEX IF NOT EXISTS idx_audit_entries_unit_of_work ON audit_entries (unit_of_work_id) WHERE unit_of_work_id <> ''",
	}
	for _, stmt := range statements {
		if err := m.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
