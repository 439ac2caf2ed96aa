package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
)

// Manager owns the relational connection pool and hands out sessions bound to it
type Manager struct {
	config            *Config
	db                *gorm.DB
	logger            core.Logger
	errorMapper       *ErrorMapper
	retryConfig       RetryConfig
	connectionMonitor *ConnectionPoolMonitor
	timeProvider      core.TimeProvider

	ensureMu sync.Mutex
	ensured  map[string]bool
}

// NewManager creates a new database manager
func NewManager(config *Config, logger core.Logger, timeProvider core.TimeProvider) *Manager {
	return &Manager{
		config:       config,
		logger:       logger,
		errorMapper:  NewErrorMapper(),
		retryConfig:  DefaultRetryConfig(),
		timeProvider: timeProvider,
		ensured:      make(map[string]bool),
	}
}

// NewManagerWithDB wraps an already opened gorm connection
func NewManagerWithDB(db *gorm.DB, config *Config, logger core.Logger, timeProvider core.TimeProvider) *Manager {
	m := NewManager(config, logger, timeProvider)
	m.db = db
	return m
}

// Connect establishes the database connection, retrying the initial dial
func (m *Manager) Connect(ctx context.Context) (*gorm.DB, error) {
	m.logger.Info("Connecting to database", map[string]any{
		"driver": m.config.Driver,
		"host":   m.config.Host,
		"port":   m.config.Port,
		"name":   m.config.Database,
	})

	var err error
	var gormDB *gorm.DB
	attempts := max(m.config.RetryAttempts, 1)

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			m.logger.Warn("Retrying database connection", map[string]any{
				"attempt": attempt + 1,
				"of":      attempts,
				"delay":   m.config.RetryDelay.String(),
			})
			select {
			case <-m.timeProvider.After(core.Duration(m.config.RetryDelay)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		gormDB, err = gorm.Open(postgres.Open(m.config.DSN()), &gorm.Config{
			Logger:         NewDatabaseLogger(m.logger, m.timeProvider, m.config.LogLevel, m.config.SlowThreshold),
			NowFunc:        m.timeProvider.Now,
			PrepareStmt:    true,
			TranslateError: true,
		})
		if err == nil {
			break
		}

		m.logger.Error("Failed to connect to database", map[string]any{
			"error":   err.Error(),
			"attempt": attempt + 1,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(m.config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(m.config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(m.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(m.config.ConnMaxIdleTime)

	m.logger.Info("Successfully connected to database", map[string]any{
		"driver":         m.config.Driver,
		"host":           m.config.Host,
		"name":           m.config.Database,
		"max_open_conns": m.config.MaxOpenConns,
		"max_idle_conns": m.config.MaxIdleConns,
		"query_timeout":  m.config.QueryTimeout.String(),
	})

	m.db = gormDB
	m.connectionMonitor = NewConnectionPoolMonitor(sqlDB, m.logger)
	m.connectionMonitor.Start(m.config.MonitorInterval)

	return m.db, nil
}

// DB returns the GORM database instance
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// SQLDB returns the underlying connection pool
func (m *Manager) SQLDB() (*sql.DB, error) {
	if m.db == nil {
		return nil, fmt.Errorf("database not connected")
	}
	return m.db.DB()
}

// Ping checks that the database answers within the query timeout
func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.SQLDB()
	if err != nil {
		return err
	}

	ctx, cancel := m.WithTimeout(ctx)
	defer cancel()
	return m.errorMapper.MapError(sqlDB.PingContext(ctx), "ping")
}

// PoolMetrics returns the last sampled pool statistics
func (m *Manager) PoolMetrics() ConnectionPoolMetrics {
	if m.connectionMonitor == nil {
		return ConnectionPoolMetrics{}
	}
	return m.connectionMonitor.GetMetrics()
}

// Close closes the database connection
func (m *Manager) Close() error {
	m.logger.Info("Closing database connection", nil)

	if m.connectionMonitor != nil {
		m.connectionMonitor.Stop()
	}

	sqlDB, err := m.SQLDB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

// WithTimeout returns a context with timeout for database operations
func (m *Manager) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := m.config.QueryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// Open returns a new session on the shared pool
func (m *Manager) Open() *Session {
	return &Session{manager: m}
}

// ensureTable auto-migrates the sample's schema into table once per manager
func (m *Manager) ensureTable(ctx context.Context, table string, sample any) error {
	m.ensureMu.Lock()
	defer m.ensureMu.Unlock()

	if m.ensured[table] {
		return nil
	}

	m.logger.Debug("Ensuring table", map[string]any{"table": table})
	if err := m.db.WithContext(ctx).Table(table).AutoMigrate(sample); err != nil {
		return m.errorMapper.MapError(err, "auto migrate "+table)
	}

	m.ensured[table] = true
	return nil
}

func (m *Manager) batchLimit() int {
	if m.config.MaxBatchSize > 0 {
		return m.config.MaxBatchSize
	}
	return 100
}
