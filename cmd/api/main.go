package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/workscope/internal/domain/scope"
	"github.com/amirhossein-jamali/workscope/internal/domain/tracking"
	"github.com/amirhossein-jamali/workscope/internal/domain/unitofwork"
	"github.com/amirhossein-jamali/workscope/internal/domain/usecase/note"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/api/handler"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/api/middleware"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/api/routes"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/database"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/database/migration"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/logger"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/memory"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/metrics"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/tablestorage"
	timeProvider "github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/time"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Environment == config.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	appLogger := logger.NewZapLogger(cfg.Environment == config.Production)
	appLogger.SetLevel(core.ParseLogLevel(cfg.Logger.Level))
	defer func() { _ = appLogger.Flush() }()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("Server stopped with error", map[string]any{
			"error": err.Error(),
		})
		_ = appLogger.Flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger core.Logger) error {
	ctx := context.Background()
	tp := timeProvider.NewRealTimeProvider()

	var collector *metrics.Collector
	var storeOpts []tracking.Option
	useCaseOpts := []note.Option{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace)
		storeOpts = append(storeOpts, tracking.WithObserver(collector))
		useCaseOpts = append(useCaseOpts, note.WithTransactionObserver(collector))
	}

	mode, err := unitofwork.ParseMode(cfg.UnitOfWork.DefaultMode)
	if err != nil {
		return err
	}
	registry := scope.NewRegistry()

	notesFactory, err := newNotesFactory(ctx, cfg, tp, appLogger, storeOpts)
	if err != nil {
		return err
	}
	notes := unitofwork.NewProvider(registry, notesFactory, appLogger, unitofwork.WithDefaultMode(mode))

	var audit *note.AuditProvider
	var health routes.HealthChecker
	if cfg.Database.Enabled {
		dbManager := database.NewManager(newDatabaseConfig(cfg), appLogger, tp)
		if _, err := dbManager.Connect(ctx); err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer func() {
			if err := dbManager.Close(); err != nil {
				appLogger.Warn("Failed to close database", map[string]any{"error": err.Error()})
			}
		}()

		if err := migration.NewMigrationManager(dbManager.DB(), appLogger, tp).MigrateAll(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		if collector != nil {
			if sqlDB, err := dbManager.SQLDB(); err == nil {
				if err := collector.RegisterDBStats(sqlDB, cfg.Database.Database); err != nil {
					appLogger.Warn("Failed to register database metrics", map[string]any{"error": err.Error()})
				}
			}
		}

		audit = unitofwork.NewProvider(registry, database.NewStoreFactory(dbManager, appLogger, storeOpts...), appLogger, unitofwork.WithDefaultMode(mode))
		health = dbManager.Ping
	} else {
		appLogger.Warn("Relational database disabled, notes are not audited", nil)
	}

	noteUseCase := note.NewNoteUseCase(notes, audit, tp, appLogger, useCaseOpts...)

	router := gin.New()
	var observer middleware.HTTPObserver
	var metricsHandler http.Handler
	if collector != nil {
		observer = collector
		metricsHandler = collector.Handler()
	}
	routes.SetupMiddlewares(router, appLogger, tp, observer)
	routes.SetupRoutes(router, handler.NewNoteHandler(noteUseCase, appLogger), middleware.UnitOfWork(notes, appLogger), metricsHandler, health)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting server", map[string]any{
			"port":          cfg.Server.Port,
			"env":           cfg.Environment,
			"table_storage": cfg.TableStorage.Driver,
			"default_mode":  mode.String(),
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("start server: %w", err)
	case <-quit:
	}

	appLogger.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", map[string]any{
			"error": err.Error(),
		})
	}

	appLogger.Info("Server exited gracefully", nil)
	return nil
}

// newNotesFactory opens the table storage configured for notes
func newNotesFactory(ctx context.Context, cfg *config.Config, tp core.TimeProvider, appLogger core.Logger, opts []tracking.Option) (persistence.HandleFactory[*note.NoteStore], error) {
	if cfg.TableStorage.Driver == config.DriverMemory {
		appLogger.Warn("Using in-memory table storage, notes are lost on restart", nil)
		db := memory.NewDatabase[entity.TableKey](persistence.BatchLimits{}, appLogger)
		return memory.NewStoreFactory(db, tp, appLogger, opts...), nil
	}

	tsConfig := tablestorage.DefaultConfig()
	tsConfig.Region = cfg.TableStorage.Region
	tsConfig.Endpoint = cfg.TableStorage.Endpoint
	tsConfig.TablePrefix = cfg.TableStorage.TablePrefix
	tsConfig.AtomicBatches = cfg.TableStorage.AtomicBatches
	tsConfig.MaxBatchSize = cfg.TableStorage.MaxBatchSize
	tsConfig.FanOut = cfg.TableStorage.FanOut
	if err := tsConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid table storage configuration: %w", err)
	}

	client, err := tablestorage.NewClient(ctx, tsConfig)
	if err != nil {
		return nil, err
	}
	backend := tablestorage.NewBackend(client, tsConfig, tp, appLogger)
	return tablestorage.NewStoreFactory(backend, appLogger, opts...), nil
}

func newDatabaseConfig(cfg *config.Config) *database.Config {
	dbConfig := database.DefaultConfig()
	dbConfig.Driver = cfg.Database.Driver
	dbConfig.Host = cfg.Database.Host
	dbConfig.Port = database.ParsePort(cfg.Database.Port)
	dbConfig.Username = cfg.Database.Username
	dbConfig.Password = cfg.Database.Password
	dbConfig.Database = cfg.Database.Database
	dbConfig.SSLMode = cfg.Database.SSLMode
	dbConfig.MaxOpenConns = cfg.Database.MaxOpenConns
	dbConfig.MaxIdleConns = cfg.Database.MaxIdleConns
	dbConfig.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	dbConfig.ConnMaxIdleTime = cfg.Database.ConnMaxIdleTime
	dbConfig.QueryTimeout = cfg.Database.QueryTimeout
	dbConfig.RetryAttempts = cfg.Database.RetryAttempts
	dbConfig.RetryDelay = cfg.Database.RetryDelay
	dbConfig.IsolationLevel = cfg.Database.IsolationLevel
	dbConfig.MaxBatchSize = cfg.Database.MaxBatchSize
	dbConfig.SlowThreshold = cfg.Database.SlowThreshold
	dbConfig.LogLevel = cfg.Logger.Level
	return dbConfig
}
