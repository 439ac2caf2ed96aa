package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment constants
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// Table storage drivers
const (
	DriverDynamoDB = "dynamodb"
	DriverMemory   = "memory"
)

// EnvPrefix prefixes every environment override, e.g. WS_SERVER_PORT
const EnvPrefix = "WS"

// ConfigPaths defines the paths to look for config files
var ConfigPaths = []string{
	"./configs",
	"../configs",
	"../../configs",
}

// DotEnvPaths defines the paths to look for .env files
var DotEnvPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"./configs/.env",
	"../configs/.env",
}

// LoadConfig loads configuration for the environment named by WS_ENV.
// Values come from defaults, then configs/<env>.yaml when present, then WS_* variables.
func LoadConfig() (*Config, error) {
	// A missing .env file is normal outside local development
	_ = loadDotEnvFile()

	env := getEnvironment()

	v := viper.New()
	v.SetConfigName(env)
	v.SetConfigType("yaml")
	for _, path := range ConfigPaths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v, env)
}

func decode(v *viper.Viper, env string) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	config.Environment = env
	processDurations(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// loadDotEnvFile loads the first .env file found in the search paths
func loadDotEnvFile() error {
	for _, path := range DotEnvPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	}
	return errors.New("no .env file found in search paths")
}

// setDefaults sets default values for every setting
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15)       // seconds
	v.SetDefault("server.writeTimeout", 15)      // seconds
	v.SetDefault("server.idleTimeout", 60)       // seconds
	v.SetDefault("server.readHeaderTimeout", 10) // seconds
	v.SetDefault("server.shutdownTimeout", 10)   // seconds

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.database", "workscope")
	v.SetDefault("database.username", "workscope")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 10)
	v.SetDefault("database.connMaxLifetime", 30) // minutes
	v.SetDefault("database.connMaxIdleTime", 15) // minutes
	v.SetDefault("database.queryTimeout", 5)     // seconds
	v.SetDefault("database.retryAttempts", 3)
	v.SetDefault("database.retryDelay", 1) // seconds
	v.SetDefault("database.isolationLevel", "read_committed")
	v.SetDefault("database.maxBatchSize", 100)
	v.SetDefault("database.slowThresholdMs", 200)

	v.SetDefault("tableStorage.driver", DriverMemory)
	v.SetDefault("tableStorage.region", "us-east-1")
	v.SetDefault("tableStorage.atomicBatches", true)
	v.SetDefault("tableStorage.maxBatchSize", 100)
	v.SetDefault("tableStorage.fanOut", 3)

	v.SetDefault("unitOfWork.defaultMode", "reuse")

	v.SetDefault("logger.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "workscope")
}

// bindEnv maps the WS_* variables whose names do not follow the key path
func bindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"database.host":              "WS_DB_HOST",
		"database.port":              "WS_DB_PORT",
		"database.username":          "WS_DB_USERNAME",
		"database.password":          "WS_DB_PASSWORD",
		"database.database":          "WS_DB_NAME",
		"database.sslMode":           "WS_DB_SSL_MODE",
		"database.enabled":           "WS_DB_ENABLED",
		"tableStorage.driver":        "WS_TABLE_STORAGE_DRIVER",
		"tableStorage.region":        "WS_TABLE_STORAGE_REGION",
		"tableStorage.endpoint":      "WS_TABLE_STORAGE_ENDPOINT",
		"tableStorage.tablePrefix":   "WS_TABLE_STORAGE_PREFIX",
		"tableStorage.atomicBatches": "WS_TABLE_STORAGE_ATOMIC_BATCHES",
		"unitOfWork.defaultMode":     "WS_UOW_DEFAULT_MODE",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

// getEnvironment determines the environment to use based on the WS_ENV variable
func getEnvironment() string {
	env := os.Getenv(EnvPrefix + "_ENV")
	if env == "" {
		env = Development
	}
	return strings.ToLower(env)
}

// processDurations converts time.Duration fields from their raw values to actual durations
func processDurations(config *Config) {
	config.Server.ReadTimeout = config.Server.ReadTimeout * time.Second
	config.Server.WriteTimeout = config.Server.WriteTimeout * time.Second
	config.Server.IdleTimeout = config.Server.IdleTimeout * time.Second
	config.Server.ReadHeaderTimeout = config.Server.ReadHeaderTimeout * time.Second
	config.Server.ShutdownTimeout = config.Server.ShutdownTimeout * time.Second

	config.Database.ConnMaxLifetime = config.Database.ConnMaxLifetime * time.Minute
	config.Database.ConnMaxIdleTime = config.Database.ConnMaxIdleTime * time.Minute
	config.Database.QueryTimeout = config.Database.QueryTimeout * time.Second
	config.Database.RetryDelay = config.Database.RetryDelay * time.Second
	config.Database.SlowThreshold = config.Database.SlowThreshold * time.Millisecond
}

// Validate checks the settings the application cannot start without
func (c *Config) Validate() error {
	switch c.Environment {
	case Development, Production, Test:
	default:
		return fmt.Errorf("invalid environment value: %s, must be one of: %s, %s, or %s",
			c.Environment, Development, Production, Test)
	}

	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive, got: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdownTimeout is required")
	}

	switch c.TableStorage.Driver {
	case DriverMemory:
	case DriverDynamoDB:
		if c.TableStorage.Region == "" {
			return errors.New("tableStorage.region is required for the dynamodb driver")
		}
	default:
		return fmt.Errorf("unknown table storage driver: %s", c.TableStorage.Driver)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return errors.New("database.host (or WS_DB_HOST environment variable) is required")
		}
		if c.Database.Database == "" {
			return errors.New("database.database (or WS_DB_NAME environment variable) is required")
		}
	}
	return nil
}
