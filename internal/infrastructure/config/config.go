package config

import "time"

// Config holds all configuration for the application
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	TableStorage TableStorageConfig `mapstructure:"tableStorage"`
	UnitOfWork   UnitOfWorkConfig   `mapstructure:"unitOfWork"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"readTimeout"`       // seconds
	WriteTimeout      time.Duration `mapstructure:"writeTimeout"`      // seconds
	IdleTimeout       time.Duration `mapstructure:"idleTimeout"`       // seconds
	ReadHeaderTimeout time.Duration `mapstructure:"readHeaderTimeout"` // seconds
	ShutdownTimeout   time.Duration `mapstructure:"shutdownTimeout"`   // seconds
}

// DatabaseConfig contains settings of the relational database holding audit entries
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslMode"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"` // minutes
	ConnMaxIdleTime time.Duration `mapstructure:"connMaxIdleTime"` // minutes
	QueryTimeout    time.Duration `mapstructure:"queryTimeout"`    // seconds
	RetryAttempts   int           `mapstructure:"retryAttempts"`
	RetryDelay      time.Duration `mapstructure:"retryDelay"` // seconds
	IsolationLevel  string        `mapstructure:"isolationLevel"`
	MaxBatchSize    int           `mapstructure:"maxBatchSize"`
	SlowThreshold   time.Duration `mapstructure:"slowThresholdMs"` // milliseconds
}

// TableStorageConfig contains settings of the table storage holding notes
type TableStorageConfig struct {
	// Driver is "dynamodb" or "memory"
	Driver        string `mapstructure:"driver"`
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"`
	TablePrefix   string `mapstructure:"tablePrefix"`
	AtomicBatches bool   `mapstructure:"atomicBatches"`
	MaxBatchSize  int    `mapstructure:"maxBatchSize"`
	FanOut        int    `mapstructure:"fanOut"`
}

// UnitOfWorkConfig contains unit of work settings
type UnitOfWorkConfig struct {
	// DefaultMode is "reuse" or "own"
	DefaultMode string `mapstructure:"defaultMode"`
}

// LoggerConfig contains logger settings
type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}
