package tablestorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DynamoDB service limits
const (
	MaxBatchWriteItems    = 25
	MaxTransactWriteItems = 100
)

// Config holds table storage settings
type Config struct {
	Region      string
	Endpoint    string
	TablePrefix string

	// AtomicBatches writes every batch with TransactWriteItems, which makes each batch
	// all-or-nothing and lets inserts detect existing rows. Otherwise BatchWriteItem is used.
	AtomicBatches bool
	MaxBatchSize  int
	FanOut        int

	MaxUnprocessedRetries int
	RetryInterval         time.Duration
	MaxRetryInterval      time.Duration
	JitterFactor          float64

	TableWaitTimeout time.Duration
}

// DefaultConfig returns the default table storage configuration
func DefaultConfig() Config {
	return Config{
		Region:                "us-east-1",
		AtomicBatches:         true,
		MaxBatchSize:          MaxTransactWriteItems,
		FanOut:                3,
		MaxUnprocessedRetries: 5,
		RetryInterval:         50 * time.Millisecond,
		MaxRetryInterval:      2 * time.Second,
		JitterFactor:          0.2,
		TableWaitTimeout:      2 * time.Minute,
	}
}

// batchLimit is the per-request ceiling of the write API in use
func (c Config) batchLimit() int {
	limit := MaxBatchWriteItems
	if c.AtomicBatches {
		limit = MaxTransactWriteItems
	}
	if c.MaxBatchSize > 0 && c.MaxBatchSize < limit {
		return c.MaxBatchSize
	}
	return limit
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Region == "" {
		return errors.New("table storage region is required")
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("max batch size must be non-negative, got: %d", c.MaxBatchSize)
	}
	if c.FanOut < 0 {
		return fmt.Errorf("fan-out must be non-negative, got: %d", c.FanOut)
	}
	if c.MaxUnprocessedRetries < 0 {
		return fmt.Errorf("max unprocessed retries must be non-negative, got: %d", c.MaxUnprocessedRetries)
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return fmt.Errorf("jitter factor must be between 0 and 1, got: %v", c.JitterFactor)
	}
	return nil
}

// NewClient builds a DynamoDB client from the default AWS credential chain
func NewClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}
