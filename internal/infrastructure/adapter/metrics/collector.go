package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/workscope/internal/domain/tracking"
)

var _ tracking.FlushObserver = (*Collector)(nil)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Flush metrics
	Batches       *prometheus.CounterVec
	BatchSize     *prometheus.HistogramVec
	BatchDuration *prometheus.HistogramVec
	Flushes       *prometheus.CounterVec
	FlushEntities prometheus.Histogram
	FlushDuration prometheus.Histogram

	// Transaction scope outcomes
	Transactions *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry under the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_batches_total",
				Help:      "Total number of backend batches written by tracking stores",
			},
			[]string{"table", "operation", "status"},
		),
		BatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_batch_operations",
				Help:      "Number of operations per backend batch",
				Buckets:   []float64{1, 5, 10, 25, 50, 100},
			},
			[]string{"operation"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_batch_duration_seconds",
				Help:      "Backend batch duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"table", "operation"},
		),
		Flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_flushes_total",
				Help:      "Total number of SaveChanges calls",
			},
			[]string{"status"},
		),
		FlushEntities: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_flush_entities",
				Help:      "Number of entities written per SaveChanges",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
			},
		),
		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_flush_duration_seconds",
				Help:      "SaveChanges duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transaction_scopes_total",
				Help:      "Total number of transaction scopes by outcome",
			},
			[]string{"scope", "outcome"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Batches,
		c.BatchSize,
		c.BatchDuration,
		c.Flushes,
		c.FlushEntities,
		c.FlushDuration,
		c.Transactions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the registry the collector's metrics live in
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RegisterDBStats exports the connection pool statistics of db under dbName
func (c *Collector) RegisterDBStats(db *sql.DB, dbName string) error {
	return c.registry.Register(collectors.NewDBStatsCollector(db, dbName))
}

// ObserveBatch records one backend batch
func (c *Collector) ObserveBatch(table string, kind persistence.OperationKind, size int, duration core.Duration, err error) {
	operation := kind.String()
	c.Batches.WithLabelValues(table, operation, status(err)).Inc()
	c.BatchSize.WithLabelValues(operation).Observe(float64(size))
	c.BatchDuration.WithLabelValues(table, operation).Observe(duration.Std().Seconds())
}

// ObserveFlush records one SaveChanges call
func (c *Collector) ObserveFlush(entities int, duration core.Duration, err error) {
	c.Flushes.WithLabelValues(status(err)).Inc()
	if err == nil {
		c.FlushEntities.Observe(float64(entities))
	}
	c.FlushDuration.Observe(duration.Std().Seconds())
}

// ObserveTransaction records how a named transaction scope ended
func (c *Collector) ObserveTransaction(scope, outcome string) {
	c.Transactions.WithLabelValues(scope, outcome).Inc()
}

// ObserveHTTP records one HTTP request
func (c *Collector) ObserveHTTP(method, route string, statusCode int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
