package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDatabaseURL is returned by NewPool when no connection string is configured
var ErrNoDatabaseURL = errors.New("database URL cannot be empty")

// DBConfig holds database connection configuration
type DBConfig struct {
	// DatabaseURL is the PostgreSQL connection string
	DatabaseURL string

	// Logger for structured logging (optional, uses slog.Default if nil)
	Logger *slog.Logger

	// MaxConns is the maximum number of connections in the pool
	// Default: 10
	MaxConns int32

	// MinConns is the minimum number of connections in the pool
	// Default: 2
	MinConns int32

	// MaxConnLifetime is the maximum lifetime of a connection, 0 for infinite
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum idle time of a connection, 0 for no timeout
	MaxConnIdleTime time.Duration

	// HealthCheckPeriod is the period between health checks
	// Default: 1 minute
	HealthCheckPeriod time.Duration

	// ConnectTimeout is the timeout for establishing connections
	// Default: 10 seconds
	ConnectTimeout time.Duration

	// MaxRetries is the maximum number of connection attempts
	// Default: 3
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts, doubled on each attempt
	// Default: 1 second
	RetryDelay time.Duration
}

// DefaultDBConfig returns a default database configuration
func DefaultDBConfig(databaseURL string) *DBConfig {
	return &DBConfig{
		DatabaseURL:       databaseURL,
		MaxConns:          10,
		MinConns:          2,
		HealthCheckPeriod: 1 * time.Minute,
		ConnectTimeout:    10 * time.Second,
		MaxRetries:        3,
		RetryDelay:        1 * time.Second,
	}
}

// DBConfig converts the environment settings into pool settings.
func (c DatabaseConfig) DBConfig(logger *slog.Logger) *DBConfig {
	return &DBConfig{
		DatabaseURL:       c.URL,
		Logger:            logger,
		MaxConns:          c.MaxConns,
		MinConns:          c.MinConns,
		MaxConnLifetime:   c.MaxConnLifetime,
		MaxConnIdleTime:   c.MaxConnIdleTime,
		HealthCheckPeriod: c.HealthCheckPeriod,
		ConnectTimeout:    c.ConnectTimeout,
		MaxRetries:        c.MaxRetries,
		RetryDelay:        c.RetryDelay,
	}
}

// NewPool creates a new database connection pool with the given configuration.
// Connection attempts are retried with exponential backoff until ctx is done.
func NewPool(ctx context.Context, config *DBConfig) (*pgxpool.Pool, error) {
	if config == nil {
		return nil, fmt.Errorf("database config cannot be nil")
	}

	if config.DatabaseURL == "" {
		return nil, ErrNoDatabaseURL
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxRetries := config.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	logger.Info("initializing database connection pool",
		"max_conns", config.MaxConns,
		"min_conns", config.MinConns,
		"max_conn_lifetime", config.MaxConnLifetime.String(),
		"health_check_period", config.HealthCheckPeriod.String(),
	)

	dbConfig, err := pgxpool.ParseConfig(config.DatabaseURL)
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if config.MaxConns > 0 {
		dbConfig.MaxConns = config.MaxConns
	}
	dbConfig.MinConns = config.MinConns
	dbConfig.MaxConnLifetime = config.MaxConnLifetime
	dbConfig.MaxConnIdleTime = config.MaxConnIdleTime
	if config.HealthCheckPeriod > 0 {
		dbConfig.HealthCheckPeriod = config.HealthCheckPeriod
	}
	if config.ConnectTimeout > 0 {
		dbConfig.ConnConfig.ConnectTimeout = config.ConnectTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		logger.Debug("attempting database connection",
			"attempt", attempt,
			"max_retries", maxRetries,
		)

		pool, err := connect(ctx, dbConfig, config.ConnectTimeout)
		if err == nil {
			logger.Info("database connection pool established",
				"attempt", attempt,
				"total_conns", pool.Stat().TotalConns(),
				"idle_conns", pool.Stat().IdleConns(),
			)
			return pool, nil
		}

		lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, maxRetries, err)
		logger.Warn("failed to connect to database",
			"attempt", attempt,
			"max_retries", maxRetries,
			"error", err,
		)

		if attempt < maxRetries {
			delay := calculateBackoff(config.RetryDelay, attempt)
			logger.Info("retrying database connection",
				"delay", delay.String(),
				"next_attempt", attempt+1,
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("database connection cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	logger.Error("failed to establish database connection after all retries",
		"max_retries", maxRetries,
		"error", lastErr,
	)

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, lastErr)
}

func connect(ctx context.Context, cfg *pgxpool.Config, timeout time.Duration) (*pgxpool.Pool, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	createCtx, cancel := context.WithTimeout(ctx, timeout)
	pool, err := pgxpool.NewWithConfig(createCtx, cfg)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = pool.Ping(pingCtx)
	pingCancel()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// calculateBackoff doubles baseDelay per attempt, capped at 30 seconds
func calculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	multiplier := math.Pow(2, float64(attempt-1))
	delay := time.Duration(float64(baseDelay) * multiplier)

	maxDelay := 30 * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}

// PoolStats represents database connection pool statistics
type PoolStats struct {
	AcquireCount         int64         `json:"acquire_count"`
	AcquireDuration      time.Duration `json:"acquire_duration"`
	AcquiredConns        int32         `json:"acquired_conns"`
	CanceledAcquireCount int64         `json:"canceled_acquire_count"`
	IdleConns            int32         `json:"idle_conns"`
	MaxConns             int32         `json:"max_conns"`
	TotalConns           int32         `json:"total_conns"`
}

// GetPoolStats retrieves current pool statistics
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	if pool == nil {
		return nil
	}

	stat := pool.Stat()
	return &PoolStats{
		AcquireCount:         stat.AcquireCount(),
		AcquireDuration:      stat.AcquireDuration(),
		AcquiredConns:        stat.AcquiredConns(),
		CanceledAcquireCount: stat.CanceledAcquireCount(),
		IdleConns:            stat.IdleConns(),
		MaxConns:             stat.MaxConns(),
		TotalConns:           stat.TotalConns(),
	}
}

// HealthCheck performs a health check on the database connection pool
func HealthCheck(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("database health check failed", "error", err)
		return fmt.Errorf("database health check failed: %w", err)
	}

	stats := GetPoolStats(pool)
	logger.Debug("database health check passed",
		"total_conns", stats.TotalConns,
		"idle_conns", stats.IdleConns,
		"acquired_conns", stats.AcquiredConns,
	)

	return nil
}

// GracefulShutdown closes the pool, giving up after timeout
func GracefulShutdown(pool *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) error {
	if pool == nil {
		return nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("initiating graceful database shutdown", "timeout", timeout.String())

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Close blocks until acquired connections are released
	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("database connection pool closed gracefully")
		return nil
	case <-ctx.Done():
		logger.Warn("database shutdown timeout exceeded, forcing close")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}
