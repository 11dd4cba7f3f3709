package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"covid_dashboard/internal/cache"
	"covid_dashboard/internal/config"
	"covid_dashboard/internal/jobs"
)

// ShutdownConfig holds configuration for graceful shutdown
type ShutdownConfig struct {
	// Logger for structured logging
	Logger *slog.Logger

	// Timeout for graceful shutdown
	Timeout time.Duration

	// Signals to listen for (default: SIGINT, SIGTERM)
	Signals []os.Signal

	// OnShutdownStart is called when shutdown begins
	OnShutdownStart func()

	// OnShutdownComplete is called when shutdown completes
	OnShutdownComplete func()
}

// DefaultShutdownConfig returns a default shutdown configuration
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{
			syscall.SIGINT,  // Ctrl+C
			syscall.SIGTERM, // Kubernetes/Docker stop
		},
	}
}

// Resource represents a resource that needs cleanup during shutdown
type Resource interface {
	Name() string
	Close(ctx context.Context) error
}

// ShutdownManager closes registered resources on shutdown, last registered first
type ShutdownManager struct {
	config    *ShutdownConfig
	logger    *slog.Logger
	resources []Resource
	mu        sync.Mutex
	once      sync.Once
	err       error
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(config *ShutdownConfig) *ShutdownManager {
	if config == nil {
		config = DefaultShutdownConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if len(config.Signals) == 0 {
		config.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ShutdownManager{
		config: config,
		logger: logger,
	}
}

// Register adds a resource to be cleaned up during shutdown
func (sm *ShutdownManager) Register(resource Resource) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.resources = append(sm.resources, resource)
	sm.logger.Debug("resource registered for shutdown", "resource", resource.Name())
}

// Wait blocks until a shutdown signal is received or ctx is done, then performs
// graceful shutdown within the configured timeout
func (sm *ShutdownManager) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, sm.config.Signals...)
	<-sigCtx.Done()
	stop()

	if ctx.Err() == nil {
		sm.logger.Info("shutdown signal received")
	} else {
		sm.logger.Info("shutdown requested", "cause", context.Cause(ctx))
	}

	if sm.config.OnShutdownStart != nil {
		sm.config.OnShutdownStart()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sm.config.Timeout)
	defer cancel()
	err := sm.Shutdown(shutdownCtx)

	if sm.config.OnShutdownComplete != nil {
		sm.config.OnShutdownComplete()
	}
	return err
}

// Shutdown closes every registered resource in reverse registration order. The HTTP
// server stops taking requests before the stores behind it go away. Calling it again
// returns the first result.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.once.Do(func() {
		sm.mu.Lock()
		resources := make([]Resource, len(sm.resources))
		copy(resources, sm.resources)
		sm.mu.Unlock()

		sm.logger.Info("initiating graceful shutdown",
			"timeout", sm.config.Timeout.String(),
			"resources", len(resources),
		)

		var errs []error
		for i := len(resources) - 1; i >= 0; i-- {
			r := resources[i]
			if ctx.Err() != nil {
				sm.logger.Warn("shutdown timeout exceeded, skipping resource", "resource", r.Name())
				errs = append(errs, fmt.Errorf("%s: %w", r.Name(), ctx.Err()))
				continue
			}

			start := time.Now()
			if err := r.Close(ctx); err != nil {
				sm.logger.Error("failed to close resource",
					"resource", r.Name(),
					"error", err,
					"duration", time.Since(start).String(),
				)
				errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
				continue
			}
			sm.logger.Info("resource closed",
				"resource", r.Name(),
				"duration", time.Since(start).String(),
			)
		}

		sm.err = errors.Join(errs...)
		if sm.err == nil {
			sm.logger.Info("all resources closed successfully")
		}
	})
	return sm.err
}

// HTTPServerResource wraps an HTTP server for graceful shutdown
type HTTPServerResource struct {
	server *http.Server
	name   string
}

// NewHTTPServerResource creates a new HTTP server resource
func NewHTTPServerResource(name string, server *http.Server) *HTTPServerResource {
	return &HTTPServerResource{
		server: server,
		name:   name,
	}
}

func (h *HTTPServerResource) Name() string {
	return h.name
}

func (h *HTTPServerResource) Close(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// DatabaseResource wraps a database pool for graceful shutdown
type DatabaseResource struct {
	pool   *pgxpool.Pool
	name   string
	logger *slog.Logger
}

// NewDatabaseResource creates a new database resource
func NewDatabaseResource(name string, pool *pgxpool.Pool, logger *slog.Logger) *DatabaseResource {
	return &DatabaseResource{
		pool:   pool,
		name:   name,
		logger: logger,
	}
}

func (d *DatabaseResource) Name() string {
	return d.name
}

// Close gives the pool whatever is left of the shutdown deadline
func (d *DatabaseResource) Close(ctx context.Context) error {
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return config.GracefulShutdown(d.pool, timeout, d.logger)
}

// CacheResource wraps a cache for graceful shutdown. Closing a fallback cache closes
// its Redis client.
type CacheResource struct {
	cache cache.Cache
	name  string
}

// NewCacheResource creates a new cache resource
func NewCacheResource(name string, c cache.Cache) *CacheResource {
	return &CacheResource{
		cache: c,
		name:  name,
	}
}

func (c *CacheResource) Name() string {
	return c.name
}

func (c *CacheResource) Close(ctx context.Context) error {
	return c.cache.Close()
}

// SchedulerResource stops a job scheduler, waiting for running tasks
type SchedulerResource struct {
	scheduler *jobs.Scheduler
	name      string
}

// NewSchedulerResource creates a new scheduler resource
func NewSchedulerResource(name string, scheduler *jobs.Scheduler) *SchedulerResource {
	return &SchedulerResource{
		scheduler: scheduler,
		name:      name,
	}
}

func (s *SchedulerResource) Name() string {
	return s.name
}

func (s *SchedulerResource) Close(ctx context.Context) error {
	return s.scheduler.Shutdown(ctx)
}

// CustomResource wraps a custom cleanup function
type CustomResource struct {
	name      string
	closeFunc func(ctx context.Context) error
}

// NewCustomResource creates a new custom resource
func NewCustomResource(name string, closeFunc func(ctx context.Context) error) *CustomResource {
	return &CustomResource{
		name:      name,
		closeFunc: closeFunc,
	}
}

func (c *CustomResource) Name() string {
	return c.name
}

func (c *CustomResource) Close(ctx context.Context) error {
	return c.closeFunc(ctx)
}
