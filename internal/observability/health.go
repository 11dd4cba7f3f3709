package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"covid_dashboard/internal/data"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check function
type HealthCheck func(ctx context.Context) (HealthStatus, string, error)

// HealthConfig holds configuration for health check endpoints
type HealthConfig struct {
	// Logger for structured logging
	Logger *slog.Logger

	// Checks run on /health and /ready
	Checks map[string]HealthCheck

	// Timeout for the whole set of checks
	// Default: 5 seconds
	CheckTimeout time.Duration

	// Include system info in response
	IncludeSystemInfo bool

	// Version reported by /health
	Version string

	// Started is the process start time used for uptime
	Started time.Time
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	System    *SystemInfo            `json:"system,omitempty"`
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// SystemInfo contains system-level information
type SystemInfo struct {
	Goroutines  int    `json:"goroutines"`
	MemoryAlloc uint64 `json:"memory_alloc_mb"`
	MemorySys   uint64 `json:"memory_sys_mb"`
	NumCPU      int    `json:"num_cpu"`
	NumGC       uint32 `json:"num_gc"`
}

// DefaultHealthConfig returns a default health configuration
func DefaultHealthConfig() *HealthConfig {
	return &HealthConfig{
		Checks:            make(map[string]HealthCheck),
		CheckTimeout:      5 * time.Second,
		IncludeSystemInfo: true,
		Started:           time.Now(),
	}
}

// Register adds a named check
func (c *HealthConfig) Register(name string, check HealthCheck) {
	if c.Checks == nil {
		c.Checks = make(map[string]HealthCheck)
	}
	c.Checks[name] = check
}

func (c *HealthConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *HealthConfig) timeout() time.Duration {
	if c.CheckTimeout <= 0 {
		return 5 * time.Second
	}
	return c.CheckTimeout
}

// HealthHandler returns an HTTP handler for comprehensive health checks.
// Degraded components still answer 200; any unhealthy component answers 503.
// Endpoint: GET /health
func HealthHandler(config *HealthConfig) http.HandlerFunc {
	if config == nil {
		config = DefaultHealthConfig()
	}
	logger := config.logger()

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), config.timeout())
		defer cancel()

		response := &HealthResponse{
			Timestamp: time.Now().Format(time.RFC3339),
			Version:   config.Version,
			Checks:    RunChecks(ctx, config.Checks),
		}
		if !config.Started.IsZero() {
			response.Uptime = time.Since(config.Started).Round(time.Second).String()
		}
		response.Status = Overall(response.Checks)

		if config.IncludeSystemInfo {
			response.System = getSystemInfo()
		}

		logger.Debug("health check performed",
			"status", response.Status,
			"checks_count", len(response.Checks),
		)

		statusCode := http.StatusOK
		if response.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, response)
	}
}

// ReadinessHandler returns an HTTP handler for readiness checks
// Endpoint: GET /ready - the server can take traffic once a dataset is loaded
func ReadinessHandler(config *HealthConfig) http.HandlerFunc {
	if config == nil {
		config = DefaultHealthConfig()
	}
	logger := config.logger()

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), config.timeout())
		defer cancel()

		checks := RunChecks(ctx, config.Checks)
		ready := Overall(checks) != StatusUnhealthy

		statusCode := http.StatusOK
		if !ready {
			statusCode = http.StatusServiceUnavailable
			logger.Warn("readiness check failed", "checks", checks)
		}
		writeJSON(w, statusCode, map[string]interface{}{
			"ready":     ready,
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		})
	}
}

// LivenessHandler returns an HTTP handler for liveness checks
// Endpoint: GET /live
func LivenessHandler(config *HealthConfig) http.HandlerFunc {
	if config == nil {
		config = DefaultHealthConfig()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"alive":     true,
			"timestamp": time.Now().Format(time.RFC3339),
		}
		if !config.Started.IsZero() {
			response["uptime"] = time.Since(config.Started).Round(time.Second).String()
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// RunChecks runs every check concurrently and waits for all of them or ctx
func RunChecks(ctx context.Context, checks map[string]HealthCheck) map[string]CheckResult {
	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex

	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			result := runHealthCheck(ctx, check)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Overall folds check results into one status: the worst one wins
func Overall(results map[string]CheckResult) HealthStatus {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// runHealthCheck executes a check, giving up when ctx is done
func runHealthCheck(ctx context.Context, check HealthCheck) CheckResult {
	start := time.Now()

	resultChan := make(chan CheckResult, 1)
	go func() {
		status, message, err := check(ctx)
		result := CheckResult{
			Status:  status,
			Message: message,
			Latency: time.Since(start).String(),
		}
		if err != nil {
			result.Error = err.Error()
			if result.Status == StatusHealthy || result.Status == "" {
				result.Status = StatusUnhealthy
			}
		}
		resultChan <- result
	}()

	select {
	case result := <-resultChan:
		return result
	case <-ctx.Done():
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "Health check timed out",
			Error:   ctx.Err().Error(),
			Latency: time.Since(start).String(),
		}
	}
}

// DatasetHealthCheck reports unhealthy until a dataset is loaded and degraded once the
// served dataset is older than maxAge (0 disables the age check)
func DatasetHealthCheck(repo *data.Repository, maxAge time.Duration) HealthCheck {
	return func(ctx context.Context) (HealthStatus, string, error) {
		ds, err := repo.Current()
		if err != nil {
			return StatusUnhealthy, "Dataset not loaded", err
		}

		age := time.Since(ds.LoadedAt).Round(time.Second)
		msg := fmt.Sprintf("%d records, %d countries, loaded %s ago", len(ds.Records), len(ds.Countries()), age)
		if len(ds.Records) == 0 {
			return StatusDegraded, "Dataset is empty", nil
		}
		if maxAge > 0 && age > maxAge {
			return StatusDegraded, msg, nil
		}
		return StatusHealthy, msg, nil
	}
}

// PoolHealthCheck pings the PostgreSQL pool and reports its connection counts
func PoolHealthCheck(pool *pgxpool.Pool) HealthCheck {
	return func(ctx context.Context) (HealthStatus, string, error) {
		if pool == nil {
			return StatusUnhealthy, "Database pool not configured", errors.New("pool is nil")
		}
		if err := pool.Ping(ctx); err != nil {
			return StatusUnhealthy, "Database connection failed", err
		}
		stat := pool.Stat()
		return StatusHealthy, fmt.Sprintf("Database is healthy (conns: total=%d, idle=%d, acquired=%d)",
			stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns()), nil
	}
}

// PingHealthCheck wraps a ping function. A failing optional dependency is only degraded.
func PingHealthCheck(component string, ping func(context.Context) error, optional bool) HealthCheck {
	return func(ctx context.Context) (HealthStatus, string, error) {
		if err := ping(ctx); err != nil {
			if optional {
				return StatusDegraded, component + " unreachable", err
			}
			return StatusUnhealthy, component + " unreachable", err
		}
		return StatusHealthy, component + " is healthy", nil
	}
}

func getSystemInfo() *SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &SystemInfo{
		Goroutines:  runtime.NumGoroutine(),
		MemoryAlloc: m.Alloc / 1024 / 1024,
		MemorySys:   m.Sys / 1024 / 1024,
		NumCPU:      runtime.NumCPU(),
		NumGC:       m.NumGC,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
