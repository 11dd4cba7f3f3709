package middlewares

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// TimeoutConfig holds configuration for timeout middleware
type TimeoutConfig struct {
	// Logger for structured logging (optional, uses slog.Default if nil)
	Logger *slog.Logger

	// Timeout is the deadline placed on the request context
	// Default: 30 seconds
	Timeout time.Duration

	// ErrorHandler writes the response when the handler ran out of time without writing one
	// Default: 503 JSON error
	ErrorHandler func(w http.ResponseWriter, r *http.Request)

	// OnTimeout is called when a timeout occurs
	OnTimeout func(r *http.Request, duration time.Duration)

	// SkipTimeoutForPaths defines paths that should not have timeout applied
	SkipTimeoutForPaths []string
}

// DefaultTimeoutConfig returns a default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Timeout:             30 * time.Second,
		ErrorHandler:        defaultTimeoutErrorHandler,
		SkipTimeoutForPaths: []string{"/health", "/live", "/metrics"},
	}
}

func defaultTimeoutErrorHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     "Request Timeout",
		"message":   "The request took too long to process",
		"timestamp": time.Now().Unix(),
	})
}

// Timeout returns a middleware that bounds the request context. The handler runs on the
// request goroutine and is expected to return once its context is done; if it returns
// without writing anything after the deadline passed, ErrorHandler answers instead.
func Timeout(config *TimeoutConfig) func(next http.Handler) http.Handler {
	if config == nil {
		config = DefaultTimeoutConfig()
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	errorHandler := config.ErrorHandler
	if errorHandler == nil {
		errorHandler = defaultTimeoutErrorHandler
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	skip := make(map[string]bool, len(config.SkipTimeoutForPaths))
	for _, p := range config.SkipTimeoutForPaths {
		skip[p] = true
	}

	logger.Debug("timeout middleware initialized",
		"timeout", timeout.String(),
		"skip_paths_count", len(skip),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			start := time.Now()
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return
			}

			duration := time.Since(start)
			logger.Warn("request timeout",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", duration.String(),
				"timeout", timeout.String(),
				"response_written", wrapped.wroteHeader,
			)
			if config.OnTimeout != nil {
				config.OnTimeout(r, duration)
			}
			if !wrapped.wroteHeader {
				errorHandler(w, r)
			}
		})
	}
}
