package middlewares

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"
)

// RequestIDHeader carries the request id set by the observability middleware
const RequestIDHeader = "X-Request-ID"

// RecoveryConfig holds configuration for recovery middleware
type RecoveryConfig struct {
	// Logger for structured logging (optional, uses slog.Default if nil)
	Logger *slog.Logger

	// DisableStackTrace leaves the stack out of the log entry
	DisableStackTrace bool

	// RecoveryHandler writes the response after a panic
	RecoveryHandler func(w http.ResponseWriter, r *http.Request, err interface{}, stack []byte)

	// Development returns the panic value and stack to the client
	Development bool

	// OnPanic is called after the panic is logged, e.g. to count it
	OnPanic func(r *http.Request)
}

// DefaultRecoveryConfig returns a default recovery configuration
func DefaultRecoveryConfig() *RecoveryConfig {
	return &RecoveryConfig{
		RecoveryHandler: defaultRecoveryHandler,
	}
}

func defaultRecoveryHandler(w http.ResponseWriter, r *http.Request, err interface{}, stack []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      "Internal Server Error",
		"message":    "An unexpected error occurred",
		"request_id": r.Header.Get(RequestIDHeader),
	})
}

func developmentRecoveryHandler(w http.ResponseWriter, r *http.Request, err interface{}, stack []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      "Internal Server Error",
		"message":    fmt.Sprintf("Panic: %v", err),
		"stack":      string(stack),
		"method":     r.Method,
		"path":       r.URL.Path,
		"timestamp":  time.Now().Format(time.RFC3339),
		"request_id": r.Header.Get(RequestIDHeader),
	})
}

// Recovery returns a middleware that turns handler panics into 500 responses
func Recovery(config *RecoveryConfig) func(next http.Handler) http.Handler {
	if config == nil {
		config = DefaultRecoveryConfig()
	}

	handler := config.RecoveryHandler
	if handler == nil {
		if config.Development {
			handler = developmentRecoveryHandler
		} else {
			handler = defaultRecoveryHandler
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				// the server aborts the connection on this sentinel
				if err == http.ErrAbortHandler {
					panic(err)
				}

				stack := debug.Stack()

				logAttrs := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"client_ip", getClientIP(r),
					"error", fmt.Sprintf("%v", err),
				}
				if requestID := r.Header.Get(RequestIDHeader); requestID != "" {
					logAttrs = append(logAttrs, "request_id", requestID)
				}
				if !config.DisableStackTrace {
					logAttrs = append(logAttrs, "stack", string(stack))
				}

				logger.Error("panic recovered", logAttrs...)

				if config.OnPanic != nil {
					config.OnPanic(r)
				}
				handler(w, r, err, stack)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP returns the host part of RemoteAddr, which chi's RealIP has already
// replaced with the forwarded address when present
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
