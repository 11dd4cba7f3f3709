package observability

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// RequestIDHeader is the header carrying the request ID
	RequestIDHeader = "X-Request-ID"
)

// maxRequestIDLength bounds client supplied IDs before they reach the logs
const maxRequestIDLength = 128

// RequestIDConfig holds configuration for request ID middleware
type RequestIDConfig struct {
	// Header name for request ID
	// Default: X-Request-ID
	Header string

	// Generator function to create request IDs
	// Default: random UUID
	Generator func() string
}

// DefaultRequestIDConfig returns a default request ID configuration
func DefaultRequestIDConfig() *RequestIDConfig {
	return &RequestIDConfig{
		Header:    RequestIDHeader,
		Generator: uuid.NewString,
	}
}

// RequestID returns a middleware that assigns every request an ID. An incoming ID is kept.
// The ID is stored in the context, echoed in the response and written back to the request
// header so downstream middlewares can log it.
func RequestID(config *RequestIDConfig) func(next http.Handler) http.Handler {
	if config == nil {
		config = DefaultRequestIDConfig()
	}

	header := config.Header
	if header == "" {
		header = RequestIDHeader
	}
	generate := config.Generator
	if generate == nil {
		generate = uuid.NewString
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(header)
			if requestID == "" || len(requestID) > maxRequestIDLength {
				requestID = generate()
				r.Header.Set(header, requestID)
			}

			w.Header().Set(header, requestID)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
		})
	}
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}

	return ""
}

// WithRequestID returns a context with the given request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}
