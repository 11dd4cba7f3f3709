package middlewares

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds configuration for CORS middleware
type CORSConfig struct {
	// AllowOrigins lists origins that may call the API.
	// Supports "*" and wildcard subdomains such as "*.example.com".
	// Default: ["*"]
	AllowOrigins []string

	// AllowMethods defines methods allowed when accessing the resource.
	// Default: ["GET", "POST", "HEAD", "OPTIONS"]
	AllowMethods []string

	// AllowHeaders defines request headers that can be used.
	// If empty, the preflight Access-Control-Request-Headers are echoed back.
	AllowHeaders []string

	// ExposeHeaders defines response headers clients can read
	ExposeHeaders []string

	// MaxAge is how long (seconds) preflight results may be cached, 0 to omit
	MaxAge int

	// Logger for structured logging
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultCORSConfig returns a permissive configuration for read-only dashboard APIs
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		ExposeHeaders: []string{RequestIDHeader},
	}
}

// CORS returns a Cross-Origin Resource Sharing middleware. Credentials are never allowed;
// the admin endpoint authenticates with a bearer token instead of cookies.
func CORS(config *CORSConfig) func(next http.Handler) http.Handler {
	if config == nil {
		config = DefaultCORSConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	origins := config.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := config.AllowMethods
	if len(methods) == 0 {
		methods = DefaultCORSConfig().AllowMethods
	}

	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(config.AllowHeaders, ", ")
	exposeHeaders := strings.Join(config.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			allowed := getAllowedOrigin(origin, origins)
			if allowed == "" {
				logger.Debug("CORS origin not allowed", "origin", origin, "path", r.URL.Path)
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Add("Vary", "Origin")

			if !preflight {
				if exposeHeaders != "" {
					h.Set("Access-Control-Expose-Headers", exposeHeaders)
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Methods", allowMethods)
			if allowHeaders != "" {
				h.Set("Access-Control-Allow-Headers", allowHeaders)
			} else if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
				h.Set("Access-Control-Allow-Headers", requested)
			}
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			if config.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

// getAllowedOrigin returns the Access-Control-Allow-Origin value for origin, or "" when
// the origin is not allowed
func getAllowedOrigin(origin string, allowOrigins []string) string {
	for _, allowed := range allowOrigins {
		switch {
		case allowed == "*":
			return "*"
		case allowed == origin:
			return origin
		case strings.HasPrefix(allowed, "*."):
			// "*.example.com" matches "https://a.example.com" but not "https://badexample.com"
			if strings.HasSuffix(origin, allowed[1:]) {
				return origin
			}
		}
	}
	return ""
}
