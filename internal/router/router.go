// Package router wires the dashboard endpoints and the middleware chain.
package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"covid_dashboard/internal/handlers"
	"covid_dashboard/internal/handlers/admin"
	"covid_dashboard/internal/handlers/callbacks"
	"covid_dashboard/internal/handlers/page"
	"covid_dashboard/internal/handlers/spreadsheet"
	"covid_dashboard/internal/middlewares"
	"covid_dashboard/internal/observability"
)

// URL prefixes handed to the page
const (
	StaticPrefix   = "/static"
	CallbackPrefix = "/api/callbacks"
)

// RateLimit is a token bucket: Capacity requests at once, refilled at Rate per second
type RateLimit struct {
	Capacity int
	Rate     float64
}

// Config holds everything the router mounts
type Config struct {
	Logger  *slog.Logger
	Handler *handlers.Handler

	// Refresh backs POST /admin/refresh. Nil leaves the route out.
	Refresh admin.RefreshFunc

	// Metrics instruments every route and serves /metrics. Nil disables both.
	Metrics *observability.Metrics

	// Health backs /health, /ready and /live
	Health *observability.HealthConfig

	// AdminTokenHash is the argon2id hash admin requests must match. Empty disables /admin.
	AdminTokenHash string

	CORS     *middlewares.CORSConfig
	Security *middlewares.SecurityConfig

	// RateLimitStore holds the token buckets. Nil keeps them in memory.
	RateLimitStore middlewares.TokenBucketStore
	CallbackLimit  RateLimit
	ExportLimit    RateLimit

	// RequestTimeout bounds callback and export requests
	RequestTimeout time.Duration

	// Static serves the embedded assets under StaticPrefix
	Static http.Handler

	// Development returns panic details to the client
	Development bool
}

// DefaultConfig returns the limits used by the server
func DefaultConfig() *Config {
	return &Config{
		CallbackLimit:  RateLimit{Capacity: 60, Rate: 10},
		ExportLimit:    RateLimit{Capacity: 5, Rate: 0.1},
		RequestTimeout: 30 * time.Second,
	}
}

// New builds the router
func New(cfg *Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CallbackLimit.Capacity <= 0 {
		cfg.CallbackLimit = DefaultConfig().CallbackLimit
	}
	if cfg.ExportLimit.Capacity <= 0 {
		cfg.ExportLimit = DefaultConfig().ExportLimit
	}
	store := cfg.RateLimitStore
	if store == nil {
		store = middlewares.NewMemoryTokenBucketStore()
	}

	r := chi.NewRouter()

	r.Use(observability.RequestID(nil))
	r.Use(chimiddleware.RealIP)

	loggerCfg := middlewares.DefaultLoggerConfig()
	loggerCfg.Logger = logger
	r.Use(middlewares.Logger(loggerCfg))

	recoveryCfg := middlewares.DefaultRecoveryConfig()
	recoveryCfg.Logger = logger
	recoveryCfg.Development = cfg.Development
	if cfg.Metrics != nil {
		recoveryCfg.OnPanic = cfg.Metrics.ObservePanic
	}
	r.Use(middlewares.Recovery(recoveryCfg))

	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	securityCfg := cfg.Security
	if securityCfg == nil {
		securityCfg = middlewares.DefaultSecurityConfig()
	}
	securityCfg.Logger = logger
	r.Use(middlewares.Security(securityCfg))

	corsCfg := cfg.CORS
	if corsCfg == nil {
		corsCfg = middlewares.DefaultCORSConfig()
	}
	corsCfg.Logger = logger
	r.Use(middlewares.CORS(corsCfg))

	timeoutCfg := middlewares.DefaultTimeoutConfig()
	timeoutCfg.Logger = logger
	if cfg.RequestTimeout > 0 {
		timeoutCfg.Timeout = cfg.RequestTimeout
	}
	r.Use(middlewares.Timeout(timeoutCfg))

	r.Get("/health", observability.HealthHandler(cfg.Health))
	r.Get("/ready", observability.ReadinessHandler(cfg.Health))
	r.Get("/live", observability.LivenessHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	if cfg.Static != nil {
		r.Handle(StaticPrefix+"/*", http.StripPrefix(StaticPrefix, cfg.Static))
	}

	h := cfg.Handler
	pages := page.NewPageHandler(h, StaticPrefix, CallbackPrefix)
	cb := callbacks.NewCallbackHandler(h)
	exports := spreadsheet.NewExportHandler(h)

	r.Get("/", pages.Dashboard)

	r.Route("/api", func(r chi.Router) {
		r.Get("/countries", cb.ListCountries)

		r.Group(func(r chi.Router) {
			limit := middlewares.PerIP(cfg.CallbackLimit.Capacity, cfg.CallbackLimit.Rate, store)
			limit.Logger = logger
			limit.KeyGenerator = middlewares.KeyByIP("callbacks")
			r.Use(middlewares.RateLimit(limit))

			r.Get("/callbacks", cb.ListCallbacks)
			r.Get("/callbacks/{name}", cb.RunCallback)
		})

		r.Group(func(r chi.Router) {
			limit := middlewares.PerIP(cfg.ExportLimit.Capacity, cfg.ExportLimit.Rate, store)
			limit.Logger = logger
			limit.KeyGenerator = middlewares.KeyByIP("export")
			limit.Message = "Too many exports, try again later"
			r.Use(middlewares.RateLimit(limit))

			r.Get("/export.xlsx", exports.ExportRecords)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.AdminAuth(&middlewares.AdminAuthConfig{
			TokenHash: cfg.AdminTokenHash,
			Logger:    logger,
		}))

		adminHandler := admin.NewAdminHandler(h, cfg.Refresh)
		if cfg.Refresh != nil {
			r.Post("/refresh", adminHandler.RefreshDataset)
		}
		r.Post("/cache/clear", adminHandler.ClearCache)
	})

	return r
}
