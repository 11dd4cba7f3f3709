package middlewares

import (
	"log/slog"
	"net/http"
	"strconv"
)

// SecurityConfig holds configuration for security headers middleware
type SecurityConfig struct {
	// Logger for structured logging (optional, uses slog.Default if nil)
	Logger *slog.Logger

	// ContentTypeNosniff prevents browsers from MIME-sniffing
	// Default: "nosniff"
	ContentTypeNosniff string

	// XFrameOptions prevents clickjacking attacks
	// Default: "DENY"
	XFrameOptions string

	// HSTSMaxAge sets HTTP Strict Transport Security max age, sent on TLS requests only
	// Default: 31536000 (1 year)
	HSTSMaxAge int

	// HSTSIncludeSubdomains includes subdomains in HSTS policy
	HSTSIncludeSubdomains bool

	// ContentSecurityPolicy sets CSP header
	ContentSecurityPolicy string

	// ReferrerPolicy controls referrer information
	// Default: "strict-origin-when-cross-origin"
	ReferrerPolicy string

	// PermissionsPolicy controls browser features
	PermissionsPolicy string

	// CrossOriginOpenerPolicy controls cross-origin windows
	// Default: "same-origin"
	CrossOriginOpenerPolicy string
}

// dashboardCSP allows the Bootstrap stylesheet and the Plotly bundle from their CDNs.
// Plotly injects inline styles and needs blob: workers for WebGL traces.
const dashboardCSP = "default-src 'self'; " +
	"script-src 'self' https://cdn.plot.ly; " +
	"style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; " +
	"img-src 'self' data: blob:; " +
	"font-src 'self' data: https://cdn.jsdelivr.net; " +
	"worker-src blob:; " +
	"connect-src 'self'; " +
	"object-src 'none'; frame-ancestors 'none'; base-uri 'self'"

// DefaultSecurityConfig returns the header set served with the dashboard
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		ContentTypeNosniff:      "nosniff",
		XFrameOptions:           "DENY",
		HSTSMaxAge:              31536000,
		ContentSecurityPolicy:   dashboardCSP,
		ReferrerPolicy:          "strict-origin-when-cross-origin",
		PermissionsPolicy:       "camera=(), geolocation=(), microphone=(), payment=(), usb=()",
		CrossOriginOpenerPolicy: "same-origin",
	}
}

// Security returns a middleware that sets security headers
func Security(config *SecurityConfig) func(next http.Handler) http.Handler {
	if config == nil {
		config = DefaultSecurityConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	static := [][2]string{
		{"X-Content-Type-Options", config.ContentTypeNosniff},
		{"X-Frame-Options", config.XFrameOptions},
		{"Content-Security-Policy", config.ContentSecurityPolicy},
		{"Referrer-Policy", config.ReferrerPolicy},
		{"Permissions-Policy", config.PermissionsPolicy},
		{"Cross-Origin-Opener-Policy", config.CrossOriginOpenerPolicy},
	}

	logger.Debug("security headers middleware initialized",
		"hsts_max_age", config.HSTSMaxAge,
		"x_frame_options", config.XFrameOptions,
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range static {
				if kv[1] != "" {
					h.Set(kv[0], kv[1])
				}
			}
			if r.TLS != nil && hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}
