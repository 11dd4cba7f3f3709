package middlewares

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"covid_dashboard/internal/security"
)

var (
	// ErrAdminDisabled is reported when no admin token hash is configured
	ErrAdminDisabled = errors.New("admin endpoints disabled")
	// ErrMissingToken is reported when the request carries no bearer token
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is reported when the bearer token does not match the hash
	ErrInvalidToken = errors.New("invalid bearer token")
)

// AdminAuthConfig holds configuration for the admin bearer token middleware
type AdminAuthConfig struct {
	// TokenHash is the argon2id hash of the admin token. Empty disables every admin route.
	TokenHash string

	// Logger for structured logging (optional, uses slog.Default if nil)
	Logger *slog.Logger

	// Verify compares a token with TokenHash
	// Default: security.VerifyToken
	Verify func(token, hash string) (bool, error)

	// ErrorHandler writes the rejection response
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)
}

func defaultAdminErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusUnauthorized
	message := "Authentication required"
	switch {
	case errors.Is(err, ErrAdminDisabled):
		status = http.StatusNotFound
		message = "Not found"
	case errors.Is(err, ErrInvalidToken):
		message = "Invalid token"
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

// AdminAuth returns a middleware that requires "Authorization: Bearer <token>" matching
// the configured argon2id hash
func AdminAuth(config *AdminAuthConfig) func(next http.Handler) http.Handler {
	if config == nil {
		config = &AdminAuthConfig{}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	verify := config.Verify
	if verify == nil {
		verify = security.VerifyToken
	}
	onError := config.ErrorHandler
	if onError == nil {
		onError = defaultAdminErrorHandler
	}

	if config.TokenHash != "" {
		if err := security.ValidateHash(config.TokenHash); err != nil {
			logger.Error("admin token hash is unusable, admin endpoints disabled", "error", err)
			config = &AdminAuthConfig{}
		}
	}
	hash := config.TokenHash

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				onError(w, r, ErrAdminDisabled)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				onError(w, r, ErrMissingToken)
				return
			}

			match, err := verify(token, hash)
			if err != nil {
				logger.Error("admin token verification failed", "error", err)
			}
			if !match {
				logger.Warn("admin authentication rejected",
					"method", r.Method,
					"path", r.URL.Path,
					"client_ip", getClientIP(r),
					"token", maskToken(token),
				)
				onError(w, r, ErrInvalidToken)
				return
			}

			logger.Info("admin request authenticated",
				"method", r.Method,
				"path", r.URL.Path,
				"client_ip", getClientIP(r),
			)
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// maskToken masks a token for logging
func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
