package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"covid_dashboard/internal/cache"
	"covid_dashboard/internal/config"
	"covid_dashboard/internal/dashboard"
	"covid_dashboard/internal/data"
	"covid_dashboard/internal/transform"
)

// Handler holds what every endpoint needs
type Handler struct {
	Dashboard  *dashboard.Service
	Repository *data.Repository
	Cache      cache.Cache
	Logger     *slog.Logger
	Now        func() time.Time
}

// NewHandler creates the shared handler. A nil logger uses slog.Default.
func NewHandler(svc *dashboard.Service, repo *data.Repository, c cache.Cache, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		Dashboard:  svc,
		Repository: repo,
		Cache:      c,
		Logger:     l,
		Now:        time.Now,
	}
}

// RespondError writes the JSON error matching err
func (h *Handler) RespondError(w http.ResponseWriter, err error) {
	var countryErr *dashboard.CountryError
	switch {
	case errors.As(err, &countryErr):
		config.RespondUnknownValue(w, countryErr.Error(), countryErr.Suggestions)
	case errors.Is(err, ErrInvalidParameter):
		config.RespondBadRequest(w, "Invalid query parameter", err.Error())
	case errors.Is(err, dashboard.ErrInvalidDate):
		config.RespondBadRequest(w, "Invalid date range", err.Error())
	case errors.Is(err, transform.ErrUnknownCompareOption):
		config.RespondBadRequest(w, "Invalid comparison option", err.Error())
	case errors.Is(err, dashboard.ErrUnknownCallback):
		config.RespondNotFound(w, err.Error())
	case errors.Is(err, data.ErrNoDataset):
		config.RespondServiceUnavailable(w, "Dataset not loaded yet")
	default:
		config.RespondInternalError(w, err, h.Logger)
	}
}
