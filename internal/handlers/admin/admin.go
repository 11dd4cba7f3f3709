package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"covid_dashboard/internal/config"
	"covid_dashboard/internal/handlers"
	"covid_dashboard/internal/jobs"
)

// RefreshFunc runs a dataset refresh and reports the run
type RefreshFunc func(ctx context.Context) (jobs.RunInfo, error)

// AdminHandler serves the token protected maintenance endpoints
type AdminHandler struct {
	h       *handlers.Handler
	refresh RefreshFunc
}

// NewAdminHandler creates an admin handler whose RefreshDataset runs refresh
func NewAdminHandler(h *handlers.Handler, refresh RefreshFunc) *AdminHandler {
	return &AdminHandler{h: h, refresh: refresh}
}

// TriggerTask returns a RefreshFunc running the scheduled task id out of schedule
func TriggerTask(s *jobs.Scheduler, id string) RefreshFunc {
	return func(ctx context.Context) (jobs.RunInfo, error) {
		return s.Trigger(ctx, id)
	}
}

// RefreshDataset answers POST /admin/refresh. The request waits for the run.
func (a *AdminHandler) RefreshDataset(w http.ResponseWriter, r *http.Request) {
	info, err := a.refresh(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrTaskRunning):
			config.RespondError(w, http.StatusConflict, "A refresh is already running", "", nil)
		case errors.Is(err, jobs.ErrTaskNotFound):
			config.RespondNotFound(w, err.Error())
		default:
			a.h.Logger.Error("manual dataset refresh failed", "run_id", info.RunID, "error", err)
			config.RespondJSON(w, http.StatusBadGateway, map[string]any{
				"error":   http.StatusText(http.StatusBadGateway),
				"message": "Dataset refresh failed",
				"details": err.Error(),
				"run":     info,
			})
		}
		return
	}

	resp := map[string]any{"run": info}
	if ds, err := a.h.Repository.Current(); err == nil {
		resp["records"] = len(ds.Records)
		resp["variants"] = len(ds.Variants)
		resp["loaded_at"] = ds.LoadedAt.Format(time.RFC3339)
	}
	a.h.Logger.Info("manual dataset refresh completed", "run_id", info.RunID, "attempts", info.Attempts)
	config.RespondSuccess(w, http.StatusOK, "Dataset refreshed", resp)
}

// ClearCache answers POST /admin/cache/clear by dropping every cached callback output
func (a *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if a.h.Cache == nil {
		config.RespondNotFound(w, "Caching is disabled")
		return
	}
	if err := a.h.Cache.Clear(r.Context()); err != nil {
		config.RespondInternalError(w, err, a.h.Logger)
		return
	}
	a.h.Logger.Info("callback cache cleared")
	config.RespondSuccess(w, http.StatusOK, "Cache cleared", nil)
}
