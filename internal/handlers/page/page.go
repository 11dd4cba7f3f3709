package page

import (
	"bytes"
	"errors"
	"net/http"

	"covid_dashboard/internal/config"
	"covid_dashboard/internal/data"
	"covid_dashboard/internal/handlers"
	"covid_dashboard/internal/layout"
)

// PageHandler serves the dashboard HTML page
type PageHandler struct {
	h              *handlers.Handler
	staticPrefix   string
	callbackPrefix string
}

// NewPageHandler creates a page handler linking assets under staticPrefix and callbacks under callbackPrefix
func NewPageHandler(h *handlers.Handler, staticPrefix, callbackPrefix string) *PageHandler {
	return &PageHandler{h: h, staticPrefix: staticPrefix, callbackPrefix: callbackPrefix}
}

// Dashboard renders the page for today. Before the first dataset is loaded the page is
// served without dropdowns.
func (p *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	widgets, err := p.h.Dashboard.Widgets()
	if err != nil {
		if !errors.Is(err, data.ErrNoDataset) {
			config.RespondInternalError(w, err, p.h.Logger)
			return
		}
		p.h.Logger.Warn("rendering dashboard without a dataset")
	}

	var buf bytes.Buffer
	err = layout.Render(&buf, layout.Page{
		Root:           layout.Build(widgets, p.h.Now()),
		StaticPrefix:   p.staticPrefix,
		CallbackPrefix: p.callbackPrefix,
	})
	if err != nil {
		config.RespondInternalError(w, err, p.h.Logger)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
