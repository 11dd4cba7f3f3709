package callbacks

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"covid_dashboard/internal/config"
	"covid_dashboard/internal/dashboard"
	"covid_dashboard/internal/handlers"
)

// CallbackHandler serves the callback and country endpoints
type CallbackHandler struct {
	h *handlers.Handler
}

// NewCallbackHandler creates a callback handler
func NewCallbackHandler(h *handlers.Handler) *CallbackHandler {
	return &CallbackHandler{h: h}
}

// Response is the body of a callback: one output per anchor written
type Response struct {
	Outputs dashboard.Outputs `json:"outputs"`
}

// CallbackInfo describes one callback for GET /api/callbacks
type CallbackInfo struct {
	Name    string   `json:"name"`
	Outputs []string `json:"outputs"`
}

// RunCallback answers GET /api/callbacks/{name}
func (c *CallbackHandler) RunCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	req, err := handlers.ParseRequest(r.URL.Query())
	if err != nil {
		c.h.RespondError(w, err)
		return
	}

	out, err := c.h.Dashboard.Run(r.Context(), name, req)
	if err != nil {
		c.h.RespondError(w, err)
		return
	}

	config.RespondJSON(w, http.StatusOK, Response{Outputs: out})
}

// ListCallbacks answers GET /api/callbacks with the callback names and their anchors
func (c *CallbackHandler) ListCallbacks(w http.ResponseWriter, r *http.Request) {
	all := dashboard.Callbacks()
	list := make([]CallbackInfo, 0, len(all))
	for name, outputs := range all {
		list = append(list, CallbackInfo{Name: name, Outputs: outputs})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	config.RespondJSON(w, http.StatusOK, map[string]any{"callbacks": list})
}

// ListCountries answers GET /api/countries?q=: every country for an empty q, else the
// matching ones or the closest suggestions
func (c *CallbackHandler) ListCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := c.h.Dashboard.Countries(r.URL.Query().Get("q"))
	if err != nil {
		c.h.RespondError(w, err)
		return
	}
	if countries == nil {
		countries = []string{}
	}

	config.RespondJSON(w, http.StatusOK, map[string]any{
		"countries": countries,
		"count":     len(countries),
	})
}
