package spreadsheet

import (
	"bytes"
	"fmt"
	"net/http"

	"covid_dashboard/internal/config"
	"covid_dashboard/internal/dashboard"
	"covid_dashboard/internal/data"
	"covid_dashboard/internal/export"
	"covid_dashboard/internal/handlers"
	"covid_dashboard/internal/transform"
)

// ExportHandler serves dataset downloads as xlsx workbooks
type ExportHandler struct {
	h *handlers.Handler
}

// NewExportHandler creates an export handler
func NewExportHandler(h *handlers.Handler) *ExportHandler {
	return &ExportHandler{h: h}
}

// ExportRecords answers GET /api/export.xlsx with the records and variant detections of
// the requested countries within the date range. No country exports every country.
func (e *ExportHandler) ExportRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := handlers.ParseRequest(q)
	if err != nil {
		e.h.RespondError(w, err)
		return
	}

	ds, err := e.h.Dashboard.Dataset()
	if err != nil {
		e.h.RespondError(w, err)
		return
	}
	rng, err := e.h.Dashboard.Range(req)
	if err != nil {
		e.h.RespondError(w, err)
		return
	}

	names := q[handlers.ParamCountry]
	countries, err := dashboard.ResolveCountries(ds.Countries(), names)
	if err != nil {
		e.h.RespondError(w, err)
		return
	}

	subset := Filter(ds, countries, rng)

	var buf bytes.Buffer
	if err := export.WriteWorkbook(&buf, subset); err != nil {
		config.RespondInternalError(w, err, e.h.Logger)
		return
	}

	e.h.Logger.Info("records exported",
		"countries", len(countries),
		"records", len(subset.Records),
		"variants", len(subset.Variants),
		"bytes", buf.Len(),
	)

	filename := fmt.Sprintf("covid_%s_%s.xlsx", rng.Start.Format(data.DateLayout), rng.End.Format(data.DateLayout))
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.Header().Set("Content-Type", export.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Filter returns the part of ds within rng, restricted to countries when any are given
func Filter(ds *data.Dataset, countries []string, rng transform.DateRange) *data.Dataset {
	keep := func(country string) bool { return true }
	if len(countries) > 0 {
		set := make(map[string]struct{}, len(countries))
		for _, c := range countries {
			set[c] = struct{}{}
		}
		keep = func(country string) bool {
			_, ok := set[country]
			return ok
		}
	}

	out := &data.Dataset{LoadedAt: ds.LoadedAt}
	for _, rec := range ds.Records {
		if keep(rec.Country) && rng.Contains(rec.Date) {
			out.Records = append(out.Records, rec)
		}
	}
	for _, v := range ds.Variants {
		if keep(v.Country) && rng.Contains(v.Date) {
			out.Variants = append(out.Variants, v)
		}
	}
	return out
}
