package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covid_dashboard/internal/cache"
	"covid_dashboard/internal/config"
	"covid_dashboard/internal/dashboard"
	"covid_dashboard/internal/data"
	"covid_dashboard/internal/export"
	"covid_dashboard/internal/handlers"
	"covid_dashboard/internal/handlers/admin"
	"covid_dashboard/internal/handlers/callbacks"
	"covid_dashboard/internal/handlers/page"
	"covid_dashboard/internal/handlers/spreadsheet"
	"covid_dashboard/internal/jobs"
	"covid_dashboard/internal/transform"
)

var (
	firstDay = time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	today    = time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDataset() *data.Dataset {
	ds := &data.Dataset{LoadedAt: today}
	for i := 0; i < 14; i++ {
		day := firstDay.AddDate(0, 0, i)
		for _, country := range []string{"Germany", "Ireland", "United Kingdom"} {
			r := data.NewRecord(country, day)
			r.NewCases = float64(i + 1)
			r.NewDeaths = 1
			r.Confirmed = float64((i + 1) * (i + 2) / 2)
			r.Deaths = float64(i + 1)
			r.DailyTests = 100
			r.PositiveRate = 0.1
			ds.Records = append(ds.Records, r)
		}
	}
	ds.Variants = []data.VariantRecord{
		{Country: "Ireland", Date: firstDay, Variant: "Alpha", Detections: 10, Percent: 66},
		{Country: "Ireland", Date: firstDay.AddDate(0, 0, 7), Variant: "Delta", Detections: 12, Percent: 80},
		{Country: "Germany", Date: firstDay, Variant: "Alpha", Detections: 4, Percent: 100},
	}
	return ds
}

func newHandler(t *testing.T, ds *data.Dataset) *handlers.Handler {
	t.Helper()
	repo := data.NewRepository(nil, quietLogger())
	if ds != nil {
		repo.Set(ds)
	}
	mem := cache.NewMemoryCache(cache.DefaultConfig())
	t.Cleanup(func() { mem.Close() })

	svc := dashboard.NewService(dashboard.Config{
		Repository: repo,
		Cache:      mem,
		CacheTTL:   time.Minute,
		Logger:     quietLogger(),
		Now:        func() time.Time { return today },
	})
	h := handlers.NewHandler(svc, repo, mem, quietLogger())
	h.Now = func() time.Time { return today }
	return h
}

func newRouter(h *handlers.Handler) http.Handler {
	cb := callbacks.NewCallbackHandler(h)
	r := chi.NewRouter()
	r.Get("/", page.NewPageHandler(h, "/static", "/api/callbacks").Dashboard)
	r.Get("/api/callbacks", cb.ListCallbacks)
	r.Get("/api/callbacks/{name}", cb.RunCallback)
	r.Get("/api/countries", cb.ListCountries)
	r.Get("/api/export.xlsx", spreadsheet.NewExportHandler(h).ExportRecords)
	return r
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestParseRequest(t *testing.T) {
	q := url.Values{
		"country":    {" Ireland "},
		"countries":  {"Ireland", "", "Germany"},
		"start_date": {"2021-01-04"},
		"end_date":   {"2021-01-10"},
		"by_week":    {"true"},
		"per_100k":   {"1"},
		"option":     {"3"},
	}
	req, err := handlers.ParseRequest(q)
	require.NoError(t, err)

	assert.Equal(t, "Ireland", req.Country)
	assert.Equal(t, []string{"Ireland", "Germany"}, req.Countries)
	require.NotNil(t, req.Start)
	assert.Equal(t, firstDay, *req.Start)
	assert.True(t, req.ByWeek)
	assert.True(t, req.PerHundredK)
	assert.Equal(t, transform.CompareOption(3), req.Option)

	req, err = handlers.ParseRequest(url.Values{})
	require.NoError(t, err)
	assert.Nil(t, req.Start)
	assert.Nil(t, req.End)
	assert.False(t, req.ByWeek)
	assert.Equal(t, transform.CompareNewCases, req.Option)
}

func TestParseRequestInvalid(t *testing.T) {
	tests := []struct {
		name string
		q    url.Values
		err  error
	}{
		{"bad date", url.Values{"start_date": {"04/01/2021"}}, dashboard.ErrInvalidDate},
		{"bad bool", url.Values{"by_week": {"maybe"}}, handlers.ErrInvalidParameter},
		{"bad option", url.Values{"option": {"cases"}}, handlers.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handlers.ParseRequest(tt.q)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRespondError(t *testing.T) {
	h := newHandler(t, nil)
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"country", &dashboard.CountryError{Name: "Irland", Suggestions: []string{"Ireland"}}, http.StatusBadRequest},
		{"date", dashboard.ErrInvalidDate, http.StatusBadRequest},
		{"parameter", handlers.ErrInvalidParameter, http.StatusBadRequest},
		{"option", transform.ErrUnknownCompareOption, http.StatusBadRequest},
		{"callback", dashboard.ErrUnknownCallback, http.StatusNotFound},
		{"no dataset", data.ErrNoDataset, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.RespondError(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestDashboardPage(t *testing.T) {
	r := newRouter(newHandler(t, testDataset()))

	rec := get(t, r, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "<!doctype html>"))
	assert.Contains(t, body, `id="Country/Region-dropdown"`)
	assert.Contains(t, body, `id="eu_dropdown"`)
	assert.Contains(t, body, `data-callbacks="/api/callbacks"`)
	assert.Contains(t, body, `/static/dashboard.js`)
	for _, id := range []string{"covid-cases", "compare-covid", "variant-proportions"} {
		assert.Contains(t, body, `id="`+id+`"`)
	}
}

func TestDashboardPageWithoutDataset(t *testing.T) {
	rec := get(t, newRouter(newHandler(t, nil)), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="date-picker"`)
	assert.NotContains(t, rec.Body.String(), `id="Country/Region-dropdown"`)
}

func decodeOutputs(t *testing.T, rec *httptest.ResponseRecorder) callbacks.Response {
	t.Helper()
	var resp callbacks.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestRunCallback(t *testing.T) {
	r := newRouter(newHandler(t, testDataset()))

	rec := get(t, r, "/api/callbacks/cases-deaths?country=ireland&start_date=2021-01-04&end_date=2021-01-10")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeOutputs(t, rec)
	require.Contains(t, resp.Outputs, "covid-cases")
	require.Contains(t, resp.Outputs, "covid-deaths")
	require.NotNil(t, resp.Outputs["covid-cases"].Figure)
	assert.Len(t, resp.Outputs["covid-cases"].Figure.Data[0].X, 7)

	rec = get(t, r, "/api/callbacks/compare-cases?countries=Ireland&countries=Germany&option=2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, decodeOutputs(t, rec).Outputs["compare-covid"].Figure)
}

func TestRunCallbackPrompt(t *testing.T) {
	rec := get(t, newRouter(newHandler(t, testDataset())), "/api/callbacks/testing")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeOutputs(t, rec).Outputs["country-testing-daily"]
	assert.Nil(t, out.Figure)
	assert.Equal(t, dashboard.SelectCountryPrompt, out.Text)
}

func TestRunCallbackErrors(t *testing.T) {
	r := newRouter(newHandler(t, testDataset()))

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"unknown callback", "/api/callbacks/heatmap", http.StatusNotFound},
		{"unknown country", "/api/callbacks/testing?country=Irland", http.StatusBadRequest},
		{"bad date", "/api/callbacks/testing?country=Ireland&start_date=yesterday", http.StatusBadRequest},
		{"inverted range", "/api/callbacks/testing?country=Ireland&start_date=2021-01-10&end_date=2021-01-04", http.StatusBadRequest},
		{"bad option", "/api/callbacks/compare-cases?countries=Ireland&option=9", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, get(t, r, tt.target).Code)
		})
	}

	rec := get(t, r, "/api/callbacks/testing?country=Irland")
	var body config.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body.Suggestions, "Ireland")
}

func TestRunCallbackWithoutDataset(t *testing.T) {
	rec := get(t, newRouter(newHandler(t, nil)), "/api/callbacks/testing?country=Ireland")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListCallbacks(t *testing.T) {
	rec := get(t, newRouter(newHandler(t, testDataset())), "/api/callbacks")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Callbacks []callbacks.CallbackInfo `json:"callbacks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Callbacks, 6)
	assert.Equal(t, "cases-deaths", body.Callbacks[0].Name)
	assert.Equal(t, []string{"covid-cases", "covid-deaths"}, body.Callbacks[0].Outputs)
}

func TestListCountries(t *testing.T) {
	r := newRouter(newHandler(t, testDataset()))

	var body struct {
		Countries []string `json:"countries"`
		Count     int      `json:"count"`
	}
	rec := get(t, r, "/api/countries")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []string{"Germany", "Ireland", "United Kingdom"}, body.Countries)
	assert.Equal(t, 3, body.Count)

	rec = get(t, r, "/api/countries?q=land")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []string{"Ireland"}, body.Countries)

	rec = get(t, r, "/api/countries?q=irelnd")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Ireland", body.Countries[0], "falls back to suggestions")
}

func TestExportRecords(t *testing.T) {
	r := newRouter(newHandler(t, testDataset()))

	rec := get(t, r, "/api/export.xlsx?country=Ireland&start_date=2021-01-04&end_date=2021-01-10")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=covid_2021-01-04_2021-01-10.xlsx", rec.Header().Get("Content-Disposition"))

	ds, err := export.ReadWorkbook(rec.Body)
	require.NoError(t, err)
	assert.Len(t, ds.Records, 7)
	assert.Equal(t, []string{"Ireland"}, ds.Countries())
	assert.Len(t, ds.Variants, 1)

	assert.Equal(t, http.StatusBadRequest, get(t, r, "/api/export.xlsx?country=Atlantis").Code)
}

func TestFilterAllCountries(t *testing.T) {
	ds := testDataset()
	rng := transform.DateRange{Start: firstDay, End: firstDay}
	out := spreadsheet.Filter(ds, nil, rng)
	assert.Len(t, out.Records, 3)
	assert.Len(t, out.Variants, 2)
	assert.Equal(t, ds.LoadedAt, out.LoadedAt)
}

func TestAdminRefresh(t *testing.T) {
	h := newHandler(t, nil)
	scheduler := jobs.NewScheduler(quietLogger())
	scheduler.Register(&jobs.ScheduledTask{
		ID:       "dataset-refresh",
		Schedule: jobs.Every(time.Hour),
		Config:   &jobs.TaskConfig{MaxRetries: 0, Timeout: time.Second},
		Enabled:  true,
		Run: func(ctx context.Context) error {
			h.Repository.Set(testDataset())
			return nil
		},
	})
	a := admin.NewAdminHandler(h, admin.TriggerTask(scheduler, "dataset-refresh"))

	rec := httptest.NewRecorder()
	a.RefreshDataset(rec, httptest.NewRequest(http.MethodPost, "/admin/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body config.SuccessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.EqualValues(t, 42, body.Data["records"])
	assert.True(t, h.Repository.Loaded())
}

func TestAdminRefreshFailure(t *testing.T) {
	h := newHandler(t, nil)
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"running", jobs.ErrTaskRunning, http.StatusConflict},
		{"missing task", jobs.ErrTaskNotFound, http.StatusNotFound},
		{"source down", errors.New("source down"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := admin.NewAdminHandler(h, func(ctx context.Context) (jobs.RunInfo, error) {
				return jobs.RunInfo{RunID: "run-1", Status: jobs.RunStatusFailed}, tt.err
			})
			rec := httptest.NewRecorder()
			a.RefreshDataset(rec, httptest.NewRequest(http.MethodPost, "/admin/refresh", nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAdminClearCache(t *testing.T) {
	h := newHandler(t, nil)
	require.NoError(t, h.Cache.Set(context.Background(), "k", []byte("v"), time.Minute))

	a := admin.NewAdminHandler(h, nil)
	rec := httptest.NewRecorder()
	a.ClearCache(rec, httptest.NewRequest(http.MethodPost, "/admin/cache/clear", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := h.Cache.Get(context.Background(), "k")
	assert.True(t, cache.IsMiss(err))

	h.Cache = nil
	rec = httptest.NewRecorder()
	a.ClearCache(rec, httptest.NewRequest(http.MethodPost, "/admin/cache/clear", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
