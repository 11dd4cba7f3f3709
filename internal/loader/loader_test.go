package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covid_dashboard/internal/data"
	"covid_dashboard/internal/jobs"
)

const confirmedCSV = `Province/State,Country/Region,Lat,Long,1/22/20,1/23/20,1/24/20
,Ireland,53.1,-7.7,1,3,2
Ontario,Canada,51.2,-85.3,1,2,4
Quebec,Canada,52.9,-73.5,0,1,1
,Republic of Ireland,53.1,-7.7,0,0,0
`

const deathsCSV = `Province/State,Country/Region,Lat,Long,1/22/20,1/23/20,1/24/20
,Ireland,53.1,-7.7,0,1,1
Ontario,Canada,51.2,-85.3,0,0,1
Quebec,Canada,52.9,-73.5,0,0,0
,Republic of Ireland,53.1,-7.7,0,0,0
`

const vaccinationsCSV = `location,iso_code,date,total_vaccinations,people_vaccinated,people_fully_vaccinated,daily_vaccinations,total_boosters_per_hundred
Ireland,IRL,2020-01-23,100,80,50,10,1.5
United States,USA,2020-01-23,1000,900,600,100,
`

const populationsCSV = `LocID,Location,VarID,Variant,Time,MidPeriod,PopMale,PopFemale,PopTotal,PopDensity
372,Ireland,2,Medium,2019,2019.5,2400,2500,4900,70
372,Ireland,2,Medium,2020,2020.5,2450,2550,5000,71
372,Ireland,3,High,2020,2020.5,2450,2550,5000.5,71
124,Canada,2,Medium,2020,2020.5,18000,19000,37000,4
`

const variantsCSV = `location,date,variant,num_sequences,perc_sequences,num_sequences_total
Ireland,2020-01-23,Alpha,5,50,10
Ireland,2020-01-23,B.1.258,3,30,10
Ireland,2020-01-23,non_who,2,20,10
Narnia,2020-01-23,Alpha,1,100,1
`

const testingCSV = `Entity,ISO code,Date,Source URL,Source label,Notes,Cumulative total,Daily change in cumulative total,Short-term positive rate
Ireland - tests performed,IRL,2020-01-23,,,,500,50,0.1
Ireland - people tested,IRL,2020-01-23,,,,400,40,0.2
`

func sourceServer(t *testing.T) (*httptest.Server, Sources) {
	t.Helper()

	files := map[string]string{
		"/confirmed.csv":    confirmedCSV,
		"/deaths.csv":       deathsCSV,
		"/vaccinations.csv": vaccinationsCSV,
		"/populations.csv":  populationsCSV,
		"/variants.csv":     variantsCSV,
		"/testing.csv":      testingCSV,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv, Sources{
		Confirmed:    srv.URL + "/confirmed.csv",
		Deaths:       srv.URL + "/deaths.csv",
		Vaccinations: srv.URL + "/vaccinations.csv",
		Populations:  srv.URL + "/populations.csv",
		Variants:     srv.URL + "/variants.csv",
		Testing:      srv.URL + "/testing.csv",
	}
}

func date(s string) time.Time {
	d, err := time.Parse(data.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func testFetcher() *Fetcher {
	return NewFetcher(&FetcherConfig{MaxRetries: 2, Backoff: jobs.NoBackoff, Timeout: 5 * time.Second})
}

func find(records []data.Record, country, day string) *data.Record {
	for i := range records {
		if records[i].Country == country && records[i].Date.Equal(date(day)) {
			return &records[i]
		}
	}
	return nil
}

func TestParseTimeSeriesSumsProvinces(t *testing.T) {
	values, err := ParseTimeSeries(strings.NewReader(confirmedCSV))
	require.NoError(t, err)

	assert.Equal(t, 1.0, values[countryDay{"Canada", date("2020-01-22")}])
	assert.Equal(t, 3.0, values[countryDay{"Canada", date("2020-01-23")}])
	assert.Equal(t, 5.0, values[countryDay{"Canada", date("2020-01-24")}])
}

func TestParseTimeSeriesRejectsBadDates(t *testing.T) {
	_, err := ParseTimeSeries(strings.NewReader("Province/State,Country/Region,Lat,Long,yesterday\n,Ireland,0,0,1\n"))
	assert.Error(t, err)
}

func TestBuildDailyDerivesNewCases(t *testing.T) {
	confirmed, err := ParseTimeSeries(strings.NewReader(confirmedCSV))
	require.NoError(t, err)
	deaths, err := ParseTimeSeries(strings.NewReader(deathsCSV))
	require.NoError(t, err)

	records := BuildDaily(confirmed, deaths)

	first := find(records, "Ireland", "2020-01-22")
	require.NotNil(t, first)
	assert.True(t, data.IsMissing(first.NewCases), "first day has no previous value")

	second := find(records, "Ireland", "2020-01-23")
	require.NotNil(t, second)
	assert.Equal(t, 2.0, second.NewCases)
	assert.Equal(t, 1.0, second.NewDeaths)

	third := find(records, "Ireland", "2020-01-24")
	require.NotNil(t, third)
	assert.Equal(t, 0.0, third.NewCases, "decreasing totals clip at zero")
}

func TestVariantName(t *testing.T) {
	tests := map[string]string{
		"Alpha":   "Alpha",
		"Omicron": "Omicron",
		"B.1.1.7": "Unknown",
		"S:677H":  "Unknown",
		"non_who": "Unknown",
		"others":  "others",
	}
	for in, want := range tests {
		assert.Equal(t, want, VariantName(in), in)
	}
}

func TestTestingCountry(t *testing.T) {
	assert.Equal(t, "Ireland", TestingCountry("Ireland - tests performed"))
	assert.Equal(t, "US", TestingCountry("United States - samples tested"))
	assert.Equal(t, "Ireland", TestingCountry("Ireland"))
}

func TestParsePopulations(t *testing.T) {
	pops, err := ParsePopulations(strings.NewReader(populationsCSV), 2020)
	require.NoError(t, err)
	assert.Equal(t, 5000000.0, pops["Ireland"], "max estimate, truncated, in people")
	assert.Equal(t, 37000000.0, pops["Canada"])

	latest, err := ParsePopulations(strings.NewReader(populationsCSV), 2031)
	require.NoError(t, err)
	assert.Equal(t, 5000000.0, latest["Ireland"], "falls back to the latest year")
}

func TestParsePopulationsWithByteOrderMark(t *testing.T) {
	in := "\uFEFFLocation,Time,PopTotal\nIreland,2020,4937.8\n"

	pops, err := ParsePopulations(strings.NewReader(in), 2020)
	require.NoError(t, err)
	assert.Equal(t, 4937000.0, pops["Ireland"])
}

func TestPopulationMetrics(t *testing.T) {
	r := data.NewRecord("Ireland", date("2021-01-01"))
	r.Population = 5000000
	r.NewCases = 1234
	r.NewDeaths = 7
	r.FullyVaccinated = 1000000

	out := PopulationMetrics([]data.Record{r, data.NewRecord("Nowhere", date("2021-01-01"))})

	assert.Equal(t, 4000000.0, out[0].Unvaccinated)
	assert.Equal(t, 24.68, out[0].CasesPerThousand)
	assert.Equal(t, 0.14, out[0].DeathsPerThousand)
	assert.Equal(t, 20.0, out[0].PercentageVaccinated)
	assert.True(t, data.IsMissing(out[1].CasesPerThousand))
}

func TestPipelineRun(t *testing.T) {
	_, sources := sourceServer(t)

	p := NewPipeline(&PipelineConfig{
		Sources: sources,
		Fetcher: testFetcher(),
		Now:     func() time.Time { return date("2020-06-01") },
	})

	var custom atomic.Int32
	p.AddProcessor(func(records []data.Record) []data.Record {
		custom.Add(1)
		return records
	})

	ds, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), custom.Load())

	assert.Equal(t, []string{"Canada", "Ireland"}, ds.Countries(), "Republic of Ireland is dropped")

	for i := 1; i < len(ds.Records); i++ {
		assert.False(t, ds.Records[i].Date.Before(ds.Records[i-1].Date), "records sorted by date")
	}

	ie := find(ds.Records, "Ireland", "2020-01-23")
	require.NotNil(t, ie)
	assert.Equal(t, 100.0, ie.Doses)
	assert.Equal(t, 30.0, ie.PartiallyVaccinated)
	assert.Equal(t, 1.5, ie.TotalBoosters)
	assert.Equal(t, 50.0, ie.DailyTests, "first testing entity wins")
	assert.Equal(t, 0.1, ie.PositiveRate)
	assert.Equal(t, 5000000.0, ie.Population)
	assert.Equal(t, 0.04, ie.CasesPerThousand)
	assert.Equal(t, 4999950.0, ie.Unvaccinated)

	require.Len(t, ds.Variants, 2, "lineages merge into Unknown and unknown countries are dropped")
	assert.Equal(t, "Alpha", ds.Variants[0].Variant)
	assert.Equal(t, "Unknown", ds.Variants[1].Variant)
	assert.Equal(t, 5.0, ds.Variants[1].Detections)
}

func TestPipelineReportsFailingSource(t *testing.T) {
	_, sources := sourceServer(t)
	sources.Testing = sources.Testing + ".missing"

	_, err := NewPipeline(&PipelineConfig{Sources: sources, Fetcher: testFetcher()}).Run(context.Background())
	require.Error(t, err)

	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "testing", srcErr.Source)

	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusNotFound, status.StatusCode)
}

func TestFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := testFetcher().Fetch(context.Background(), "flaky", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetcherDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), "forbidden", srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetcherHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testFetcher().Fetch(ctx, "cancelled", srv.URL)
	assert.True(t, errors.Is(err, context.Canceled))
}
