package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covid_dashboard/internal/cache"
	"covid_dashboard/internal/charts"
	"covid_dashboard/internal/data"
	"covid_dashboard/internal/layout"
	"covid_dashboard/internal/transform"
)

var (
	firstDay = time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC) // a Monday
	testNow  = time.Date(2021, 2, 1, 15, 0, 0, 0, time.UTC)
	allDays  = transform.DateRange{Start: firstDay, End: firstDay.AddDate(0, 0, 13)}
)

func testDataset() *data.Dataset {
	ds := &data.Dataset{LoadedAt: time.Date(2021, 2, 1, 6, 0, 0, 0, time.UTC)}
	for i := 0; i < 14; i++ {
		day := firstDay.AddDate(0, 0, i)
		for _, country := range []string{"Germany", "Ireland", "United Kingdom"} {
			r := data.NewRecord(country, day)
			r.NewCases = float64(i + 1)
			r.NewDeaths = 1
			r.Confirmed = float64((i + 1) * (i + 2) / 2)
			r.Deaths = float64(i + 1)
			r.CasesPerThousand = float64(i)
			r.DeathsPerThousand = 0.5
			r.PercentageVaccinated = float64(2 * i)
			r.TotalBoosters = float64(i)
			r.DailyTests = 100
			r.PositiveRate = 0.1
			ds.Records = append(ds.Records, r)
		}
	}
	ds.Variants = []data.VariantRecord{
		{Country: "Ireland", Date: firstDay, Variant: "Alpha", Detections: 10, Percent: 66},
		{Country: "Ireland", Date: firstDay, Variant: "Delta", Detections: 5, Percent: 33},
		{Country: "Ireland", Date: firstDay.AddDate(0, 0, 7), Variant: "Delta", Detections: 12, Percent: 80},
		{Country: "Ireland", Date: firstDay.AddDate(0, 0, 7), Variant: "Alpha", Detections: 3, Percent: 20},
	}
	return ds
}

func ys(t *testing.T, tr charts.Trace) []float64 {
	t.Helper()
	out := make([]float64, len(tr.Y))
	for i, v := range tr.Y {
		require.NotNil(t, v, "y[%d]", i)
		out[i] = *v
	}
	return out
}

func figure(t *testing.T, out Outputs, anchor string) *charts.Figure {
	t.Helper()
	o, ok := out[anchor]
	require.True(t, ok, "missing anchor %s", anchor)
	require.NotNil(t, o.Figure, "anchor %s has no figure", anchor)
	return o.Figure
}

func TestEmptySelectionPrompts(t *testing.T) {
	ds := testDataset()
	cmp, err := CompareCases(ds, nil, transform.CompareNewCases, false, allDays, false)
	require.NoError(t, err)

	tests := []struct {
		name    string
		out     Outputs
		first   string
		prompt  string
		cleared []string
	}{
		{"cases-deaths", CasesDeaths(ds, "", allDays, false), layout.AnchorCovidCases, SelectCountryPrompt, []string{layout.AnchorCovidDeaths}},
		{"compare-cases", cmp, layout.AnchorCompareCovid, SelectCountriesPrompt, nil},
		{"vaccinations", CompareVaccinations(ds, nil, allDays), layout.AnchorCompareVaccinations, SelectCountriesPrompt, []string{layout.AnchorBoostersGiven}},
		{"testing", Testing(ds, "", allDays), layout.AnchorCountryTestingDaily, SelectCountryPrompt, nil},
		{"variants", Variants(ds, "", allDays), layout.AnchorCompareVariants, SelectCountryPrompt, []string{layout.AnchorVariantProportions}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, charts.TextBox(tt.prompt), tt.out[tt.first])
			for _, id := range tt.cleared {
				o, ok := tt.out[id]
				assert.True(t, ok)
				assert.True(t, o.IsEmpty())
			}
			assert.Len(t, tt.out, 1+len(tt.cleared))
		})
	}

	monthly := MonthlyCasesDeaths(ds, "", allDays, false)
	assert.True(t, monthly[layout.AnchorCovidCasesMonthly].IsEmpty())
	assert.True(t, monthly[layout.AnchorCovidDeathsMonthly].IsEmpty())
}

func TestCasesDeathsByDay(t *testing.T) {
	out := CasesDeaths(testDataset(), "Ireland", allDays, false)

	cases := figure(t, out, layout.AnchorCovidCases)
	assert.Equal(t, "New Covid-19 Cases By Day", cases.Layout.Title.Text)
	assert.Equal(t, "Day", cases.Layout.XAxis.Title.Text)
	assert.Equal(t, "New Cases", cases.Layout.YAxis.Title.Text)
	require.Len(t, cases.Data, 1)
	assert.Len(t, cases.Data[0].X, 14)
	assert.Equal(t, "2021-01-04", cases.Data[0].X[0])
	assert.Equal(t, charts.DefaultMarkerColor, cases.Data[0].Marker.Color)

	deaths := figure(t, out, layout.AnchorCovidDeaths)
	assert.Equal(t, "New Covid-19 Deaths By Day", deaths.Layout.Title.Text)
	assert.Equal(t, "Deaths", deaths.Layout.YAxis.Title.Text)
	assert.Equal(t, charts.DeathsColor, deaths.Data[0].Marker.Color)
}

func TestCasesDeathsByWeek(t *testing.T) {
	out := CasesDeaths(testDataset(), "Ireland", allDays, true)

	cases := figure(t, out, layout.AnchorCovidCases)
	assert.Equal(t, "New Covid-19 Cases By Week", cases.Layout.Title.Text)
	assert.Equal(t, []string{"2021-01-04", "2021-01-11"}, cases.Data[0].X)
	assert.Equal(t, []float64{28, 77}, ys(t, cases.Data[0]))

	deaths := figure(t, out, layout.AnchorCovidDeaths)
	assert.Equal(t, []float64{7, 7}, ys(t, deaths.Data[0]))
}

func TestCasesDeathsRange(t *testing.T) {
	r := transform.DateRange{Start: firstDay.AddDate(0, 0, 2), End: firstDay.AddDate(0, 0, 4)}
	out := CasesDeaths(testDataset(), "Ireland", r, false)
	cases := figure(t, out, layout.AnchorCovidCases)
	assert.Equal(t, []float64{3, 4, 5}, ys(t, cases.Data[0]))
}

func TestMonthlyCasesDeaths(t *testing.T) {
	out := MonthlyCasesDeaths(testDataset(), "Ireland", allDays, false)

	cases := figure(t, out, layout.AnchorCovidCasesMonthly)
	assert.Equal(t, "Average Cases (New) by month", cases.Layout.Title.Text)
	assert.Equal(t, "bar", cases.Data[0].Type)
	assert.Equal(t, []string{"2021-01"}, cases.Data[0].X)
	assert.Equal(t, []float64{7.5}, ys(t, cases.Data[0]))
	assert.Equal(t, data.FieldMonth, cases.Layout.XAxis.Title.Text)
	assert.Equal(t, "Count", cases.Layout.YAxis.Title.Text)

	deaths := figure(t, out, layout.AnchorCovidDeathsMonthly)
	assert.Equal(t, "Average Deaths (New) by month", deaths.Layout.Title.Text)
	assert.Equal(t, charts.DeathsColor, deaths.Data[0].Marker.Color)

	perK := MonthlyCasesDeaths(testDataset(), "Ireland", allDays, true)
	assert.Equal(t, "Average Cases per thousand by month", figure(t, perK, layout.AnchorCovidCasesMonthly).Layout.Title.Text)
	assert.Equal(t, []float64{0.5}, ys(t, figure(t, perK, layout.AnchorCovidDeathsMonthly).Data[0]))
}

func TestCompareCases(t *testing.T) {
	out, err := CompareCases(testDataset(), []string{"Ireland", "United Kingdom"}, transform.CompareConfirmed, false, allDays, false)
	require.NoError(t, err)

	f := figure(t, out, layout.AnchorCompareCovid)
	assert.Equal(t, "Confirmed Covid-19 Cases By Day", f.Layout.Title.Text)
	assert.Equal(t, "Confirmed Cases", f.Layout.YAxis.Title.Text)
	require.Len(t, f.Data, 2)
	assert.Equal(t, "Ireland", f.Data[0].Name)
	assert.Equal(t, "United Kingdom", f.Data[1].Name)
	assert.Len(t, f.Data[0].X, 14)
	assert.Equal(t, data.FieldCountry, f.Layout.Legend.Title.Text)
}

func TestCompareCasesPerHundredKIsWeeklyRollingMean(t *testing.T) {
	out, err := CompareCases(testDataset(), []string{"Ireland", "Germany"}, transform.CompareNewCases, true, allDays, false)
	require.NoError(t, err)

	f := figure(t, out, layout.AnchorCompareCovid)
	assert.Equal(t, "New Covid-19 Cases By Week per 100,000", f.Layout.Title.Text)
	assert.Equal(t, "Week", f.Layout.XAxis.Title.Text)
	require.Len(t, f.Data, 2)
	for _, tr := range f.Data {
		assert.Equal(t, []string{"2021-01-04", "2021-01-11"}, tr.X)
		require.Len(t, tr.Y, 2)
		assert.Nil(t, tr.Y[0])
		require.NotNil(t, tr.Y[1])
		assert.Equal(t, 45.5, *tr.Y[1])
	}

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"y":[null,45.5]`)
}

func TestCompareCasesUnknownOption(t *testing.T) {
	_, err := CompareCases(testDataset(), []string{"Ireland"}, transform.CompareOption(9), false, allDays, false)
	assert.ErrorIs(t, err, transform.ErrUnknownCompareOption)
}

func TestCompareVaccinations(t *testing.T) {
	out := CompareVaccinations(testDataset(), []string{"Ireland"}, allDays)

	pct := figure(t, out, layout.AnchorCompareVaccinations)
	assert.Equal(t, "Percentage of people vaccinated by week", pct.Layout.Title.Text)
	assert.Equal(t, "Percentage Vaccinated", pct.Layout.YAxis.Title.Text)
	assert.Equal(t, []float64{12, 26}, ys(t, pct.Data[0]))

	boosters := figure(t, out, layout.AnchorBoostersGiven)
	assert.Equal(t, "Total boosters given per hundred by week", boosters.Layout.Title.Text)
	assert.Equal(t, "Boosters given", boosters.Layout.YAxis.Title.Text)
	assert.Equal(t, []float64{6, 13}, ys(t, boosters.Data[0]))
}

func TestTesting(t *testing.T) {
	out := Testing(testDataset(), "Ireland", allDays)

	f := figure(t, out, layout.AnchorCountryTestingDaily)
	assert.Equal(t, "Daily tests taken by week", f.Layout.Title.Text)
	require.Len(t, f.Data, 1)
	assert.Equal(t, []float64{700, 700}, ys(t, f.Data[0]))
	assert.Equal(t, []string{"0.100", "0.100"}, f.Data[0].Text)
	assert.Contains(t, f.Data[0].HoverTemplate, "Positive Rate")
}

func TestVariants(t *testing.T) {
	out := Variants(testDataset(), "Ireland", allDays)

	trend := figure(t, out, layout.AnchorCompareVariants)
	assert.Equal(t, "Trend of variant detections over time", trend.Layout.Title.Text)
	assert.Equal(t, "Number of Detections", trend.Layout.YAxis.Title.Text)
	require.Len(t, trend.Data, 2)
	assert.Equal(t, "Alpha", trend.Data[0].Name)
	assert.Equal(t, []float64{10, 3}, ys(t, trend.Data[0]))
	assert.Equal(t, []float64{5, 12}, ys(t, trend.Data[1]))

	pie := figure(t, out, layout.AnchorVariantProportions)
	assert.Equal(t, "Proportion of variants detected", pie.Layout.Title.Text)
	require.Len(t, pie.Data, 1)
	assert.Equal(t, "pie", pie.Data[0].Type)
	assert.Equal(t, []string{"Alpha", "Delta"}, pie.Data[0].Labels)
}

func TestResolveCountry(t *testing.T) {
	countries := []string{"Germany", "Ireland", "United Kingdom"}

	c, err := ResolveCountry(countries, "Ireland")
	require.NoError(t, err)
	assert.Equal(t, "Ireland", c)

	c, err = ResolveCountry(countries, " united kingdom ")
	require.NoError(t, err)
	assert.Equal(t, "United Kingdom", c)

	_, err = ResolveCountry(countries, "Irland")
	require.ErrorIs(t, err, ErrUnknownCountry)
	var ce *CountryError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Irland", ce.Name)
	require.NotEmpty(t, ce.Suggestions)
	assert.Equal(t, "Ireland", ce.Suggestions[0])
	assert.LessOrEqual(t, len(ce.Suggestions), MaxSuggestions)
	assert.Contains(t, err.Error(), "did you mean Ireland")
}

func TestResolveCountriesDropsDuplicates(t *testing.T) {
	got, err := ResolveCountries([]string{"Germany", "Ireland"}, []string{"ireland", "Ireland", "Germany"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ireland", "Germany"}, got)
}

func TestSuggestAndSearch(t *testing.T) {
	countries := []string{"Germany", "Ireland", "Iceland", "United Kingdom", "United Arab Emirates"}

	assert.Equal(t, []string{"United Kingdom", "United Arab Emirates"}, Search(countries, "united"))
	assert.Equal(t, countries, Search(countries, ""))
	assert.Equal(t, []string{"Germany"}, Search(countries, "germ"))
	assert.Contains(t, Search(countries, "Icelnd"), "Iceland")

	assert.Empty(t, Suggest(countries, "", 3))
	assert.Empty(t, Suggest(countries, "zzzzzzzzzzzzzzzzzz", 3))
	assert.Len(t, Suggest(countries, "land", 1), 1)
}

func TestWidgets(t *testing.T) {
	w := Widgets(testDataset())

	single, ok := w.CountryDropdown.(*layout.Dropdown)
	require.True(t, ok)
	assert.Equal(t, CountryDropdownID, single.ID)
	assert.Equal(t, []string{"Ireland"}, single.Value)
	assert.False(t, single.Multi)
	require.Len(t, single.Options, 3)
	assert.Equal(t, "Germany", single.Options[0].Value)

	multi := w.CountryDropdownMultiple1.(*layout.Dropdown)
	assert.Equal(t, layout.KeyCountryDropdownMultiple1, multi.ID)
	assert.True(t, multi.Multi)
	assert.Equal(t, []string{"Ireland", "United Kingdom"}, multi.Value)

	assert.Equal(t, layout.KeyCountryDropdown1, w.CountryDropdown1.ControlID())
	assert.Equal(t, layout.KeyCountryDropdownMultiple, w.CountryDropdownMultiple.ControlID())

	variants := w.VariantsDropdown.(*layout.Dropdown)
	assert.Equal(t, VariantsDropdownID, variants.ID)
	assert.Equal(t, []layout.Option{{Label: "Ireland", Value: "Ireland"}}, variants.Options)

	// The built page carries the dropdowns and still every anchor once
	root := layout.Build(w, testNow)
	assert.NotNil(t, root.Find(CountryDropdownID))
	assert.NotNil(t, root.Find(VariantsDropdownID))
}

func TestWidgetsWithoutDefaultCountry(t *testing.T) {
	ds := &data.Dataset{Records: []data.Record{data.NewRecord("France", firstDay)}}
	w := Widgets(ds)
	assert.Empty(t, w.CountryDropdown.(*layout.Dropdown).Value)
	assert.Empty(t, w.VariantsDropdown.(*layout.Dropdown).Options)
}

type observed struct {
	callback string
	cached   bool
}

func newTestService(t *testing.T, c cache.Cache) (*Service, *[]observed) {
	t.Helper()
	repo := data.NewRepository(nil, nil)
	repo.Set(testDataset())
	var seen []observed
	svc := NewService(Config{
		Repository: repo,
		Cache:      c,
		Now:        func() time.Time { return testNow },
		Observe: func(name string, cached bool, _ time.Duration) {
			seen = append(seen, observed{name, cached})
		},
	})
	return svc, &seen
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestServiceRunResolvesCountries(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	out, err := svc.Run(ctx, CallbackCasesDeaths, Request{Country: "ireland"})
	require.NoError(t, err)
	// default range is 2021-01-01 up to today, which covers the whole dataset
	assert.Len(t, figure(t, out, layout.AnchorCovidCases).Data[0].X, 14)

	_, err = svc.Run(ctx, CallbackVariants, Request{Country: "Germany"})
	assert.ErrorIs(t, err, ErrUnknownCountry)

	_, err = svc.Run(ctx, CallbackCompareCases, Request{Countries: []string{"Ireland", "Irelnd"}, Option: transform.CompareNewCases})
	assert.ErrorIs(t, err, ErrUnknownCountry)

	_, err = svc.Run(ctx, "nope", Request{})
	assert.ErrorIs(t, err, ErrUnknownCallback)
}

func TestServiceRunAllCallbacks(t *testing.T) {
	svc, _ := newTestService(t, nil)
	req := Request{
		Country:   "Ireland",
		Countries: []string{"Ireland", "United Kingdom"},
		Option:    transform.CompareNewDeaths,
	}
	for name, anchors := range Callbacks() {
		t.Run(name, func(t *testing.T) {
			out, err := svc.Run(context.Background(), name, req)
			require.NoError(t, err)
			assert.Len(t, out, len(anchors))
			for _, a := range anchors {
				assert.NotNil(t, out[a].Figure, a)
			}
		})
	}
}

func TestServiceRunDates(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	out, err := svc.Run(ctx, CallbackTesting, Request{Country: "Ireland", Start: day(2021, 1, 11), End: day(2021, 1, 17)})
	require.NoError(t, err)
	assert.Equal(t, []string{"2021-01-11"}, figure(t, out, layout.AnchorCountryTestingDaily).Data[0].X)

	_, err = svc.Run(ctx, CallbackTesting, Request{Country: "Ireland", Start: day(2021, 2, 1), End: day(2021, 1, 1)})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestServiceRunWithoutDataset(t *testing.T) {
	svc := NewService(Config{Repository: data.NewRepository(nil, nil)})
	_, err := svc.Run(context.Background(), CallbackTesting, Request{Country: "Ireland"})
	assert.ErrorIs(t, err, data.ErrNoDataset)

	_, err = svc.Widgets()
	assert.ErrorIs(t, err, data.ErrNoDataset)
}

func TestServiceRunCaches(t *testing.T) {
	mc := cache.NewMemoryCache(cache.DefaultConfig())
	defer mc.Close()
	svc, seen := newTestService(t, mc)
	ctx := context.Background()

	req := Request{Countries: []string{"United Kingdom", "Ireland"}, Option: transform.CompareNewCases}
	first, err := svc.Run(ctx, CallbackCompareCases, req)
	require.NoError(t, err)

	// same countries in another order share the entry
	req.Countries = []string{"ireland", "United Kingdom"}
	second, err := svc.Run(ctx, CallbackCompareCases, req)
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, []observed{{CallbackCompareCases, false}, {CallbackCompareCases, true}}, *seen)

	req.PerHundredK = true
	_, err = svc.Run(ctx, CallbackCompareCases, req)
	require.NoError(t, err)
	assert.False(t, (*seen)[2].cached)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = ParseDate("2021-03-04T00:00:00")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), *d)

	_, err = ParseDate("04/03/2021")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestCountriesSearch(t *testing.T) {
	svc, _ := newTestService(t, nil)
	got, err := svc.Countries("king")
	require.NoError(t, err)
	assert.Equal(t, []string{"United Kingdom"}, got)
}
