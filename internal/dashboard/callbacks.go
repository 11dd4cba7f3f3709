package dashboard

import (
	"strconv"

	"covid_dashboard/internal/charts"
	"covid_dashboard/internal/data"
	"covid_dashboard/internal/layout"
	"covid_dashboard/internal/transform"
)

// Prompts shown in place of a chart when nothing is selected
const (
	SelectCountryPrompt   = "Please select a country from the top-left dropdown"
	SelectCountriesPrompt = "Please select at least one country from the top-left dropdown"
)

// Outputs maps an anchor id to its new content
type Outputs map[string]charts.Output

func dateTitle(byWeek bool) string {
	if byWeek {
		return "Week"
	}
	return "Day"
}

func dates(records []data.Record) []string {
	x := make([]string, len(records))
	for i, r := range records {
		x[i] = charts.FormatDate(r.Date)
	}
	return x
}

func column(records []data.Record, field string) []float64 {
	y := make([]float64, len(records))
	for i := range records {
		y[i], _ = records[i].Value(field)
	}
	return y
}

// CasesDeaths draws new cases and new deaths of one country, by day or by week.
func CasesDeaths(ds *data.Dataset, country string, r transform.DateRange, byWeek bool) Outputs {
	if country == "" {
		return Outputs{
			layout.AnchorCovidCases:  charts.TextBox(SelectCountryPrompt),
			layout.AnchorCovidDeaths: charts.Empty(),
		}
	}

	records := transform.FilterByCountry(ds.Records, country, r)
	if byWeek {
		records = transform.ToWeekly(records)
	}
	title := dateTitle(byWeek)
	x := dates(records)

	cases := charts.NewGraphConfig().
		X(x).Y(column(records, data.FieldNewCases)).Type(charts.Line).
		Marker().Color(charts.DefaultMarkerColor).Proceed().
		Layout().Title("New Covid-19 Cases By " + title).XAxis(title).YAxis("New Cases").Proceed().
		Build()

	deaths := charts.NewGraphConfig().
		X(x).Y(column(records, data.FieldNewDeaths)).Type(charts.Line).
		Marker().Color(charts.DeathsColor).Proceed().
		Layout().Title("New Covid-19 Deaths By " + title).XAxis(title).YAxis("Deaths").Proceed().
		Build()

	return Outputs{
		layout.AnchorCovidCases:  charts.FigureOutput(cases),
		layout.AnchorCovidDeaths: charts.FigureOutput(deaths),
	}
}

// MonthlyCasesDeaths draws the monthly averages of new cases and deaths of one country.
// Without a country both anchors are cleared.
func MonthlyCasesDeaths(ds *data.Dataset, country string, r transform.DateRange, perHundredK bool) Outputs {
	if country == "" {
		return Outputs{
			layout.AnchorCovidCasesMonthly:  charts.Empty(),
			layout.AnchorCovidDeathsMonthly: charts.Empty(),
		}
	}

	suffix := "(New) by month"
	if perHundredK {
		suffix = "per thousand by month"
	}

	counts, fields := transform.MonthlyCasesDeaths(transform.FilterByCountry(ds.Records, country, r), perHundredK)
	bar := func(title string, rows []transform.Count, color string) *charts.Figure {
		f, _ := charts.NewFigure(charts.Bar, title)
		x := make([]string, len(rows))
		y := make([]float64, len(rows))
		for i, c := range rows {
			x[i], y[i] = c.Label, c.Count
		}
		f.Add("", x, y)
		return f.Axes(data.FieldMonth, "Count").Color(color)
	}

	return Outputs{
		layout.AnchorCovidCasesMonthly:  charts.FigureOutput(bar("Average Cases "+suffix, transform.ByType(counts, fields[0]), charts.DefaultMarkerColor)),
		layout.AnchorCovidDeathsMonthly: charts.FigureOutput(bar("Average Deaths "+suffix, transform.ByType(counts, fields[1]), charts.DeathsColor)),
	}
}

// CompareCases draws one line per country for the selected measure. Per 100,000
// comparisons are weekly and smoothed by a two week rolling mean.
func CompareCases(ds *data.Dataset, countries []string, option transform.CompareOption, perHundredK bool, r transform.DateRange, byWeek bool) (Outputs, error) {
	cmp, err := transform.ParseCompare(dateTitle(byWeek), option, perHundredK)
	if err != nil {
		return nil, err
	}
	if len(countries) == 0 {
		return Outputs{layout.AnchorCompareCovid: charts.TextBox(SelectCountriesPrompt)}, nil
	}
	if cmp.Weekly {
		byWeek = true
	}

	records := transform.FilterByCountries(ds.Records, countries, r)
	if byWeek {
		records = transform.ToWeekly(records)
	}
	if cmp.Weekly {
		if err := transform.RollingMean(records, cmp.Column, 2); err != nil {
			return nil, err
		}
	}

	f, _ := charts.NewFigure(charts.Line, cmp.Title)
	charts.AddGrouped(f, records,
		func(r data.Record) string { return r.Country },
		func(r data.Record) string { return charts.FormatDate(r.Date) },
		func(r data.Record) float64 {
			v, _ := r.Value(cmp.Column)
			return v
		},
	)
	f.Axes(dateTitle(byWeek), cmp.YAxis).Legend(data.FieldCountry)

	return Outputs{layout.AnchorCompareCovid: charts.FigureOutput(f)}, nil
}

// CompareVaccinations draws the weekly vaccination percentage and boosters per
// hundred of each country.
func CompareVaccinations(ds *data.Dataset, countries []string, r transform.DateRange) Outputs {
	if len(countries) == 0 {
		return Outputs{
			layout.AnchorCompareVaccinations: charts.TextBox(SelectCountriesPrompt),
			layout.AnchorBoostersGiven:       charts.Empty(),
		}
	}

	percentage, boosters := transform.VaccinationProgress(transform.FilterByCountries(ds.Records, countries, r))
	weekly := func(title, yaxis string, rows []transform.WeeklyValue) *charts.Figure {
		f, _ := charts.NewFigure(charts.Line, title)
		charts.AddGrouped(f, rows,
			func(v transform.WeeklyValue) string { return v.Country },
			func(v transform.WeeklyValue) string { return charts.FormatDate(v.Week) },
			func(v transform.WeeklyValue) float64 { return v.Value },
		)
		return f.Axes(data.FieldWeek, yaxis).Legend(data.FieldCountry)
	}

	return Outputs{
		layout.AnchorCompareVaccinations: charts.FigureOutput(weekly("Percentage of people vaccinated by week", "Percentage Vaccinated", percentage)),
		layout.AnchorBoostersGiven:       charts.FigureOutput(weekly("Total boosters given per hundred by week", "Boosters given", boosters)),
	}
}

// Testing draws the weekly number of tests of one country with the positive rate in
// the hover text.
func Testing(ds *data.Dataset, country string, r transform.DateRange) Outputs {
	if country == "" {
		return Outputs{layout.AnchorCountryTestingDaily: charts.TextBox(SelectCountryPrompt)}
	}

	weeks := transform.TestingMetrics(transform.FilterByCountry(ds.Records, country, r))
	x := make([]string, len(weeks))
	y := make([]float64, len(weeks))
	rates := make([]string, len(weeks))
	for i, w := range weeks {
		x[i] = charts.FormatDate(w.Week)
		y[i] = w.DailyTests
		if !data.IsMissing(w.PositiveRate) {
			rates[i] = strconv.FormatFloat(w.PositiveRate, 'f', 3, 64)
		}
	}

	f, _ := charts.NewFigure(charts.Line, "Daily tests taken by week")
	tr := f.Add(data.FieldDailyTests, x, y)
	tr.Text = rates
	tr.HoverTemplate = "Week=%{x}<br>Count=%{y}<br>Positive Rate=%{text}<extra></extra>"
	f.Axes(data.FieldWeek, "Count").Legend("Type")

	return Outputs{layout.AnchorCountryTestingDaily: charts.FigureOutput(f)}
}

// Variants draws the detections of each variant over time and their overall proportions.
func Variants(ds *data.Dataset, country string, r transform.DateRange) Outputs {
	if country == "" {
		return Outputs{
			layout.AnchorCompareVariants:    charts.TextBox(SelectCountryPrompt),
			layout.AnchorVariantProportions: charts.Empty(),
		}
	}

	variants := transform.FilterVariants(ds.Variants, country, r)

	trend, _ := charts.NewFigure(charts.Line, "Trend of variant detections over time")
	charts.AddGrouped(trend, transform.VariantSums(variants),
		func(v transform.VariantCount) string { return v.Variant },
		func(v transform.VariantCount) string { return charts.FormatDate(v.Date) },
		func(v transform.VariantCount) float64 { return v.Detections },
	)
	trend.Axes(data.FieldWeek, "Number of Detections").Legend("Variant")

	proportions := transform.VariantProportions(variants)
	names := make([]string, len(proportions))
	values := make([]float64, len(proportions))
	for i, p := range proportions {
		names[i], values[i] = p.Variant, p.Detections
	}
	pie, _ := charts.NewFigure(charts.Pie, "Proportion of variants detected")
	pie.Add("", names, values)

	return Outputs{
		layout.AnchorCompareVariants:    charts.FigureOutput(trend),
		layout.AnchorVariantProportions: charts.FigureOutput(pie),
	}
}
