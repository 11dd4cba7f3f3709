package transform

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"covid_dashboard/internal/data"
)

// ErrUnknownCompareOption is returned by ParseCompare for an option outside CompareOption
var ErrUnknownCompareOption = errors.New("unknown compare option")

// MonthLayout labels monthly aggregates
const MonthLayout = "2006-01"

// Count is one labelled value of a categorical series, as drawn with one trace per Type
type Count struct {
	Date  time.Time
	Label string
	Type  string
	Count float64
}

// ByType returns the counts of one type, keeping order
func ByType(counts []Count, typ string) []Count {
	var out []Count
	for _, c := range counts {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

// MonthlyCasesDeaths averages new cases and new deaths per calendar month, or the per
// 100,000 equivalents when perHundredK is set. It returns rows labelled with their source
// column in Type, and the two column names used.
func MonthlyCasesDeaths(records []data.Record, perHundredK bool) ([]Count, [2]string) {
	fields := [2]string{data.FieldNewCases, data.FieldNewDeaths}
	if perHundredK {
		fields = [2]string{data.FieldCasesPerThousand, data.FieldDeathsPerThousand}
	}

	type acc struct {
		sum float64
		n   int
	}
	months := make(map[time.Time]*[2]acc)
	var order []time.Time

	for _, r := range records {
		month := time.Date(r.Date.Year(), r.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		a, ok := months[month]
		if !ok {
			a = &[2]acc{}
			months[month] = a
			order = append(order, month)
		}
		for i, f := range fields {
			v, _ := r.Value(f)
			if data.IsMissing(v) {
				continue
			}
			a[i].sum += v
			a[i].n++
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	out := make([]Count, 0, 2*len(order))
	for i, f := range fields {
		for _, month := range order {
			a := months[month][i]
			avg := data.Missing()
			if a.n > 0 {
				avg = a.sum / float64(a.n)
			}
			out = append(out, Count{Date: month, Label: month.Format(MonthLayout), Type: f, Count: avg})
		}
	}
	return out, fields
}

// CompareOption selects the measure compared between countries
type CompareOption int

const (
	CompareNewCases CompareOption = iota + 1
	CompareConfirmed
	CompareNewDeaths
	CompareDeaths
)

// CompareOptions lists the options of the comparison radio items in display order
var CompareOptions = []struct {
	Label  string
	Option CompareOption
}{
	{"New Cases", CompareNewCases},
	{"Confirmed Cases", CompareConfirmed},
	{"New Deaths", CompareNewDeaths},
	{"Deaths", CompareDeaths},
}

// Comparison describes how a compare option is drawn
type Comparison struct {
	Title  string
	YAxis  string
	Column string

	// Weekly forces weekly aggregation and a two week rolling mean
	Weekly bool
}

// ParseCompare resolves option into its chart title, y-axis label and column. dateTitle
// is "Day" or "Week". Per 100,000 only applies to new cases and new deaths, which are
// then always weekly.
func ParseCompare(dateTitle string, option CompareOption, perHundredK bool) (Comparison, error) {
	switch option {
	case CompareNewCases:
		if perHundredK {
			return Comparison{"New Covid-19 Cases By Week per 100,000", "New Cases", data.FieldCasesPerThousand, true}, nil
		}
		return Comparison{"New Covid-19 Cases By " + dateTitle, "New Cases", data.FieldNewCases, false}, nil
	case CompareConfirmed:
		return Comparison{"Confirmed Covid-19 Cases By " + dateTitle, "Confirmed Cases", data.FieldConfirmed, false}, nil
	case CompareNewDeaths:
		if perHundredK {
			return Comparison{"New Covid-19 Deaths By Week per 100,000", "New Deaths", data.FieldDeathsPerThousand, true}, nil
		}
		return Comparison{"New Covid-19 Deaths By " + dateTitle, "New Deaths", data.FieldNewDeaths, false}, nil
	case CompareDeaths:
		return Comparison{"Covid-19 Deaths By " + dateTitle, "Deaths", data.FieldDeaths, false}, nil
	}
	return Comparison{}, fmt.Errorf("%w: %d", ErrUnknownCompareOption, option)
}

// WeeklyValue is a per country weekly value
type WeeklyValue struct {
	Country string
	Week    time.Time
	Value   float64
}

// VaccinationProgress returns, per country and week, the highest percentage of fully
// vaccinated people and the highest boosters per hundred.
func VaccinationProgress(records []data.Record) (percentage, boosters []WeeklyValue) {
	type acc struct{ pct, boost float64 }
	index := make(map[countryWeek]*acc)
	var keys []countryWeek

	for _, r := range records {
		key := countryWeek{country: r.Country, week: WeekStart(r.Date)}
		a, ok := index[key]
		if !ok {
			a = &acc{pct: data.Missing(), boost: data.Missing()}
			index[key] = a
			keys = append(keys, key)
		}
		a.pct = maxMissing(a.pct, r.PercentageVaccinated)
		a.boost = maxMissing(a.boost, r.TotalBoosters)
	}

	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].country != keys[j].country {
			return keys[i].country < keys[j].country
		}
		return keys[i].week.Before(keys[j].week)
	})

	for _, k := range keys {
		a := index[k]
		if !data.IsMissing(a.pct) {
			percentage = append(percentage, WeeklyValue{Country: k.country, Week: k.week, Value: a.pct})
		}
		if !data.IsMissing(a.boost) {
			boosters = append(boosters, WeeklyValue{Country: k.country, Week: k.week, Value: a.boost})
		}
	}
	return percentage, boosters
}

// TestingWeek is the testing summary of one week
type TestingWeek struct {
	Week         time.Time
	DailyTests   float64
	PositiveRate float64
}

// TestingMetrics sums daily tests and averages the positive rate per week.
func TestingMetrics(records []data.Record) []TestingWeek {
	type acc struct {
		tests   float64
		rateSum float64
		rateN   int
	}
	index := make(map[time.Time]*acc)
	var weeks []time.Time

	for _, r := range records {
		week := WeekStart(r.Date)
		a, ok := index[week]
		if !ok {
			a = &acc{tests: data.Missing()}
			index[week] = a
			weeks = append(weeks, week)
		}
		a.tests = sumMissing(a.tests, r.DailyTests)
		if !data.IsMissing(r.PositiveRate) {
			a.rateSum += r.PositiveRate
			a.rateN++
		}
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Before(weeks[j]) })

	out := make([]TestingWeek, 0, len(weeks))
	for _, w := range weeks {
		a := index[w]
		rate := data.Missing()
		if a.rateN > 0 {
			rate = a.rateSum / float64(a.rateN)
		}
		out = append(out, TestingWeek{Week: w, DailyTests: a.tests, PositiveRate: rate})
	}
	return out
}

// VariantCount is the number of detections of a variant, on a date or over a range
type VariantCount struct {
	Date       time.Time
	Variant    string
	Detections float64
}

// VariantSums totals detections per date and variant, ordered by date then variant.
func VariantSums(variants []data.VariantRecord) []VariantCount {
	type key struct {
		date    time.Time
		variant string
	}
	index := make(map[key]int)
	var out []VariantCount

	for _, v := range variants {
		k := key{date: v.Date, variant: v.Variant}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, VariantCount{Date: v.Date, Variant: v.Variant, Detections: data.Missing()})
		}
		out[i].Detections = sumMissing(out[i].Detections, v.Detections)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Variant < out[j].Variant
	})
	return out
}

// VariantProportions totals detections per variant over all dates, ordered by variant.
// Variants without any detections are left out.
func VariantProportions(variants []data.VariantRecord) []VariantCount {
	totals := make(map[string]float64)
	for _, v := range variants {
		if data.IsMissing(v.Detections) {
			continue
		}
		totals[v.Variant] += v.Detections
	}

	out := make([]VariantCount, 0, len(totals))
	for name, n := range totals {
		if n > 0 {
			out = append(out, VariantCount{Variant: name, Detections: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Variant < out[j].Variant })
	return out
}
