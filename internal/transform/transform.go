// Package transform shapes daily records into the series shown on the dashboard cards.
package transform

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"covid_dashboard/internal/data"
)

// DefaultStart is the start of the date range when none is given
var DefaultStart = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

// DateRange is an inclusive range of days
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the range, bounds included
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// DefaultRange fills in a missing start with DefaultStart and a missing end with today
// at midnight.
func DefaultRange(start, end *time.Time, today time.Time) DateRange {
	r := DateRange{
		Start: DefaultStart,
		End:   Midnight(today),
	}
	if start != nil {
		r.Start = *start
	}
	if end != nil {
		r.End = *end
	}
	return r
}

// Midnight truncates t to the start of its day in UTC
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday starting the week containing t
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return Midnight(t).AddDate(0, 0, -offset)
}

// FilterByCountry returns the records of country within r
func FilterByCountry(records []data.Record, country string, r DateRange) []data.Record {
	var out []data.Record
	for _, rec := range records {
		if rec.Country == country && r.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out
}

// FilterByCountries returns the records of any of countries within r
func FilterByCountries(records []data.Record, countries []string, r DateRange) []data.Record {
	set := make(map[string]struct{}, len(countries))
	for _, c := range countries {
		set[c] = struct{}{}
	}

	var out []data.Record
	for _, rec := range records {
		if _, ok := set[rec.Country]; ok && r.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out
}

// FilterVariants returns the variant detections of country within r
func FilterVariants(variants []data.VariantRecord, country string, r DateRange) []data.VariantRecord {
	var out []data.VariantRecord
	for _, v := range variants {
		if v.Country == country && r.Contains(v.Date) {
			out = append(out, v)
		}
	}
	return out
}

// measures lists the numeric columns summed by ToWeekly. Population is a level, not a
// count, and is carried over instead.
var measures = slices.DeleteFunc(slices.Clone(data.RecordColumns[2:]), func(f string) bool {
	return f == data.FieldPopulation
})

type countryWeek struct {
	country string
	week    time.Time
}

// ToWeekly sums every measurement per country and week. Dates of the result are the
// Monday of each week. A sum over only missing values stays missing. Output is ordered
// by week then country.
func ToWeekly(records []data.Record) []data.Record {
	index := make(map[countryWeek]int)
	var out []data.Record

	for _, rec := range records {
		key := countryWeek{country: rec.Country, week: WeekStart(rec.Date)}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			w := data.NewRecord(rec.Country, key.week)
			w.Population = rec.Population
			out = append(out, w)
		}
		acc := &out[i]
		for _, field := range measures {
			v, _ := rec.Value(field)
			cur, _ := acc.Value(field)
			_ = acc.SetValue(field, sumMissing(cur, v))
		}
	}

	sortByDateCountry(out)
	return out
}

// CountrySeries groups records by country preserving their order
func CountrySeries(records []data.Record) map[string][]data.Record {
	out := make(map[string][]data.Record)
	for _, r := range records {
		out[r.Country] = append(out[r.Country], r)
	}
	return out
}

// RollingMean replaces field with its mean over the last window records of the same
// country. The first window-1 values of each country become missing, as does any
// window containing a missing value.
func RollingMean(records []data.Record, field string, window int) error {
	if window < 1 {
		return fmt.Errorf("invalid rolling window %d", window)
	}

	positions := make(map[string][]int)
	for i, r := range records {
		positions[r.Country] = append(positions[r.Country], i)
	}

	for _, idx := range positions {
		values := make([]float64, len(idx))
		for j, i := range idx {
			v, err := records[i].Value(field)
			if err != nil {
				return err
			}
			values[j] = v
		}
		for j, i := range idx {
			mean := data.Missing()
			if j+1 >= window {
				sum := 0.0
				for _, v := range values[j+1-window : j+1] {
					sum += v
				}
				mean = sum / float64(window)
			}
			_ = records[i].SetValue(field, mean)
		}
	}
	return nil
}

func sumMissing(a, b float64) float64 {
	switch {
	case data.IsMissing(a):
		return b
	case data.IsMissing(b):
		return a
	}
	return a + b
}

func maxMissing(a, b float64) float64 {
	switch {
	case data.IsMissing(a):
		return b
	case data.IsMissing(b):
		return a
	case b > a:
		return b
	}
	return a
}

func sortByDateCountry(records []data.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].Country < records[j].Country
	})
}
