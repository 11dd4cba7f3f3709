package loader

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"covid_dashboard/internal/data"
)

// CSSEDateLayout is the layout of the date columns in the CSSE time series
const CSSEDateLayout = "1/2/06"

// csseIDColumns is the number of leading non-date columns:
// Province/State, Country/Region, Lat, Long
const csseIDColumns = 4

// ParseTimeSeries melts a wide CSSE time series into per country-day values, summing
// provinces of the same country.
func ParseTimeSeries(r io.Reader) (map[countryDay]float64, error) {
	t, err := readTable(r, data.FieldCountry)
	if err != nil {
		return nil, err
	}
	if len(t.columns) <= csseIDColumns {
		return nil, fmt.Errorf("time series has no date columns")
	}

	dates := make([]time.Time, len(t.columns)-csseIDColumns)
	for i, col := range t.columns[csseIDColumns:] {
		d, err := time.Parse(CSSEDateLayout, col)
		if err != nil {
			return nil, fmt.Errorf("invalid date column %q: %w", col, err)
		}
		dates[i] = d
	}

	values := make(map[countryDay]float64)
	for _, row := range t.rows {
		country := t.get(row, data.FieldCountry)
		if country == "" {
			continue
		}
		for i, date := range dates {
			col := csseIDColumns + i
			if col >= len(row) {
				break
			}
			v, err := data.ParseNumber(row[col])
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", country, date.Format(data.DateLayout), err)
			}
			key := countryDay{country: country, date: date}
			prev, ok := values[key]
			if !ok {
				prev = data.Missing()
			}
			values[key] = addMissing(prev, v)
		}
	}
	return values, nil
}

// BuildDaily joins confirmed and deaths series into records ordered by country then
// date, and derives NewCases and NewDeaths.
func BuildDaily(confirmed, deaths map[countryDay]float64) []data.Record {
	keys := make([]countryDay, 0, len(confirmed))
	for k := range confirmed {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].country != keys[j].country {
			return keys[i].country < keys[j].country
		}
		return keys[i].date.Before(keys[j].date)
	})

	records := make([]data.Record, 0, len(keys))
	for _, k := range keys {
		rec := data.NewRecord(k.country, k.date)
		rec.Confirmed = confirmed[k]
		if d, ok := deaths[k]; ok {
			rec.Deaths = d
		}
		records = append(records, rec)
	}

	SubtractPrevious(records, data.FieldConfirmed, data.FieldNewCases)
	SubtractPrevious(records, data.FieldDeaths, data.FieldNewDeaths)
	return records
}

// SubtractPrevious sets dst to the difference between src and the previous record's
// src for the same country, clipped at zero. records must be grouped by country and
// ordered by date; the first record of each country gets a missing value.
func SubtractPrevious(records []data.Record, src, dst string) {
	prevCountry := ""
	prev := data.Missing()
	for i := range records {
		rec := &records[i]
		cur, err := rec.Value(src)
		if err != nil {
			return
		}

		diff := data.Missing()
		if i > 0 && rec.Country == prevCountry && !data.IsMissing(prev) && !data.IsMissing(cur) {
			diff = math.Max(cur-prev, 0)
		}
		_ = rec.SetValue(dst, diff)

		prevCountry = rec.Country
		prev = cur
	}
}
