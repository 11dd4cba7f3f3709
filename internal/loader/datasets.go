package loader

import (
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"covid_dashboard/internal/data"
)

// vaccination is one country-day of the vaccinations dataset
type vaccination struct {
	doses              float64
	fully              float64
	partially          float64
	daily              float64
	boostersPerHundred float64
}

// ParseVaccinations reads the OWID vaccinations file, summing rows per country-day.
func ParseVaccinations(r io.Reader) (map[countryDay]vaccination, error) {
	t, err := readTable(r, "location", "date", "total_vaccinations")
	if err != nil {
		return nil, err
	}

	out := make(map[countryDay]vaccination)
	for _, row := range t.rows {
		date, err := data.ParseDate(t.get(row, "date"))
		if err != nil {
			continue
		}
		key := countryDay{country: renameCountry(t.get(row, "location")), date: date}

		people := t.number(row, "people_vaccinated")
		fully := t.number(row, "people_fully_vaccinated")
		partially := data.Missing()
		if !data.IsMissing(people) && !data.IsMissing(fully) {
			partially = people - fully
		}

		v, ok := out[key]
		if !ok {
			v = vaccination{
				doses:              data.Missing(),
				fully:              data.Missing(),
				partially:          data.Missing(),
				daily:              data.Missing(),
				boostersPerHundred: data.Missing(),
			}
		}
		v.doses = addMissing(v.doses, t.number(row, "total_vaccinations"))
		v.fully = addMissing(v.fully, fully)
		v.partially = addMissing(v.partially, partially)
		v.daily = addMissing(v.daily, t.number(row, data.FieldDailyVaccinations))
		v.boostersPerHundred = addMissing(v.boostersPerHundred, t.number(row, data.FieldTotalBoosters))
		out[key] = v
	}
	return out, nil
}

// ParsePopulations reads the UN WPP total population file and returns the population of
// each location for year. When no row matches year, the latest year in the file is used.
// PopTotal is given in thousands.
func ParsePopulations(r io.Reader, year int) (map[string]float64, error) {
	t, err := readTable(r, "Location", "Time", "PopTotal")
	if err != nil {
		return nil, err
	}

	latest := 0
	found := false
	for _, row := range t.rows {
		y, err := strconv.Atoi(t.get(row, "Time"))
		if err != nil {
			continue
		}
		if y == year {
			found = true
		}
		if y > latest {
			latest = y
		}
	}
	if !found {
		year = latest
	}

	out := make(map[string]float64)
	for _, row := range t.rows {
		if y, err := strconv.Atoi(t.get(row, "Time")); err != nil || y != year {
			continue
		}
		pop := t.number(row, "PopTotal")
		if data.IsMissing(pop) {
			continue
		}
		loc := renameCountry(t.get(row, "Location"))
		if cur, ok := out[loc]; !ok || pop > cur {
			out[loc] = pop
		}
	}

	for loc, pop := range out {
		out[loc] = float64(uint32(pop)) * 1000
	}
	return out, nil
}

// VariantName maps lineage style and non-WHO variant names to "Unknown".
func VariantName(name string) string {
	if strings.HasPrefix(name, "B") || strings.HasPrefix(name, "S") || name == "non_who" {
		return "Unknown"
	}
	return name
}

// ParseVariants reads the OWID variants file. Rows mapping to the same country, date and
// variant name are summed.
func ParseVariants(r io.Reader) ([]data.VariantRecord, error) {
	t, err := readTable(r, "location", "date", "variant", "num_sequences")
	if err != nil {
		return nil, err
	}

	type key struct {
		country string
		date    time.Time
		variant string
	}
	index := make(map[key]int)
	var out []data.VariantRecord

	for _, row := range t.rows {
		date, err := data.ParseDate(t.get(row, "date"))
		if err != nil {
			continue
		}
		k := key{
			country: renameCountry(t.get(row, "location")),
			date:    date,
			variant: VariantName(t.get(row, "variant")),
		}
		detections := t.number(row, "num_sequences")
		percent := t.number(row, "perc_sequences")

		if i, ok := index[k]; ok {
			out[i].Detections = addMissing(out[i].Detections, detections)
			out[i].Percent = addMissing(out[i].Percent, percent)
			continue
		}
		index[k] = len(out)
		out = append(out, data.VariantRecord{
			Country:    k.country,
			Date:       k.date,
			Variant:    k.variant,
			Detections: detections,
			Percent:    percent,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// testReport is one country-day of the testing dataset
type testReport struct {
	daily        float64
	total        float64
	positiveRate float64
}

// TestingCountry extracts the country from a testing Entity such as
// "Ireland - tests performed".
func TestingCountry(entity string) string {
	if i := strings.Index(entity, "-"); i >= 0 {
		entity = entity[:i]
	}
	return renameCountry(strings.TrimSpace(entity))
}

// ParseTesting reads the OWID testing observations. When a country reports several
// units, the first entity seen for a country-day wins.
func ParseTesting(r io.Reader) (map[countryDay]testReport, error) {
	t, err := readTable(r, "Entity", "Date")
	if err != nil {
		return nil, err
	}

	out := make(map[countryDay]testReport)
	for _, row := range t.rows {
		date, err := data.ParseDate(t.get(row, "Date"))
		if err != nil {
			continue
		}
		key := countryDay{country: TestingCountry(t.get(row, "Entity")), date: date}
		if _, ok := out[key]; ok {
			continue
		}
		out[key] = testReport{
			daily:        t.number(row, "Daily change in cumulative total"),
			total:        t.number(row, "Cumulative total"),
			positiveRate: t.number(row, "Short-term positive rate"),
		}
	}
	return out, nil
}
