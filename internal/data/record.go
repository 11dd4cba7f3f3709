package data

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrNoDataset is returned when no dataset has been loaded yet
var ErrNoDataset = errors.New("dataset not loaded")

// ErrUnknownField is returned when a metric name does not map to a Record column
var ErrUnknownField = errors.New("unknown record field")

// Record is one country-day of the merged dataset.
// Missing measurements are NaN, see Missing and IsMissing.
type Record struct {
	Country string
	Date    time.Time

	Confirmed float64
	Deaths    float64
	NewCases  float64
	NewDeaths float64

	Doses               float64
	FullyVaccinated     float64
	PartiallyVaccinated float64
	DailyVaccinations   float64
	TotalBoosters       float64

	Population           float64
	Unvaccinated         float64
	CasesPerThousand     float64
	DeathsPerThousand    float64
	PercentageVaccinated float64

	DailyTests   float64
	TotalTests   float64
	PositiveRate float64
}

// VariantRecord is the number of sequenced detections of one variant for a country-day.
type VariantRecord struct {
	Country    string
	Date       time.Time
	Variant    string
	Detections float64
	Percent    float64
}

// Dataset is the full merged dataset held by the server.
type Dataset struct {
	Records  []Record
	Variants []VariantRecord
	LoadedAt time.Time
}

// Missing returns the value used for a measurement that is not present.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is a missing measurement.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// NewRecord returns a record for country and date with every measurement missing.
func NewRecord(country string, date time.Time) Record {
	nan := math.NaN()
	return Record{
		Country:              country,
		Date:                 date,
		Confirmed:            nan,
		Deaths:               nan,
		NewCases:             nan,
		NewDeaths:            nan,
		Doses:                nan,
		FullyVaccinated:      nan,
		PartiallyVaccinated:  nan,
		DailyVaccinations:    nan,
		TotalBoosters:        nan,
		Population:           nan,
		Unvaccinated:         nan,
		CasesPerThousand:     nan,
		DeathsPerThousand:    nan,
		PercentageVaccinated: nan,
		DailyTests:           nan,
		TotalTests:           nan,
		PositiveRate:         nan,
	}
}

// Value returns the measurement stored under the given column name.
func (r *Record) Value(field string) (float64, error) {
	p, err := r.field(field)
	if err != nil {
		return 0, err
	}
	return *p, nil
}

// SetValue stores v under the given column name.
func (r *Record) SetValue(field string, v float64) error {
	p, err := r.field(field)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (r *Record) field(name string) (*float64, error) {
	switch name {
	case FieldConfirmed:
		return &r.Confirmed, nil
	case FieldDeaths:
		return &r.Deaths, nil
	case FieldNewCases:
		return &r.NewCases, nil
	case FieldNewDeaths:
		return &r.NewDeaths, nil
	case FieldDoses:
		return &r.Doses, nil
	case FieldFullyVaccinated:
		return &r.FullyVaccinated, nil
	case FieldPartiallyVaccinated:
		return &r.PartiallyVaccinated, nil
	case FieldDailyVaccinations:
		return &r.DailyVaccinations, nil
	case FieldTotalBoosters:
		return &r.TotalBoosters, nil
	case FieldPopulation:
		return &r.Population, nil
	case FieldUnvaccinated:
		return &r.Unvaccinated, nil
	case FieldCasesPerThousand:
		return &r.CasesPerThousand, nil
	case FieldDeathsPerThousand:
		return &r.DeathsPerThousand, nil
	case FieldPercentageVaccinated:
		return &r.PercentageVaccinated, nil
	case FieldDailyTests:
		return &r.DailyTests, nil
	case FieldTotalTests:
		return &r.TotalTests, nil
	case FieldPositiveRate:
		return &r.PositiveRate, nil
	}
	return nil, ErrUnknownField
}

// Countries returns the distinct, sorted country names of the daily records.
func (d *Dataset) Countries() []string {
	seen := make(map[string]struct{})
	for _, r := range d.Records {
		if r.Country != "" {
			seen[r.Country] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// VariantCountries returns the distinct, sorted country names that have variant data.
func (d *Dataset) VariantCountries() []string {
	seen := make(map[string]struct{})
	for _, v := range d.Variants {
		if v.Country != "" {
			seen[v.Country] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// DateRange returns the earliest and latest record dates. ok is false for an empty dataset.
func (d *Dataset) DateRange() (first, last time.Time, ok bool) {
	for i, r := range d.Records {
		if i == 0 || r.Date.Before(first) {
			first = r.Date
		}
		if i == 0 || r.Date.After(last) {
			last = r.Date
		}
	}
	return first, last, len(d.Records) > 0
}

// SortByDate sorts records by date, keeping the existing order for equal dates.
func SortByDate(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
