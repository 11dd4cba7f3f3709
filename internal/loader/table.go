package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"covid_dashboard/internal/data"
)

// countryDay keys per-country daily values while merging
type countryDay struct {
	country string
	date    time.Time
}

// table is a CSV file read fully into memory with a column index
type table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

func readTable(r io.Reader, required ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty csv: missing header")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := &table{columns: header, index: make(map[string]int, len(header))}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))
		t.columns[i] = name
		t.index[name] = i
	}
	for _, name := range required {
		if _, ok := t.index[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func (t *table) has(column string) bool {
	_, ok := t.index[column]
	return ok
}

func (t *table) get(row []string, column string) string {
	i, ok := t.index[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// number returns the parsed numeric cell, missing when absent or unparseable
func (t *table) number(row []string, column string) float64 {
	v, err := data.ParseNumber(t.get(row, column))
	if err != nil {
		return data.Missing()
	}
	return v
}

// addMissing adds b to a, treating a missing operand as absent. The result is missing
// only when both are missing.
func addMissing(a, b float64) float64 {
	switch {
	case data.IsMissing(a):
		return b
	case data.IsMissing(b):
		return a
	}
	return a + b
}

// renameCountry applies the country spellings used by the CSSE dataset
func renameCountry(name string) string {
	switch name {
	case "United States", "United States of America", "United States of America (and dependencies)":
		return "US"
	}
	return name
}
