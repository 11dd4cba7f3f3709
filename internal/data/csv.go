package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are accepted when reading DateRecorded values
var dateLayouts = []string{
	DateLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate parses a DateRecorded value and truncates it to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseNumber parses a numeric cell. Empty cells and "nan" are missing.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "na") {
		return Missing(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// FormatNumber formats v for a CSV cell, writing missing values as an empty cell.
func FormatNumber(v float64) string {
	if IsMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// header maps column names to their index in a CSV record
type header map[string]int

func readHeader(r *csv.Reader, required ...string) (header, error) {
	names, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty csv: missing header")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	h := make(header, len(names))
	for i, name := range names {
		h[strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))] = i
	}

	for _, name := range required {
		if _, ok := h[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	return h, nil
}

func (h header) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// ReadRecordsCSV reads daily records. Columns are matched by name; unknown columns are
// ignored and absent measurement columns are left missing.
func ReadRecordsCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	h, err := readHeader(cr, FieldCountry, FieldDate)
	if err != nil {
		return nil, err
	}

	var records []Record
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := ParseDate(h.get(row, FieldDate))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rec := NewRecord(h.get(row, FieldCountry), date)
		for _, name := range RecordColumns[2:] {
			if _, ok := h[name]; !ok {
				continue
			}
			v, err := ParseNumber(h.get(row, name))
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, name, err)
			}
			// RecordColumns only holds known fields
			_ = rec.SetValue(name, v)
		}
		records = append(records, rec)
	}

	return records, nil
}

// WriteRecordsCSV writes daily records with the RecordColumns header.
func WriteRecordsCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(RecordColumns))
	for i := range records {
		rec := &records[i]
		row[0] = rec.Country
		row[1] = rec.Date.Format(DateLayout)
		for j, name := range RecordColumns[2:] {
			v, _ := rec.Value(name)
			row[j+2] = FormatNumber(v)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadVariantsCSV reads variant detections written by WriteVariantsCSV.
func ReadVariantsCSV(r io.Reader) ([]VariantRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	h, err := readHeader(cr, FieldCountry, FieldDate, FieldVariant)
	if err != nil {
		return nil, err
	}

	var variants []VariantRecord
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := ParseDate(h.get(row, FieldDate))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		detections, err := ParseNumber(h.get(row, FieldDetections))
		if err != nil {
			return nil, fmt.Errorf("line %d column %s: %w", line, FieldDetections, err)
		}
		percent, err := ParseNumber(h.get(row, FieldPercent))
		if err != nil {
			return nil, fmt.Errorf("line %d column %s: %w", line, FieldPercent, err)
		}

		variants = append(variants, VariantRecord{
			Country:    h.get(row, FieldCountry),
			Date:       date,
			Variant:    h.get(row, FieldVariant),
			Detections: detections,
			Percent:    percent,
		})
	}

	return variants, nil
}

// WriteVariantsCSV writes variant detections with the VariantColumns header.
func WriteVariantsCSV(w io.Writer, variants []VariantRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(VariantColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, v := range variants {
		row := []string{
			v.Country,
			v.Date.Format(DateLayout),
			v.Variant,
			FormatNumber(v.Detections),
			FormatNumber(v.Percent),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write variant %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
