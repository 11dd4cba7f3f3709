// Package export writes datasets to xlsx workbooks and reads them back.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"covid_dashboard/internal/data"
)

// Sheet names of an exported workbook
const (
	RecordsSheet  = "Daily"
	VariantsSheet = "Variants"
)

// ContentType is the MIME type of an xlsx workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteWorkbook writes ds as a workbook with one sheet of daily records and one of
// variant detections. Missing values are left as empty cells.
func WriteWorkbook(w io.Writer, ds *data.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSheet(f, RecordsSheet, data.RecordColumns, header, len(ds.Records), func(i int) []any {
		return recordRow(&ds.Records[i])
	}); err != nil {
		return err
	}
	if err := writeSheet(f, VariantsSheet, data.VariantColumns, header, len(ds.Variants), func(i int) []any {
		return variantRow(&ds.Variants[i])
	}); err != nil {
		return err
	}

	index, err := f.GetSheetIndex(RecordsSheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, columns []string, headerStyle, n int, row func(int) []any) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open sheet %s: %w", sheet, err)
	}

	head := make([]any, len(columns))
	for i, c := range columns {
		head[i] = excelize.Cell{StyleID: headerStyle, Value: c}
	}
	if err := sw.SetRow("A1", head); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}

	for i := 0; i < n; i++ {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, row(i)); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet %s: %w", sheet, err)
	}
	return nil
}

func cellValue(v float64) any {
	if data.IsMissing(v) {
		return nil
	}
	return v
}

func recordRow(r *data.Record) []any {
	row := make([]any, len(data.RecordColumns))
	row[0] = r.Country
	row[1] = r.Date.Format(data.DateLayout)
	for j, name := range data.RecordColumns[2:] {
		v, _ := r.Value(name)
		row[j+2] = cellValue(v)
	}
	return row
}

func variantRow(v *data.VariantRecord) []any {
	return []any{
		v.Country,
		v.Date.Format(data.DateLayout),
		v.Variant,
		cellValue(v.Detections),
		cellValue(v.Percent),
	}
}

// ReadWorkbook reads a workbook written by WriteWorkbook. Columns are matched by
// header name and the variants sheet is optional.
func ReadWorkbook(r io.Reader) (*data.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("invalid workbook: %w", err)
	}
	defer f.Close()

	ds := &data.Dataset{}

	rows, err := f.GetRows(RecordsSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", RecordsSheet, err)
	}
	if ds.Records, err = readRecords(rows); err != nil {
		return nil, fmt.Errorf("sheet %s: %w", RecordsSheet, err)
	}

	if idx, _ := f.GetSheetIndex(VariantsSheet); idx >= 0 {
		rows, err := f.GetRows(VariantsSheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", VariantsSheet, err)
		}
		if ds.Variants, err = readVariants(rows); err != nil {
			return nil, fmt.Errorf("sheet %s: %w", VariantsSheet, err)
		}
	}

	return ds, nil
}

type columns map[string]int

func headerOf(rows [][]string, required ...string) (columns, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("missing header")
	}
	cols := make(columns, len(rows[0]))
	for i, name := range rows[0] {
		cols[name] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	return cols, nil
}

func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func readRecords(rows [][]string) ([]data.Record, error) {
	cols, err := headerOf(rows, data.FieldCountry, data.FieldDate)
	if err != nil {
		return nil, err
	}

	records := make([]data.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		date, err := data.ParseDate(cols.get(row, data.FieldDate))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		rec := data.NewRecord(cols.get(row, data.FieldCountry), date)
		for _, name := range data.RecordColumns[2:] {
			if _, ok := cols[name]; !ok {
				continue
			}
			v, err := data.ParseNumber(cols.get(row, name))
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+2, name, err)
			}
			_ = rec.SetValue(name, v)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readVariants(rows [][]string) ([]data.VariantRecord, error) {
	cols, err := headerOf(rows, data.FieldCountry, data.FieldDate, data.FieldVariant)
	if err != nil {
		return nil, err
	}

	variants := make([]data.VariantRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		date, err := data.ParseDate(cols.get(row, data.FieldDate))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		detections, err := data.ParseNumber(cols.get(row, data.FieldDetections))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		percent, err := data.ParseNumber(cols.get(row, data.FieldPercent))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		variants = append(variants, data.VariantRecord{
			Country:    cols.get(row, data.FieldCountry),
			Date:       date,
			Variant:    cols.get(row, data.FieldVariant),
			Detections: detections,
			Percent:    percent,
		})
	}
	return variants, nil
}
