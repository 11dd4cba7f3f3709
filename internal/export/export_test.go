package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"covid_dashboard/internal/data"
)

func sampleDataset() *data.Dataset {
	day := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	a := data.NewRecord("Ireland", day)
	a.Confirmed = 220000
	a.NewCases = 411
	a.CasesPerThousand = 8.23
	b := data.NewRecord("Ireland", day.AddDate(0, 0, 1))
	b.Confirmed = 220512
	b.NewCases = 512

	return &data.Dataset{
		Records: []data.Record{a, b},
		Variants: []data.VariantRecord{
			{Country: "Ireland", Date: day, Variant: "Alpha", Detections: 120, Percent: 90.5},
		},
	}
}

func TestWorkbookRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, sampleDataset()))

	got, err := ReadWorkbook(&buf)
	require.NoError(t, err)
	require.Len(t, got.Records, 2)
	assert.Equal(t, "Ireland", got.Records[0].Country)
	assert.Equal(t, time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), got.Records[0].Date)
	assert.Equal(t, 220000.0, got.Records[0].Confirmed)
	assert.Equal(t, 8.23, got.Records[0].CasesPerThousand)
	assert.True(t, data.IsMissing(got.Records[1].CasesPerThousand))
	assert.True(t, data.IsMissing(got.Records[1].DailyTests))

	require.Len(t, got.Variants, 1)
	assert.Equal(t, "Alpha", got.Variants[0].Variant)
	assert.Equal(t, 90.5, got.Variants[0].Percent)
}

func TestWorkbookLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, sampleDataset()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{RecordsSheet, VariantsSheet}, f.GetSheetList())

	header, err := f.GetCellValue(RecordsSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, data.FieldCountry, header)

	date, err := f.GetCellValue(RecordsSheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "2021-03-02", date)
}

func TestWriteEmptyDataset(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, &data.Dataset{}))

	got, err := ReadWorkbook(&buf)
	require.NoError(t, err)
	assert.Empty(t, got.Records)
	assert.Empty(t, got.Variants)
}

func TestReadWorkbookErrors(t *testing.T) {
	_, err := ReadWorkbook(bytes.NewReader([]byte("not a workbook")))
	assert.Error(t, err)

	f := excelize.NewFile()
	defer f.Close()
	_, err = f.NewSheet(RecordsSheet)
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue(RecordsSheet, "A1", "Country"))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err = ReadWorkbook(&buf)
	assert.ErrorContains(t, err, "missing required column")
}
