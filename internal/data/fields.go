package data

// Column names used in the persisted dataset. They match the headers written by the
// loader so a data.csv produced by older loader runs can still be read.
const (
	FieldCountry   = "Country/Region"
	FieldDate      = "DateRecorded"
	FieldConfirmed = "Confirmed"
	FieldDeaths    = "Deaths"

	FieldNewCases  = "NewCases"
	FieldNewDeaths = "NewDeaths"

	// Vaccinations
	FieldDoses               = "Doses"
	FieldFullyVaccinated     = "People_fully_vaccinated"
	FieldPartiallyVaccinated = "People_partially_vaccinated"
	FieldDailyVaccinations   = "daily_vaccinations"
	FieldTotalBoosters       = "total_boosters_per_hundred"

	// Population derived metrics
	FieldPopulation           = "Population"
	FieldUnvaccinated         = "Unvaccinated"
	FieldCasesPerThousand     = "CasesPerThousand"
	FieldDeathsPerThousand    = "DeathsPerThousand"
	FieldPercentageVaccinated = "PercentageVaccinated"

	// Testing
	FieldDailyTests   = "daily_tests"
	FieldTotalTests   = "total_tests"
	FieldPositiveRate = "positive_rate"

	// Variants
	FieldVariant    = "variant"
	FieldDetections = "number_detections_variant"
	FieldPercent    = "percent_variant"

	// Derived while transforming, never persisted
	FieldWeek  = "Week"
	FieldMonth = "Month"
)

// DateLayout is the layout used for DateRecorded in persisted files.
const DateLayout = "2006-01-02"

// RecordColumns is the header of the daily records file, in write order.
var RecordColumns = []string{
	FieldCountry,
	FieldDate,
	FieldConfirmed,
	FieldDeaths,
	FieldNewCases,
	FieldNewDeaths,
	FieldDoses,
	FieldFullyVaccinated,
	FieldPartiallyVaccinated,
	FieldDailyVaccinations,
	FieldTotalBoosters,
	FieldPopulation,
	FieldUnvaccinated,
	FieldCasesPerThousand,
	FieldDeathsPerThousand,
	FieldPercentageVaccinated,
	FieldDailyTests,
	FieldTotalTests,
	FieldPositiveRate,
}

// VariantColumns is the header of the variants file, in write order.
var VariantColumns = []string{
	FieldCountry,
	FieldDate,
	FieldVariant,
	FieldDetections,
	FieldPercent,
}
