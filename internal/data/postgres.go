package data

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	recordsTable  = "covid_daily"
	variantsTable = "covid_variants"
)

// pgRecordColumns maps RecordColumns to SQL column names, in the same order.
var pgRecordColumns = []string{
	"country",
	"date_recorded",
	"confirmed",
	"deaths",
	"new_cases",
	"new_deaths",
	"doses",
	"people_fully_vaccinated",
	"people_partially_vaccinated",
	"daily_vaccinations",
	"total_boosters_per_hundred",
	"population",
	"unvaccinated",
	"cases_per_thousand",
	"deaths_per_thousand",
	"percentage_vaccinated",
	"daily_tests",
	"total_tests",
	"positive_rate",
}

var pgVariantColumns = []string{
	"country",
	"date_recorded",
	"variant",
	"number_detections",
	"percent",
}

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists the dataset in the covid_daily and covid_variants tables.
type PostgresStore struct {
	db     DB
	logger *slog.Logger
}

// NewPostgresStore wraps a pool. Call EnsureSchema before the first Save.
func NewPostgresStore(db DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// EnsureSchema creates the dataset tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (country TEXT NOT NULL, date_recorded DATE NOT NULL", recordsTable)
	for _, col := range pgRecordColumns[2:] {
		fmt.Fprintf(&b, ", %s DOUBLE PRECISION", col)
	}
	b.WriteString(", PRIMARY KEY (country, date_recorded))")

	if _, err := s.db.Exec(ctx, b.String()); err != nil {
		return fmt.Errorf("failed to create %s: %w", recordsTable, err)
	}

	// tables created by older releases lack later columns
	adds := make([]string, 0, len(pgRecordColumns)-2)
	for _, col := range pgRecordColumns[2:] {
		adds = append(adds, "ADD COLUMN IF NOT EXISTS "+col+" DOUBLE PRECISION")
	}
	if _, err := s.db.Exec(ctx, "ALTER TABLE "+recordsTable+" "+strings.Join(adds, ", ")); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", recordsTable, err)
	}

	variantsDDL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		country TEXT NOT NULL,
		date_recorded DATE NOT NULL,
		variant TEXT NOT NULL,
		number_detections DOUBLE PRECISION,
		percent DOUBLE PRECISION
	)`, variantsTable)
	if _, err := s.db.Exec(ctx, variantsDDL); err != nil {
		return fmt.Errorf("failed to create %s: %w", variantsTable, err)
	}
	return nil
}

// Save replaces the contents of both tables in one transaction using COPY.
func (s *PostgresStore) Save(ctx context.Context, ds *Dataset) error {
	if ds == nil {
		return ErrNoDataset
	}

	start := time.Now()
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE "+recordsTable+", "+variantsTable); err != nil {
		return fmt.Errorf("failed to truncate dataset tables: %w", err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{recordsTable}, pgRecordColumns, pgx.CopyFromSlice(len(ds.Records), func(i int) ([]any, error) {
		return recordRow(&ds.Records[i]), nil
	}))
	if err != nil {
		return fmt.Errorf("failed to copy records: %w", err)
	}

	m, err := tx.CopyFrom(ctx, pgx.Identifier{variantsTable}, pgVariantColumns, pgx.CopyFromSlice(len(ds.Variants), func(i int) ([]any, error) {
		v := ds.Variants[i]
		return []any{v.Country, v.Date, v.Variant, nullable(v.Detections), nullable(v.Percent)}, nil
	}))
	if err != nil {
		return fmt.Errorf("failed to copy variants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dataset: %w", err)
	}

	s.logger.Info("dataset saved to postgres",
		"records", n,
		"variants", m,
		"duration", time.Since(start).String(),
	)
	return nil
}

// Load reads both tables ordered by date.
func (s *PostgresStore) Load(ctx context.Context) (*Dataset, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY date_recorded, country",
		strings.Join(pgRecordColumns, ", "), recordsTable)

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	ds := &Dataset{}
	for rows.Next() {
		var (
			country string
			date    time.Time
			values  = make([]*float64, len(pgRecordColumns)-2)
		)
		dest := make([]any, 0, len(pgRecordColumns))
		dest = append(dest, &country, &date)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec := NewRecord(country, date.UTC())
		for i, name := range RecordColumns[2:] {
			if values[i] != nil {
				_ = rec.SetValue(name, *values[i])
			}
		}
		ds.Records = append(ds.Records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	if len(ds.Records) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoDataset, recordsTable)
	}

	vquery := fmt.Sprintf("SELECT %s FROM %s ORDER BY date_recorded, country, variant",
		strings.Join(pgVariantColumns, ", "), variantsTable)
	vrows, err := s.db.Query(ctx, vquery)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer vrows.Close()

	for vrows.Next() {
		var (
			v                   VariantRecord
			detections, percent *float64
		)
		if err := vrows.Scan(&v.Country, &v.Date, &v.Variant, &detections, &percent); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		v.Date = v.Date.UTC()
		v.Detections = fromNullable(detections)
		v.Percent = fromNullable(percent)
		ds.Variants = append(ds.Variants, v)
	}
	if err := vrows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read variants: %w", err)
	}

	ds.LoadedAt = time.Now()
	return ds, nil
}

func recordRow(r *Record) []any {
	row := make([]any, 0, len(pgRecordColumns))
	row = append(row, r.Country, r.Date)
	for _, name := range RecordColumns[2:] {
		v, _ := r.Value(name)
		row = append(row, nullable(v))
	}
	return row
}

// nullable maps a missing measurement to SQL NULL
func nullable(v float64) any {
	if IsMissing(v) {
		return nil
	}
	return v
}

func fromNullable(v *float64) float64 {
	if v == nil {
		return Missing()
	}
	return *v
}
