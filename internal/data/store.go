package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Store persists a merged dataset.
type Store interface {
	Load(ctx context.Context) (*Dataset, error)
	Save(ctx context.Context, ds *Dataset) error
}

// FileStore keeps the dataset in two CSV files, one for daily records and one for
// variant detections. The variants file is optional on Load.
type FileStore struct {
	RecordsPath  string
	VariantsPath string
	Logger       *slog.Logger
}

// NewFileStore creates a FileStore for the given paths. An empty variantsPath disables
// the variants file.
func NewFileStore(recordsPath, variantsPath string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		RecordsPath:  recordsPath,
		VariantsPath: variantsPath,
		Logger:       logger,
	}
}

// Load reads both files. A missing records file is reported as ErrNoDataset.
func (s *FileStore) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.RecordsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoDataset, s.RecordsPath)
		}
		return nil, fmt.Errorf("failed to open records file: %w", err)
	}
	defer f.Close()

	records, err := ReadRecordsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.RecordsPath, err)
	}

	ds := &Dataset{Records: records, LoadedAt: time.Now()}

	if s.VariantsPath == "" {
		return ds, nil
	}

	vf, err := os.Open(s.VariantsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.Logger.Warn("variants file not found, continuing without variants", "path", s.VariantsPath)
			return ds, nil
		}
		return nil, fmt.Errorf("failed to open variants file: %w", err)
	}
	defer vf.Close()

	ds.Variants, err = ReadVariantsCSV(vf)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.VariantsPath, err)
	}

	s.Logger.Debug("dataset loaded from files",
		"records", len(ds.Records),
		"variants", len(ds.Variants),
	)
	return ds, nil
}

// Save writes both files through a temporary file and rename, so a reader never sees
// a partially written dataset.
func (s *FileStore) Save(ctx context.Context, ds *Dataset) error {
	if ds == nil {
		return ErrNoDataset
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := writeFileAtomic(s.RecordsPath, func(f *os.File) error {
		return WriteRecordsCSV(f, ds.Records)
	}); err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}

	if s.VariantsPath != "" {
		if err := writeFileAtomic(s.VariantsPath, func(f *os.File) error {
			return WriteVariantsCSV(f, ds.Variants)
		}); err != nil {
			return fmt.Errorf("failed to save variants: %w", err)
		}
	}

	s.Logger.Info("dataset saved",
		"records_path", s.RecordsPath,
		"records", len(ds.Records),
		"variants", len(ds.Variants),
	)
	return nil
}

func writeFileAtomic(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// MultiStore saves to every store in order and loads from the first one that succeeds.
type MultiStore []Store

func (m MultiStore) Load(ctx context.Context) (*Dataset, error) {
	var errs []error
	for _, s := range m {
		ds, err := s.Load(ctx)
		if err == nil {
			return ds, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrNoDataset
	}
	return nil, errors.Join(errs...)
}

func (m MultiStore) Save(ctx context.Context, ds *Dataset) error {
	for _, s := range m {
		if err := s.Save(ctx, ds); err != nil {
			return err
		}
	}
	return nil
}
