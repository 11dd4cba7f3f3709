package data

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Repository holds the dataset currently served. Readers never block on a reload.
type Repository struct {
	store   Store
	logger  *slog.Logger
	current atomic.Pointer[Dataset]

	// serializes reloads
	mu sync.Mutex

	onReload []func(*Dataset)
}

// NewRepository creates an empty repository backed by store.
func NewRepository(store Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: store, logger: logger}
}

// Current returns the loaded dataset or ErrNoDataset before the first successful Reload.
func (r *Repository) Current() (*Dataset, error) {
	ds := r.current.Load()
	if ds == nil {
		return nil, ErrNoDataset
	}
	return ds, nil
}

// Loaded reports whether a dataset is available.
func (r *Repository) Loaded() bool {
	return r.current.Load() != nil
}

// OnReload registers fn to be called with every newly swapped in dataset.
func (r *Repository) OnReload(fn func(*Dataset)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = append(r.onReload, fn)
}

// Reload loads a fresh dataset from the store and swaps it in. On failure the
// previous dataset stays in place.
func (r *Repository) Reload(ctx context.Context) (*Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	ds, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Error("dataset reload failed", "error", err)
		return nil, fmt.Errorf("failed to reload dataset: %w", err)
	}
	SortByDate(ds.Records)
	if ds.LoadedAt.IsZero() {
		ds.LoadedAt = time.Now()
	}

	r.current.Store(ds)
	for _, fn := range r.onReload {
		fn(ds)
	}

	r.logger.Info("dataset reloaded",
		"records", len(ds.Records),
		"variants", len(ds.Variants),
		"duration", time.Since(start).String(),
	)
	return ds, nil
}

// Set swaps in ds directly. Used by tests and by the loader when serving what it just built.
func (r *Repository) Set(ds *Dataset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current.Store(ds)
	for _, fn := range r.onReload {
		fn(ds)
	}
}
