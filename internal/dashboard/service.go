// Package dashboard answers the page callbacks: one operation per card, each computed
// from the current dataset.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"covid_dashboard/internal/cache"
	"covid_dashboard/internal/data"
	"covid_dashboard/internal/layout"
	"covid_dashboard/internal/transform"
)

var (
	// ErrUnknownCallback is returned by Run for a name outside Callbacks
	ErrUnknownCallback = errors.New("unknown callback")

	// ErrInvalidDate is returned for an unparsable or inverted date range
	ErrInvalidDate = errors.New("invalid date")
)

// Callback names
const (
	CallbackCasesDeaths         = "cases-deaths"
	CallbackMonthly             = "monthly"
	CallbackCompareCases        = "compare-cases"
	CallbackCompareVaccinations = "compare-vaccinations"
	CallbackTesting             = "testing"
	CallbackVariants            = "variants"
)

// callbackOutputs lists the anchors written by each callback
var callbackOutputs = map[string][]string{
	CallbackCasesDeaths:         {layout.AnchorCovidCases, layout.AnchorCovidDeaths},
	CallbackMonthly:             {layout.AnchorCovidCasesMonthly, layout.AnchorCovidDeathsMonthly},
	CallbackCompareCases:        {layout.AnchorCompareCovid},
	CallbackCompareVaccinations: {layout.AnchorCompareVaccinations, layout.AnchorBoostersGiven},
	CallbackTesting:             {layout.AnchorCountryTestingDaily},
	CallbackVariants:            {layout.AnchorCompareVariants, layout.AnchorVariantProportions},
}

// Callbacks returns the callback names with the anchors each one writes
func Callbacks() map[string][]string {
	out := make(map[string][]string, len(callbackOutputs))
	for name, anchors := range callbackOutputs {
		out[name] = append([]string(nil), anchors...)
	}
	return out
}

// Request holds the control values of one callback. Each callback reads the fields
// it depends on.
type Request struct {
	Country     string
	Countries   []string
	Start       *time.Time
	End         *time.Time
	ByWeek      bool
	PerHundredK bool
	Option      transform.CompareOption
}

// key is a canonical form of the fields read by callback name
func (r Request) key(name string) []string {
	day := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format(data.DateLayout)
	}
	parts := []string{name, day(r.Start), day(r.End)}

	switch name {
	case CallbackCasesDeaths:
		parts = append(parts, r.Country, strconv.FormatBool(r.ByWeek))
	case CallbackMonthly:
		parts = append(parts, r.Country, strconv.FormatBool(r.PerHundredK))
	case CallbackCompareCases:
		parts = append(parts, strconv.FormatBool(r.ByWeek), strconv.FormatBool(r.PerHundredK), strconv.Itoa(int(r.Option)))
		parts = append(parts, r.Countries...)
	case CallbackCompareVaccinations:
		parts = append(parts, r.Countries...)
	default:
		parts = append(parts, r.Country)
	}
	return parts
}

// ParseDate parses a date picker value. An empty value is nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := data.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return &t, nil
}

// Config holds the dependencies of a Service
type Config struct {
	Repository *data.Repository

	// Cache stores computed outputs. Nil disables caching.
	Cache    cache.Cache
	CacheTTL time.Duration

	// Observe is called after every Run with the outcome of the cache lookup
	Observe func(callback string, cached bool, elapsed time.Duration)

	Logger *slog.Logger
	Now    func() time.Time
}

// Service resolves callback requests against the current dataset
type Service struct {
	repo    *data.Repository
	cache   cache.Cache
	ttl     time.Duration
	observe func(string, bool, time.Duration)
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a dashboard service
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:    cfg.Repository,
		cache:   cfg.Cache,
		ttl:     cfg.CacheTTL,
		observe: cfg.Observe,
		logger:  logger,
		now:     now,
	}
}

// Dataset returns the current dataset
func (s *Service) Dataset() (*data.Dataset, error) {
	return s.repo.Current()
}

// Widgets builds the page dropdowns from the current dataset
func (s *Service) Widgets() (layout.Widgets, error) {
	ds, err := s.repo.Current()
	if err != nil {
		return layout.Widgets{}, err
	}
	return Widgets(ds), nil
}

// Countries returns the countries matching q, or all of them for an empty q
func (s *Service) Countries(q string) ([]string, error) {
	ds, err := s.repo.Current()
	if err != nil {
		return nil, err
	}
	return Search(ds.Countries(), q), nil
}

// Range resolves the request dates, defaulting to 2021-01-01 up to today
func (s *Service) Range(req Request) (transform.DateRange, error) {
	r := transform.DefaultRange(req.Start, req.End, s.now())
	if r.End.Before(r.Start) {
		return r, fmt.Errorf("%w: start %s after end %s", ErrInvalidDate,
			r.Start.Format(data.DateLayout), r.End.Format(data.DateLayout))
	}
	return r, nil
}

// Run computes the outputs of the callback name. Country names are resolved against
// the dataset first, so an unknown one fails with a *CountryError.
func (s *Service) Run(ctx context.Context, name string, req Request) (Outputs, error) {
	if _, ok := callbackOutputs[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCallback, name)
	}

	start := s.now()
	ds, err := s.repo.Current()
	if err != nil {
		return nil, err
	}
	r, err := s.Range(req)
	if err != nil {
		return nil, err
	}
	if req, err = s.resolve(ds, name, req); err != nil {
		return nil, err
	}

	key := cache.Key(append(req.key(name), ds.LoadedAt.UTC().Format(time.RFC3339Nano))...)
	if out, ok := s.cached(ctx, key); ok {
		s.report(name, true, start)
		return out, nil
	}

	out, err := compute(ds, name, req, r)
	if err != nil {
		return nil, err
	}
	s.store(ctx, name, key, out)
	s.report(name, false, start)
	return out, nil
}

func (s *Service) resolve(ds *data.Dataset, name string, req Request) (Request, error) {
	var err error
	switch name {
	case CallbackCompareCases, CallbackCompareVaccinations:
		if req.Countries, err = ResolveCountries(ds.Countries(), req.Countries); err == nil {
			sort.Strings(req.Countries)
		}
	case CallbackVariants:
		if req.Country != "" {
			req.Country, err = ResolveCountry(ds.VariantCountries(), req.Country)
		}
	default:
		if req.Country != "" {
			req.Country, err = ResolveCountry(ds.Countries(), req.Country)
		}
	}
	return req, err
}

func compute(ds *data.Dataset, name string, req Request, r transform.DateRange) (Outputs, error) {
	switch name {
	case CallbackCasesDeaths:
		return CasesDeaths(ds, req.Country, r, req.ByWeek), nil
	case CallbackMonthly:
		return MonthlyCasesDeaths(ds, req.Country, r, req.PerHundredK), nil
	case CallbackCompareCases:
		return CompareCases(ds, req.Countries, req.Option, req.PerHundredK, r, req.ByWeek)
	case CallbackCompareVaccinations:
		return CompareVaccinations(ds, req.Countries, r), nil
	case CallbackTesting:
		return Testing(ds, req.Country, r), nil
	case CallbackVariants:
		return Variants(ds, req.Country, r), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCallback, name)
}

func (s *Service) cached(ctx context.Context, key string) (Outputs, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !cache.IsMiss(err) {
			s.logger.Warn("callback cache get failed", "error", err)
		}
		return nil, false
	}
	var out Outputs
	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Warn("discarding corrupt cached outputs", "error", err)
		return nil, false
	}
	return out, true
}

func (s *Service) store(ctx context.Context, name, key string, out Outputs) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(out)
	if err != nil {
		s.logger.Error("failed to encode outputs", "callback", name, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil && !cache.IsMiss(err) {
		s.logger.Warn("callback cache set failed", "callback", name, "error", err)
	}
}

func (s *Service) report(name string, cached bool, start time.Time) {
	elapsed := s.now().Sub(start)
	s.logger.Debug("callback computed", "callback", name, "cached", cached, "elapsed", elapsed)
	if s.observe != nil {
		s.observe(name, cached, elapsed)
	}
}
