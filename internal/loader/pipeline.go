package loader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"covid_dashboard/internal/data"
)

// Processor transforms the merged records after all datasets are joined
type Processor func(records []data.Record) []data.Record

// PipelineConfig holds loader pipeline settings
type PipelineConfig struct {
	Sources Sources
	Fetcher *Fetcher
	Logger  *slog.Logger

	// Now returns the current time; its year selects the population estimate.
	// Default: time.Now
	Now func() time.Time
}

// Pipeline downloads every source, merges them onto the CSSE daily series and applies
// the registered processors in order.
type Pipeline struct {
	sources    Sources
	fetcher    *Fetcher
	logger     *slog.Logger
	now        func() time.Time
	processors []Processor
}

// NewPipeline creates a pipeline with the default processors: dropping the duplicate
// "Republic of Ireland" series, then deriving population metrics.
func NewPipeline(config *PipelineConfig) *Pipeline {
	if config == nil {
		config = &PipelineConfig{Sources: DefaultSources()}
	}
	p := &Pipeline{
		sources: config.Sources,
		fetcher: config.Fetcher,
		logger:  config.Logger,
		now:     config.Now,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.fetcher == nil {
		p.fetcher = NewFetcher(&FetcherConfig{Logger: p.logger, Timeout: 2 * time.Minute, MaxRetries: 3})
	}
	if p.now == nil {
		p.now = time.Now
	}

	p.AddProcessor(DropCountry("Republic of Ireland"))
	p.AddProcessor(PopulationMetrics)
	return p
}

// AddProcessor appends a processor run after the merge and the default processors
func (p *Pipeline) AddProcessor(fn Processor) {
	p.processors = append(p.processors, fn)
}

type download struct {
	name string
	url  string
	body []byte
}

// Run builds the dataset. Any source failure aborts the run with a *SourceError.
func (p *Pipeline) Run(ctx context.Context) (*data.Dataset, error) {
	start := time.Now()
	p.logger.Info("loading and processing daily COVID-19 data")

	downloads := []*download{
		{name: "confirmed", url: p.sources.Confirmed},
		{name: "deaths", url: p.sources.Deaths},
		{name: "vaccinations", url: p.sources.Vaccinations},
		{name: "populations", url: p.sources.Populations},
		{name: "variants", url: p.sources.Variants},
		{name: "testing", url: p.sources.Testing},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range downloads {
		if d.url == "" {
			continue
		}
		g.Go(func() error {
			body, err := p.fetcher.Fetch(gctx, d.name, d.url)
			if err != nil {
				return err
			}
			d.body = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sources := make(map[string]*download, len(downloads))
	for _, d := range downloads {
		sources[d.name] = d
	}
	parseErr := func(d *download, err error) error {
		return &SourceError{Source: d.name, URL: d.url, Err: err}
	}

	confirmed, err := ParseTimeSeries(bytes.NewReader(sources["confirmed"].body))
	if err != nil {
		return nil, parseErr(sources["confirmed"], err)
	}
	deaths, err := ParseTimeSeries(bytes.NewReader(sources["deaths"].body))
	if err != nil {
		return nil, parseErr(sources["deaths"], err)
	}
	records := BuildDaily(confirmed, deaths)

	m := newMerger(records)

	if d := sources["vaccinations"]; d.body != nil {
		v, err := ParseVaccinations(bytes.NewReader(d.body))
		if err != nil {
			return nil, parseErr(d, err)
		}
		m.vaccinations(v)
	}
	if d := sources["testing"]; d.body != nil {
		t, err := ParseTesting(bytes.NewReader(d.body))
		if err != nil {
			return nil, parseErr(d, err)
		}
		m.testing(t)
	}
	if d := sources["populations"]; d.body != nil {
		pops, err := ParsePopulations(bytes.NewReader(d.body), p.now().Year())
		if err != nil {
			return nil, parseErr(d, err)
		}
		m.populations(pops)
	}

	var variants []data.VariantRecord
	if d := sources["variants"]; d.body != nil {
		v, err := ParseVariants(bytes.NewReader(d.body))
		if err != nil {
			return nil, parseErr(d, err)
		}
		variants = m.restrictVariants(v)
	}

	records = p.Process(records)
	data.SortByDate(records)

	p.logger.Info("dataset built",
		"records", len(records),
		"variants", len(variants),
		"countries", len(m.countries),
		"duration", time.Since(start).String(),
	)

	return &data.Dataset{
		Records:  records,
		Variants: variants,
		LoadedAt: p.now(),
	}, nil
}

// Process applies the registered processors in order
func (p *Pipeline) Process(records []data.Record) []data.Record {
	for _, fn := range p.processors {
		records = fn(records)
	}
	return records
}

// merger left-joins auxiliary datasets onto the CSSE records
type merger struct {
	records   []data.Record
	index     map[countryDay]int
	countries map[string]struct{}
}

func newMerger(records []data.Record) *merger {
	m := &merger{
		records:   records,
		index:     make(map[countryDay]int, len(records)),
		countries: make(map[string]struct{}),
	}
	for i, r := range records {
		m.index[countryDay{country: r.Country, date: r.Date}] = i
		m.countries[r.Country] = struct{}{}
	}
	return m
}

func (m *merger) vaccinations(v map[countryDay]vaccination) {
	for key, vac := range v {
		i, ok := m.index[key]
		if !ok {
			continue
		}
		rec := &m.records[i]
		rec.Doses = vac.doses
		rec.FullyVaccinated = vac.fully
		rec.PartiallyVaccinated = vac.partially
		rec.DailyVaccinations = vac.daily
		rec.TotalBoosters = vac.boostersPerHundred
	}
}

func (m *merger) testing(t map[countryDay]testReport) {
	for key, rep := range t {
		i, ok := m.index[key]
		if !ok {
			continue
		}
		rec := &m.records[i]
		rec.DailyTests = rep.daily
		rec.TotalTests = rep.total
		rec.PositiveRate = rep.positiveRate
	}
}

func (m *merger) populations(pops map[string]float64) {
	for i := range m.records {
		if pop, ok := pops[m.records[i].Country]; ok {
			m.records[i].Population = pop
		}
	}
}

func (m *merger) restrictVariants(variants []data.VariantRecord) []data.VariantRecord {
	out := variants[:0]
	for _, v := range variants {
		if _, ok := m.countries[v.Country]; ok {
			out = append(out, v)
		}
	}
	return out
}

// DropCountry returns a processor removing every record of country
func DropCountry(country string) Processor {
	return func(records []data.Record) []data.Record {
		out := records[:0]
		for _, r := range records {
			if r.Country != country {
				out = append(out, r)
			}
		}
		return out
	}
}

// PopulationMetrics derives Unvaccinated, the per 100,000 new cases and deaths, and
// PercentageVaccinated from Population. Records without a population keep those
// fields missing.
func PopulationMetrics(records []data.Record) []data.Record {
	for i := range records {
		r := &records[i]
		if data.IsMissing(r.Population) || r.Population == 0 {
			continue
		}
		r.Unvaccinated = r.Population - r.FullyVaccinated
		r.CasesPerThousand = Round(r.NewCases/r.Population*100000, 2)
		r.DeathsPerThousand = Round(r.NewDeaths/r.Population*100000, 2)
		r.PercentageVaccinated = Round(r.FullyVaccinated/r.Population*100, 1)
	}
	return records
}

// Round rounds v to the given number of decimals, half away from zero
func Round(v float64, decimals int) float64 {
	if data.IsMissing(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// String describes the configured sources, used in logs.
func (s Sources) String() string {
	return fmt.Sprintf("confirmed=%s deaths=%s vaccinations=%s populations=%s variants=%s testing=%s",
		s.Confirmed, s.Deaths, s.Vaccinations, s.Populations, s.Variants, s.Testing)
}
