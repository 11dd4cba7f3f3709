package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"covid_dashboard/internal/jobs"
)

const (
	CSSEBaseURL = "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/csse_covid_19_data/" +
		"csse_covid_19_time_series/"
	VaccinationsURL = "https://raw.githubusercontent.com/owid/covid-19-data/master/public/data/vaccinations/" +
		"vaccinations.csv"
	PopulationsURL = "https://population.un.org/wpp/Download/Files/1_Indicators%20(Standard)/CSV_FILES/" +
		"WPP2019_TotalPopulationBySex.csv"
	VariantsURL = "https://raw.githubusercontent.com/owid/covid-19-data/master/public/data/variants/covid-variants.csv"
	TestingURL  = "https://raw.githubusercontent.com/owid/covid-19-data/master/public/data/testing/" +
		"covid-testing-all-observations.csv"
)

// Sources lists the URL of every upstream dataset
type Sources struct {
	Confirmed    string
	Deaths       string
	Vaccinations string
	Populations  string
	Variants     string
	Testing      string
}

// DefaultSources returns the public upstream URLs
func DefaultSources() Sources {
	return Sources{
		Confirmed:    CSSEBaseURL + "time_series_covid19_confirmed_global.csv",
		Deaths:       CSSEBaseURL + "time_series_covid19_deaths_global.csv",
		Vaccinations: VaccinationsURL,
		Populations:  PopulationsURL,
		Variants:     VariantsURL,
		Testing:      TestingURL,
	}
}

// SourceError reports a failure to retrieve or parse one upstream dataset
type SourceError struct {
	Source string
	URL    string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s (%s): %v", e.Source, e.URL, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// StatusError is returned for a non-2xx upstream response
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// FetcherConfig holds HTTP retrieval settings
type FetcherConfig struct {
	// Client used for requests. Default: http.DefaultClient
	Client *http.Client

	// Timeout per attempt. Default: 2 minutes
	Timeout time.Duration

	// MaxRetries after the first failed attempt. Default: 3
	MaxRetries int

	// Backoff between attempts. Default: exponential
	Backoff jobs.BackoffStrategy

	Logger *slog.Logger
}

// DefaultFetcherConfig returns a default fetcher configuration
func DefaultFetcherConfig() *FetcherConfig {
	return &FetcherConfig{
		Client:     http.DefaultClient,
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
		Backoff:    jobs.ExponentialBackoff,
	}
}

// Fetcher downloads upstream datasets with retries
type Fetcher struct {
	client     *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    jobs.BackoffStrategy
	logger     *slog.Logger
}

// NewFetcher creates a fetcher. A nil config uses DefaultFetcherConfig.
func NewFetcher(config *FetcherConfig) *Fetcher {
	if config == nil {
		config = DefaultFetcherConfig()
	}
	f := &Fetcher{
		client:     config.Client,
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
		backoff:    config.Backoff,
		logger:     config.Logger,
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Fetch retrieves the body of url. Network errors and 5xx responses are retried;
// other non-2xx responses fail immediately.
func (f *Fetcher) Fetch(ctx context.Context, name, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := jobs.CalculateBackoff(f.backoff, attempt)
			f.logger.Warn("retrying source download",
				"source", name,
				"attempt", attempt+1,
				"delay", delay.String(),
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, &SourceError{Source: name, URL: url, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		body, err := f.fetchOnce(ctx, url)
		if err == nil {
			f.logger.Info("source downloaded", "source", name, "bytes", len(body))
			return body, nil
		}
		lastErr = err

		var status *StatusError
		if errors.As(err, &status) && status.StatusCode < 500 {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil, &SourceError{Source: name, URL: url, Err: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}
