package observability

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"covid_dashboard/internal/data"
)

// MetricsConfig holds configuration for Prometheus metrics
type MetricsConfig struct {
	// Logger for structured logging
	Logger *slog.Logger

	// Namespace for metrics
	// Default: "covid_dashboard"
	Namespace string

	// Registerer receives the collectors
	// Default: prometheus.DefaultRegisterer
	Registerer prometheus.Registerer

	// Gatherer backs the /metrics handler
	// Default: prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer

	// Buckets for response time histograms
	Buckets []float64

	// SkipPaths defines paths that should not be metered
	SkipPaths []string
}

// Metrics holds Prometheus metric collectors
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
	panicsTotal     prometheus.Counter

	callbackDuration *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec

	datasetRecords   prometheus.Gauge
	datasetCountries prometheus.Gauge
	datasetVariants  prometheus.Gauge
	datasetLoadedAt  prometheus.Gauge
	refreshTotal     *prometheus.CounterVec

	gatherer  prometheus.Gatherer
	skipPaths map[string]bool
	logger    *slog.Logger
}

// DefaultMetricsConfig returns a default metrics configuration
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace: "covid_dashboard",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		SkipPaths: []string{"/metrics", "/health", "/live", "/ready"},
	}
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics(config *MetricsConfig) *Metrics {
	if config == nil {
		config = DefaultMetricsConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := config.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	buckets := config.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	ns := config.Namespace

	logger.Info("initializing prometheus metrics", "namespace", ns)

	f := promauto.With(reg)
	m := &Metrics{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   buckets,
			},
			[]string{"method", "route"},
		),
		responseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6), // 100B to 10MB
			},
			[]string{"method", "route"},
		),
		activeRequests: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_active",
			Help:      "Number of in-flight HTTP requests",
		}),
		panicsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "panics_total",
			Help:      "Total number of recovered handler panics",
		}),
		callbackDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "callbacks",
				Name:      "duration_seconds",
				Help:      "Time to produce card outputs in seconds",
				Buckets:   buckets,
			},
			[]string{"callback", "cached"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Callback output cache lookups by result",
			},
			[]string{"callback", "result"},
		),
		datasetRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "dataset",
			Name:      "records",
			Help:      "Number of country-day records in the served dataset",
		}),
		datasetCountries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "dataset",
			Name:      "countries",
			Help:      "Number of distinct countries in the served dataset",
		}),
		datasetVariants: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "dataset",
			Name:      "variant_records",
			Help:      "Number of variant detection records in the served dataset",
		}),
		datasetLoadedAt: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "dataset",
			Name:      "loaded_timestamp_seconds",
			Help:      "Unix time the served dataset was loaded",
		}),
		refreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "dataset",
				Name:      "refresh_total",
				Help:      "Dataset refresh attempts by result",
			},
			[]string{"result"},
		),
		gatherer:  gatherer,
		skipPaths: make(map[string]bool, len(config.SkipPaths)),
		logger:    logger,
	}
	for _, p := range config.SkipPaths {
		m.skipPaths[p] = true
	}

	return m
}

// Middleware records request count, latency and response size per chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		m.activeRequests.Inc()
		defer m.activeRequests.Dec()

		start := time.Now()
		rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := routePattern(r)
		status := strconv.Itoa(rw.statusCode)
		m.requestsTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.responseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
	})
}

// routePattern returns the matched chi route, or "unmatched" for 404s
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// ObserveCallback records one card callback run and its cache outcome
func (m *Metrics) ObserveCallback(callback string, cached bool, elapsed time.Duration) {
	result := "miss"
	if cached {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(callback, result).Inc()
	m.callbackDuration.WithLabelValues(callback, strconv.FormatBool(cached)).Observe(elapsed.Seconds())
}

// ObserveDataset updates the dataset gauges; register it with Repository.OnReload
func (m *Metrics) ObserveDataset(ds *data.Dataset) {
	if ds == nil {
		return
	}
	m.datasetRecords.Set(float64(len(ds.Records)))
	m.datasetCountries.Set(float64(len(ds.Countries())))
	m.datasetVariants.Set(float64(len(ds.Variants)))
	m.datasetLoadedAt.Set(float64(ds.LoadedAt.Unix()))
}

// ObserveRefresh counts a dataset refresh attempt
func (m *Metrics) ObserveRefresh(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.refreshTotal.WithLabelValues(result).Inc()
}

// ObservePanic counts a recovered panic
func (m *Metrics) ObservePanic(*http.Request) {
	m.panicsTotal.Inc()
}

// Handler returns the Prometheus scrape handler for the configured gatherer
// Endpoint: GET /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(m.logger.Handler(), slog.LevelError),
	})
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and bytes written
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	wroteHeader  bool
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
