// Package metrics provides Prometheus metrics for the influence score service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AvatarOutcome labels the result of a badge avatar fetch.
type AvatarOutcome string

// Avatar outcomes. Kept as a closed set to bound label cardinality.
const (
	AvatarFetched     AvatarOutcome = "fetched"
	AvatarFetchFailed AvatarOutcome = "fetch_failed"
	AvatarUndecodable AvatarOutcome = "undecodable"
	AvatarSkipped     AvatarOutcome = "skipped"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Scoring
	scoresComputed prometheus.Counter
	scoreValue     prometheus.Histogram
	scoringErrors  *prometheus.CounterVec

	// Upstream (gateway + avatar host)
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	avatarFetches    *prometheus.CounterVec
	avatarBytes      prometheus.Histogram

	// Badge rendering
	badgesRendered prometheus.Counter
	badgeLatency   prometheus.Histogram
	badgeErrors    prometheus.Counter
	badgeBytes     prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global manager with opts on a fresh custom registry,
// replacing the one set up at init. Call it once at startup, before any
// handler captures GetRegistry.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// NewManager creates a new metrics manager. Without WithPrometheusRegistry the
// metrics register on prometheus.DefaultRegisterer.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "influence",
		subsystem:        "score",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)
	latencyBuckets := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}
	if len(m.histogramBuckets) > 0 && !sameBuckets(m.histogramBuckets, prometheus.DefBuckets) {
		latencyBuckets = m.histogramBuckets
	}

	m.scoresComputed = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "computed_total",
		Help:        "Total number of influence scores computed",
		ConstLabels: m.constLabels,
	})

	m.scoreValue = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "value",
		Help:        "Distribution of computed scores (0..1000)",
		Buckets:     prometheus.LinearBuckets(0, 100, 11),
		ConstLabels: m.constLabels,
	})

	m.scoringErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_total",
		Help:        "Score requests that ended in an error, by reason",
		ConstLabels: m.constLabels,
	}, []string{"reason"})

	m.upstreamRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "upstream",
		Name:        "requests_total",
		Help:        "Outbound requests by operation and status code",
		ConstLabels: m.constLabels,
	}, []string{"operation", "status_code"})

	m.upstreamLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "upstream",
		Name:        "latency_milliseconds",
		Help:        "Outbound request latency in milliseconds",
		Buckets:     latencyBuckets,
		ConstLabels: m.constLabels,
	}, []string{"operation"})

	m.avatarFetches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "badge",
		Name:        "avatar_fetches_total",
		Help:        "Avatar fetch outcomes for badge rendering",
		ConstLabels: m.constLabels,
	}, []string{"outcome"})

	m.avatarBytes = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "badge",
		Name:        "avatar_bytes",
		Help:        "Size of fetched avatar images in bytes",
		Buckets:     prometheus.ExponentialBuckets(1024, 4, 8),
		ConstLabels: m.constLabels,
	})

	m.badgesRendered = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "badge",
		Name:        "rendered_total",
		Help:        "Total number of badges rendered",
		ConstLabels: m.constLabels,
	})

	m.badgeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "badge",
		Name:        "render_latency_milliseconds",
		Help:        "Badge composition and encoding latency in milliseconds",
		Buckets:     latencyBuckets,
		ConstLabels: m.constLabels,
	})

	m.badgeErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "badge",
		Name:        "render_errors_total",
		Help:        "Badge renders that failed",
		ConstLabels: m.constLabels,
	})

	m.badgeBytes = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "badge",
		Name:        "png_bytes",
		Help:        "Size of encoded badge PNGs in bytes",
		Buckets:     prometheus.ExponentialBuckets(16*1024, 2, 8),
		ConstLabels: m.constLabels,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   "http",
			Name:        "request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     latencyBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   "errors",
			Name:        "by_component_total",
			Help:        "Errors by component and type",
			ConstLabels: m.constLabels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   "errors",
			Name:        "by_type_total",
			Help:        "Errors by type and severity",
			ConstLabels: m.constLabels,
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   "errors",
			Name:        "by_endpoint_total",
			Help:        "Errors by endpoint, method and type",
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   "errors",
			Name:        "latency_milliseconds",
			Help:        "Latency of operations that ended in an error",
			Buckets:     latencyBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "memory_usage_bytes",
		Help:        "Heap bytes allocated",
		ConstLabels: m.constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: m.constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	})
}

func sameBuckets(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Scoring.

// RecordScoreComputed counts a computed score and observes its value.
func RecordScoreComputed(score int) {
	globalManager.scoresComputed.Inc()
	globalManager.scoreValue.Observe(float64(score))
}

// RecordScoringError counts a failed score request by reason
// (e.g. "invalid_username", "upstream_not_found", "search_failed").
func RecordScoringError(reason string) {
	globalManager.scoringErrors.WithLabelValues(reason).Inc()
}

// Upstream.

// RecordUpstreamRequest counts an outbound request. statusCode is "error"
// when no response was received.
func RecordUpstreamRequest(operation, statusCode string) {
	globalManager.upstreamRequests.WithLabelValues(operation, statusCode).Inc()
}

// RecordUpstreamLatency observes outbound request latency.
func RecordUpstreamLatency(operation string, latencyMs float64) {
	globalManager.upstreamLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordAvatarFetch counts an avatar fetch outcome.
func RecordAvatarFetch(outcome AvatarOutcome) error {
	switch outcome {
	case AvatarFetched, AvatarFetchFailed, AvatarUndecodable, AvatarSkipped:
		globalManager.avatarFetches.WithLabelValues(string(outcome)).Inc()
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}
}

// RecordAvatarBytes observes the size of a fetched avatar.
func RecordAvatarBytes(n int) {
	globalManager.avatarBytes.Observe(float64(n))
}

// Badge.

// RecordBadgeRendered counts a rendered badge and observes its size and latency.
func RecordBadgeRendered(pngBytes int, latencyMs float64) {
	globalManager.badgesRendered.Inc()
	globalManager.badgeBytes.Observe(float64(pngBytes))
	globalManager.badgeLatency.Observe(latencyMs)
}

// RecordBadgeError counts a failed render.
func RecordBadgeError() {
	globalManager.badgeErrors.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
