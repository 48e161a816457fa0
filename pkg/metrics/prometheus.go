// Package metrics provides Prometheus metrics for the aiweather service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle results recorded by RecordCycle.
const (
	CycleSuccess       = "success"
	CycleFetchFailed   = "fetch_failed"
	CyclePersistFailed = "persist_failed"
	CycleSkipped       = "skipped"
)

// generationBuckets covers seconds-to-tens-of-minutes model runs.
var generationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400} //nolint:gochecknoglobals // static bucket layout

// Manager manages all Prometheus metrics for the aiweather service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Refresh cycle
	cyclesTotal          *prometheus.CounterVec
	cycleDuration        prometheus.Histogram
	cycleLastSuccessUnix prometheus.Gauge
	cycleInFlight        prometheus.Gauge

	// Generation
	generationDuration *prometheus.HistogramVec
	generationFailures *prometheus.CounterVec
	generationInFlight prometheus.Gauge
	progressUpdates    *prometheus.CounterVec

	// Archive
	archiveWrites *prometheus.CounterVec
	archiveErrors *prometheus.CounterVec

	// Broadcast
	observersConnected prometheus.Gauge
	broadcastMessages  *prometheus.CounterVec
	observerEvictions  prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "aiweather",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.cyclesTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("cycles_total"),
		Help:        "Refresh cycles by result",
		ConstLabels: labels,
	}, []string{"result"})

	m.cycleDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("cycle_duration_seconds"),
		Help:        "Wall-clock duration of a refresh cycle from fetch to last worker",
		Buckets:     generationBuckets,
		ConstLabels: labels,
	})

	m.cycleLastSuccessUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("cycle_last_success_unix"),
		Help:        "Unix time of the last refresh cycle that completed",
		ConstLabels: labels,
	})

	m.cycleInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("cycle_in_flight"),
		Help:        "1 while a refresh cycle is running",
		ConstLabels: labels,
	})

	m.generationDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("generation_duration_seconds"),
		Help:        "Duration of a single model generation, including failures",
		Buckets:     generationBuckets,
		ConstLabels: labels,
	}, []string{"model"})

	m.generationFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("generation_failures_total"),
		Help:        "Model generations rendered as error pages, by failure kind",
		ConstLabels: labels,
	}, []string{"model", "kind"})

	m.generationInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("generation_in_flight"),
		Help:        "Model generations currently holding a backend call",
		ConstLabels: labels,
	})

	m.progressUpdates = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("progress_updates_total"),
		Help:        "Partial outputs forwarded after throttling",
		ConstLabels: labels,
	}, []string{"model"})

	m.archiveWrites = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("archive_writes_total"),
		Help:        "Archive files written by kind",
		ConstLabels: labels,
	}, []string{"kind"})

	m.archiveErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("archive_errors_total"),
		Help:        "Archive read/write failures by kind",
		ConstLabels: labels,
	}, []string{"kind"})

	m.observersConnected = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("observers_connected"),
		Help:        "Live websocket observers",
		ConstLabels: labels,
	})

	m.broadcastMessages = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("broadcast_messages_total"),
		Help:        "Messages delivered to observers by message type",
		ConstLabels: labels,
	}, []string{"type"})

	m.observerEvictions = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("observer_evictions_total"),
		Help:        "Observers dropped after a failed send",
		ConstLabels: labels,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_requests_total"),
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_request_duration_milliseconds"),
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_memory_usage_bytes"),
		Help:        "System memory usage in bytes",
		ConstLabels: labels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_goroutine_count"),
		Help:        "Number of goroutines",
		ConstLabels: labels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_time_milliseconds"),
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: labels,
	})
}

// Cycle Metrics Functions.

// RecordCycle increments the cycle counter for result.
func RecordCycle(result string) {
	globalManager.cyclesTotal.WithLabelValues(result).Inc()
}

// RecordCycleDuration observes how long a finished cycle took.
func RecordCycleDuration(d time.Duration) {
	globalManager.cycleDuration.Observe(d.Seconds())
}

// MarkCycleSuccess stamps the last successful cycle time.
func MarkCycleSuccess(at time.Time) {
	globalManager.cycleLastSuccessUnix.Set(float64(at.Unix()))
}

// SetCycleInFlight flips the in-flight gauge.
func SetCycleInFlight(running bool) {
	v := 0.0
	if running {
		v = 1
	}
	globalManager.cycleInFlight.Set(v)
}

// Generation Metrics Functions.

// RecordGenerationDuration observes one model run.
func RecordGenerationDuration(model string, d time.Duration) {
	globalManager.generationDuration.WithLabelValues(model).Observe(d.Seconds())
}

// RecordGenerationFailure counts a degraded result.
func RecordGenerationFailure(model, kind string) {
	globalManager.generationFailures.WithLabelValues(model, kind).Inc()
}

// IncGenerationInFlight marks a backend call as started.
func IncGenerationInFlight() {
	globalManager.generationInFlight.Inc()
}

// DecGenerationInFlight marks a backend call as finished.
func DecGenerationInFlight() {
	globalManager.generationInFlight.Dec()
}

// RecordProgressUpdate counts a forwarded partial output.
func RecordProgressUpdate(model string) {
	globalManager.progressUpdates.WithLabelValues(model).Inc()
}

// Archive Metrics Functions.

// RecordArchiveWrite counts a file written to the archive.
func RecordArchiveWrite(kind string) {
	globalManager.archiveWrites.WithLabelValues(kind).Inc()
}

// RecordArchiveError counts an archive failure.
func RecordArchiveError(kind string) {
	globalManager.archiveErrors.WithLabelValues(kind).Inc()
}

// Broadcast Metrics Functions.

// UpdateObserversConnected sets the number of live observers.
func UpdateObserversConnected(n int) {
	globalManager.observersConnected.Set(float64(n))
}

// RecordBroadcastMessage counts one delivered message.
func RecordBroadcastMessage(msgType string) {
	globalManager.broadcastMessages.WithLabelValues(msgType).Inc()
}

// RecordObserverEviction counts an observer dropped after a send failure.
func RecordObserverEviction() {
	globalManager.observerEvictions.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
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
