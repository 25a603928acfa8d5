// Package metrics provides Prometheus metrics for the champstock update pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	priceBuckets     []float64
	cycleBuckets     []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pipeline metrics
	cyclesTotal   *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	scansTotal    *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	gamesPriced   prometheus.Counter
	gamesSkipped  *prometheus.CounterVec
	priceValue    prometheus.Histogram
	scoreValue    prometheus.Histogram

	// Match data gateway
	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	rateLimitWaits  prometheus.Counter
	rateLimitGiveUp prometheus.Counter

	// Trigger queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueCoalesced     prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	workerErrors       prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// Process
	systemMemory     prometheus.Gauge
	systemGoroutines prometheus.Gauge
	systemGCPause    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "champstock",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		priceBuckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 15, 20, 30, 50, 100},
		cycleBuckets:     prometheus.ExponentialBuckets(0.05, 2, 14),
		customLabels:     make(map[string]string),
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

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels, Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.cyclesTotal = m.counterVec("cycles_total", "Market update cycles by result", "result")
	m.cycleDuration = m.histogram("cycle_duration_seconds", "Wall time of a market update cycle", m.cycleBuckets)
	m.scansTotal = m.counterVec("scans_total", "Per-player frontier scans by terminal state", "state")
	m.scanDuration = m.histogram("scan_duration_seconds", "Wall time of one frontier scan", m.cycleBuckets)
	m.gamesPriced = m.counter("games_priced_total", "Games folded into a stock price")
	m.gamesSkipped = m.counterVec("games_skipped_total", "Games passed over during a scan by reason", "reason")
	m.priceValue = m.histogram("price_value", "Distribution of newly written stock prices", m.priceBuckets)
	m.scoreValue = m.histogram("score_value", "Distribution of clamped performance scores", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	m.gatewayRequests = m.counterVec("gateway_requests_total", "Match data gateway requests by endpoint and status", "endpoint", "status_code")
	m.gatewayLatency = m.histogramVec("gateway_request_duration_milliseconds", "Match data gateway request latency", m.histogramBuckets, "endpoint")
	m.rateLimitWaits = m.counter("rate_limit_waits_total", "Rate-limited responses that were waited out")
	m.rateLimitGiveUp = m.counter("rate_limit_exhausted_total", "Requests that exhausted the rate-limit retry budget")

	m.queueSize = m.gauge("queue_size", "Pending market update triggers")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the trigger queue")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Market update triggers accepted")
	m.queueCoalesced = m.counter("queue_coalesced_total", "Triggers folded into an already pending trigger")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Triggers rejected by the queue")
	m.workerCount = m.gauge("worker_count", "Running update workers")
	m.workerErrors = m.counter("worker_errors_total", "Update cycles that returned an error to a worker")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemory = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutines = m.gauge("system_goroutines", "Live goroutines")
	m.systemGCPause = m.histogram("system_gc_pause_milliseconds", "Average GC pause", []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50})
}

// RecordCycle records a finished update cycle.
func RecordCycle(result string, d time.Duration) {
	globalManager.cyclesTotal.WithLabelValues(result).Inc()
	globalManager.cycleDuration.Observe(d.Seconds())
}

// RecordScan records a finished frontier scan.
func RecordScan(state string, d time.Duration) {
	globalManager.scansTotal.WithLabelValues(state).Inc()
	globalManager.scanDuration.Observe(d.Seconds())
}

// RecordGamePriced records a price write along with its score.
func RecordGamePriced(price, score float64) {
	globalManager.gamesPriced.Inc()
	globalManager.priceValue.Observe(price)
	globalManager.scoreValue.Observe(score)
}

// RecordGameSkipped increments the skip counter for reason.
func RecordGameSkipped(reason string) {
	globalManager.gamesSkipped.WithLabelValues(reason).Inc()
}

// RecordGatewayRequest records one gateway round trip.
func RecordGatewayRequest(endpoint, statusCode string, latencyMs float64) {
	globalManager.gatewayRequests.WithLabelValues(endpoint, statusCode).Inc()
	globalManager.gatewayLatency.WithLabelValues(endpoint).Observe(latencyMs)
}

// RecordRateLimitWait increments the rate-limit wait counter.
func RecordRateLimitWait() {
	globalManager.rateLimitWaits.Inc()
}

// RecordRateLimitExhausted increments the rate-limit exhaustion counter.
func RecordRateLimitExhausted() {
	globalManager.rateLimitGiveUp.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueCoalesced increments the coalesced trigger counter.
func RecordQueueCoalesced() {
	globalManager.queueCoalesced.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemory.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(n int) {
	globalManager.systemGoroutines.Set(float64(n))
}

// RecordSystemGCPauseTime observes an average GC pause.
func RecordSystemGCPauseTime(ms float64) {
	globalManager.systemGCPause.Observe(ms)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
