// Package metrics provides Prometheus metrics for the readq service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var defaultLatencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Queue ordering
	rankOperations   *prometheus.CounterVec
	rankShifts       prometheus.Counter
	reorderSkipped   *prometheus.CounterVec
	inconsistentRank prometheus.Counter

	// Scoring
	scoreComputations prometheus.Counter
	formulaUpdates    prometheus.Counter
	booksRescored     prometheus.Counter

	// Storage
	storeTxDuration *prometheus.HistogramVec
	storeTxErrors   *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Rescore queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueEnqueueErrs prometheus.Counter
	queueDuplicates  prometheus.Counter

	// Rescore workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerJobs              *prometheus.CounterVec

	errorsByComponent *prometheus.CounterVec

	// Process
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

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "readq",
		subsystem:        "queue",
		histogramBuckets: defaultLatencyBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.rankOperations = m.counterVec("rank_operations_total", "Rank-maintaining operations by kind", "op")
	m.rankShifts = m.counter("rank_shifts_total", "Sibling rank changes written by rank operations")
	m.reorderSkipped = m.counterVec("reorder_skipped_total", "Bulk reorder pairs skipped", "reason")
	m.inconsistentRank = m.counter("inconsistent_rank_total", "Operations refused because ranks were inconsistent")

	m.scoreComputations = m.counter("score_computations_total", "Score computations")
	m.formulaUpdates = m.counter("formula_updates_total", "Formula changes that triggered a rescore")
	m.booksRescored = m.counter("books_rescored_total", "Books whose stored score changed during a rescore")

	m.storeTxDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "store_tx_duration_milliseconds",
		Help:    "Store transaction duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"kind"})
	m.storeTxErrors = m.counterVec("store_tx_errors_total", "Store transactions rolled back", "kind")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.queueSize = m.gauge("rescore_queue_size", "Rescore jobs waiting")
	m.queueCapacity = m.gauge("rescore_queue_capacity", "Rescore queue capacity")
	m.queueUtilization = m.gauge("rescore_queue_utilization_ratio", "Rescore queue fill ratio (0-1)")
	m.queueEnqueued = m.counter("rescore_queue_enqueued_total", "Rescore jobs enqueued")
	m.queueDequeued = m.counter("rescore_queue_dequeued_total", "Rescore jobs dequeued")
	m.queueEnqueueErrs = m.counter("rescore_queue_enqueue_errors_total", "Rescore jobs rejected by a full or closed queue")
	m.queueDuplicates = m.counter("rescore_queue_duplicates_total", "Rescore requests dropped because one was already pending")

	m.workerCount = m.gauge("worker_count", "Rescore workers configured")
	m.workerActiveCount = m.gauge("worker_active_count", "Rescore workers running")
	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "worker_processing_latency_milliseconds",
		Help:    "Rescore job processing latency in milliseconds",
		Buckets: m.histogramBuckets,
	})
	m.workerJobs = m.counterVec("worker_jobs_total", "Rescore jobs processed by result", "result")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "system_gc_pause_time_milliseconds",
		Help:    "GC pause time in milliseconds",
		Buckets: defaultLatencyBuckets,
	})
}

// RecordRankOperation counts one rank operation and the sibling shifts it wrote.
func RecordRankOperation(op string, shifts int) {
	globalManager.rankOperations.WithLabelValues(op).Inc()
	if shifts > 0 {
		globalManager.rankShifts.Add(float64(shifts))
	}
}

// RecordReorderSkipped counts a bulk reorder pair that was not applied.
func RecordReorderSkipped(reason string) {
	globalManager.reorderSkipped.WithLabelValues(reason).Inc()
}

// RecordInconsistentRank counts an operation refused on inconsistent ranks.
func RecordInconsistentRank() {
	globalManager.inconsistentRank.Inc()
}

// RecordScoreComputations counts n score computations.
func RecordScoreComputations(n int) {
	globalManager.scoreComputations.Add(float64(n))
}

// RecordFormulaUpdate counts a formula change.
func RecordFormulaUpdate() {
	globalManager.formulaUpdates.Inc()
}

// RecordBooksRescored counts books whose score changed in a rescore.
func RecordBooksRescored(n int) {
	globalManager.booksRescored.Add(float64(n))
}

// RecordStoreTx records a store transaction's duration and outcome.
func RecordStoreTx(kind string, latencyMs float64, failed bool) {
	globalManager.storeTxDuration.WithLabelValues(kind).Observe(latencyMs)
	if failed {
		globalManager.storeTxErrors.WithLabelValues(kind).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in seconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueSize sets the number of waiting rescore jobs.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the rescore queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the rescore queue fill ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue counts an enqueued job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeued job.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected job.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrs.Inc()
}

// RecordQueueDuplicate counts a rescore request dropped as already pending.
func RecordQueueDuplicate() {
	globalManager.queueDuplicates.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerJob records a processed job's latency and result.
func RecordWorkerJob(result string, latencyMs float64) {
	globalManager.workerJobs.WithLabelValues(result).Inc()
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory in use.
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
