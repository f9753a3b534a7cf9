package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the process.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	timingBuckets    []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Game core
	sessionsStarted  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
	judgments        *prometheus.CounterVec
	inputsDropped    *prometheus.CounterVec
	cuesFired        prometheus.Counter
	cueLateness      prometheus.Histogram
	tickDuration     prometheus.Histogram

	// Replay verification
	verifications        *prometheus.CounterVec
	verificationLatency  prometheus.Histogram
	submissionsDuplicate prometheus.Counter
	archiveWrites        prometheus.Counter

	// Leaderboard
	leaderboardUpdates      prometheus.Counter
	leaderboardEntries      *prometheus.GaugeVec
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

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

var globalManager *Manager //nolint:gochecknoglobals // process-wide metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ovation",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		timingBuckets:    []float64{0.5, 1, 2, 4, 8, 16, 33, 66, 100, 250},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.sessionsStarted = auto.NewCounterVec(
		m.counterOpts("sessions_started_total", "Sessions constructed, by mode (live, replay)"),
		[]string{"mode"},
	)
	m.sessionsFinished = auto.NewCounterVec(
		m.counterOpts("sessions_finished_total", "Sessions finalized, by mode (live, replay)"),
		[]string{"mode"},
	)
	m.judgments = auto.NewCounterVec(
		m.counterOpts("judgments_total", "Judgments emitted by the scorer, by quality"),
		[]string{"quality"},
	)
	m.inputsDropped = auto.NewCounterVec(
		m.counterOpts("inputs_dropped_total", "Inputs dropped before judgment, by reason"),
		[]string{"reason"},
	)
	m.cuesFired = auto.NewCounter(m.counterOpts("cues_fired_total", "Scheduled audio cues handed to the audio layer"))
	m.cueLateness = auto.NewHistogram(m.histogramOpts(
		"cue_lateness_milliseconds",
		"How far inside the lookahead window a cue was scheduled (late cues only)",
		m.timingBuckets,
	))
	m.tickDuration = auto.NewHistogram(m.histogramOpts(
		"tick_duration_milliseconds",
		"Wall time spent in one session tick",
		m.timingBuckets,
	))

	m.verifications = auto.NewCounterVec(
		m.counterOpts("replay_verifications_total", "Replay verifications, by outcome (verified, mismatch, error)"),
		[]string{"outcome"},
	)
	m.verificationLatency = auto.NewHistogram(m.histogramOpts(
		"replay_verification_latency_milliseconds",
		"Time to re-simulate and compare one replay",
		m.histogramBuckets,
	))
	m.submissionsDuplicate = auto.NewCounter(m.counterOpts(
		"replay_submissions_duplicate_total",
		"Replay submissions rejected as duplicates",
	))
	m.archiveWrites = auto.NewCounter(m.counterOpts("replay_archive_writes_total", "Replays written to the archive"))

	m.leaderboardUpdates = auto.NewCounter(m.counterOpts("leaderboard_updates_total", "Improved personal bests written to the leaderboard"))
	m.leaderboardEntries = auto.NewGaugeVec(
		m.gaugeOpts("leaderboard_entries", "Players ranked per track"),
		[]string{"track"},
	)
	m.repositoryUpdateLatency = auto.NewHistogram(m.histogramOpts(
		"repository_update_latency_milliseconds",
		"Leaderboard update latency",
		m.histogramBuckets,
	))
	m.repositoryQueryLatency = auto.NewHistogram(m.histogramOpts(
		"repository_query_latency_milliseconds",
		"Leaderboard query latency",
		m.histogramBuckets,
	))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Replays waiting for verification"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum verification queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue size divided by capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Submissions accepted by the queue"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Submissions handed to workers"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Submissions refused by the queue"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts(
		"queue_processing_latency_milliseconds",
		"Time spent inside Enqueue",
		m.histogramBuckets,
	))

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Verification workers running"))
	m.workerMessagesPerSecond = auto.NewGauge(m.gaugeOpts("worker_messages_per_second", "Verification throughput"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts(
		"worker_processing_latency_milliseconds",
		"End to end time a worker spends on one submission",
		m.histogramBuckets,
	))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Submissions a worker failed to process"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by endpoint, method and type"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_milliseconds", "Latency of operations that ended in an error", m.histogramBuckets),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts(
		"system_gc_pause_time_milliseconds",
		"Average GC pause time",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	))
}

// Game core.

// RecordSessionStarted counts a session constructed in the given mode.
func RecordSessionStarted(mode string) {
	globalManager.sessionsStarted.WithLabelValues(mode).Inc()
}

// RecordSessionFinished counts a session finalized in the given mode.
func RecordSessionFinished(mode string) {
	globalManager.sessionsFinished.WithLabelValues(mode).Inc()
}

// RecordJudgment counts one judgment of the given quality.
func RecordJudgment(quality string) {
	globalManager.judgments.WithLabelValues(quality).Inc()
}

// RecordInputDropped counts an input dropped for reason (malformed, late,
// debounced, coalesced, suppressed, unmapped).
func RecordInputDropped(reason string) {
	globalManager.inputsDropped.WithLabelValues(reason).Inc()
}

// RecordCueFired counts a cue handed to the audio layer.
func RecordCueFired() {
	globalManager.cuesFired.Inc()
}

// RecordCueLateness records how late a cue was scheduled, in milliseconds.
func RecordCueLateness(latenessMs float64) {
	globalManager.cueLateness.Observe(latenessMs)
}

// RecordTickDuration records the wall time of one session tick.
func RecordTickDuration(durationMs float64) {
	globalManager.tickDuration.Observe(durationMs)
}

// Replay verification.

// RecordReplayVerification counts a verification outcome.
func RecordReplayVerification(outcome string) {
	globalManager.verifications.WithLabelValues(outcome).Inc()
}

// RecordVerificationLatency records the latency of one verification.
func RecordVerificationLatency(latencyMs float64) {
	globalManager.verificationLatency.Observe(latencyMs)
}

// RecordSubmissionDuplicate counts a duplicate submission.
func RecordSubmissionDuplicate() {
	globalManager.submissionsDuplicate.Inc()
}

// RecordArchiveWrite counts a replay written to the archive.
func RecordArchiveWrite() {
	globalManager.archiveWrites.Inc()
}

// Leaderboard.

// RecordLeaderboardUpdate counts an improved personal best.
func RecordLeaderboardUpdate() {
	globalManager.leaderboardUpdates.Inc()
}

// UpdateLeaderboardEntries sets the number of ranked players on a track.
func UpdateLeaderboardEntries(track string, count int) {
	globalManager.leaderboardEntries.WithLabelValues(track).Set(float64(count))
}

// RecordRepositoryUpdateLatency records leaderboard update latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records leaderboard query latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Workers.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average submissions processed per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
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
