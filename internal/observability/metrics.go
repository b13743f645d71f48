package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	buildTotal      *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec
	pendingChanges  *prometheus.GaugeVec
	rebuildCycles   *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	collectionSize  *prometheus.GaugeVec
	versionsTotal   prometheus.Gauge
	activeVersion   *prometheus.GaugeVec
	snapshotOps     *prometheus.CounterVec
	snapshotBytes   prometheus.Gauge
	snapshotsStored prometheus.Gauge
	rollbackTotal   *prometheus.CounterVec

	embeddingRequests *prometheus.CounterVec
	embeddingCache    *prometheus.CounterVec
	ruleGeneration    *prometheus.CounterVec
	suggestions       *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "queue_size",
					Help: "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dequeue_total",
					Help: "Total job completions by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "task_duration_seconds",
					Help:    "Job execution duration in seconds by lane.",
					Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
				},
				[]string{"lane"},
			),
			buildTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_build_total",
					Help: "Category rebuilds by category and status.",
				},
				[]string{"category", "status"},
			),
			buildDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memory_build_duration_seconds",
					Help:    "Category rebuild duration in seconds.",
					Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
				},
				[]string{"category"},
			),
			pendingChanges: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "memory_pending_changes",
					Help: "Changed files detected per category at the last scan.",
				},
				[]string{"category"},
			),
			rebuildCycles: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_rebuild_cycles_total",
					Help: "Rebuild cycles by outcome (success, partial, failed, noop, dry_run).",
				},
				[]string{"outcome"},
			),
			cycleDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_rebuild_cycle_duration_seconds",
					Help:    "Full rebuild cycle duration in seconds.",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
				},
			),
			collectionSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "memory_collection_points",
					Help: "Point count per vector-store collection at the last version.",
				},
				[]string{"collection"},
			),
			versionsTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_versions_total",
					Help: "Number of recorded memory versions.",
				},
			),
			activeVersion: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "memory_active_version_info",
					Help: "Active memory version (value is always 1).",
				},
				[]string{"version_id"},
			),
			snapshotOps: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_snapshot_operations_total",
					Help: "Snapshot operations by op and status.",
				},
				[]string{"op", "status"},
			),
			snapshotBytes: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_snapshot_last_size_bytes",
					Help: "Size of the most recently created snapshot.",
				},
			),
			snapshotsStored: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_snapshots_stored",
					Help: "Snapshots currently on disk.",
				},
			),
			rollbackTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_rollback_total",
					Help: "Rollbacks by outcome (success, partial, not_found, failed).",
				},
				[]string{"outcome"},
			),
			embeddingRequests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "embedding_requests_total",
					Help: "Embedding backend calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			embeddingCache: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "embedding_cache_lookups_total",
					Help: "Embedding cache lookups by result (hit, miss).",
				},
				[]string{"result"},
			),
			ruleGeneration: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rule_generation_total",
					Help: "Procedural rule generation runs by status.",
				},
				[]string{"status"},
			),
			suggestions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "user_suggestions_total",
					Help: "User suggestions by action (received, added, duplicate).",
				},
				[]string{"action"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.buildTotal,
			m.buildDuration,
			m.pendingChanges,
			m.rebuildCycles,
			m.cycleDuration,
			m.collectionSize,
			m.versionsTotal,
			m.activeVersion,
			m.snapshotOps,
			m.snapshotBytes,
			m.snapshotsStored,
			m.rollbackTotal,
			m.embeddingRequests,
			m.embeddingCache,
			m.ruleGeneration,
			m.suggestions,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	m.dequeueTotal.WithLabelValues(lane, statusLabel(success)).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordCategoryBuild(category string, duration time.Duration, success bool) {
	m := getMetrics()
	m.buildTotal.WithLabelValues(category, statusLabel(success)).Inc()
	m.buildDuration.WithLabelValues(category).Observe(duration.Seconds())
}

func SetPendingChanges(category string, total int) {
	getMetrics().pendingChanges.WithLabelValues(category).Set(float64(total))
}

func RecordRebuildCycle(outcome string, duration time.Duration) {
	m := getMetrics()
	m.rebuildCycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(duration.Seconds())
}

func SetCollectionSizes(counts map[string]int) {
	m := getMetrics()
	for name, n := range counts {
		m.collectionSize.WithLabelValues(name).Set(float64(n))
	}
}

func SetVersionState(total int, activeID string) {
	m := getMetrics()
	m.versionsTotal.Set(float64(total))
	m.activeVersion.Reset()
	if activeID != "" {
		m.activeVersion.WithLabelValues(activeID).Set(1)
	}
}

func RecordSnapshotOp(op string, success bool) {
	getMetrics().snapshotOps.WithLabelValues(op, statusLabel(success)).Inc()
}

func SetSnapshotSize(bytes int64) {
	getMetrics().snapshotBytes.Set(float64(bytes))
}

func SetSnapshotsStored(count int) {
	getMetrics().snapshotsStored.Set(float64(count))
}

func RecordRollback(outcome string) {
	getMetrics().rollbackTotal.WithLabelValues(outcome).Inc()
}

func RecordEmbeddingRequest(provider string, success bool) {
	getMetrics().embeddingRequests.WithLabelValues(provider, statusLabel(success)).Inc()
}

func RecordEmbeddingCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	getMetrics().embeddingCache.WithLabelValues(result).Inc()
}

func RecordRuleGeneration(status string) {
	getMetrics().ruleGeneration.WithLabelValues(status).Inc()
}

func RecordSuggestions(action string, n int) {
	if n > 0 {
		getMetrics().suggestions.WithLabelValues(action).Add(float64(n))
	}
}
