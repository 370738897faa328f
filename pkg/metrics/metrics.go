package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DAG executor metrics
	DAGEpochCurrent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weir_dag_epoch_current",
			Help: "Current epoch per pipeline",
		},
		[]string{"pipeline"},
	)

	DAGNodeBacklog = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weir_dag_node_backlog",
			Help: "Number of buffered operations on a node's input channel",
		},
		[]string{"pipeline", "node", "port"},
	)

	DAGNodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weir_dag_nodes_total",
			Help: "Total number of DAG nodes by kind",
		},
		[]string{"pipeline", "kind"},
	)

	OperationsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weir_operations_processed_total",
			Help: "Total number of operations processed by a node",
		},
		[]string{"pipeline", "node", "op_type"},
	)

	OperationsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weir_operations_dropped_total",
			Help: "Total number of operations dropped by the error manager's log-and-continue policy",
		},
		[]string{"pipeline", "node"},
	)

	CommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weir_commit_duration_seconds",
			Help:    "Time taken to process an epoch barrier commit at a node",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline", "node"},
	)

	// Cache metrics
	CacheRecordsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weir_cache_records_total",
			Help: "Total number of live records in a cache",
		},
		[]string{"endpoint"},
	)

	CacheWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weir_cache_write_duration_seconds",
			Help:    "Time taken to insert/update/delete a record in a cache",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "op"},
	)

	CacheCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weir_cache_commit_duration_seconds",
			Help:    "Time taken for a cache Commit to return",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Query metrics
	QueryPlanTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weir_query_plan_total",
			Help: "Total number of queries planned by plan kind",
		},
		[]string{"plan"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weir_query_duration_seconds",
			Help:    "Query execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "plan"},
	)

	// Checkpoint metrics
	CheckpointDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weir_checkpoint_duration_seconds",
			Help:    "Time taken to persist a checkpoint",
			Buckets: prometheus.DefBuckets,
		},
	)

	CheckpointEpoch = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weir_checkpoint_epoch",
			Help: "Greatest epoch durably checkpointed per pipeline",
		},
		[]string{"pipeline"},
	)

	LogEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weir_log_entries_total",
			Help: "Number of persisted log entries per endpoint",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(
		DAGEpochCurrent,
		DAGNodeBacklog,
		DAGNodesTotal,
		OperationsProcessedTotal,
		OperationsDroppedTotal,
		CommitDuration,
		CacheRecordsTotal,
		CacheWriteDuration,
		CacheCommitDuration,
		QueryPlanTotal,
		QueryDuration,
		CheckpointDuration,
		CheckpointEpoch,
		LogEntriesTotal,
	)
}

// Handler returns the Prometheus HTTP handler for an operator to mount on
// their own mux; weir never starts an HTTP listener itself.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
