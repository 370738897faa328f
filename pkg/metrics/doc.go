/*
Package metrics provides Prometheus metrics collection and exposition for weir.

The metrics package defines and registers all weir metrics using the Prometheus
client library, providing observability into DAG execution, cache state, query
planning and checkpoint durability. Metrics are exposed via an http.Handler for
an operator to mount on whatever mux they run; weir itself never starts a
listener.

# Metrics Catalog

DAG executor metrics:

weir_dag_epoch_current{pipeline}: current epoch per pipeline (gauge)
weir_dag_node_backlog{pipeline,node,port}: buffered ops on an input channel (gauge)
weir_dag_nodes_total{pipeline,kind}: node count by kind (source/processor/sink) (gauge)
weir_operations_processed_total{pipeline,node,op_type}: processed op count (counter)
weir_operations_dropped_total{pipeline,node}: ops dropped by the error manager's
  log-and-continue policy (counter)
weir_commit_duration_seconds{pipeline,node}: time spent in a node's commit hook (histogram)

Cache metrics:

weir_cache_records_total{endpoint}: live record count (gauge)
weir_cache_write_duration_seconds{endpoint,op}: insert/update/delete latency (histogram)
weir_cache_commit_duration_seconds: Cache.Commit latency (histogram)

Query metrics:

weir_query_plan_total{plan}: queries planned by plan kind (index_scan/seq_scan) (counter)
weir_query_duration_seconds{endpoint,plan}: query execution latency (histogram)

Checkpoint metrics:

weir_checkpoint_duration_seconds: checkpoint persistence latency (histogram)
weir_checkpoint_epoch{pipeline}: greatest durably checkpointed epoch (gauge)
weir_log_entries_total{endpoint}: persisted log entry count (gauge)

# Usage

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.CacheCommitDuration)

# Design Patterns

All metrics are registered in init() via prometheus.MustRegister so they are
available before main() runs. The Timer helper wraps start-time capture and
histogram observation; it composes with both plain histograms and
*Vec variants via ObserveDurationVec.
*/
package metrics
