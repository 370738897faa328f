// Package pipeline wires a config.PipelineConfig into a runnable dataflow
// graph: one file source per declared source, one operator chain per SQL
// statement, and one cache-backed sink per endpoint, glued together with
// pkg/dag and driven by pkg/executor. It is the one place that knows how
// weir's ambient pieces (config, sql, dag, cache, checkpoint, executor)
// fit together, so cmd/weir itself stays a thin cobra front end.
package pipeline
