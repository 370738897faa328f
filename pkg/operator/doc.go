// Package operator implements weir's streaming operators: the processors a
// SQL planner wires into a dag.Dag between a source and a sink. Every
// operator consumes dag.Processor operations and emits operations that
// preserve incremental-view-maintenance — applying the emitted delta to the
// operator's prior output always reproduces what re-evaluating the query
// over the new input would give.
package operator
