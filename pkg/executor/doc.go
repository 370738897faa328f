// Package executor turns a prepared dag.BuilderDag into running
// goroutines: one per node, connected by bounded channels, cooperating
// through the epoch-barrier Commit protocol so that a sink only acts on an
// epoch once every upstream node has finished emitting it.
package executor
