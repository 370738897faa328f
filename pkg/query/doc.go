// Package query turns a filter/order/limit expression into an execution
// plan against a pkg/cache Cache — an IndexScan over one of its secondary
// indexes when one qualifies, or a SeqScan over its primary record
// database otherwise — and runs that plan to produce matching records.
//
// Planning never mutates the cache and takes no lock beyond the read
// transaction it opens for execution; it is safe to plan and execute
// concurrently with writers.
package query
