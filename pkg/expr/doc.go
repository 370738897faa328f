// Package expr implements weir's typed expression tree: the nodes a SQL
// projection, predicate or aggregate argument compiles down to, each
// supporting type-checking (GetType) against a schema and evaluation
// (Evaluate) against a record.
package expr
