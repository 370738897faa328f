/*
Package types defines weir's wire data model: tagged field values, schemas,
records, and the Operation/ExecutorOperation types that flow along DAG
edges. Every other package builds on these types; none of them import
back into pkg/types.
*/
package types
