// Package file is weir's one built-in connector: it reads a newline-delimited
// JSON file once and snapshots it as a single sequence of inserts. Real upstreams
// (Postgres CDC, Kafka, ...) are external collaborators weir does not ship;
// this connector exists so a pipeline is runnable end to end against local
// fixtures without one.
//
// Every line of the watched file is a JSON object keyed by field name,
// decoded against the schema declared in the source's config. The
// connector never rewrites or deletes lines already read: like a real CDC
// source's initial snapshot, it only ever inserts. It keeps no read
// position: a later run re-reads the file from the top.
package file
